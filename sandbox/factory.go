package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/runbox-dev/runbox/config"
)

// NewBackend creates the execution backend selected by the
// configuration. The choice is made once per deployment; both backends
// satisfy the same contract.
func NewBackend(logger *zap.Logger, cfg *config.Config) (Backend, error) {
	switch cfg.Sandbox.Backend {
	case "host":
		return NewHostBackend(logger, cfg), nil
	case "container":
		return NewContainerBackend(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
