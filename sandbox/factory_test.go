package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewBackend(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Host", func(t *testing.T) {
		cfg := testSandboxConfig()
		cfg.Sandbox.Backend = "host"

		backend, err := NewBackend(logger, cfg)
		require.NoError(t, err)
		assert.IsType(t, &HostBackend{}, backend)
	})

	t.Run("Container", func(t *testing.T) {
		cfg := testSandboxConfig()
		cfg.Sandbox.Backend = "container"

		backend, err := NewBackend(logger, cfg)
		require.NoError(t, err)
		assert.IsType(t, &ContainerBackend{}, backend)
	})

	t.Run("Unsupported", func(t *testing.T) {
		cfg := testSandboxConfig()
		cfg.Sandbox.Backend = "firecracker"

		_, err := NewBackend(logger, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported backend")
	})
}
