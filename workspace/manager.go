package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/runbox-dev/runbox/config"
)

// File permission constants
const (
	DirPermission  = 0o755
	FilePermission = 0o600
)

// FileSystem defines an interface for the file system operations the
// manager performs, so tests can inject failures.
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Manager creates and destroys per-job workspace directories.
type Manager struct {
	logger  *zap.Logger
	root    string
	fs      FileSystem
	retries int
	backoff time.Duration
}

// ManagerOption defines a functional option for Manager
type ManagerOption func(*Manager)

// WithFileSystem sets the FileSystem for the Manager
func WithFileSystem(fs FileSystem) ManagerOption {
	return func(m *Manager) {
		m.fs = fs
	}
}

// WithRetryPolicy sets the release retry budget and base backoff
func WithRetryPolicy(retries int, backoff time.Duration) ManagerOption {
	return func(m *Manager) {
		m.retries = retries
		m.backoff = backoff
	}
}

// NewManager creates a workspace manager rooted at the configured
// directory (the OS temp directory when unset).
func NewManager(logger *zap.Logger, cfg *config.Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:  logger,
		root:    cfg.Sandbox.WorkspaceRoot,
		fs:      RealFileSystem{},
		retries: 3,
		backoff: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Acquire creates a fresh directory for the job and writes the source
// file under the language's fixed filename. The caller owns the
// returned path and must pair it with exactly one Release.
func (m *Manager) Acquire(jobID, filename, code string) (string, error) {
	if m.root != "" {
		if err := m.fs.MkdirAll(m.root, DirPermission); err != nil {
			return "", fmt.Errorf("failed to create workspace root: %w", err)
		}
	}

	dir, err := m.fs.MkdirTemp(m.root, "runbox-"+jobID+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	if err := m.fs.WriteFile(filepath.Join(dir, filename), []byte(code), FilePermission); err != nil {
		m.Release(dir)
		return "", fmt.Errorf("failed to write source file: %w", err)
	}

	return dir, nil
}

// Release removes the workspace tree. Removal failures are retried with
// bounded backoff and logged after the budget is exhausted; they are
// never raised to the caller.
func (m *Manager) Release(path string) {
	err := Retry(m.retries, m.backoff, func() error {
		return m.fs.RemoveAll(path)
	})
	if err != nil {
		m.logger.Error("failed to remove workspace after retries",
			zap.String("path", path),
			zap.Int("attempts", m.retries),
			zap.Error(err))
	}
}

// Retry runs an idempotent operation up to attempts times, doubling the
// backoff between tries. Intended for transient OS-level failures.
func Retry(attempts int, backoff time.Duration, op func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(backoff << i)
		}
	}
	return err
}
