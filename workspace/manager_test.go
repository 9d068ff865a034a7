package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/runbox-dev/runbox/config"
)

// flakyFileSystem fails RemoveAll a set number of times before succeeding.
type flakyFileSystem struct {
	RealFileSystem
	removeFailures int
	removeCalls    int
}

func (f *flakyFileSystem) RemoveAll(path string) error {
	f.removeCalls++
	if f.removeCalls <= f.removeFailures {
		return errors.New("device or resource busy")
	}
	return f.RealFileSystem.RemoveAll(path)
}

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	cfg := &config.Config{
		Sandbox: config.SandboxConfig{WorkspaceRoot: t.TempDir()},
	}
	return NewManager(zaptest.NewLogger(t), cfg, opts...)
}

func TestManagerAcquire(t *testing.T) {
	t.Run("WritesSourceUnderFixedName", func(t *testing.T) {
		m := newTestManager(t)

		dir, err := m.Acquire("job1", "Main.java", "public class Main {}")
		require.NoError(t, err)
		defer m.Release(dir)

		data, err := os.ReadFile(filepath.Join(dir, "Main.java"))
		require.NoError(t, err)
		assert.Equal(t, "public class Main {}", string(data))
	})

	t.Run("DirectoriesAreExclusive", func(t *testing.T) {
		m := newTestManager(t)

		a, err := m.Acquire("job1", "main.py", "print(1)")
		require.NoError(t, err)
		b, err := m.Acquire("job1", "main.py", "print(2)")
		require.NoError(t, err)
		defer m.Release(a)
		defer m.Release(b)

		assert.NotEqual(t, a, b)
	})

	t.Run("SourceFileIsNotWorldReadable", func(t *testing.T) {
		m := newTestManager(t)

		dir, err := m.Acquire("job1", "main.py", "print(1)")
		require.NoError(t, err)
		defer m.Release(dir)

		info, err := os.Stat(filepath.Join(dir, "main.py"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(FilePermission), info.Mode().Perm())
	})
}

func TestManagerRelease(t *testing.T) {
	t.Run("RemovesDirectory", func(t *testing.T) {
		m := newTestManager(t)

		dir, err := m.Acquire("job1", "main.py", "print(1)")
		require.NoError(t, err)

		m.Release(dir)

		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("IsIdempotent", func(t *testing.T) {
		m := newTestManager(t)

		dir, err := m.Acquire("job1", "main.py", "print(1)")
		require.NoError(t, err)

		m.Release(dir)
		m.Release(dir) // second release must not panic or log spuriously

		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("RetriesTransientFailures", func(t *testing.T) {
		fs := &flakyFileSystem{removeFailures: 2}
		m := newTestManager(t,
			WithFileSystem(fs),
			WithRetryPolicy(3, time.Millisecond))

		dir, err := m.Acquire("job1", "main.py", "print(1)")
		require.NoError(t, err)

		m.Release(dir)

		assert.Equal(t, 3, fs.removeCalls)
		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestRetry(t *testing.T) {
	t.Run("SucceedsEventually", func(t *testing.T) {
		calls := 0
		err := Retry(3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("ExhaustsBudget", func(t *testing.T) {
		calls := 0
		err := Retry(2, time.Millisecond, func() error {
			calls++
			return errors.New("persistent")
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})
}
