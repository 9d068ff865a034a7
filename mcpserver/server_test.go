package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/runbox-dev/runbox/config"
	"github.com/runbox-dev/runbox/language"
	"github.com/runbox-dev/runbox/queue"
	"github.com/runbox-dev/runbox/sandbox"
)

// mockJobService implements JobService for testing
type mockJobService struct {
	submitID    string
	submitErr   error
	executeJob  queue.Job
	executeErr  error
	statusJob   queue.Job
	statusErr   error
	resultValue sandbox.Result
	resultErr   error
	cancelState queue.State
	cancelErr   error

	lastSubmit queue.SubmitRequest
}

func (m *mockJobService) Submit(req queue.SubmitRequest) (string, error) {
	m.lastSubmit = req
	return m.submitID, m.submitErr
}

func (m *mockJobService) Execute(_ context.Context, req queue.SubmitRequest) (queue.Job, error) {
	m.lastSubmit = req
	return m.executeJob, m.executeErr
}

func (m *mockJobService) Status(_ string) (queue.Job, error) {
	return m.statusJob, m.statusErr
}

func (m *mockJobService) Result(_ string) (sandbox.Result, error) {
	return m.resultValue, m.resultErr
}

func (m *mockJobService) Cancel(_ string) (queue.State, error) {
	return m.cancelState, m.cancelErr
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Transport: "stdio", HTTPPort: 8080},
		Sandbox: config.SandboxConfig{
			Backend:               "host",
			InterpretedTimeoutSec: 10,
			CompiledTimeoutSec:    20,
			MaxTimeoutSec:         60,
			MemoryMB:              256,
			MaxMemoryMB:           1024,
			MaxOutputKB:           64,
		},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
		Queue:   config.QueueConfig{Name: "runbox", Workers: 4, Capacity: 256},
	}
}

func newTestServer(t *testing.T, jobs JobService) *MCPServer {
	t.Helper()
	cfg := testServerConfig()
	registry, err := language.NewRegistry(cfg)
	require.NoError(t, err)

	srv, err := New(cfg, zaptest.NewLogger(t), jobs, registry)
	require.NoError(t, err)
	return srv
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewMCPServer(t *testing.T) {
	jobs := &mockJobService{}
	srv := newTestServer(t, jobs)

	assert.Equal(t, jobs, srv.jobs)
	assert.NotNil(t, srv.mcpServer)
	assert.NotNil(t, srv.GetMCPServer())
}

func TestHandleRunCode(t *testing.T) {
	t.Run("finished job returns the result payload", func(t *testing.T) {
		jobs := &mockJobService{
			executeJob: queue.Job{
				ID:    "j1",
				State: queue.StateFinished,
				Result: &sandbox.Result{
					Stdout:   "hello\n",
					ExitCode: 0,
					Duration: 42 * time.Millisecond,
				},
			},
		}
		srv := newTestServer(t, jobs)

		result, err := srv.handleRunCode(context.Background(), toolRequest(map[string]any{
			"code":        "print('hello')",
			"language":    "python",
			"timeout_sec": 5,
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		var payload resultPayload
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
		assert.Equal(t, "hello\n", payload.Stdout)
		assert.Equal(t, 0, payload.ExitCode)
		assert.True(t, payload.Success)
		assert.Equal(t, int64(42), payload.DurationMs)

		assert.Equal(t, 5, jobs.lastSubmit.TimeoutSec)
	})

	t.Run("nonzero exit is still a normal payload", func(t *testing.T) {
		jobs := &mockJobService{
			executeJob: queue.Job{
				ID:     "j2",
				State:  queue.StateFinished,
				Result: &sandbox.Result{Stderr: "boom\n", ExitCode: 1},
			},
		}
		srv := newTestServer(t, jobs)

		result, err := srv.handleRunCode(context.Background(), toolRequest(map[string]any{
			"code":     "raise SystemExit(1)",
			"language": "python",
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)

		var payload resultPayload
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
		assert.Equal(t, 1, payload.ExitCode)
		assert.False(t, payload.Success)
	})

	t.Run("failed job is reported as a tool error", func(t *testing.T) {
		jobs := &mockJobService{
			executeJob: queue.Job{
				ID:      "j3",
				State:   queue.StateFailed,
				Failure: queue.FailureTimeout,
				Error:   "execution timed out after 10s",
			},
		}
		srv := newTestServer(t, jobs)

		result, err := srv.handleRunCode(context.Background(), toolRequest(map[string]any{
			"code":     "while True: pass",
			"language": "python",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "timed out")
	})

	t.Run("missing code parameter is a protocol error", func(t *testing.T) {
		srv := newTestServer(t, &mockJobService{})

		_, err := srv.handleRunCode(context.Background(), toolRequest(map[string]any{
			"language": "python",
		}))
		assert.Error(t, err)
	})
}

func TestHandleSubmitCode(t *testing.T) {
	t.Run("returns job id and queued state", func(t *testing.T) {
		jobs := &mockJobService{submitID: "job-123"}
		srv := newTestServer(t, jobs)

		result, err := srv.handleSubmitCode(context.Background(), toolRequest(map[string]any{
			"code":     "print(1)",
			"language": "python",
			"stdin":    "input",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
		assert.Equal(t, "job-123", payload["job_id"])
		assert.Equal(t, "queued", payload["state"])
		assert.Equal(t, "input", jobs.lastSubmit.Stdin)
	})

	t.Run("validation failure is a tool error", func(t *testing.T) {
		jobs := &mockJobService{submitErr: queue.ErrQueueFull}
		srv := newTestServer(t, jobs)

		result, err := srv.handleSubmitCode(context.Background(), toolRequest(map[string]any{
			"code":     "print(1)",
			"language": "python",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "queue is full")
	})
}

func TestHandleJobStatus(t *testing.T) {
	now := time.Now()

	t.Run("reports lifecycle fields", func(t *testing.T) {
		jobs := &mockJobService{
			statusJob: queue.Job{
				ID:         "job-123",
				State:      queue.StateStarted,
				EnqueuedAt: now,
				StartedAt:  now,
			},
		}
		srv := newTestServer(t, jobs)

		result, err := srv.handleJobStatus(context.Background(), toolRequest(map[string]any{
			"job_id": "job-123",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		var payload statusPayload
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
		assert.Equal(t, "job-123", payload.JobID)
		assert.Equal(t, "started", payload.State)
		assert.NotEmpty(t, payload.StartedAt)
		assert.Empty(t, payload.EndedAt)
	})

	t.Run("unknown job is a tool error", func(t *testing.T) {
		jobs := &mockJobService{statusErr: queue.ErrNotFound}
		srv := newTestServer(t, jobs)

		result, err := srv.handleJobStatus(context.Background(), toolRequest(map[string]any{
			"job_id": "missing",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "not found")
	})
}

func TestHandleJobResult(t *testing.T) {
	t.Run("finished job returns the payload", func(t *testing.T) {
		jobs := &mockJobService{
			resultValue: sandbox.Result{Stdout: "done\n", ExitCode: 0, Truncated: true},
		}
		srv := newTestServer(t, jobs)

		result, err := srv.handleJobResult(context.Background(), toolRequest(map[string]any{
			"job_id": "job-123",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		var payload resultPayload
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
		assert.Equal(t, "done\n", payload.Stdout)
		assert.True(t, payload.Truncated)
	})

	t.Run("pending job is a tool error", func(t *testing.T) {
		jobs := &mockJobService{resultErr: queue.ErrNotReady}
		srv := newTestServer(t, jobs)

		result, err := srv.handleJobResult(context.Background(), toolRequest(map[string]any{
			"job_id": "job-123",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "not finished yet")
	})
}

func TestHandleCancelJob(t *testing.T) {
	jobs := &mockJobService{cancelState: queue.StateCanceled}
	srv := newTestServer(t, jobs)

	result, err := srv.handleCancelJob(context.Background(), toolRequest(map[string]any{
		"job_id": "job-123",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	assert.Equal(t, "canceled", payload["state"])
}

func TestHandleListLanguages(t *testing.T) {
	srv := newTestServer(t, &mockJobService{})

	result, err := srv.handleListLanguages(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload struct {
		Languages []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Class string `json:"class"`
		} `json:"languages"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	assert.Len(t, payload.Languages, 8)

	classes := make(map[string]string)
	for _, l := range payload.Languages {
		classes[l.ID] = l.Class
	}
	assert.Equal(t, "interpreted", classes["python"])
	assert.Equal(t, "compiled", classes["cpp"])
}
