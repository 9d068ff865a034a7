package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/runbox-dev/runbox/config"
	"github.com/runbox-dev/runbox/language"
	"github.com/runbox-dev/runbox/queue"
	"github.com/runbox-dev/runbox/sandbox"
)

// JobService is the queue surface the tools are built on. Satisfied by
// *queue.Service.
type JobService interface {
	Submit(req queue.SubmitRequest) (string, error)
	Execute(ctx context.Context, req queue.SubmitRequest) (queue.Job, error)
	Status(id string) (queue.Job, error)
	Result(id string) (sandbox.Result, error)
	Cancel(id string) (queue.State, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	jobs      JobService
	registry  *language.Registry
	mcpServer *server.MCPServer
}

// New creates a new MCPServer and registers the tool set
func New(cfg *config.Config, logger *zap.Logger, jobs JobService, registry *language.Registry) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		jobs:     jobs,
		registry: registry,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.interpreted_timeout_sec", cfg.Sandbox.InterpretedTimeoutSec),
		zap.Int("sandbox.compiled_timeout_sec", cfg.Sandbox.CompiledTimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Int("sandbox.max_output_kb", cfg.Sandbox.MaxOutputKB),
		zap.Int("queue.workers", cfg.Queue.Workers),
		zap.Int("queue.capacity", cfg.Queue.Capacity),
		zap.Strings("languages", registry.IDs()),
	)

	s.mcpServer = server.NewMCPServer("runbox", "An asynchronous sandboxed code execution server")

	s.registerRunCodeTool()
	s.registerSubmitCodeTool()
	s.registerJobStatusTool()
	s.registerJobResultTool()
	s.registerCancelJobTool()
	s.registerListLanguagesTool()

	return s, nil
}

// resultPayload is the wire shape of a completed execution.
type resultPayload struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// statusPayload is the wire shape of a job status snapshot.
type statusPayload struct {
	JobID      string `json:"job_id"`
	State      string `json:"state"`
	Failure    string `json:"failure,omitempty"`
	Error      string `json:"error,omitempty"`
	EnqueuedAt string `json:"enqueued_at"`
	StartedAt  string `json:"started_at,omitempty"`
	EndedAt    string `json:"ended_at,omitempty"`
}

func newResultPayload(r sandbox.Result) resultPayload {
	return resultPayload{
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
		ExitCode:   r.ExitCode,
		Success:    r.Success(),
		DurationMs: r.Duration.Milliseconds(),
		Truncated:  r.Truncated,
	}
}

func newStatusPayload(j queue.Job) statusPayload {
	p := statusPayload{
		JobID:      j.ID,
		State:      string(j.State),
		Failure:    string(j.Failure),
		Error:      j.Error,
		EnqueuedAt: j.EnqueuedAt.Format(time.RFC3339),
	}
	if !j.StartedAt.IsZero() {
		p.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if !j.EndedAt.IsZero() {
		p.EndedAt = j.EndedAt.Format(time.RFC3339)
	}
	return p
}

func (s *MCPServer) submitRequestFrom(request mcp.CallToolRequest) (queue.SubmitRequest, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return queue.SubmitRequest{}, fmt.Errorf("code parameter is required: %w", err)
	}
	lang, err := request.RequireString("language")
	if err != nil {
		return queue.SubmitRequest{}, fmt.Errorf("language parameter is required: %w", err)
	}

	return queue.SubmitRequest{
		Language:   lang,
		Code:       code,
		Stdin:      request.GetString("stdin", ""),
		TimeoutSec: request.GetInt("timeout_sec", 0),
		MemoryMB:   request.GetInt("memory_mb", 0),
	}, nil
}

func (s *MCPServer) submitSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "User-provided source code",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "Runtime language",
				"enum":        s.registry.IDs(),
			},
			"stdin": map[string]any{
				"type":        "string",
				"description": "Standard input fed to the program (optional)",
			},
			"timeout_sec": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Wall-clock limit in seconds, capped at %d (optional)", s.config.Sandbox.MaxTimeoutSec),
			},
			"memory_mb": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Memory limit in MiB, capped at %d (optional)", s.config.Sandbox.MaxMemoryMB),
			},
		},
		Required: []string{"code", "language"},
	}
}

func jobIDSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"job_id": map[string]any{
				"type":        "string",
				"description": "Identifier returned by submit_code",
			},
		},
		Required: []string{"job_id"},
	}
}

// registerRunCodeTool registers the synchronous run_code tool
func (s *MCPServer) registerRunCodeTool() {
	tool := mcp.Tool{
		Name:        "run_code",
		Description: "Execute untrusted code in a sandbox and wait for the result",
		InputSchema: s.submitSchema(),
	}
	s.mcpServer.AddTool(tool, s.handleRunCode)
}

// registerSubmitCodeTool registers the asynchronous submit_code tool
func (s *MCPServer) registerSubmitCodeTool() {
	tool := mcp.Tool{
		Name:        "submit_code",
		Description: "Enqueue untrusted code for sandboxed execution and return a job id immediately",
		InputSchema: s.submitSchema(),
	}
	s.mcpServer.AddTool(tool, s.handleSubmitCode)
}

func (s *MCPServer) registerJobStatusTool() {
	tool := mcp.Tool{
		Name:        "job_status",
		Description: "Report the lifecycle state of a submitted job",
		InputSchema: jobIDSchema(),
	}
	s.mcpServer.AddTool(tool, s.handleJobStatus)
}

func (s *MCPServer) registerJobResultTool() {
	tool := mcp.Tool{
		Name:        "job_result",
		Description: "Fetch the captured output of a completed job",
		InputSchema: jobIDSchema(),
	}
	s.mcpServer.AddTool(tool, s.handleJobResult)
}

func (s *MCPServer) registerCancelJobTool() {
	tool := mcp.Tool{
		Name:        "cancel_job",
		Description: "Request best-effort cancellation of a queued or running job",
		InputSchema: jobIDSchema(),
	}
	s.mcpServer.AddTool(tool, s.handleCancelJob)
}

func (s *MCPServer) registerListLanguagesTool() {
	tool := mcp.Tool{
		Name:        "list_languages",
		Description: "List the supported languages and their execution class",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListLanguages)
}

// handleRunCode handles the run_code tool
func (s *MCPServer) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := s.submitRequestFrom(request)
	if err != nil {
		return nil, err
	}

	s.logger.Info("synchronous execution requested", zap.String("language", req.Language))

	job, err := s.jobs.Execute(ctx, req)
	if err != nil {
		return errorResult("Execution failed: %v", err), nil
	}

	switch job.State {
	case queue.StateFinished:
		s.logger.Info("synchronous execution completed",
			zap.String("job_id", job.ID),
			zap.Int("exit_code", job.Result.ExitCode))
		return jsonResult(newResultPayload(*job.Result))
	case queue.StateCanceled:
		return errorResult("Execution canceled"), nil
	default:
		return errorResult("Execution failed: %s", job.Error), nil
	}
}

// handleSubmitCode handles the submit_code tool
func (s *MCPServer) handleSubmitCode(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := s.submitRequestFrom(request)
	if err != nil {
		return nil, err
	}

	id, err := s.jobs.Submit(req)
	if err != nil {
		return errorResult("Submission failed: %v", err), nil
	}

	s.logger.Info("job submitted",
		zap.String("job_id", id),
		zap.String("language", req.Language))

	return jsonResult(map[string]string{
		"job_id": id,
		"state":  string(queue.StateQueued),
	})
}

// handleJobStatus handles the job_status tool
func (s *MCPServer) handleJobStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return nil, fmt.Errorf("job_id parameter is required: %w", err)
	}

	job, err := s.jobs.Status(id)
	if err != nil {
		return errorResult("Status lookup failed: %v", err), nil
	}

	return jsonResult(newStatusPayload(job))
}

// handleJobResult handles the job_result tool
func (s *MCPServer) handleJobResult(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return nil, fmt.Errorf("job_id parameter is required: %w", err)
	}

	result, err := s.jobs.Result(id)
	switch {
	case err == nil:
		return jsonResult(newResultPayload(result))
	case errors.Is(err, queue.ErrNotReady):
		return errorResult("Job not finished yet: %s", id), nil
	default:
		return errorResult("Result lookup failed: %v", err), nil
	}
}

// handleCancelJob handles the cancel_job tool
func (s *MCPServer) handleCancelJob(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return nil, fmt.Errorf("job_id parameter is required: %w", err)
	}

	state, err := s.jobs.Cancel(id)
	if err != nil {
		return errorResult("Cancellation failed: %v", err), nil
	}

	s.logger.Info("cancellation requested",
		zap.String("job_id", id),
		zap.String("state", string(state)))

	return jsonResult(map[string]string{
		"job_id": id,
		"state":  string(state),
	})
}

// handleListLanguages handles the list_languages tool
func (s *MCPServer) handleListLanguages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	specs := s.registry.List()

	type languagePayload struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Class string `json:"class"`
	}

	languages := make([]languagePayload, 0, len(specs))
	for _, spec := range specs {
		languages = append(languages, languagePayload{
			ID:    spec.ID,
			Name:  spec.Name,
			Class: string(spec.Class),
		})
	}

	return jsonResult(map[string]any{"languages": languages})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: fmt.Sprintf(format, args...)},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
