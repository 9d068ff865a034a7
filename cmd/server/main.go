// Package main is the entry point for the Runbox MCP server.
//
// The Runbox server implements an asynchronous, configurable Model Context
// Protocol (MCP) server that executes untrusted user code in isolated
// sandboxes. Submissions flow through an in-process job queue served by a
// fixed worker pool; callers either wait for the result (run_code) or poll a
// job id (submit_code, job_status, job_result, cancel_job). The server
// supports both stdio and HTTP transports and enforces resource limits,
// network isolation, and output caps on every run.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/runbox-dev/runbox/config"
	"github.com/runbox-dev/runbox/language"
	"github.com/runbox-dev/runbox/logger"
	"github.com/runbox-dev/runbox/mcpserver"
	"github.com/runbox-dev/runbox/queue"
	"github.com/runbox-dev/runbox/sandbox"
	"github.com/runbox-dev/runbox/workspace"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Language registry with overlay and image overrides
			language.NewRegistry,

			// Workspace manager
			func(log *zap.Logger, cfg *config.Config) *workspace.Manager {
				return workspace.NewManager(log, cfg)
			},

			// Execution backend based on config
			sandbox.NewBackend,

			// Job queue and worker pool
			queue.NewService,
			func(svc *queue.Service) mcpserver.JobService { return svc },

			// MCP Server
			mcpserver.New,
		),

		// Tie the worker pool to the application lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, svc *queue.Service) {
				lc.Append(fx.Hook{
					OnStart: func(_ context.Context) error {
						svc.Start()
						return nil
					},
					OnStop: func(_ context.Context) error {
						svc.Stop()
						return nil
					},
				})
			},
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
