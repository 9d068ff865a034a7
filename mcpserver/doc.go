// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// execution tool set: run_code for synchronous one-shot execution, the
// submit_code / job_status / job_result / cancel_job quartet for asynchronous
// jobs, and list_languages for runtime discovery. It uses the
// mark3labs/mcp-go library to handle the protocol details.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, jobService, registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
