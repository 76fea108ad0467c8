// Package mcp exposes the dispatcher as MCP tools over stdio, so agents can
// ask for a verdict before touching the filesystem or a remote shell.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/safezone/internal/dispatch"
)

// Server wraps the MCP SDK server around a dispatcher.
type Server struct {
	mcpServer  *mcpsdk.Server
	dispatcher *dispatch.Dispatcher
}

// New creates an MCP server with all safezone tools registered.
func New(d *dispatch.Dispatcher, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{dispatcher: d}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "safezone",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all safezone tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "safezone_check_path",
		Description: "Check whether a filesystem operation (read, write, copy_in, copy_out, delete, move) on a path is allowed. Returns the canonical path to use when allowed.",
	}, s.handleCheckPath)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "safezone_check_command",
		Description: "Check whether a command line may be executed on a remote host. Only whitelisted base commands without chaining or substitution are allowed.",
	}, s.handleCheckCommand)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "safezone_list_zones",
		Description: "List the safe-zone directories in which writes, deletes and moves are permitted.",
	}, s.handleListZones)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "safezone_list_hosts",
		Description: "List the configured remote hosts (without credentials).",
	}, s.handleListHosts)
}
