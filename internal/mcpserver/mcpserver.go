// Package mcpserver exposes the deadlock analysis as MCP tools over stdio.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/locksmith/pkg/config"
)

// Server wraps the MCP server and registers the locksmith tools.
type Server struct {
	server *mcp.Server
	config *config.Config
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the analysis configuration used by every tool call.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithLogger sets the logger. stdout carries the protocol, so it must not
// write there.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(version string, opts ...Option) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.config == nil {
		s.config = config.LoadOrDefault()
	}

	s.server = mcp.NewServer(
		&mcp.Implementation{
			Name:    "locksmith",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_deadlocks",
		Description: describeAnalyzeDeadlocks(),
	}, s.handleAnalyzeDeadlocks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "lock_dependencies",
		Description: describeLockDependencies(),
	}, s.handleLockDependencies)
}
