// Package mcp exposes docqa sessions as MCP tools.
//
// Tools call the session manager directly and are served over stdio with the
// MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp).
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/docqa/internal/logging"
	"github.com/fyrsmithlabs/docqa/internal/session"
)

// Server is an MCP server over a session manager.
type Server struct {
	mcp      *mcp.Server
	sessions *session.Manager
	metrics  *Metrics
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "docqa")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger *logging.Logger
}

// DefaultConfig returns the defaults used when no config is given.
func DefaultConfig() *Config {
	return &Config{
		Name:    "docqa",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates an MCP server and registers the docqa tools.
func NewServer(cfg *Config, sessions *session.Manager) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	logger := cfg.Logger.Named("mcp")
	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		sessions: sessions,
		metrics:  NewMetrics(logger),
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
