// Package server wires the FHIR client and the credential subsystem into an
// MCP server that an AI-assistant host can talk to. Tool handlers never
// return Go errors for operational failures; everything an operator can fix
// comes back as a structured result in the tool output.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/config"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/credentials"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/fhir"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"

	"github.com/mark3labs/mcp-go/server"
)

// Server exposes FHIR operations and credential management as MCP tools.
type Server struct {
	config        config.Config
	mcpServer     *server.MCPServer
	registry      *credentials.Registry
	fhirClient    *fhir.Client
	updateHandler *credentials.UpdateHandler
}

// New creates the MCP server and registers all tools and resources.
//
// The registry is the single source of truth for credentials: the FHIR
// client reads it per request, and the configure_auth tool (like the config
// file watcher) replaces its active manager.
func New(cfg config.Config, version string, registry *credentials.Registry) *Server {
	mcpServer := server.NewMCPServer(
		"fhir-mcp",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s := &Server{
		config:        cfg,
		mcpServer:     mcpServer,
		registry:      registry,
		fhirClient:    fhir.NewClient(cfg.FHIR.BaseURL, registry),
		updateHandler: credentials.NewUpdateHandler(registry),
	}

	s.registerAuthTools()
	s.registerFHIRTools()
	s.registerResources()

	return s
}

// Start runs the configured transport until the context is cancelled or the
// transport shuts down.
func (s *Server) Start(ctx context.Context) error {
	switch s.config.Server.Transport {
	case config.TransportStreamableHTTP:
		addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
		logging.Info("Server", "Starting MCP server with streamable-http transport on %s", addr)

		httpServer := server.NewStreamableHTTPServer(s.mcpServer)
		errCh := make(chan error, 1)
		go func() {
			if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			return httpServer.Shutdown(context.Background())
		case err := <-errCh:
			return err
		}

	default:
		logging.Info("Server", "Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	}
}
