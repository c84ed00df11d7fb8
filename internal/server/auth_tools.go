package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/credentials"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerAuthTools registers the credential management and diagnostic
// tools. All of them translate internal state into JSON result objects; the
// only secrets that ever appear in output are presence flags.
func (s *Server) registerAuthTools() {
	configureAuthTool := mcp.NewTool("configure_auth",
		mcp.WithDescription("Configure how requests to the FHIR server are authenticated. "+
			"Fields not supplied keep their current value; fields irrelevant to the "+
			"selected mode are stored for later mode switches."),
		mcp.WithString("mode",
			mcp.Description("Authentication mode: none, bearer or oauth2-client-credentials. Omit to keep the current mode."),
		),
		mcp.WithString("bearer_token",
			mcp.Description("Static bearer token (bearer mode)"),
		),
		mcp.WithString("token_url",
			mcp.Description("OAuth token endpoint URL (oauth2-client-credentials mode)"),
		),
		mcp.WithString("client_id",
			mcp.Description("OAuth client id"),
		),
		mcp.WithString("client_secret",
			mcp.Description("OAuth client secret"),
		),
		mcp.WithString("scope",
			mcp.Description("OAuth scope, space-separated"),
		),
		mcp.WithBoolean("auto_discover",
			mcp.Description("Discover the token endpoint from the FHIR server's well-known smart-configuration when no token_url is set"),
		),
	)
	s.mcpServer.AddTool(configureAuthTool, s.handleConfigureAuth)

	testAuthTool := mcp.NewTool("test_auth",
		mcp.WithDescription("Check that the current authentication configuration can produce request headers. Safe to call at any time."),
	)
	s.mcpServer.AddTool(testAuthTool, s.handleTestAuth)

	tokenStatusTool := mcp.NewTool("get_token_status",
		mcp.WithDescription("Report the state of the cached OAuth access token."),
	)
	s.mcpServer.AddTool(tokenStatusTool, s.handleGetTokenStatus)

	refreshTokenTool := mcp.NewTool("refresh_token",
		mcp.WithDescription("Discard the cached OAuth access token and obtain a fresh one."),
	)
	s.mcpServer.AddTool(refreshTokenTool, s.handleRefreshToken)

	discoverOAuthTool := mcp.NewTool("discover_oauth",
		mcp.WithDescription("Probe the FHIR server's well-known smart-configuration documents for its OAuth token endpoint."),
		mcp.WithString("fhir_url",
			mcp.Description("FHIR base URL to probe. Defaults to the configured server."),
		),
	)
	s.mcpServer.AddTool(discoverOAuthTool, s.handleDiscoverOAuth)
}

// resultJSON renders a result structure as a tool text result.
func resultJSON(result interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to format result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// optString returns a pointer to the argument value when it was supplied.
// Supplied-but-empty and absent are different things for the merge: an empty
// string clears a field, an absent one keeps it.
func optString(args map[string]interface{}, key string) *string {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	value, ok := raw.(string)
	if !ok {
		return nil
	}
	return &value
}

func optBool(args map[string]interface{}, key string) *bool {
	raw, ok := args[key]
	if !ok {
		return nil
	}
	value, ok := raw.(bool)
	if !ok {
		return nil
	}
	return &value
}

func (s *Server) handleConfigureAuth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	update := credentials.UpdateRequest{
		Mode:         request.GetString("mode", ""),
		BearerToken:  optString(args, "bearer_token"),
		TokenURL:     optString(args, "token_url"),
		ClientID:     optString(args, "client_id"),
		ClientSecret: optString(args, "client_secret"),
		Scope:        optString(args, "scope"),
		AutoDiscover: optBool(args, "auto_discover"),
	}

	result := s.updateHandler.ConfigureAuth(update)

	// When discovery was requested and no token endpoint is known yet, try
	// to fill it in right away so the configuration is usable.
	if result.Success {
		active := s.registry.Active().Config()
		if active.Mode == credentials.ModeOAuthClientCredentials &&
			active.OAuth.AutoDiscover && active.OAuth.TokenURL == "" {
			tokenURL, err := s.registry.Active().DiscoverOAuthEndpoints(ctx, s.fhirClient.BaseURL())
			if err != nil {
				logging.Warn("Server", "OAuth endpoint discovery failed: %v", err)
				result.Message += fmt.Sprintf("; endpoint discovery failed: %v", err)
			} else {
				result = s.updateHandler.ConfigureAuth(credentials.UpdateRequest{
					TokenURL: &tokenURL,
				})
			}
		}
	}

	return resultJSON(result), nil
}

func (s *Server) handleTestAuth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(s.registry.Active().TestAuthentication(ctx)), nil
}

func (s *Server) handleGetTokenStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(s.registry.Active().TokenStatus()), nil
}

func (s *Server) handleRefreshToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(s.registry.Active().RefreshToken(ctx)), nil
}

func (s *Server) handleDiscoverOAuth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fhirURL := request.GetString("fhir_url", s.fhirClient.BaseURL())
	return resultJSON(s.registry.Active().DiscoverOAuth(ctx, fhirURL)), nil
}
