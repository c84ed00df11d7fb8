package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerFHIRTools registers the FHIR REST interactions.
func (s *Server) registerFHIRTools() {
	readTool := mcp.NewTool("read_resource",
		mcp.WithDescription("Read a single FHIR resource by type and id."),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("FHIR resource type, e.g. Patient or Observation"),
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Logical id of the resource"),
		),
	)
	s.mcpServer.AddTool(readTool, s.handleReadResource)

	searchTool := mcp.NewTool("search_resources",
		mcp.WithDescription("Search FHIR resources of a type. Returns a searchset Bundle. "+
			"See the fhir://docs/search resource for parameter syntax."),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("FHIR resource type to search"),
		),
		mcp.WithObject("parameters",
			mcp.Description("Search parameters as name/value pairs, e.g. {\"patient\": \"Patient/123\"}"),
		),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearchResources)

	createTool := mcp.NewTool("create_resource",
		mcp.WithDescription("Create a new FHIR resource."),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("FHIR resource type to create"),
		),
		mcp.WithObject("resource",
			mcp.Required(),
			mcp.Description("The resource body as a JSON object"),
		),
	)
	s.mcpServer.AddTool(createTool, s.handleCreateResource)

	updateTool := mcp.NewTool("update_resource",
		mcp.WithDescription("Update an existing FHIR resource by type and id."),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("FHIR resource type to update"),
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Logical id of the resource"),
		),
		mcp.WithObject("resource",
			mcp.Required(),
			mcp.Description("The full replacement resource body as a JSON object"),
		),
	)
	s.mcpServer.AddTool(updateTool, s.handleUpdateResource)

	deleteTool := mcp.NewTool("delete_resource",
		mcp.WithDescription("Delete a FHIR resource by type and id."),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("FHIR resource type to delete"),
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Logical id of the resource"),
		),
	)
	s.mcpServer.AddTool(deleteTool, s.handleDeleteResource)

	capabilitiesTool := mcp.NewTool("get_capabilities",
		mcp.WithDescription("Fetch the FHIR server's CapabilityStatement."),
	)
	s.mcpServer.AddTool(capabilitiesTool, s.handleGetCapabilities)
}

func (s *Server) handleReadResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceType, err := request.RequireString("resource_type")
	if err != nil {
		return mcp.NewToolResultError("resource_type argument is required"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}

	body, err := s.fhirClient.Read(ctx, resourceType, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) handleSearchResources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceType, err := request.RequireString("resource_type")
	if err != nil {
		return mcp.NewToolResultError("resource_type argument is required"), nil
	}

	params := map[string]string{}
	if raw, ok := request.GetArguments()["parameters"].(map[string]interface{}); ok {
		for name, value := range raw {
			params[name] = fmt.Sprintf("%v", value)
		}
	}

	body, err := s.fhirClient.Search(ctx, resourceType, params)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// resourceArgument extracts and re-serializes the resource body argument.
func resourceArgument(request mcp.CallToolRequest) (json.RawMessage, error) {
	raw, ok := request.GetArguments()["resource"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("resource argument is required and must be a JSON object")
	}
	return json.Marshal(raw)
}

func (s *Server) handleCreateResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceType, err := request.RequireString("resource_type")
	if err != nil {
		return mcp.NewToolResultError("resource_type argument is required"), nil
	}
	resource, err := resourceArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body, err := s.fhirClient.Create(ctx, resourceType, resource)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) handleUpdateResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceType, err := request.RequireString("resource_type")
	if err != nil {
		return mcp.NewToolResultError("resource_type argument is required"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}
	resource, err := resourceArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body, err := s.fhirClient.Update(ctx, resourceType, id, resource)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) handleDeleteResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resourceType, err := request.RequireString("resource_type")
	if err != nil {
		return mcp.NewToolResultError("resource_type argument is required"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required"), nil
	}

	if err := s.fhirClient.Delete(ctx, resourceType, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted %s/%s", resourceType, id)), nil
}

func (s *Server) handleGetCapabilities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := s.fhirClient.Capabilities(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
