package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/reference"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// docsURIPrefix is the URI scheme under which static documentation lives.
const docsURIPrefix = "fhir://docs/"

// registerResources registers the static documentation resources and the
// fhir://{type}/{id} template for direct resource reads.
func (s *Server) registerResources() {
	for _, topic := range reference.Topics() {
		uri := docsURIPrefix + topic
		resource := mcp.NewResource(
			uri,
			fmt.Sprintf("FHIR adapter documentation: %s", topic),
			mcp.WithMIMEType("text/markdown"),
		)
		s.mcpServer.AddResource(resource, s.handleDocsResource)
	}
	logging.Debug("Server", "Registered %d documentation resources", len(reference.Topics()))

	template := mcp.NewResourceTemplate(
		"fhir://{type}/{id}",
		"FHIR resource",
		mcp.WithTemplateDescription("Read a FHIR resource directly by type and id, e.g. fhir://Patient/123"),
		mcp.WithTemplateMIMEType("application/fhir+json"),
	)
	s.mcpServer.AddResourceTemplate(template, s.handleFHIRResource)
}

func (s *Server) handleDocsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	topic := strings.TrimPrefix(request.Params.URI, docsURIPrefix)
	doc, ok := reference.Get(topic)
	if !ok {
		return nil, fmt.Errorf("unknown documentation topic %q", topic)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/markdown",
			Text:     doc,
		},
	}, nil
}

func (s *Server) handleFHIRResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	resourceType, id, err := parseFHIRResourceURI(request.Params.URI)
	if err != nil {
		return nil, err
	}

	body, err := s.fhirClient.Read(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/fhir+json",
			Text:     string(body),
		},
	}, nil
}

// parseFHIRResourceURI splits fhir://{type}/{id} into its parts.
func parseFHIRResourceURI(uri string) (resourceType, id string, err error) {
	rest, ok := strings.CutPrefix(uri, "fhir://")
	if !ok {
		return "", "", fmt.Errorf("unsupported resource URI %q", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("resource URI must have the form fhir://{type}/{id}, got %q", uri)
	}
	return parts[0], parts[1], nil
}
