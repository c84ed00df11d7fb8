// Package fhir implements a thin REST client for a FHIR R4 server. It does
// not interpret resource semantics; payloads travel as raw JSON between the
// assistant host and the server. Authentication headers are resolved per
// request through the credential registry, so configuration changes take
// effect on the next call without rebuilding the client.
package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/credentials"
	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"

	"github.com/google/uuid"
)

// DefaultRequestTimeout bounds one FHIR interaction.
const DefaultRequestTimeout = 30 * time.Second

// maxResponseBody caps how much of a FHIR response is read (16 MiB; search
// bundles can be large).
const maxResponseBody = 16 << 20

const fhirJSONMediaType = "application/fhir+json"

// resourceTypePattern matches valid FHIR resource type names (PascalCase
// alphanumerics, e.g. Patient, MedicationRequest).
var resourceTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

// idPattern matches valid FHIR logical ids.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

// Client issues FHIR REST interactions against one base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	registry   *credentials.Registry
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a FHIR client for the given base URL. The registry is
// consulted for authentication headers on every request.
func NewClient(baseURL string, registry *credentials.Registry, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		registry:   registry,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured FHIR base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Read fetches a single resource by type and logical id.
func (c *Client) Read(ctx context.Context, resourceType, id string) (json.RawMessage, error) {
	if err := validateResourceType(resourceType); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s/%s", c.baseURL, resourceType, id), nil)
}

// Search executes a search interaction for the given resource type. Params
// map FHIR search parameters to values; they are query-encoded as-is.
func (c *Client) Search(ctx context.Context, resourceType string, params map[string]string) (json.RawMessage, error) {
	if err := validateResourceType(resourceType); err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("%s/%s", c.baseURL, resourceType)
	if len(params) > 0 {
		values := url.Values{}
		for name, value := range params {
			values.Set(name, value)
		}
		searchURL += "?" + values.Encode()
	}

	return c.do(ctx, http.MethodGet, searchURL, nil)
}

// Create posts a new resource of the given type.
func (c *Client) Create(ctx context.Context, resourceType string, resource json.RawMessage) (json.RawMessage, error) {
	if err := validateResourceType(resourceType); err != nil {
		return nil, err
	}
	if len(resource) == 0 {
		return nil, fmt.Errorf("resource body is required")
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/%s", c.baseURL, resourceType), resource)
}

// Update puts a resource at its type/id location.
func (c *Client) Update(ctx context.Context, resourceType, id string, resource json.RawMessage) (json.RawMessage, error) {
	if err := validateResourceType(resourceType); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if len(resource) == 0 {
		return nil, fmt.Errorf("resource body is required")
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%s/%s", c.baseURL, resourceType, id), resource)
}

// Delete removes a resource by type and logical id.
func (c *Client) Delete(ctx context.Context, resourceType, id string) error {
	if err := validateResourceType(resourceType); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%s/%s", c.baseURL, resourceType, id), nil)
	return err
}

// Capabilities fetches the server's CapabilityStatement.
func (c *Client) Capabilities(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/metadata", nil)
}

// do performs one FHIR interaction: resolves the active credentials,
// issues the request and normalizes error responses.
func (c *Client) do(ctx context.Context, method, requestURL string, body json.RawMessage) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, fmt.Errorf("invalid FHIR request: %w", err)
	}

	req.Header.Set("Accept", fhirJSONMediaType)
	if body != nil {
		req.Header.Set("Content-Type", fhirJSONMediaType)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	authHeaders, err := c.registry.GetAuthHeaders(ctx)
	if err != nil {
		return nil, err
	}
	for name, value := range authHeaders {
		req.Header.Set(name, value)
	}

	logging.Debug("FHIR", "%s %s (request id %s)", method, requestURL, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FHIR request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read FHIR response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ResponseError{
			StatusCode: resp.StatusCode,
			Message:    operationOutcomeMessage(respBody, resp.StatusCode),
		}
	}

	return respBody, nil
}

// ResponseError is a non-2xx FHIR response with its OperationOutcome
// diagnostics flattened into a message.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("FHIR server returned status %d: %s", e.StatusCode, e.Message)
}

// operationOutcome is the subset of a FHIR OperationOutcome we report.
type operationOutcome struct {
	ResourceType string `json:"resourceType"`
	Issue        []struct {
		Severity    string `json:"severity"`
		Code        string `json:"code"`
		Diagnostics string `json:"diagnostics"`
	} `json:"issue"`
}

// operationOutcomeMessage extracts human-readable diagnostics from an error
// body, falling back to a generic status message.
func operationOutcomeMessage(body []byte, statusCode int) string {
	var outcome operationOutcome
	if err := json.Unmarshal(body, &outcome); err == nil && outcome.ResourceType == "OperationOutcome" {
		var parts []string
		for _, issue := range outcome.Issue {
			if issue.Diagnostics != "" {
				parts = append(parts, issue.Diagnostics)
			} else if issue.Code != "" {
				parts = append(parts, issue.Code)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return http.StatusText(statusCode)
}

func validateResourceType(resourceType string) error {
	if !resourceTypePattern.MatchString(resourceType) {
		return fmt.Errorf("invalid FHIR resource type %q", resourceType)
	}
	return nil
}

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid FHIR resource id %q", id)
	}
	return nil
}
