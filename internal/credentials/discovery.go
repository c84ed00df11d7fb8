package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"
)

// DiscoveryCandidateTimeout bounds the probe of a single well-known URL.
const DiscoveryCandidateTimeout = 10 * time.Second

// The two conventional spellings of the SMART configuration document path.
const (
	smartConfigHyphen     = "/.well-known/smart-configuration"
	smartConfigUnderscore = "/.well-known/smart_configuration"
)

// smartConfiguration is the subset of the SMART well-known document we need.
type smartConfiguration struct {
	TokenEndpoint string `json:"token_endpoint"`
}

// discoveryCandidates builds the ordered, deterministic list of well-known
// URLs to probe for the given FHIR base URL: both path spellings rooted at
// the base URL, then both rooted at the base URL with a trailing /fhir
// segment stripped. Duplicates are removed, order preserved.
func discoveryCandidates(fhirBaseURL string) []string {
	base := strings.TrimSuffix(fhirBaseURL, "/")

	roots := []string{base}
	if trimmed := strings.TrimSuffix(base, "/fhir"); trimmed != base && trimmed != "" {
		roots = append(roots, trimmed)
	}

	seen := make(map[string]bool)
	var candidates []string
	for _, root := range roots {
		for _, path := range []string{smartConfigHyphen, smartConfigUnderscore} {
			candidate := root + path
			if !seen[candidate] {
				seen[candidate] = true
				candidates = append(candidates, candidate)
			}
		}
	}
	return candidates
}

// DiscoverOAuthEndpoints probes the FHIR server's well-known
// smart-configuration documents and returns the first token endpoint found.
//
// Candidates are tried in order; any failure for one candidate (network
// error, non-2xx status, malformed JSON, missing token_endpoint) is logged
// and the next candidate is tried. The first candidate that yields a
// non-empty token_endpoint wins and the remaining candidates are not probed.
// When every candidate fails the error names the original base URL.
func (m *Manager) DiscoverOAuthEndpoints(ctx context.Context, fhirBaseURL string) (string, error) {
	if fhirBaseURL == "" {
		return "", NewConfigError("missing FHIR base URL for OAuth discovery")
	}

	for _, candidate := range discoveryCandidates(fhirBaseURL) {
		tokenURL, err := m.probeCandidate(ctx, candidate)
		if err != nil {
			logging.Debug("Credentials", "Discovery candidate %s failed: %v", candidate, err)
			continue
		}
		logging.Info("Credentials", "Discovered OAuth token endpoint via %s", candidate)
		return tokenURL, nil
	}

	return "", &DiscoveryError{BaseURL: fhirBaseURL}
}

// probeCandidate fetches one well-known URL and extracts its token_endpoint.
func (m *Manager) probeCandidate(ctx context.Context, candidateURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DiscoveryCandidateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidateURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBody))
	if err != nil {
		return "", err
	}

	var config smartConfiguration
	if err := json.Unmarshal(body, &config); err != nil {
		return "", fmt.Errorf("malformed JSON: %w", err)
	}
	if config.TokenEndpoint == "" {
		return "", fmt.Errorf("document has no token_endpoint")
	}

	return config.TokenEndpoint, nil
}

// DiscoveryResult is the boundary-facing outcome of an endpoint discovery.
type DiscoveryResult struct {
	Success            bool   `json:"success"`
	FHIRURL            string `json:"fhirUrl"`
	DiscoveredTokenURL string `json:"discoveredTokenUrl,omitempty"`
	Message            string `json:"message"`
}

// DiscoverOAuth wraps DiscoverOAuthEndpoints into a result structure for the
// diagnostic surface; it never returns an error.
func (m *Manager) DiscoverOAuth(ctx context.Context, fhirBaseURL string) DiscoveryResult {
	tokenURL, err := m.DiscoverOAuthEndpoints(ctx, fhirBaseURL)
	if err != nil {
		return DiscoveryResult{
			Success: false,
			FHIRURL: fhirBaseURL,
			Message: err.Error(),
		}
	}
	return DiscoveryResult{
		Success:            true,
		FHIRURL:            fhirBaseURL,
		DiscoveredTokenURL: tokenURL,
		Message:            fmt.Sprintf("discovered token endpoint %s", tokenURL),
	}
}
