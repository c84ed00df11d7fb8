package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// TokenRequestTimeout bounds a single token endpoint POST. Exceeding it is a
// network failure for that attempt; retry policy belongs to the caller.
const TokenRequestTimeout = 30 * time.Second

// maxTokenResponseBody caps how much of a token response is read.
const maxTokenResponseBody = 1 << 20

// Manager produces authentication headers for outbound FHIR requests and
// owns the token cache for the OAuth client-credentials mode.
//
// A Manager is bound to exactly one Config for its whole lifetime. When the
// configuration changes, a new Manager is built and published through the
// Registry; the old one is dropped together with its cached token, so a
// configuration change always forces a fresh OAuth handshake on next use.
type Manager struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time

	mu    sync.RWMutex
	token *CachedToken

	// group collapses concurrent token requests into one network call.
	// Correctness does not depend on it; duplicate requests would each
	// produce a valid token and the last writer would win.
	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHTTPClient sets a custom HTTP client for token requests and discovery.
func WithHTTPClient(httpClient *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = httpClient
	}
}

// WithClock sets a custom time source. Used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager for the given configuration.
func NewManager(config Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		config:     config,
		httpClient: &http.Client{Timeout: TokenRequestTimeout},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Config returns the configuration this manager was built from.
func (m *Manager) Config() Config {
	return m.config
}

// GetAuthHeaders returns the headers to attach to one outbound FHIR request.
//
// This is the only operation in the package that propagates errors to its
// caller: the request path is code, not an operator, and needs to tell a
// ConfigError from an OAuthError programmatically.
func (m *Manager) GetAuthHeaders(ctx context.Context) (map[string]string, error) {
	switch m.config.Mode {
	case ModeNone:
		return map[string]string{}, nil

	case ModeBearer:
		if m.config.BearerToken == "" {
			return nil, NewConfigError("missing bearer token")
		}
		return map[string]string{"Authorization": "Bearer " + m.config.BearerToken}, nil

	case ModeOAuthClientCredentials:
		token, err := m.ensureToken(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"Authorization": "Bearer " + token.AccessToken}, nil

	default:
		return nil, NewConfigError("unknown authentication mode %q", m.config.Mode)
	}
}

// IsTokenValid reports whether the cached token is usable right now.
func (m *Manager) IsTokenValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token.Valid(m.now())
}

// ensureToken returns the cached token or requests a fresh one.
// The cache check and the network call are deliberately not covered by one
// lock: no lock is held across the token request.
func (m *Manager) ensureToken(ctx context.Context) (*CachedToken, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token.Valid(m.now()) {
		return token, nil
	}

	result, err, _ := m.group.Do("token", func() (interface{}, error) {
		// Re-check after winning the flight: a concurrent caller may
		// already have stored a fresh token.
		m.mu.RLock()
		cached := m.token
		m.mu.RUnlock()
		if cached.Valid(m.now()) {
			return cached, nil
		}

		fresh, err := m.requestToken(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.token = fresh
		m.mu.Unlock()

		return fresh, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*CachedToken), nil
}

// tokenResponse is the JSON shape of a token endpoint response, success or
// failure (RFC 6749 §5).
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// requestToken performs one client-credentials POST against the token
// endpoint and converts the response into a CachedToken.
func (m *Manager) requestToken(ctx context.Context) (*CachedToken, error) {
	oauth := m.config.OAuth
	if oauth.TokenURL == "" {
		return nil, NewConfigError("missing OAuth token URL")
	}
	if oauth.ClientID == "" {
		return nil, NewConfigError("missing OAuth client ID")
	}
	if oauth.ClientSecret == "" {
		return nil, NewConfigError("missing OAuth client secret")
	}

	ctx, cancel := context.WithTimeout(ctx, TokenRequestTimeout)
	defer cancel()

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {oauth.ClientID},
		"client_secret": {oauth.ClientSecret},
	}
	if oauth.Scope != "" {
		form.Set("scope", oauth.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauth.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewOAuthError("invalid token request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, NewOAuthError("token request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBody))
	if err != nil {
		return nil, NewOAuthError("failed to read token response: %v", err)
	}

	var parsed tokenResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &OAuthError{Message: tokenErrorMessage(parsed, resp.StatusCode)}
	}
	if parseErr != nil {
		return nil, NewOAuthError("failed to parse token response: %v", parseErr)
	}
	if parsed.AccessToken == "" {
		return nil, NewOAuthError("token response missing access_token")
	}

	token := &CachedToken{AccessToken: parsed.AccessToken}
	if parsed.ExpiresIn > 0 {
		token.ExpiresAt = m.now().Add(time.Duration(parsed.ExpiresIn)*time.Second - TokenExpirySafetyMargin)
		logging.Debug("Credentials", "Obtained access token, usable until %s", token.ExpiresAt.Format(time.RFC3339))
	} else {
		logging.Debug("Credentials", "Obtained access token without advertised lifetime")
	}

	return token, nil
}

// tokenErrorMessage picks the most specific message the issuer gave us:
// error_description, then error, then the bare status code.
func tokenErrorMessage(parsed tokenResponse, statusCode int) string {
	if parsed.ErrorDescription != "" {
		return parsed.ErrorDescription
	}
	if parsed.ErrorCode != "" {
		return parsed.ErrorCode
	}
	return fmt.Sprintf("token endpoint returned status %d", statusCode)
}

// ClearTokenCache unconditionally discards the cached token. Idempotent.
func (m *Manager) ClearTokenCache() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
	logging.Debug("Credentials", "Token cache cleared")
}

// TokenStatus returns a point-in-time read of the cache. IsExpired is the
// exact negation of token validity so the two can never disagree; a missing
// token reports neither present nor expired.
func (m *Manager) TokenStatus() TokenStatus {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	status := TokenStatus{AuthType: m.config.Mode}
	if token == nil {
		return status
	}

	status.HasToken = true
	status.IsExpired = !token.Valid(m.now())
	if !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt
		status.ExpiresAt = &expiresAt
	}
	return status
}

// TestResult is the outcome of a diagnostic authentication check.
type TestResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TestAuthentication exercises GetAuthHeaders and reports the outcome as a
// result structure. It never returns an error; this is the one operation
// that is safe to call purely for diagnostics.
func (m *Manager) TestAuthentication(ctx context.Context) TestResult {
	headers, err := m.GetAuthHeaders(ctx)
	if err != nil {
		return TestResult{
			Success: false,
			Message: fmt.Sprintf("authentication failed: %v", err),
			Details: map[string]interface{}{
				"mode": m.config.Mode,
			},
		}
	}

	headerNames := make([]string, 0, len(headers))
	for name := range headers {
		headerNames = append(headerNames, name)
	}

	status := m.TokenStatus()
	return TestResult{
		Success: true,
		Message: fmt.Sprintf("authentication OK (mode %s)", m.config.Mode),
		Details: map[string]interface{}{
			"mode":     m.config.Mode,
			"headers":  headerNames,
			"hasToken": status.HasToken,
		},
	}
}

// RefreshResult is the outcome of a forced token refresh.
type RefreshResult struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	TokenStatus TokenStatus `json:"tokenStatus"`
}

// RefreshToken clears the cache and, in OAuth mode, immediately requests a
// fresh token. All failures are captured in the result.
func (m *Manager) RefreshToken(ctx context.Context) RefreshResult {
	m.ClearTokenCache()

	if m.config.Mode != ModeOAuthClientCredentials {
		return RefreshResult{
			Success:     true,
			Message:     fmt.Sprintf("token cache cleared (mode %s has no token to refresh)", m.config.Mode),
			TokenStatus: m.TokenStatus(),
		}
	}

	if _, err := m.ensureToken(ctx); err != nil {
		return RefreshResult{
			Success:     false,
			Message:     fmt.Sprintf("token refresh failed: %v", err),
			TokenStatus: m.TokenStatus(),
		}
	}

	return RefreshResult{
		Success:     true,
		Message:     "token refreshed",
		TokenStatus: m.TokenStatus(),
	}
}

// TokenSource adapts the manager to oauth2.TokenSource so it can be plugged
// into oauth2-aware HTTP stacks. Only meaningful in OAuth mode.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, manager: m}
}

type managerTokenSource struct {
	ctx     context.Context
	manager *Manager
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.manager.ensureToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return token.ToOAuth2Token(), nil
}
