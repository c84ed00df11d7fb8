package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTransport fails the test if any request goes out. Used to prove
// that the none/bearer modes never touch the network.
type countingTransport struct {
	t     *testing.T
	calls int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	c.t.Errorf("unexpected network request to %s", req.URL)
	return nil, errors.New("network access forbidden in this test")
}

func noNetworkClient(t *testing.T) *http.Client {
	return &http.Client{Transport: &countingTransport{t: t}}
}

func TestGetAuthHeaders_NoneMode(t *testing.T) {
	manager := NewManager(Config{Mode: ModeNone}, WithHTTPClient(noNetworkClient(t)))

	for i := 0; i < 3; i++ {
		headers, err := manager.GetAuthHeaders(context.Background())
		require.NoError(t, err)
		assert.Empty(t, headers)
		assert.NotNil(t, headers)
	}
}

func TestGetAuthHeaders_BearerMode(t *testing.T) {
	manager := NewManager(Config{Mode: ModeBearer, BearerToken: "secret-token"},
		WithHTTPClient(noNetworkClient(t)))

	for i := 0; i < 3; i++ {
		headers, err := manager.GetAuthHeaders(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Authorization": "Bearer secret-token"}, headers)
	}
}

func TestGetAuthHeaders_BearerModeMissingToken(t *testing.T) {
	manager := NewManager(Config{Mode: ModeBearer}, WithHTTPClient(noNetworkClient(t)))

	_, err := manager.GetAuthHeaders(context.Background())
	require.Error(t, err)

	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "missing bearer token", configErr.Message)
}

func TestGetAuthHeaders_UnknownMode(t *testing.T) {
	manager := NewManager(Config{Mode: "kerberos"}, WithHTTPClient(noNetworkClient(t)))

	_, err := manager.GetAuthHeaders(context.Background())
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
}

// fakeIssuer is a minimal client-credentials token endpoint.
type fakeIssuer struct {
	mu       sync.Mutex
	requests int
	respond  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeIssuer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		f.respond(w, r)
	}
}

func (f *fakeIssuer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func oauthConfig(tokenURL string) Config {
	return Config{
		Mode: ModeOAuthClientCredentials,
		OAuth: OAuthSettings{
			TokenURL:     tokenURL,
			ClientID:     "svc-client",
			ClientSecret: "svc-secret",
			Scope:        "system/*.read",
		},
	}
}

func TestRequestToken_SendsClientCredentialsForm(t *testing.T) {
	issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "svc-client", r.PostForm.Get("client_id"))
		assert.Equal(t, "svc-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "system/*.read", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":3600}`))
	}}
	server := httptest.NewServer(issuer.handler())
	defer server.Close()

	manager := NewManager(oauthConfig(server.URL))
	headers, err := manager.GetAuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc123", headers["Authorization"])
}

func TestGetAuthHeaders_OAuthCachesToken(t *testing.T) {
	issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":3600}`))
	}}
	server := httptest.NewServer(issuer.handler())
	defer server.Close()

	manager := NewManager(oauthConfig(server.URL))

	for i := 0; i < 5; i++ {
		headers, err := manager.GetAuthHeaders(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer abc123", headers["Authorization"])
	}

	assert.Equal(t, 1, issuer.requestCount(), "cached token should be reused")
}

func TestTokenExpiry_SafetyMargin(t *testing.T) {
	// A token issued at t0 with expires_in=600 must be valid in
	// [t0, t0+300) and invalid from t0+300 onwards (600s minus the 300s
	// safety margin).
	t0 := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	var nowMu sync.Mutex
	clock := func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return now
	}
	setNow := func(v time.Time) {
		nowMu.Lock()
		now = v
		nowMu.Unlock()
	}

	issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":600}`))
	}}
	server := httptest.NewServer(issuer.handler())
	defer server.Close()

	manager := NewManager(oauthConfig(server.URL), WithClock(clock))
	_, err := manager.GetAuthHeaders(context.Background())
	require.NoError(t, err)

	assert.True(t, manager.IsTokenValid(), "valid at issuance")

	setNow(t0.Add(299 * time.Second))
	assert.True(t, manager.IsTokenValid(), "valid just before the margin boundary")

	setNow(t0.Add(300 * time.Second))
	assert.False(t, manager.IsTokenValid(), "invalid at the margin boundary")

	setNow(t0.Add(10 * time.Minute))
	assert.False(t, manager.IsTokenValid(), "invalid well after expiry")
}

func TestRequestToken_MissingExpiresInIsCached(t *testing.T) {
	issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"longlived"}`))
	}}
	server := httptest.NewServer(issuer.handler())
	defer server.Close()

	manager := NewManager(oauthConfig(server.URL))

	for i := 0; i < 3; i++ {
		_, err := manager.GetAuthHeaders(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, issuer.requestCount(), "token without expiry is reused until cleared")

	status := manager.TokenStatus()
	assert.True(t, status.HasToken)
	assert.False(t, status.IsExpired)
	assert.Nil(t, status.ExpiresAt)

	manager.ClearTokenCache()
	_, err := manager.GetAuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, issuer.requestCount(), "clearing the cache forces a new request")
}

func TestRequestToken_ErrorDescriptionPriority(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "error_description wins",
			status:      http.StatusBadRequest,
			body:        `{"error":"invalid_client","error_description":"bad secret"}`,
			wantMessage: "bad secret",
		},
		{
			name:        "error code when no description",
			status:      http.StatusUnauthorized,
			body:        `{"error":"invalid_client"}`,
			wantMessage: "invalid_client",
		},
		{
			name:        "status code when body is useless",
			status:      http.StatusBadGateway,
			body:        `upstream exploded`,
			wantMessage: "token endpoint returned status 502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}}
			server := httptest.NewServer(issuer.handler())
			defer server.Close()

			manager := NewManager(oauthConfig(server.URL))
			_, err := manager.GetAuthHeaders(context.Background())
			require.Error(t, err)

			var oauthErr *OAuthError
			require.ErrorAs(t, err, &oauthErr)
			assert.Equal(t, tt.wantMessage, oauthErr.Message)
		})
	}
}

func TestRequestToken_MissingPreconditions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token URL", func(c *Config) { c.OAuth.TokenURL = "" }},
		{"missing client ID", func(c *Config) { c.OAuth.ClientID = "" }},
		{"missing client secret", func(c *Config) { c.OAuth.ClientSecret = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := oauthConfig("https://idp.example.com/token")
			tt.mutate(&config)

			manager := NewManager(config, WithHTTPClient(noNetworkClient(t)))
			_, err := manager.GetAuthHeaders(context.Background())

			var configErr *ConfigError
			require.ErrorAs(t, err, &configErr, "precondition failures are config errors before any network call")
		})
	}
}

func TestRequestToken_MissingAccessToken(t *testing.T) {
	issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}}
	server := httptest.NewServer(issuer.handler())
	defer server.Close()

	manager := NewManager(oauthConfig(server.URL))
	_, err := manager.GetAuthHeaders(context.Background())

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Contains(t, oauthErr.Message, "access_token")
}

func TestEnsureToken_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":3600}`))
	}}
	server := httptest.NewServer(issuer.handler())
	defer server.Close()

	manager := NewManager(oauthConfig(server.URL))

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = manager.GetAuthHeaders(context.Background())
		}(i)
	}

	// Give the goroutines a moment to pile up on the in-flight request.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, 1, issuer.requestCount(), "burst of callers should share one token request")
}

func TestClearTokenCache_StatusAfterClear(t *testing.T) {
	issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":3600}`))
	}}
	server := httptest.NewServer(issuer.handler())
	defer server.Close()

	manager := NewManager(oauthConfig(server.URL))
	_, err := manager.GetAuthHeaders(context.Background())
	require.NoError(t, err)
	require.True(t, manager.TokenStatus().HasToken)

	manager.ClearTokenCache()
	manager.ClearTokenCache() // idempotent

	status := manager.TokenStatus()
	assert.False(t, status.HasToken)
	assert.False(t, status.IsExpired)
	assert.Nil(t, status.ExpiresAt)
}

func TestTokenStatus_AgreesWithIsTokenValid(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	manager := NewManager(oauthConfig("https://idp.example.com/token"),
		WithClock(func() time.Time { return now }))

	manager.mu.Lock()
	manager.token = &CachedToken{AccessToken: "tok", ExpiresAt: t0.Add(time.Minute)}
	manager.mu.Unlock()

	for _, offset := range []time.Duration{0, 59 * time.Second, time.Minute, time.Hour} {
		now = t0.Add(offset)
		status := manager.TokenStatus()
		assert.Equal(t, manager.IsTokenValid(), !status.IsExpired,
			"status disagrees with IsTokenValid at offset %v", offset)
	}
}

func TestTestAuthentication_NeverErrors(t *testing.T) {
	t.Run("bearer success", func(t *testing.T) {
		manager := NewManager(Config{Mode: ModeBearer, BearerToken: "tok"},
			WithHTTPClient(noNetworkClient(t)))
		result := manager.TestAuthentication(context.Background())
		assert.True(t, result.Success)
		assert.Contains(t, result.Message, "bearer")
		assert.NotContains(t, result.Message, "tok", "diagnostics must not leak the token")
	})

	t.Run("bearer failure", func(t *testing.T) {
		manager := NewManager(Config{Mode: ModeBearer}, WithHTTPClient(noNetworkClient(t)))
		result := manager.TestAuthentication(context.Background())
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "missing bearer token")
	})

	t.Run("oauth unreachable issuer", func(t *testing.T) {
		manager := NewManager(oauthConfig("http://127.0.0.1:1/token"))
		result := manager.TestAuthentication(context.Background())
		assert.False(t, result.Success)
	})
}

func TestRefreshToken(t *testing.T) {
	t.Run("oauth refresh replaces the token", func(t *testing.T) {
		issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":3600}`))
		}}
		server := httptest.NewServer(issuer.handler())
		defer server.Close()

		manager := NewManager(oauthConfig(server.URL))
		_, err := manager.GetAuthHeaders(context.Background())
		require.NoError(t, err)

		result := manager.RefreshToken(context.Background())
		assert.True(t, result.Success)
		assert.True(t, result.TokenStatus.HasToken)
		assert.Equal(t, 2, issuer.requestCount())
	})

	t.Run("refresh failure is captured in the result", func(t *testing.T) {
		manager := NewManager(oauthConfig("http://127.0.0.1:1/token"))
		result := manager.RefreshToken(context.Background())
		assert.False(t, result.Success)
		assert.False(t, result.TokenStatus.HasToken)
	})

	t.Run("non-oauth mode just clears", func(t *testing.T) {
		manager := NewManager(Config{Mode: ModeBearer, BearerToken: "tok"},
			WithHTTPClient(noNetworkClient(t)))
		result := manager.RefreshToken(context.Background())
		assert.True(t, result.Success)
		assert.False(t, result.TokenStatus.HasToken)
	})
}

func TestTokenSource(t *testing.T) {
	issuer := &fakeIssuer{respond: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":3600}`))
	}}
	server := httptest.NewServer(issuer.handler())
	defer server.Close()

	manager := NewManager(oauthConfig(server.URL))
	source := manager.TokenSource(context.Background())

	token, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc123", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.False(t, token.Expiry.IsZero())

	// Second read hits the cache, not the issuer.
	_, err = source.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, issuer.requestCount())
}
