package credentials

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenExpirySafetyMargin is subtracted from the issuer-advertised token
// lifetime when computing the cached expiry instant. It absorbs clock skew
// between this process and the issuer as well as request latency, so a token
// is never attached to a request it cannot outlive.
const TokenExpirySafetyMargin = 300 * time.Second

// ReuseTokenWithoutExpiry is the caching policy for token responses that
// carry no expires_in. When true, such tokens are cached and reused until
// explicitly cleared, mirroring issuers that omit expires_in for long-lived
// tokens. Flipping this to false makes every header request without an
// advertised lifetime perform a fresh token request.
const ReuseTokenWithoutExpiry = true

// CachedToken is the single token a Manager may hold between requests.
type CachedToken struct {
	// AccessToken is the opaque bearer string.
	AccessToken string

	// ExpiresAt is the issuance instant plus the advertised lifetime minus
	// TokenExpirySafetyMargin. Zero means the issuer advertised no lifetime.
	ExpiresAt time.Time
}

// Valid reports whether the token is usable at the given instant.
// Tokens without an advertised lifetime follow ReuseTokenWithoutExpiry.
func (t *CachedToken) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return ReuseTokenWithoutExpiry
	}
	return now.Before(t.ExpiresAt)
}

// ToOAuth2Token converts the cached token to an *oauth2.Token so the manager
// can feed oauth2-aware HTTP stacks (see Manager.TokenSource).
func (t *CachedToken) ToOAuth2Token() *oauth2.Token {
	if t == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   "Bearer",
		Expiry:      t.ExpiresAt,
	}
}

// TokenStatus is a point-in-time read of the cache state.
type TokenStatus struct {
	AuthType  Mode       `json:"authType"`
	HasToken  bool       `json:"hasToken"`
	IsExpired bool       `json:"isExpired"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
