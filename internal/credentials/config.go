package credentials

// Mode selects how outbound FHIR requests are authenticated.
type Mode string

const (
	// ModeNone attaches no credentials.
	ModeNone Mode = "none"

	// ModeBearer attaches a statically configured bearer token.
	ModeBearer Mode = "bearer"

	// ModeOAuthClientCredentials obtains tokens via the OAuth2
	// client-credentials grant and caches them until close to expiry.
	ModeOAuthClientCredentials Mode = "oauth2-client-credentials"
)

// IsValid reports whether m names a known authentication mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeNone, ModeBearer, ModeOAuthClientCredentials:
		return true
	}
	return false
}

// OAuthSettings holds the client-credentials grant parameters.
type OAuthSettings struct {
	// TokenURL is the OAuth token endpoint. May be empty until filled in
	// manually or via discovery.
	TokenURL string `yaml:"tokenUrl,omitempty" json:"tokenUrl,omitempty"`

	ClientID     string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty" json:"-"`
	Scope        string `yaml:"scope,omitempty" json:"scope,omitempty"`

	// AutoDiscover enables probing the FHIR server's well-known
	// smart-configuration documents for the token endpoint.
	AutoDiscover bool `yaml:"autoDiscover,omitempty" json:"autoDiscover,omitempty"`
}

// Config describes one authentication configuration. A Config is built once
// per configuration change and never mutated afterwards; changes produce a
// new value that supersedes the old one in the Registry.
//
// Exactly one mode is active at a time. Fields that are irrelevant to the
// active mode may still carry values (operators set fields incrementally
// before switching modes); they are ignored, not rejected.
type Config struct {
	Mode        Mode          `yaml:"mode" json:"mode"`
	BearerToken string        `yaml:"bearerToken,omitempty" json:"-"`
	OAuth       OAuthSettings `yaml:"oauth,omitempty" json:"oauth,omitempty"`
}

// Validate checks the static parts of the configuration. It deliberately does
// not require mode-specific fields to be present: a bearer config without a
// token only fails once headers are requested, which keeps the
// "set fields now, activate mode later" workflow possible.
func (c Config) Validate() error {
	if c.Mode == "" {
		return NewConfigError("authentication mode is required")
	}
	if !c.Mode.IsValid() {
		return NewConfigError("unknown authentication mode %q (expected %q, %q or %q)",
			c.Mode, ModeNone, ModeBearer, ModeOAuthClientCredentials)
	}
	return nil
}

// HasOAuthConfig reports whether any client-credentials parameter is set.
func (c Config) HasOAuthConfig() bool {
	return c.OAuth.TokenURL != "" || c.OAuth.ClientID != "" || c.OAuth.ClientSecret != ""
}
