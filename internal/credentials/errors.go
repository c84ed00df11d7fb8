package credentials

import "fmt"

// The package normalizes every failure into one of three kinds. Transport
// errors never cross the package boundary as-is.
//
//   - ConfigError: missing or invalid static configuration. Not retryable;
//     the operator has to fix the configuration.
//   - OAuthError: the token endpoint rejected the request or was unreachable.
//     Callers may retry with backoff.
//   - DiscoveryError: no well-known endpoint could be found. Callers fall
//     back to configuring the token URL manually.

// ConfigError indicates missing or invalid static configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigError creates a ConfigError with a formatted message.
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// OAuthError indicates a failed token request against the OAuth issuer.
type OAuthError struct {
	Message string
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("oauth error: %s", e.Message)
}

// NewOAuthError creates an OAuthError with a formatted message.
func NewOAuthError(format string, args ...interface{}) *OAuthError {
	return &OAuthError{Message: fmt.Sprintf(format, args...)}
}

// DiscoveryError indicates that no candidate well-known URL yielded a usable
// token endpoint. BaseURL is the original FHIR base URL the caller supplied,
// not any of the derived candidates, so the message stays stable.
type DiscoveryError struct {
	BaseURL string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("no discoverable OAuth endpoint for %s", e.BaseURL)
}
