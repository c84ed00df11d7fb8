package config

import (
	"github.com/martijn-on-fhir/fhir-mcp-sub001/internal/credentials"
)

// Transport names for the MCP server.
const (
	// TransportStdio is the standard I/O transport (default; the MCP host
	// launches the binary and speaks over stdin/stdout).
	TransportStdio = "stdio"
	// TransportStreamableHTTP is the streamable HTTP transport.
	TransportStreamableHTTP = "streamable-http"
)

// Config is the top-level configuration for the FHIR MCP server.
type Config struct {
	FHIR   FHIRConfig   `yaml:"fhir"`
	Auth   AuthConfig   `yaml:"auth,omitempty"`
	Server ServerConfig `yaml:"server,omitempty"`
}

// FHIRConfig identifies the upstream FHIR server.
type FHIRConfig struct {
	// BaseURL is the FHIR base URL, e.g. https://ehr.example.com/fhir.
	BaseURL string `yaml:"baseUrl"`
}

// AuthConfig mirrors credentials.Config in the configuration file.
type AuthConfig struct {
	Mode        string `yaml:"mode,omitempty"`
	BearerToken string `yaml:"bearerToken,omitempty"`
	OAuth       struct {
		TokenURL     string `yaml:"tokenUrl,omitempty"`
		ClientID     string `yaml:"clientId,omitempty"`
		ClientSecret string `yaml:"clientSecret,omitempty"`
		Scope        string `yaml:"scope,omitempty"`
		AutoDiscover bool   `yaml:"autoDiscover,omitempty"`
	} `yaml:"oauth,omitempty"`
}

// ServerConfig controls the MCP transport and logging.
type ServerConfig struct {
	Transport string `yaml:"transport,omitempty"` // stdio or streamable-http
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	LogLevel  string `yaml:"logLevel,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Auth.Mode = string(credentials.ModeNone)
	cfg.Server.Transport = TransportStdio
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 8090
	cfg.Server.LogLevel = "info"
	return cfg
}

// CredentialConfig converts the auth section into a credentials.Config.
func (c Config) CredentialConfig() credentials.Config {
	mode := credentials.Mode(c.Auth.Mode)
	if mode == "" {
		mode = credentials.ModeNone
	}
	return credentials.Config{
		Mode:        mode,
		BearerToken: c.Auth.BearerToken,
		OAuth: credentials.OAuthSettings{
			TokenURL:     c.Auth.OAuth.TokenURL,
			ClientID:     c.Auth.OAuth.ClientID,
			ClientSecret: c.Auth.OAuth.ClientSecret,
			Scope:        c.Auth.OAuth.Scope,
			AutoDiscover: c.Auth.OAuth.AutoDiscover,
		},
	}
}

// Validate checks the loaded configuration.
func (c Config) Validate() error {
	if c.FHIR.BaseURL == "" {
		return credentials.NewConfigError("fhir.baseUrl is required")
	}
	switch c.Server.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return credentials.NewConfigError("unknown server transport %q (expected %q or %q)",
			c.Server.Transport, TransportStdio, TransportStreamableHTTP)
	}
	return c.CredentialConfig().Validate()
}
