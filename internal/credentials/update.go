package credentials

import (
	"fmt"

	"github.com/martijn-on-fhir/fhir-mcp-sub001/pkg/logging"
)

// UpdateRequest carries a configuration-change request from the tool-calling
// surface. Every field is optional; absent fields keep their current value.
// Fields that are irrelevant to the resolved mode are stored anyway so an
// operator can set fields first and switch modes later.
type UpdateRequest struct {
	Mode         string  `json:"mode,omitempty"`
	BearerToken  *string `json:"bearerToken,omitempty"`
	TokenURL     *string `json:"tokenUrl,omitempty"`
	ClientID     *string `json:"clientId,omitempty"`
	ClientSecret *string `json:"clientSecret,omitempty"`
	Scope        *string `json:"scope,omitempty"`
	AutoDiscover *bool   `json:"autoDiscover,omitempty"`
}

// UpdateResult summarizes a configuration change. It intentionally carries
// no secret values, only presence flags.
type UpdateResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConfiguredMode Mode   `json:"configuredMode,omitempty"`
	HasToken       bool   `json:"hasToken"`
	HasOAuthConfig bool   `json:"hasOAuthConfig"`
}

// UpdateHandler turns configuration-change requests into new Manager
// instances and publishes them through the Registry.
type UpdateHandler struct {
	registry *Registry
	opts     []ManagerOption
}

// NewUpdateHandler creates an update handler bound to the given registry.
// The options are applied to every manager it constructs.
func NewUpdateHandler(registry *Registry, opts ...ManagerOption) *UpdateHandler {
	return &UpdateHandler{registry: registry, opts: opts}
}

// mergeConfig applies an update request onto an existing configuration,
// field by field over the fixed set of known fields. Nothing outside this
// set can be carried into the new configuration.
func mergeConfig(current Config, req UpdateRequest) Config {
	merged := current

	if req.Mode != "" {
		merged.Mode = Mode(req.Mode)
	}
	if req.BearerToken != nil {
		merged.BearerToken = *req.BearerToken
	}
	if req.TokenURL != nil {
		merged.OAuth.TokenURL = *req.TokenURL
	}
	if req.ClientID != nil {
		merged.OAuth.ClientID = *req.ClientID
	}
	if req.ClientSecret != nil {
		merged.OAuth.ClientSecret = *req.ClientSecret
	}
	if req.Scope != nil {
		merged.OAuth.Scope = *req.Scope
	}
	if req.AutoDiscover != nil {
		merged.OAuth.AutoDiscover = *req.AutoDiscover
	}

	return merged
}

// ConfigureAuth validates the requested change, builds a fresh Manager and
// atomically replaces the active one. Validation failures are expected
// operator mistakes and come back as an unsuccessful result, never an error.
func (h *UpdateHandler) ConfigureAuth(req UpdateRequest) UpdateResult {
	current := h.registry.Active().Config()

	merged := mergeConfig(current, req)
	if merged.Mode == "" {
		merged.Mode = ModeNone
	}

	if err := merged.Validate(); err != nil {
		return UpdateResult{
			Success: false,
			Message: err.Error(),
		}
	}

	h.registry.SetActive(NewManager(merged, h.opts...))

	logging.Info("Credentials", "Authentication reconfigured: mode=%s hasToken=%t hasOAuthConfig=%t",
		merged.Mode, merged.BearerToken != "", merged.HasOAuthConfig())

	return UpdateResult{
		Success:        true,
		Message:        fmt.Sprintf("authentication configured with mode %q", merged.Mode),
		ConfiguredMode: merged.Mode,
		HasToken:       merged.BearerToken != "",
		HasOAuthConfig: merged.HasOAuthConfig(),
	}
}
