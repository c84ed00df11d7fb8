// Package credentials manages the credential lifecycle for outbound FHIR
// requests: selecting among authentication modes, obtaining and caching
// OAuth2 client-credentials tokens, discovering token endpoints via SMART
// well-known documents, and hot-swapping the active configuration at runtime.
//
// The moving parts:
//
//   - Config describes one immutable authentication configuration.
//   - Manager is bound to one Config, produces headers for requests and owns
//     at most one cached token.
//   - Registry holds the single active Manager and supports atomic
//     replacement; it is injected into every consumer.
//   - UpdateHandler builds new Managers from change requests and publishes
//     them through the Registry.
//
// GetAuthHeaders is the only operation that returns errors to its caller.
// Every other boundary-facing operation (ConfigureAuth, TestAuthentication,
// TokenStatus, RefreshToken, DiscoverOAuth) converts failures into a
// structured result, because those callers are operators, not code.
package credentials
