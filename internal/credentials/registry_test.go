package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DefaultsToNoneMode(t *testing.T) {
	registry := NewRegistry(nil)

	manager := registry.Active()
	require.NotNil(t, manager)
	assert.Equal(t, ModeNone, manager.Config().Mode)

	headers, err := registry.GetAuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, headers)
}

func TestRegistry_SetActiveReplaces(t *testing.T) {
	registry := NewRegistry(NewManager(Config{Mode: ModeNone}))

	replacement := NewManager(Config{Mode: ModeBearer, BearerToken: "tok"})
	registry.SetActive(replacement)

	assert.Same(t, replacement, registry.Active())

	headers, err := registry.GetAuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", headers["Authorization"])
}

func TestRegistry_SetActiveIgnoresNil(t *testing.T) {
	manager := NewManager(Config{Mode: ModeNone})
	registry := NewRegistry(manager)

	registry.SetActive(nil)
	assert.Same(t, manager, registry.Active())
}

// A header request that started before a swap completes against the manager
// it was issued against; requests after the swap use the new manager only.
func TestRegistry_SwapDoesNotAffectInFlightRequests(t *testing.T) {
	tokenRequestStarted := make(chan struct{})
	releaseToken := make(chan struct{})

	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(tokenRequestStarted)
		<-releaseToken
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"old-token","expires_in":3600}`))
	}))
	defer issuer.Close()

	oldManager := NewManager(oauthConfig(issuer.URL))
	registry := NewRegistry(oldManager)

	var wg sync.WaitGroup
	var inFlightHeaders map[string]string
	var inFlightErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		// Resolve the manager first, as the request path does, then
		// block inside its token request while the swap happens.
		manager := registry.Active()
		inFlightHeaders, inFlightErr = manager.GetAuthHeaders(context.Background())
	}()

	<-tokenRequestStarted
	registry.SetActive(NewManager(Config{Mode: ModeBearer, BearerToken: "new-token"}))
	close(releaseToken)
	wg.Wait()

	require.NoError(t, inFlightErr)
	assert.Equal(t, "Bearer old-token", inFlightHeaders["Authorization"],
		"in-flight call must complete against the manager it started with")

	headers, err := registry.GetAuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer new-token", headers["Authorization"],
		"calls after the swap use the new manager exclusively")

	assert.False(t, registry.Active().TokenStatus().HasToken,
		"replacing the manager discards the old cached token")
}

func TestRegistry_ConcurrentReadersDuringSwap(t *testing.T) {
	registry := NewRegistry(NewManager(Config{Mode: ModeNone}))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					manager := registry.Active()
					require.NotNil(t, manager)
					require.True(t, manager.Config().Mode.IsValid())
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		registry.SetActive(NewManager(Config{Mode: ModeBearer, BearerToken: "tok"}))
		registry.SetActive(NewManager(Config{Mode: ModeNone}))
	}
	close(stop)
	wg.Wait()
}
