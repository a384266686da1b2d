package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

const testEndpointsYAML = `
endpoints:
  stamps:
    secrets:
      - whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw
  orders:
    secrets:
      - whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw
      - whsec_dGhpcyBpcyBhIHJvdGF0ZWQga2V5ISE=
`

func writeEndpoints(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGenerate(t *testing.T) {
	secret, err := Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret, standardwebhooks.SecretPrefix))

	// A generated secret must be directly usable for signing.
	_, err = standardwebhooks.New(secret)
	assert.NoError(t, err)

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestStoreLoads(t *testing.T) {
	path := writeEndpoints(t, t.TempDir(), testEndpointsYAML)

	store, err := NewStore(path, standardwebhooks.Options{})
	require.NoError(t, err)
	defer store.Close()

	stamps, ok := store.Verifiers("stamps")
	require.True(t, ok)
	assert.Len(t, stamps, 1)

	orders, ok := store.Verifiers("orders")
	require.True(t, ok)
	assert.Len(t, orders, 2, "rotating endpoint carries both secrets")

	_, ok = store.Verifiers("unknown")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"stamps", "orders"}, store.Endpoints())
}

func TestStoreRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "endpoints: [not: closed"},
		{"endpoint without secrets", "endpoints:\n  stamps:\n    secrets: []\n"},
		{"bad secret", "endpoints:\n  stamps:\n    secrets:\n      - not-a-secret\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeEndpoints(t, t.TempDir(), tt.content)
			_, err := NewStore(path, standardwebhooks.Options{})
			assert.Error(t, err)
		})
	}
}

func TestStoreReloadKeepsStateOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeEndpoints(t, dir, testEndpointsYAML)

	store, err := NewStore(path, standardwebhooks.Options{})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, os.WriteFile(path, []byte("endpoints: [broken"), 0o600))
	assert.Error(t, store.Reload())

	// Previous state survives the failed reload.
	_, ok := store.Verifiers("stamps")
	assert.True(t, ok)
}

func TestStoreWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeEndpoints(t, dir, testEndpointsYAML)

	store, err := NewStore(path, standardwebhooks.Options{})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Watch())

	updated := testEndpointsYAML + `
  refunds:
    secrets:
      - whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		_, ok := store.Verifiers("refunds")
		return ok
	}, 3*time.Second, 20*time.Millisecond)
}
