// Package secrets generates webhook signing secrets and resolves which
// secrets apply to which inbound endpoint.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/Real-Craft-Tech/stampwire/pkg/standardwebhooks"
)

// keySize is the number of raw key bytes in a generated secret.
const keySize = 24

// Generate returns a fresh whsec_-prefixed signing secret. Generating a new
// secret for an endpoint invalidates nothing by itself; rotation happens by
// listing old and new secrets together until the old one is removed.
func Generate() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating key material: %w", err)
	}
	return standardwebhooks.SecretPrefix + base64.StdEncoding.EncodeToString(key), nil
}
