package crypto

import (
	"crypto/rand"
	"fmt"
)

// GenerateSecureToken returns 32 bytes from crypto/rand in unpadded
// base64url form (43 characters). Used for anti-replay state values and
// OpenID nonces.
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return Encode(b), nil
}
