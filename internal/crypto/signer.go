package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Signer produces detached HMAC-SHA256 signatures in base64url form.
// The zero value is not usable; construct with NewSigner.
type Signer struct {
	key []byte
}

// NewSigner copies key so later mutation by the caller has no effect.
func NewSigner(key []byte) *Signer {
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k}
}

func (s *Signer) mac(msg []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(msg)
	return h.Sum(nil)
}

// Sign returns Encode(HMAC-SHA256(key, msg)).
func (s *Signer) Sign(msg []byte) string {
	return Encode(s.mac(msg))
}

// Verify reports whether sig is exactly Sign(msg). Only the canonical
// unpadded encoding is accepted; the comparison is constant time.
func (s *Signer) Verify(msg []byte, sig string) bool {
	return hmac.Equal([]byte(sig), []byte(s.Sign(msg)))
}
