// Package authstate carries the PKCE verifier, redirect target and nonce of
// an in-flight authorization request through the provider round trip as a
// signed, self-contained value. Nothing is stored server side.
package authstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dgellow/generateui-api/internal/crypto"
	"github.com/dgellow/generateui-api/internal/idp"
)

// ErrVerificationFailed is wrapped by every error Parse returns.
var ErrVerificationFailed = errors.New("state verification failed")

var (
	ErrInvalidFormat    = fmt.Errorf("%w: invalid format", ErrVerificationFailed)
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrVerificationFailed)
	ErrMalformedState   = fmt.Errorf("%w: malformed state", ErrVerificationFailed)
)

// State is the signed body. JSON names are part of the wire format.
type State struct {
	Provider     idp.Name `json:"provider"`
	RedirectURI  string   `json:"redirectUri"`
	CodeVerifier string   `json:"codeVerifier"`
	Nonce        string   `json:"nonce,omitempty"`
	AntiReplay   string   `json:"state"`
}

// Validate checks the structural rules a State must satisfy before it is
// signed and after it is parsed.
func (s State) Validate() error {
	if !s.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if !IsAbsoluteURI(s.RedirectURI) {
		return errors.New("redirectUri must be an absolute URI")
	}
	if !ValidVerifier(s.CodeVerifier) {
		return errors.New("codeVerifier must be 43-128 unreserved characters")
	}
	return nil
}

// IsAbsoluteURI reports whether raw parses as a URI with a scheme and host.
func IsAbsoluteURI(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// ValidVerifier applies the RFC 7636 code_verifier grammar.
func ValidVerifier(v string) bool {
	if len(v) < 43 || len(v) > 128 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}

// Token signs and verifies State values.
type Token struct {
	signer *crypto.Signer
}

func NewToken(signer *crypto.Signer) *Token {
	return &Token{signer: signer}
}

// Create returns Encode(json) + "." + Sign(Encode(json)). The signature covers
// the encoded body so the opaque string verifies without re-serialising.
func (t *Token) Create(s State) (string, error) {
	if err := s.Validate(); err != nil {
		return "", fmt.Errorf("invalid state: %w", err)
	}
	body, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	encoded := crypto.Encode(body)
	return encoded + "." + t.signer.Sign([]byte(encoded)), nil
}

// Parse verifies raw and returns the embedded State. It fails closed: any
// error leaves the returned State empty.
func (t *Token) Parse(raw string) (State, error) {
	if strings.Count(raw, ".") != 1 {
		return State{}, ErrInvalidFormat
	}
	encoded, sig, _ := strings.Cut(raw, ".")
	if encoded == "" || sig == "" {
		return State{}, ErrInvalidFormat
	}

	if !t.signer.Verify([]byte(encoded), sig) {
		return State{}, ErrInvalidSignature
	}

	body, err := crypto.Decode(encoded)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	var s State
	if err := json.Unmarshal(body, &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if err := s.Validate(); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return s, nil
}
