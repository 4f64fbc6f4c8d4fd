// Package sessiontoken issues and verifies the compact bearer credential
// handed to clients after login: base64url(header).base64url(claims).sig,
// HMAC-SHA256 over the first two segments.
//
// Tokens are valid until they expire. There is no revocation.
package sessiontoken

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgellow/generateui-api/internal/crypto"
)

// Algorithm is the only header alg accepted.
const Algorithm = "HS256"

// DefaultLifetime is 30 days.
const DefaultLifetime = 30 * 24 * time.Hour

// Plan is the entitlement tier carried in the token.
type Plan string

const (
	PlanFree Plan = "free"
	PlanDev  Plan = "dev"
)

// ErrRejected is wrapped by every error Verify returns.
var ErrRejected = errors.New("session token rejected")

var (
	ErrMalformedToken       = fmt.Errorf("%w: malformed token", ErrRejected)
	ErrInvalidSignature     = fmt.Errorf("%w: invalid signature", ErrRejected)
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported algorithm", ErrRejected)
	ErrMalformedClaims      = fmt.Errorf("%w: malformed claims", ErrRejected)
	ErrExpired              = fmt.Errorf("%w: expired", ErrRejected)
	ErrEmptySubject         = fmt.Errorf("%w: empty subject", ErrRejected)
)

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Claims is the token payload. Times are unix seconds.
type Claims struct {
	Subject   string `json:"sub"`
	Plan      Plan   `json:"plan,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

// Token is an issued credential and the claims it carries.
type Token struct {
	Value  string
	Claims Claims
}

// Issuer mints and checks tokens with a single shared secret.
type Issuer struct {
	signer *crypto.Signer
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(signer *crypto.Signer, opts ...IssuerOption) *Issuer {
	i := &Issuer{signer: signer, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue mints a token for subject valid for DefaultLifetime.
func (i *Issuer) Issue(subject string, plan Plan) (Token, error) {
	return i.IssueWithLifetime(subject, plan, DefaultLifetime)
}

// IssueWithLifetime mints a token expiring lifetime after now. Lifetimes are
// truncated to whole seconds.
func (i *Issuer) IssueWithLifetime(subject string, plan Plan, lifetime time.Duration) (Token, error) {
	if subject == "" {
		return Token{}, errors.New("subject is required")
	}
	if lifetime < time.Second {
		return Token{}, fmt.Errorf("lifetime must be at least one second, got %s", lifetime)
	}

	iat := i.now().Unix()
	claims := Claims{
		Subject:   subject,
		Plan:      plan,
		IssuedAt:  iat,
		ExpiresAt: iat + int64(lifetime/time.Second),
	}

	h, err := json.Marshal(header{Alg: Algorithm, Typ: "JWT"})
	if err != nil {
		return Token{}, fmt.Errorf("failed to marshal header: %w", err)
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return Token{}, fmt.Errorf("failed to marshal claims: %w", err)
	}

	signingInput := crypto.Encode(h) + "." + crypto.Encode(c)
	return Token{
		Value:  signingInput + "." + i.signer.Sign([]byte(signingInput)),
		Claims: claims,
	}, nil
}

// Verify checks the signature first, then the header algorithm, then the
// claims. Nothing from an unsigned segment is interpreted.
func (i *Issuer) Verify(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Claims{}, ErrMalformedToken
	}

	signingInput := parts[0] + "." + parts[1]
	if !i.signer.Verify([]byte(signingInput), parts[2]) {
		return Claims{}, ErrInvalidSignature
	}

	rawHeader, err := crypto.Decode(parts[0])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	var h header
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if h.Alg != Algorithm {
		return Claims{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, h.Alg)
	}

	rawClaims, err := crypto.Decode(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedClaims, err)
	}
	var claims Claims
	if err := json.Unmarshal(rawClaims, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedClaims, err)
	}

	if claims.ExpiresAt <= i.now().Unix() {
		return Claims{}, ErrExpired
	}
	if claims.Subject == "" {
		return Claims{}, ErrEmptySubject
	}
	return claims, nil
}
