package idp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Name identifies a supported identity provider. It is also the path segment
// in /auth/{provider}.
type Name string

const (
	GitHub Name = "github"
	Google Name = "google"
)

// Names lists every provider the service knows about, in display order.
var Names = []Name{GitHub, Google}

// ParseName maps a path segment to a Name.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return n, nil
}

func (n Name) Valid() bool {
	return n == GitHub || n == Google
}

// DisplayName is the human-readable provider name used in error bodies and
// the login page.
func (n Name) DisplayName() string {
	switch n {
	case GitHub:
		return "GitHub"
	case Google:
		return "Google"
	default:
		return string(n)
	}
}

// AuthRequest carries the per-flow values placed on the authorization URL.
type AuthRequest struct {
	State         string
	CodeChallenge string
	Nonce         string
}

// Exchange carries the per-flow values needed to redeem a code.
type Exchange struct {
	CodeVerifier string
	Nonce        string
}

// Identity is the provider-scoped account identifier returned by a
// successful exchange.
type Identity struct {
	Provider Name
	Subject  string
}

// UnknownSubject stands in when a provider response carries no identifier.
const UnknownSubject = "unknown"

// String renders the qualified form used as the session subject, e.g.
// "github:12345".
func (i Identity) String() string {
	sub := i.Subject
	if sub == "" {
		sub = UnknownSubject
	}
	return string(i.Provider) + ":" + sub
}

// Provider abstracts one identity provider's half of the authorization code
// flow. PKCE and state handling stay with the caller.
type Provider interface {
	Name() Name

	// Issuer is the value expected in the callback's iss parameter, if the
	// provider sends one.
	Issuer() string

	// AuthURL builds the authorization redirect.
	AuthURL(req AuthRequest) string

	// ExchangeCode redeems code at the token endpoint and resolves the
	// account identity. Every failure wraps ErrExchangeFailed.
	ExchangeCode(ctx context.Context, code string, ex Exchange) (*Identity, error)
}

// Option configures a provider.
type Option func(*options)

type options struct {
	httpClient    *http.Client
	verifyIDToken bool
	jwksURL       string
	now           func() time.Time
	authURL       string
	tokenURL      string
	apiBaseURL    string
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// WithHTTPClient sets the client used for token and user-info calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout bounds every outbound provider call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.httpClient = &http.Client{Timeout: d, Transport: o.httpClient.Transport}
		}
	}
}

// WithIDTokenVerification enables signature verification of Google ID
// tokens against the key set at jwksURL. An empty URL selects Google's.
func WithIDTokenVerification(jwksURL string) Option {
	return func(o *options) {
		o.verifyIDToken = true
		o.jwksURL = jwksURL
	}
}

// WithClock overrides the time source used for ID token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithEndpoint replaces the authorization and token endpoints. Empty values
// keep the provider default.
func WithEndpoint(authURL, tokenURL string) Option {
	return func(o *options) {
		o.authURL = authURL
		o.tokenURL = tokenURL
	}
}

// WithAPIBaseURL points GitHub user lookups at another API host, such as a
// GitHub Enterprise Server instance.
func WithAPIBaseURL(u string) Option {
	return func(o *options) {
		o.apiBaseURL = u
	}
}

func (o options) endpoint(ep oauth2.Endpoint) oauth2.Endpoint {
	if o.authURL != "" {
		ep.AuthURL = o.authURL
	}
	if o.tokenURL != "" {
		ep.TokenURL = o.tokenURL
	}
	ep.AuthStyle = oauth2.AuthStyleInParams
	return ep
}
