package server

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dgellow/generateui-api/internal/authstate"
	"github.com/dgellow/generateui-api/internal/crypto"
	"github.com/dgellow/generateui-api/internal/idp"
	"github.com/dgellow/generateui-api/internal/sessiontoken"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

var testNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func testSigner() *crypto.Signer {
	return crypto.NewSigner([]byte(testSecret))
}

func testIssuer() *sessiontoken.Issuer {
	return sessiontoken.NewIssuer(testSigner(), sessiontoken.WithClock(func() time.Time { return testNow }))
}

// fakeProvider stands in for a real identity provider. When idTokenNonce is
// set it rejects exchanges whose expected nonce differs, the way the Google
// adapter does.
type fakeProvider struct {
	name         idp.Name
	issuer       string
	subject      string
	idTokenNonce string
	err          error

	mu        sync.Mutex
	calls     int
	gotCode   string
	gotParams idp.Exchange
}

func (f *fakeProvider) Name() idp.Name { return f.name }

func (f *fakeProvider) Issuer() string { return f.issuer }

func (f *fakeProvider) AuthURL(req idp.AuthRequest) string {
	v := url.Values{
		"client_id":             {"fake-client"},
		"state":                 {req.State},
		"code_challenge":        {req.CodeChallenge},
		"code_challenge_method": {"S256"},
	}
	if req.Nonce != "" {
		v.Set("nonce", req.Nonce)
	}
	return "https://idp.example/authorize?" + v.Encode()
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code string, ex idp.Exchange) (*idp.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotCode = code
	f.gotParams = ex

	if f.err != nil {
		return nil, f.err
	}
	if f.idTokenNonce != "" && f.idTokenNonce != ex.Nonce {
		return nil, idp.ErrNonceMismatch
	}
	return &idp.Identity{Provider: f.name, Subject: f.subject}, nil
}

func (f *fakeProvider) exchangeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type authFixture struct {
	handlers *AuthHandlers
	states   *authstate.Token
	issuer   *sessiontoken.Issuer
	mux      *http.ServeMux
}

func newAuthFixture(t *testing.T, providers ...idp.Provider) *authFixture {
	t.Helper()

	reg := idp.Registry{}
	for _, p := range providers {
		reg[p.Name()] = p
	}

	states := authstate.NewToken(testSigner())
	issuer := testIssuer()
	h := NewAuthHandlers(reg, states, issuer, 5*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/{provider}", h.InitiateHandler)
	mux.HandleFunc("GET /auth/{provider}/callback", h.CallbackHandler)

	return &authFixture{handlers: h, states: states, issuer: issuer, mux: mux}
}

// signedState creates a state as the initiate leg would have.
func (f *authFixture) signedState(t *testing.T, provider idp.Name, redirectURI, nonce string) (string, authstate.State) {
	t.Helper()
	st := authstate.State{
		Provider:     provider,
		RedirectURI:  redirectURI,
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        nonce,
		AntiReplay:   "anti-replay",
	}
	raw, err := f.states.Create(st)
	require.NoError(t, err)
	return raw, st
}
