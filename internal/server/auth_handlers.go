package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/dgellow/generateui-api/internal/authstate"
	"github.com/dgellow/generateui-api/internal/crypto"
	"github.com/dgellow/generateui-api/internal/idp"
	jsonwriter "github.com/dgellow/generateui-api/internal/json"
	"github.com/dgellow/generateui-api/internal/log"
	"github.com/dgellow/generateui-api/internal/sessiontoken"
	"github.com/dgellow/generateui-api/internal/urlutil"
)

// expiresAtLayout matches the millisecond ISO 8601 form clients already parse.
const expiresAtLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	ErrMissingRedirectURI     = errors.New("redirect_uri required")
	ErrInvalidRedirectURI     = errors.New("invalid redirect_uri")
	ErrInvalidCallback        = errors.New("invalid callback")
	ErrInvalidAuthResponse    = errors.New("invalid auth response")
	errAuthorizationRequested = errors.New("authorization server returned an error")
)

// AuthHandlers implements both legs of the login flow. Everything the
// callback needs travels inside the signed state parameter.
type AuthHandlers struct {
	providers       idp.Registry
	states          *authstate.Token
	sessions        *sessiontoken.Issuer
	exchangeTimeout time.Duration
}

// NewAuthHandlers creates the login flow handlers.
func NewAuthHandlers(providers idp.Registry, states *authstate.Token, sessions *sessiontoken.Issuer, exchangeTimeout time.Duration) *AuthHandlers {
	return &AuthHandlers{
		providers:       providers,
		states:          states,
		sessions:        sessions,
		exchangeTimeout: exchangeTimeout,
	}
}

// InitiateHandler handles GET /auth/{provider}
func (h *AuthHandlers) InitiateHandler(w http.ResponseWriter, r *http.Request) {
	name, err := idp.ParseName(r.PathValue("provider"))
	if err != nil {
		jsonwriter.WriteNotFound(w, "unknown provider")
		return
	}

	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		jsonwriter.WriteBadRequest(w, ErrMissingRedirectURI.Error())
		return
	}

	provider, err := h.providers.Get(name)
	if err != nil {
		log.LogErrorWithFields("auth", "Login requested for unconfigured provider", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, name.DisplayName()+" OAuth not configured")
		return
	}

	if !authstate.IsAbsoluteURI(redirectURI) {
		jsonwriter.WriteBadRequest(w, ErrInvalidRedirectURI.Error())
		return
	}

	location, err := h.authorizationURL(provider, redirectURI)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to build authorization request", map[string]any{
			"provider": name,
			"error":    err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}

	log.LogDebugWithFields("auth", "Redirecting to provider", map[string]any{
		"provider": name,
	})
	http.Redirect(w, r, location, http.StatusFound)
}

func (h *AuthHandlers) authorizationURL(provider idp.Provider, redirectURI string) (string, error) {
	verifier := oauth2.GenerateVerifier()

	antiReplay, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	var nonce string
	if provider.Name() == idp.Google {
		nonce, err = crypto.GenerateSecureToken()
		if err != nil {
			return "", fmt.Errorf("generating nonce: %w", err)
		}
	}

	state, err := h.states.Create(authstate.State{
		Provider:     provider.Name(),
		RedirectURI:  redirectURI,
		CodeVerifier: verifier,
		Nonce:        nonce,
		AntiReplay:   antiReplay,
	})
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}

	return provider.AuthURL(idp.AuthRequest{
		State:         state,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		Nonce:         nonce,
	}), nil
}

// CallbackHandler handles GET /auth/{provider}/callback
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	name, err := idp.ParseName(r.PathValue("provider"))
	if err != nil {
		jsonwriter.WriteNotFound(w, "unknown provider")
		return
	}

	provider, err := h.providers.Get(name)
	if err != nil {
		jsonwriter.WriteInternalServerError(w, name.DisplayName()+" OAuth not configured")
		return
	}

	query := r.URL.Query()
	rawState := query.Get("state")

	state, err := h.states.Parse(rawState)
	if err == nil && state.Provider != name {
		err = fmt.Errorf("%w: state issued for %s", ErrInvalidCallback, state.Provider)
	}
	if err != nil {
		log.LogWarnWithFields("auth", "Rejected callback state", map[string]any{
			"provider": name,
			"error":    err.Error(),
		})
		jsonwriter.WriteBadRequest(w, "Invalid callback")
		return
	}

	code, err := validateAuthResponse(query, provider.Issuer(), rawState)
	if err != nil {
		log.LogWarnWithFields("auth", "Rejected authorization response", map[string]any{
			"provider": name,
			"error":    err.Error(),
		})
		jsonwriter.WriteBadRequest(w, "Invalid auth response")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout)
	defer cancel()

	identity, err := provider.ExchangeCode(ctx, code, idp.Exchange{
		CodeVerifier: state.CodeVerifier,
		Nonce:        state.Nonce,
	})
	if err != nil {
		log.LogErrorWithFields("auth", "Code exchange failed", map[string]any{
			"provider": name,
			"error":    err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "OAuth failed")
		return
	}

	session, err := h.sessions.Issue(identity.String(), sessiontoken.PlanDev)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to issue session token", map[string]any{
			"provider": name,
			"error":    err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "OAuth failed")
		return
	}

	location, err := urlutil.SetQuery(state.RedirectURI, url.Values{
		"access_token": {session.Value},
		"expires_at":   {session.Claims.Expiry().UTC().Format(expiresAtLayout)},
	})
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "OAuth failed")
		return
	}

	log.LogInfoWithFields("auth", "Login completed", map[string]any{
		"provider": name,
		"subject":  identity.String(),
	})

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, location, http.StatusFound)
}

// validateAuthResponse checks the query of an authorization response and
// returns the code. Every parameter may appear at most once, the error and
// implicit-flow parameters must be absent, iss must match when sent and the
// state must equal the one the callback was verified against.
func validateAuthResponse(query url.Values, issuer, expectedState string) (string, error) {
	for key, values := range query {
		if len(values) > 1 {
			return "", fmt.Errorf("%w: %q parameter must be provided only once", ErrInvalidAuthResponse, key)
		}
	}

	if iss := query.Get("iss"); query.Has("iss") && iss != issuer {
		return "", fmt.Errorf("%w: unexpected iss %q", ErrInvalidAuthResponse, iss)
	}

	state := query.Get("state")
	if state == "" || state != expectedState {
		return "", fmt.Errorf("%w: state mismatch", ErrInvalidAuthResponse)
	}

	if query.Has("error") {
		return "", fmt.Errorf("%w: %w: %s", ErrInvalidAuthResponse, errAuthorizationRequested, query.Get("error"))
	}

	if query.Has("id_token") || query.Has("token") {
		return "", fmt.Errorf("%w: implicit and hybrid responses are not supported", ErrInvalidAuthResponse)
	}

	code := query.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: missing code", ErrInvalidAuthResponse)
	}
	return code, nil
}
