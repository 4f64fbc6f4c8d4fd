package idp

import (
	"fmt"

	"github.com/dgellow/generateui-api/internal/config"
	"github.com/dgellow/generateui-api/internal/urlutil"
)

// Registry holds the providers that have client credentials configured.
type Registry map[Name]Provider

// Get returns the provider for name, or ErrProviderNotConfigured when it is not
// configured.
func (r Registry) Get(name Name) (Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
	}
	return p, nil
}

// CallbackURL is the redirect URI registered with each provider.
func CallbackURL(baseURL string, name Name) string {
	return urlutil.MustJoinPath(baseURL, "auth", string(name), "callback")
}

// NewRegistry builds a provider for every fully configured client.
func NewRegistry(cfg config.Config) Registry {
	reg := Registry{}

	if cfg.GitHub.Configured() {
		reg[GitHub] = NewGitHubProvider(
			cfg.GitHub.ClientID,
			string(cfg.GitHub.ClientSecret),
			CallbackURL(cfg.APIBaseURL, GitHub),
			WithTimeout(cfg.ProviderTimeout),
			WithEndpoint(cfg.GitHub.AuthURL, cfg.GitHub.TokenURL),
			WithAPIBaseURL(cfg.GitHub.APIURL),
		)
	}

	if cfg.Google.Configured() {
		opts := []Option{
			WithTimeout(cfg.ProviderTimeout),
			WithEndpoint(cfg.Google.AuthURL, cfg.Google.TokenURL),
		}
		if cfg.Google.VerifyIDToken {
			opts = append(opts, WithIDTokenVerification(cfg.Google.JWKSURL))
		}
		reg[Google] = NewGoogleProvider(
			cfg.Google.ClientID,
			string(cfg.Google.ClientSecret),
			CallbackURL(cfg.APIBaseURL, Google),
			opts...,
		)
	}

	return reg
}
