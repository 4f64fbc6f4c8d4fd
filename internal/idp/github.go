package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/dgellow/generateui-api/internal/ioutil"
	"github.com/dgellow/generateui-api/internal/log"
)

const (
	githubIssuer     = "https://github.com"
	githubAPIBaseURL = "https://api.github.com"
	userAgent        = "GenerateUI"
)

// GitHubProvider implements Provider for GitHub OAuth apps. GitHub is plain
// OAuth 2.0, so identity comes from the REST API rather than an ID token.
type GitHubProvider struct {
	config     oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// githubUserResponse is the subset of GET /user we read. ID is a pointer so
// an absent id can be told apart from zero.
type githubUserResponse struct {
	ID    *int64 `json:"id"`
	Login string `json:"login"`
}

// NewGitHubProvider creates a GitHub provider whose callback is redirectURI.
func NewGitHubProvider(clientID, clientSecret, redirectURI string, opts ...Option) *GitHubProvider {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	apiBaseURL := githubAPIBaseURL
	if o.apiBaseURL != "" {
		apiBaseURL = strings.TrimRight(o.apiBaseURL, "/")
	}

	return &GitHubProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     o.endpoint(github.Endpoint),
		},
		apiBaseURL: apiBaseURL,
		httpClient: o.httpClient,
	}
}

func (p *GitHubProvider) Name() Name {
	return GitHub
}

func (p *GitHubProvider) Issuer() string {
	return githubIssuer
}

// AuthURL generates the authorization URL with an S256 code challenge.
func (p *GitHubProvider) AuthURL(req AuthRequest) string {
	return p.config.AuthCodeURL(req.State,
		oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode redeems code and resolves the numeric GitHub user id.
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string, ex Exchange) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(ex.CodeVerifier))
	if err != nil {
		return nil, exchangeError("token request", err)
	}

	log.LogTraceWithFields("idp", "GitHub token exchanged", map[string]any{
		"provider":   string(GitHub),
		"token_type": token.TokenType,
	})

	user, err := p.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, exchangeError("user request", err)
	}

	// GitHub ids start at 1; zero is as unusable as a missing id.
	if user.ID == nil || *user.ID == 0 {
		log.LogWarnWithFields("idp", "GitHub user response has no usable id", map[string]any{
			"login": user.Login,
		})
		return &Identity{Provider: GitHub, Subject: UnknownSubject}, nil
	}

	return &Identity{
		Provider: GitHub,
		Subject:  strconv.FormatInt(*user.ID, 10),
	}, nil
}

func (p *GitHubProvider) fetchUser(ctx context.Context, accessToken string) (*githubUserResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	defer resp.Body.Close()

	log.LogTraceWithFields("idp", "GitHub user API responded", map[string]any{
		"status": resp.StatusCode,
	})

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user: status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 512))
	}

	var user githubUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &user, nil
}
