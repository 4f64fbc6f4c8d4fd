package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const fakeGitHubUserID = 12345

// FakeGitHubServer simulates GitHub's OAuth and API endpoints for integration testing.
// Codes are single use and bound to the PKCE challenge sent to /login/oauth/authorize.
type FakeGitHubServer struct {
	server *http.Server
	port   string

	mu         sync.Mutex
	challenges map[string]string
	nextCode   int
}

// NewFakeGitHubServer creates a new fake GitHub server.
func NewFakeGitHubServer(port string) *FakeGitHubServer {
	s := &FakeGitHubServer{
		port:       port,
		challenges: make(map[string]string),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/login/oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
			http.Error(w, "PKCE required", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.nextCode++
		code := "github-test-code-" + strconv.Itoa(s.nextCode)
		s.challenges[code] = q.Get("code_challenge")
		s.mu.Unlock()

		target, err := url.Parse(q.Get("redirect_uri"))
		if err != nil {
			http.Error(w, "Invalid redirect_uri", http.StatusBadRequest)
			return
		}
		params := url.Values{"code": {code}, "state": {q.Get("state")}}
		target.RawQuery = params.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	})

	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		code := r.FormValue("code")
		s.mu.Lock()
		challenge, ok := s.challenges[code]
		delete(s.challenges, code)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok || oauth2.S256ChallengeFromVerifier(r.FormValue("code_verifier")) != challenge {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "bad_verification_code",
				"error_description": "Invalid authorization code",
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "github-test-token",
			"token_type":   "bearer",
			"scope":        "read:user,user:email",
		})
	})

	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer github-test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    fakeGitHubUserID,
			"login": "testuser",
			"name":  "Test User",
		})
	})

	s.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return s
}

// Start starts the fake GitHub server
func (s *FakeGitHubServer) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop stops the fake GitHub server
func (s *FakeGitHubServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
