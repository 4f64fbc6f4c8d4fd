package server

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/generateui-api/internal/idp"
	"github.com/dgellow/generateui-api/internal/log"
)

//go:embed templates/login.html
var loginPageTemplateHTML string

var loginPageTemplate = template.Must(template.New("login").Parse(loginPageTemplateHTML))

// LoginPageData represents the data for the login page
type LoginPageData struct {
	Providers []LoginProviderData
}

// LoginProviderData is one provider button. URL is "#" until both the
// redirect target and API base are known.
type LoginProviderData struct {
	ID          string
	DisplayName string
	URL         string
}

// newLoginPageData builds the provider links from the redirect_uri and
// api_base query parameters the CLI opens the page with.
func newLoginPageData(query url.Values) LoginPageData {
	redirectURI := query.Get("redirect_uri")
	apiBase := strings.TrimRight(query.Get("api_base"), "/")
	if !isHTTPBase(apiBase) {
		apiBase = ""
	}

	data := LoginPageData{}
	for _, name := range idp.Names {
		link := "#"
		if redirectURI != "" && apiBase != "" {
			link = apiBase + "/auth/" + string(name) + "?redirect_uri=" + url.QueryEscape(redirectURI)
		}
		data.Providers = append(data.Providers, LoginProviderData{
			ID:          string(name),
			DisplayName: name.DisplayName(),
			URL:         link,
		})
	}
	return data
}

func isHTTPBase(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// LoginPageHandler serves GET /
func LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := loginPageTemplate.Execute(&buf, newLoginPageData(r.URL.Query())); err != nil {
		log.LogError("Failed to render login page: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
