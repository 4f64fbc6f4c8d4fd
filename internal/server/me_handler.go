package server

import (
	"net/http"

	jsonwriter "github.com/dgellow/generateui-api/internal/json"
	"github.com/dgellow/generateui-api/internal/log"
	"github.com/dgellow/generateui-api/internal/sessiontoken"
)

// Features are the same for every plan for now.
type Features struct {
	IntelligentGeneration bool `json:"intelligentGeneration"`
	SafeRegeneration      bool `json:"safeRegeneration"`
	UIOverrides           bool `json:"uiOverrides"`
	MaxGenerations        int  `json:"maxGenerations"`
}

// MeResponse is the body of GET /me.
type MeResponse struct {
	Plan     sessiontoken.Plan `json:"plan"`
	Features Features          `json:"features"`
}

var defaultFeatures = Features{
	IntelligentGeneration: true,
	SafeRegeneration:      true,
	UIOverrides:           true,
	MaxGenerations:        -1,
}

// MeHandler reports the entitlements of the bearer of a session token.
type MeHandler struct {
	sessions *sessiontoken.Issuer
}

func NewMeHandler(sessions *sessiontoken.Issuer) *MeHandler {
	return &MeHandler{sessions: sessions}
}

func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		jsonwriter.WriteUnauthorized(w, "missing token")
		return
	}

	claims, err := h.sessions.Verify(token)
	if err != nil {
		log.LogDebugWithFields("me", "Rejected session token", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteUnauthorized(w, "invalid token")
		return
	}

	plan := sessiontoken.PlanDev
	if claims.Plan == sessiontoken.PlanFree {
		plan = sessiontoken.PlanFree
	}

	_ = jsonwriter.Write(w, MeResponse{Plan: plan, Features: defaultFeatures})
}
