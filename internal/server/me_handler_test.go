package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/generateui-api/internal/crypto"
	"github.com/dgellow/generateui-api/internal/sessiontoken"
)

func meRequest(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMeHandler_Plans(t *testing.T) {
	issuer := testIssuer()
	h := NewMeHandler(issuer)

	tests := []struct {
		name     string
		plan     sessiontoken.Plan
		wantPlan sessiontoken.Plan
	}{
		{"dev", sessiontoken.PlanDev, sessiontoken.PlanDev},
		{"free", sessiontoken.PlanFree, sessiontoken.PlanFree},
		{"no plan claim", "", sessiontoken.PlanDev},
		{"unrecognised plan", "enterprise", sessiontoken.PlanDev},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := issuer.Issue("github:1", tt.plan)
			require.NoError(t, err)

			w := meRequest(h, "Bearer "+tok.Value)
			require.Equal(t, http.StatusOK, w.Code)

			var resp MeResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantPlan, resp.Plan)
			assert.Equal(t, defaultFeatures, resp.Features)
		})
	}
}

func TestMeHandler_WireShape(t *testing.T) {
	issuer := testIssuer()
	tok, err := issuer.Issue("google:abc", sessiontoken.PlanDev)
	require.NoError(t, err)

	w := meRequest(NewMeHandler(issuer), "Bearer "+tok.Value)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"plan":"dev","features":{"intelligentGeneration":true,"safeRegeneration":true,"uiOverrides":true,"maxGenerations":-1}}`, w.Body.String())
}

func TestMeHandler_Rejections(t *testing.T) {
	issuer := testIssuer()
	valid, err := issuer.Issue("github:1", sessiontoken.PlanDev)
	require.NoError(t, err)

	otherKey := sessiontoken.NewIssuer(crypto.NewSigner([]byte("another-secret")), sessiontoken.WithClock(func() time.Time { return testNow }))
	foreign, err := otherKey.Issue("github:1", sessiontoken.PlanDev)
	require.NoError(t, err)

	// Issued 31 days before testNow with the standard lifetime.
	stale := sessiontoken.NewIssuer(testSigner(), sessiontoken.WithClock(func() time.Time {
		return testNow.Add(-31 * 24 * time.Hour)
	}))
	expired, err := stale.Issue("github:1", sessiontoken.PlanDev)
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		wantError     string
	}{
		{"no header", "", "missing token"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "missing token"},
		{"lowercase bearer", "bearer " + valid.Value, "missing token"},
		{"empty bearer", "Bearer ", "missing token"},
		{"garbage", "Bearer not.a.token", "invalid token"},
		{"two segments", "Bearer abc.def", "invalid token"},
		{"other secret", "Bearer " + foreign.Value, "invalid token"},
		{"issued 31 days ago", "Bearer " + expired.Value, "invalid token"},
	}

	h := NewMeHandler(issuer)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := meRequest(h, tt.authorization)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.wantError, errorBody(t, w))
		})
	}
}
