package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Config reads so tests start from defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "API_BASE_URL", "GENERATEUI_ENV", "GENERATEUI_JWT_SECRET",
		"GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET", "GITHUB_AUTH_URL", "GITHUB_TOKEN_URL", "GITHUB_API_URL",
		"GOOGLE_AUTH_URL", "GOOGLE_TOKEN_URL",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_VERIFY_ID_TOKEN", "GOOGLE_JWKS_URL",
		"PROVIDER_TIMEOUT", "SHUTDOWN_TIMEOUT", "ALLOWED_ORIGINS",
		"GEOIP_URL", "GEOIP_TIMEOUT", "GEOIP_ENABLED",
		"STORAGE", "DATABASE_URL", "GCP_PROJECT",
		"FIRESTORE_DATABASE", "FIRESTORE_COLLECTION", "FIRESTORE_CREDENTIALS_FILE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.APIBaseURL)
	assert.Equal(t, Secret(""), cfg.JWTSecret)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "https://ipapi.co", cfg.GeoIP.URL)
	assert.Equal(t, 1500*time.Millisecond, cfg.GeoIP.Timeout)
	assert.True(t, cfg.GeoIP.Enabled)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, "telemetry_events", cfg.Storage.FirestoreCollection)
	assert.False(t, cfg.Google.VerifyIDToken)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestParse_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("API_BASE_URL", "https://api.generateui.dev/")
	t.Setenv("GENERATEUI_JWT_SECRET", "a-very-long-production-secret-value-123")
	t.Setenv("GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("GOOGLE_CLIENT_ID", "g-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "g-secret")
	t.Setenv("GOOGLE_VERIFY_ID_TOKEN", "true")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://api.generateui.dev", cfg.APIBaseURL)
	assert.Equal(t, ProviderConfig{ClientID: "gh-id", ClientSecret: "gh-secret"}, cfg.GitHub.ProviderConfig)
	assert.Equal(t, "g-id", cfg.Google.ClientID)
	assert.Equal(t, Secret("g-secret"), cfg.Google.ClientSecret)
	assert.True(t, cfg.Google.VerifyIDToken)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, StoragePostgres, cfg.Storage.Backend)
}

func TestParse_EndpointOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_AUTH_URL", "http://127.0.0.1:9000/login/oauth/authorize")
	t.Setenv("GITHUB_TOKEN_URL", "http://127.0.0.1:9000/login/oauth/access_token")
	t.Setenv("GITHUB_API_URL", "http://127.0.0.1:9000/api")
	t.Setenv("GOOGLE_TOKEN_URL", "http://127.0.0.1:9001/token")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000/login/oauth/authorize", cfg.GitHub.AuthURL)
	assert.Equal(t, "http://127.0.0.1:9000/login/oauth/access_token", cfg.GitHub.TokenURL)
	assert.Equal(t, "http://127.0.0.1:9000/api", cfg.GitHub.APIURL)
	assert.Empty(t, cfg.Google.AuthURL)
	assert.Equal(t, "http://127.0.0.1:9001/token", cfg.Google.TokenURL)
}

func TestParse_DevelopmentSecretFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATEUI_ENV", "development")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, DefaultJWTSecret, cfg.JWTSecret)
	require.NoError(t, ValidateConfig(&cfg))
}

func TestParse_ProductionRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATEUI_ENV", "production")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, Secret(""), cfg.JWTSecret)

	err = ValidateConfig(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENERATEUI_JWT_SECRET")
}

func TestParse_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVIDER_TIMEOUT", "soon")

	_, err := Parse()
	assert.Error(t, err)
}

func TestApplySecretPayload(t *testing.T) {
	t.Setenv("GENERATEUI_TEST_EXISTING", "kept")
	t.Setenv("GENERATEUI_TEST_NEW", "")
	os.Unsetenv("GENERATEUI_TEST_NEW")

	applied, err := applySecretPayload([]byte(`{"GENERATEUI_TEST_EXISTING":"replaced","GENERATEUI_TEST_NEW":42}`), false)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, "kept", os.Getenv("GENERATEUI_TEST_EXISTING"))
	assert.Equal(t, "42", os.Getenv("GENERATEUI_TEST_NEW"))

	applied, err = applySecretPayload([]byte(`{"GENERATEUI_TEST_EXISTING":"replaced"}`), true)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, "replaced", os.Getenv("GENERATEUI_TEST_EXISTING"))

	_, err = applySecretPayload([]byte(`not json`), true)
	assert.Error(t, err)
}

func TestLoadAWSSecretsIntoEnv_SkipsWithoutSecretID(t *testing.T) {
	t.Setenv("AWS_SECRETS_MANAGER_SECRET_ID", "")
	assert.NoError(t, loadAWSSecretsIntoEnv(t.Context()))
}
