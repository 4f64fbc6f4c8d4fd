package config

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// LogValue keeps the secret out of structured log attributes.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// DefaultJWTSecret is accepted only in development mode.
const DefaultJWTSecret Secret = "dev-secret-change-in-production"

// StorageBackend selects where telemetry events are written.
type StorageBackend string

const (
	StorageMemory    StorageBackend = "memory"
	StoragePostgres  StorageBackend = "postgres"
	StorageFirestore StorageBackend = "firestore"
)

// ProviderConfig holds one OAuth client registration. AuthURL and TokenURL
// replace the provider's public endpoints when set.
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret Secret `env:"CLIENT_SECRET"`
	AuthURL      string `env:"AUTH_URL"`
	TokenURL     string `env:"TOKEN_URL"`
}

// GitHubConfig adds the REST API host used for the user lookup.
type GitHubConfig struct {
	ProviderConfig
	APIURL string `env:"API_URL"`
}

// Configured reports whether both halves of the client credential are set.
func (p ProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// GoogleConfig extends ProviderConfig with ID token verification settings.
type GoogleConfig struct {
	ProviderConfig
	VerifyIDToken bool   `env:"VERIFY_ID_TOKEN" envDefault:"false"`
	JWKSURL       string `env:"JWKS_URL"`
}

type GeoIPConfig struct {
	URL     string        `env:"GEOIP_URL" envDefault:"https://ipapi.co"`
	Timeout time.Duration `env:"GEOIP_TIMEOUT" envDefault:"1500ms"`
	Enabled bool          `env:"GEOIP_ENABLED" envDefault:"true"`
}

type StorageConfig struct {
	Backend                  StorageBackend `env:"STORAGE"`
	DatabaseURL              Secret         `env:"DATABASE_URL"`
	GCPProject               string         `env:"GCP_PROJECT"`
	FirestoreDatabase        string         `env:"FIRESTORE_DATABASE"`
	FirestoreCollection      string         `env:"FIRESTORE_COLLECTION" envDefault:"telemetry_events"`
	FirestoreCredentialsFile string         `env:"FIRESTORE_CREDENTIALS_FILE"`
}

// Config is the complete runtime configuration, read from the environment.
type Config struct {
	Port        int    `env:"PORT" envDefault:"3000"`
	APIBaseURL  string `env:"API_BASE_URL"`
	Environment string `env:"GENERATEUI_ENV"`
	JWTSecret   Secret `env:"GENERATEUI_JWT_SECRET"`

	GitHub GitHubConfig `envPrefix:"GITHUB_"`
	Google GoogleConfig `envPrefix:"GOOGLE_"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:","`

	GeoIP   GeoIPConfig
	Storage StorageConfig
}
