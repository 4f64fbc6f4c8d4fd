package config

import (
	"fmt"
	"net/url"

	"github.com/dgellow/generateui-api/internal/envutil"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateConfig returns the first validation error, if any
func ValidateConfig(config *Config) error {
	result := Validate(config)
	if !result.IsValid() {
		return result.Errors[0]
	}
	return nil
}

// Validate checks a parsed Config and reports every problem found
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}
	dev := envutil.IsDevValue(config.Environment)

	if config.Port <= 0 || config.Port > 65535 {
		result.addError("PORT", "must be between 1 and 65535, got %d", config.Port)
	}

	if u, err := url.Parse(config.APIBaseURL); err != nil || !u.IsAbs() || u.Host == "" {
		result.addError("API_BASE_URL", "must be an absolute URL, got %q", config.APIBaseURL)
	}

	switch {
	case config.JWTSecret == "":
		result.addError("GENERATEUI_JWT_SECRET", "is required outside development mode")
	case config.JWTSecret == DefaultJWTSecret && !dev:
		result.addError("GENERATEUI_JWT_SECRET", "the development default cannot be used outside development mode")
	case config.JWTSecret == DefaultJWTSecret:
		result.addWarning("GENERATEUI_JWT_SECRET", "using the insecure development default")
	case len(config.JWTSecret) < 32:
		result.addWarning("GENERATEUI_JWT_SECRET", "shorter than 32 bytes")
	}

	checkProvider(result, "GITHUB", config.GitHub.ProviderConfig)
	checkOptionalURL(result, "GITHUB_API_URL", config.GitHub.APIURL)
	checkProvider(result, "GOOGLE", config.Google.ProviderConfig)
	if !config.GitHub.Configured() && !config.Google.Configured() {
		result.addWarning("", "no identity provider is configured, every login will fail")
	}
	if config.Google.JWKSURL != "" && !config.Google.VerifyIDToken {
		result.addWarning("GOOGLE_JWKS_URL", "ignored unless GOOGLE_VERIFY_ID_TOKEN=true")
	}

	if config.ProviderTimeout <= 0 {
		result.addError("PROVIDER_TIMEOUT", "must be positive")
	}
	if config.ShutdownTimeout <= 0 {
		result.addError("SHUTDOWN_TIMEOUT", "must be positive")
	}
	if config.GeoIP.Enabled && config.GeoIP.Timeout <= 0 {
		result.addError("GEOIP_TIMEOUT", "must be positive")
	}

	switch config.Storage.Backend {
	case StorageMemory:
		if !dev {
			result.addWarning("STORAGE", "memory storage loses telemetry on restart")
		}
	case StoragePostgres:
		if config.Storage.DatabaseURL == "" {
			result.addError("DATABASE_URL", "is required when STORAGE=postgres")
		}
	case StorageFirestore:
		if config.Storage.GCPProject == "" {
			result.addError("GCP_PROJECT", "is required when STORAGE=firestore")
		}
		if config.Storage.FirestoreCollection == "" {
			result.addError("FIRESTORE_COLLECTION", "must not be empty")
		}
	default:
		result.addError("STORAGE", "unsupported backend %q, must be memory, postgres or firestore", config.Storage.Backend)
	}

	return result
}

func checkProvider(result *ValidationResult, prefix string, p ProviderConfig) {
	checkOptionalURL(result, prefix+"_AUTH_URL", p.AuthURL)
	checkOptionalURL(result, prefix+"_TOKEN_URL", p.TokenURL)

	switch {
	case p.ClientID != "" && p.ClientSecret == "":
		result.addWarning(prefix+"_CLIENT_SECRET", "client id set without secret, provider disabled")
	case p.ClientID == "" && p.ClientSecret != "":
		result.addWarning(prefix+"_CLIENT_ID", "client secret set without id, provider disabled")
	}
}

func checkOptionalURL(result *ValidationResult, path, raw string) {
	if raw == "" {
		return
	}
	if u, err := url.Parse(raw); err != nil || !u.IsAbs() || u.Host == "" {
		result.addError(path, "must be an absolute URL, got %q", raw)
	}
}
