package envutil

import (
	"os"
	"strings"
)

// EnvVar names the deployment environment.
const EnvVar = "GENERATEUI_ENV"

// IsDev reports whether GENERATEUI_ENV selects development mode, where the
// signing secret may fall back to an insecure default.
func IsDev() bool {
	return IsDevValue(os.Getenv(EnvVar))
}

// IsDevValue applies the IsDev rule to an already-read value.
func IsDevValue(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}
