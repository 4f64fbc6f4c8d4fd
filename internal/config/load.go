package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dgellow/generateui-api/internal/envutil"
	"github.com/dgellow/generateui-api/internal/log"
)

// Load fills the process environment, then parses and validates it into a
// Config.
func Load(ctx context.Context) (Config, error) {
	LoadEnvironment(ctx)

	config, err := Parse()
	if err != nil {
		return Config{}, err
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// LoadEnvironment fills the process environment from AWS Secrets Manager
// (when configured) and a .env file. Variables already set are kept.
func LoadEnvironment(ctx context.Context) {
	if err := loadAWSSecretsIntoEnv(ctx); err != nil {
		log.LogWarn("Skipping AWS Secrets Manager load: %v", err)
	}
	loadDotEnv(".env")
}

// Parse reads the current environment into a Config and applies derived
// defaults. It does not validate.
func Parse() (Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	applyDefaults(&config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.APIBaseURL == "" {
		config.APIBaseURL = "http://localhost:" + strconv.Itoa(config.Port)
	}
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")

	if config.JWTSecret == "" && envutil.IsDevValue(config.Environment) {
		log.LogWarn("GENERATEUI_JWT_SECRET is not set, using the insecure development secret")
		config.JWTSecret = DefaultJWTSecret
	}

	if config.Storage.Backend == "" {
		if config.Storage.DatabaseURL != "" {
			config.Storage.Backend = StoragePostgres
		} else {
			config.Storage.Backend = StorageMemory
		}
	}
}

func loadDotEnv(defaultEnvPath string) {
	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = defaultEnvPath
	}

	if err := godotenv.Load(envFile); err != nil {
		// Not an error in containers where the environment is injected
		log.LogDebug("No .env file loaded from %s: %v", envFile, err)
		return
	}
	log.Logf("Loaded environment from %s", envFile)
}

// loadAWSSecretsIntoEnv copies the key/value pairs of a JSON secret into the
// process environment. Existing variables win unless
// AWS_SECRETS_MANAGER_OVERWRITE=true.
func loadAWSSecretsIntoEnv(ctx context.Context) error {
	secretID := os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID")
	if secretID == "" {
		return nil
	}

	region := os.Getenv("AWS_SECRETS_MANAGER_REGION")
	versionStage := os.Getenv("AWS_SECRETS_MANAGER_VERSION_STAGE")
	if versionStage == "" {
		versionStage = "AWSCURRENT"
	}
	overwrite := strings.EqualFold(os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE"), "true")

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(versionStage),
	})
	if err != nil {
		return fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload []byte
	switch {
	case output.SecretString != nil:
		payload = []byte(*output.SecretString)
	case len(output.SecretBinary) > 0:
		payload = output.SecretBinary
	default:
		return fmt.Errorf("secret %s has no payload", secretID)
	}

	applied, err := applySecretPayload(payload, overwrite)
	if err != nil {
		return fmt.Errorf("secret %s: %w", secretID, err)
	}

	log.LogInfoWithFields("config", "Loaded environment from AWS Secrets Manager", map[string]any{
		"secret_id": secretID,
		"applied":   applied,
		"overwrite": overwrite,
	})
	return nil
}

func applySecretPayload(payload []byte, overwrite bool) (int, error) {
	var kv map[string]any
	if err := json.Unmarshal(payload, &kv); err != nil {
		return 0, fmt.Errorf("parsing secret as JSON: %w", err)
	}

	applied := 0
	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting env %s: %w", key, err)
		}
		applied++
	}
	return applied, nil
}
