// Package config builds runtime configuration from environment variables so
// main stays lean. Secrets have no development defaults in production: a
// missing master key or signing key in a production environment is a startup
// failure, never a silent fallback.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	platformstrings "github.com/Mawilis/legal-doc-system-sub010/pkg/platform/strings"
)

const envProduction = "production"

// Config is the full runtime configuration.
type Config struct {
	Env  string
	Addr string

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string

	MasterKey           []byte
	KeyRotationInterval time.Duration
	JWTSigningKey       []byte

	DeadlineOverrides  map[workflow.ArtifactType]time.Duration
	DispatchMaxRetries int
	DispatchBackoff    time.Duration

	EscalationWebhookURL string
}

// IsProduction reports whether the service runs with production guarantees.
func (c Config) IsProduction() bool {
	return c.Env == envProduction
}

// FromEnv reads configuration from LEDGER_* environment variables. It returns
// an error instead of substituting defaults for secrets when the environment
// is production.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:  getEnv("LEDGER_ENV", "development"),
		Addr: getEnv("LEDGER_ADDR", ":8080"),

		DatabaseURL: os.Getenv("LEDGER_DATABASE_URL"),
		RedisURL:    os.Getenv("LEDGER_REDIS_URL"),
		KafkaTopic:  getEnv("LEDGER_KAFKA_TOPIC", "compliance.ledger"),

		EscalationWebhookURL: os.Getenv("LEDGER_ESCALATION_WEBHOOK_URL"),
	}

	if brokers := os.Getenv("LEDGER_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = platformstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}

	masterKey, err := secret("LEDGER_MASTER_KEY", cfg.Env, devMasterKey)
	if err != nil {
		return Config{}, err
	}
	decoded, err := hex.DecodeString(masterKey)
	if err != nil {
		return Config{}, fmt.Errorf("config: LEDGER_MASTER_KEY is not valid hex: %w", err)
	}
	cfg.MasterKey = decoded

	jwtKey, err := secret("LEDGER_JWT_SIGNING_KEY", cfg.Env, devJWTSigningKey)
	if err != nil {
		return Config{}, err
	}
	cfg.JWTSigningKey = []byte(jwtKey)

	cfg.KeyRotationInterval, err = duration("LEDGER_KEY_ROTATION_INTERVAL", 90*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.DispatchBackoff, err = duration("LEDGER_DISPATCH_BACKOFF_BASE", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.DispatchMaxRetries, err = integer("LEDGER_DISPATCH_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}

	cfg.DeadlineOverrides, err = deadlineOverrides()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Development-only fallbacks. Production must provide real values.
const (
	devMasterKey     = "6368616e676520746869732064657620656e6372797074696f6e206b65792121"
	devJWTSigningKey = "dev-signing-key-not-for-production"
)

func secret(name, env, devDefault string) (string, error) {
	value := os.Getenv(name)
	if value != "" {
		return value, nil
	}
	if env == envProduction {
		return "", fmt.Errorf("config: %s is required in production", name)
	}
	return devDefault, nil
}

func getEnv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func duration(name string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return parsed, nil
}

func integer(name string, fallback int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return parsed, nil
}

// deadlineOverrides reads LEDGER_DEADLINE_<TYPE> variables, one per artifact
// type, as Go durations.
func deadlineOverrides() (map[workflow.ArtifactType]time.Duration, error) {
	names := map[string]workflow.ArtifactType{
		"LEDGER_DEADLINE_ACCESS_REQUEST": workflow.TypeAccessRequest,
		"LEDGER_DEADLINE_CERTIFICATION":  workflow.TypeCertification,
		"LEDGER_DEADLINE_INCIDENT":       workflow.TypeIncident,
		"LEDGER_DEADLINE_NOTIFICATION":   workflow.TypeNotification,
	}
	overrides := make(map[workflow.ArtifactType]time.Duration)
	for name, kind := range names {
		value := os.Getenv(name)
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
		overrides[kind] = parsed
	}
	if len(overrides) == 0 {
		return nil, nil
	}
	return overrides, nil
}
