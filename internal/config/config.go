/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	BaseURL       string // Public base URL (e.g., http://192.168.195.6:8080)
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	MetricsBind   string

	// Horizon configuration. The orchestrator keeps GuideHorizonDays of
	// resolved guide and PlaylogHorizonHours of emitted playlog ahead of
	// the channel clock.
	GuideHorizonDays   int
	PlaylogHorizonHours int
	HorizonTickSeconds  int

	// Guide export destination: "fs" writes below GuideExportRoot, "s3"
	// uploads into the configured bucket.
	GuideExportBackend string
	GuideExportRoot    string

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN/CloudFront URL
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Event bus bridge: "none", "nats" or "redis". NATSEnabled is the
	// legacy toggle and maps to "nats" when EventBridge is unset.
	EventBridge string
	NATSEnabled bool
	NATSURL     string

	// SMTP alerting on resolution failures and horizon shortfall
	SMTPEnabled bool
	SMTPAddr    string
	SMTPFrom    string
	SMTPTo      []string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the
// result. A .env file in the working directory is merged in first when
// present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:   getEnvAny([]string{"SAGA_ENV", "STV_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"SAGA_HTTP_BIND", "STV_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"SAGA_HTTP_PORT", "STV_HTTP_PORT"}, 8080),
		BaseURL:       getEnvAny([]string{"SAGA_BASE_URL", "STV_BASE_URL"}, ""),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"SAGA_DB_BACKEND", "STV_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"SAGA_DB_DSN", "STV_DB_DSN"}, ""),
		JWTSigningKey: getEnvAny([]string{"SAGA_JWT_SIGNING_KEY", "STV_JWT_SIGNING_KEY"}, ""),
		MetricsBind:   getEnvAny([]string{"SAGA_METRICS_BIND", "STV_METRICS_BIND"}, "127.0.0.1:9000"),

		GuideHorizonDays:    getEnvIntAny([]string{"SAGA_GUIDE_HORIZON_DAYS", "STV_GUIDE_HORIZON_DAYS"}, 3),
		PlaylogHorizonHours: getEnvIntAny([]string{"SAGA_PLAYLOG_HORIZON_HOURS", "STV_PLAYLOG_HORIZON_HOURS"}, 4),
		HorizonTickSeconds:  getEnvIntAny([]string{"SAGA_HORIZON_TICK_SECONDS", "STV_HORIZON_TICK_SECONDS"}, 30),

		GuideExportBackend: getEnvAny([]string{"SAGA_GUIDE_EXPORT_BACKEND", "STV_GUIDE_EXPORT_BACKEND"}, "fs"),
		GuideExportRoot:    getEnvAny([]string{"SAGA_GUIDE_EXPORT_ROOT", "STV_GUIDE_EXPORT_ROOT"}, "./guide"),

		// S3 Object Storage configuration
		S3AccessKeyID:     getEnvAny([]string{"SAGA_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SAGA_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SAGA_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"SAGA_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"SAGA_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"SAGA_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"SAGA_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		// Tracing configuration
		TracingEnabled:    getEnvBoolAny([]string{"SAGA_TRACING_ENABLED", "STV_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SAGA_OTLP_ENDPOINT", "STV_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SAGA_TRACING_SAMPLE_RATE", "STV_TRACING_SAMPLE_RATE"}, 1.0),

		// Multi-instance configuration
		LeaderElectionEnabled: getEnvBoolAny([]string{"SAGA_LEADER_ELECTION_ENABLED", "STV_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"SAGA_REDIS_ADDR", "STV_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"SAGA_REDIS_PASSWORD", "STV_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"SAGA_REDIS_DB", "STV_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"SAGA_INSTANCE_ID", "STV_INSTANCE_ID"}, ""),

		// Event bus bridge
		EventBridge: getEnvAny([]string{"SAGA_EVENT_BRIDGE", "STV_EVENT_BRIDGE"}, ""),
		NATSEnabled: getEnvBoolAny([]string{"SAGA_NATS_ENABLED", "STV_NATS_ENABLED"}, false),
		NATSURL:     getEnvAny([]string{"SAGA_NATS_URL", "STV_NATS_URL"}, "nats://localhost:4222"),

		// SMTP alerting
		SMTPEnabled: getEnvBoolAny([]string{"SAGA_SMTP_ENABLED", "STV_SMTP_ENABLED"}, false),
		SMTPAddr:    getEnvAny([]string{"SAGA_SMTP_ADDR", "STV_SMTP_ADDR"}, "localhost:25"),
		SMTPFrom:    getEnvAny([]string{"SAGA_SMTP_FROM", "STV_SMTP_FROM"}, "sagatv@localhost"),
		SMTPTo:      splitList(getEnvAny([]string{"SAGA_SMTP_TO", "STV_SMTP_TO"}, "")),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SAGA_DB_DSN or STV_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SAGA_JWT_SIGNING_KEY or STV_JWT_SIGNING_KEY must be provided")
	}

	if cfg.GuideHorizonDays < 1 {
		return nil, fmt.Errorf("SAGA_GUIDE_HORIZON_DAYS must be at least 1")
	}
	if cfg.PlaylogHorizonHours < 1 {
		return nil, fmt.Errorf("SAGA_PLAYLOG_HORIZON_HOURS must be at least 1")
	}

	if cfg.GuideExportBackend != "fs" && cfg.GuideExportBackend != "s3" {
		return nil, fmt.Errorf("unsupported guide export backend %q", cfg.GuideExportBackend)
	}
	if cfg.GuideExportBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("SAGA_S3_BUCKET must be set when the guide export backend is s3")
	}

	switch cfg.EventBridge {
	case "":
		if cfg.NATSEnabled {
			cfg.EventBridge = "nats"
		} else {
			cfg.EventBridge = "none"
		}
	case "none", "nats", "redis":
	default:
		return nil, fmt.Errorf("unsupported event bridge %q", cfg.EventBridge)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.SMTPEnabled && len(cfg.SMTPTo) == 0 {
			return nil, fmt.Errorf("SAGA_SMTP_TO must list at least one recipient when SMTP alerting is enabled in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":             "use SAGA_ENV (or STV_ENV)",
		"LEADER_ELECTION_ENABLED": "use SAGA_LEADER_ELECTION_ENABLED",
		"JWT_SIGNING_KEY":         "use SAGA_JWT_SIGNING_KEY (or STV_JWT_SIGNING_KEY)",
		"TRACING_ENABLED":         "use SAGA_TRACING_ENABLED (or STV_TRACING_ENABLED)",
		"OTLP_ENDPOINT":           "use SAGA_OTLP_ENDPOINT (or STV_OTLP_ENDPOINT)",
		"TRACING_SAMPLE_RATE":     "use SAGA_TRACING_SAMPLE_RATE (or STV_TRACING_SAMPLE_RATE)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
