/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import "testing"

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("SAGA_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("SAGA_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("SAGA_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.GuideHorizonDays != 3 {
		t.Fatalf("unexpected default guide horizon: %d", cfg.GuideHorizonDays)
	}
	if cfg.PlaylogHorizonHours != 4 {
		t.Fatalf("unexpected default playlog horizon: %d", cfg.PlaylogHorizonHours)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("SAGA_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("SAGA_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("JWT_SIGNING_KEY", "legacy")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadEventBridgeSelection(t *testing.T) {
	t.Setenv("SAGA_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("SAGA_JWT_SIGNING_KEY", "supersecret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EventBridge != "none" {
		t.Fatalf("default event bridge = %q, want none", cfg.EventBridge)
	}

	// Legacy NATS toggle maps onto the bridge selector.
	t.Setenv("SAGA_NATS_ENABLED", "true")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EventBridge != "nats" {
		t.Fatalf("event bridge = %q, want nats", cfg.EventBridge)
	}

	t.Setenv("SAGA_EVENT_BRIDGE", "redis")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EventBridge != "redis" {
		t.Fatalf("event bridge = %q, want redis", cfg.EventBridge)
	}

	t.Setenv("SAGA_EVENT_BRIDGE", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail with an unknown event bridge")
	}
}

func TestLoadRejectsInvalidHorizons(t *testing.T) {
	t.Setenv("SAGA_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("SAGA_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("SAGA_GUIDE_HORIZON_DAYS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail with a zero guide horizon")
	}
}

func TestLoadRejectsS3ExportWithoutBucket(t *testing.T) {
	t.Setenv("SAGA_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("SAGA_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("SAGA_GUIDE_EXPORT_BACKEND", "s3")
	t.Setenv("SAGA_S3_BUCKET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load to fail when s3 export has no bucket")
	}

	t.Setenv("SAGA_S3_BUCKET", "saga-guide")
	if _, err := Load(); err != nil {
		t.Fatalf("expected config load with bucket to succeed: %v", err)
	}
}
