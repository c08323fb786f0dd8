/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/saga_tv/internal/config"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("object not found")

// ObjectStore abstracts object storage for guide exports and other
// generated artifacts.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// NewFromConfig builds the object store named by cfg.GuideExportBackend.
func NewFromConfig(cfg *config.Config, logger zerolog.Logger) (ObjectStore, error) {
	switch cfg.GuideExportBackend {
	case "fs":
		return NewFSStore(cfg.GuideExportRoot, logger)
	case "s3":
		return NewS3Store(S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown guide export backend: %s", cfg.GuideExportBackend)
	}
}
