// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
)

// GCSArchiver uploads report artifacts to a GCS bucket.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is concurrency-safe.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	log    *slog.Logger
}

var _ Archiver = (*GCSArchiver)(nil)

// NewGCSArchiver creates an archiver for the configured bucket.
//
// # Inputs
//
//   - ctx: Context for client construction.
//   - cfg: Must have GCSBucket set. When GCSKeyFile is set it must point
//     at a readable service account key; otherwise application default
//     credentials are used.
//   - log: Logger. Nil falls back to slog.Default().
//
// # Outputs
//
//   - *GCSArchiver: Ready-to-use archiver. Close when done.
//   - error: Non-nil if archival is not configured or the client cannot
//     be created.
func NewGCSArchiver(ctx context.Context, cfg config.ReportsConfig, log *slog.Logger) (*GCSArchiver, error) {
	if !cfg.GCSEnabled() {
		return nil, errors.New("gcs archival is not configured")
	}
	if log == nil {
		log = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.GCSKeyFile != "" {
		if _, err := os.Stat(cfg.GCSKeyFile); err != nil {
			return nil, fmt.Errorf("gcs key file %s: %w", cfg.GCSKeyFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.GCSKeyFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: cfg.GCSBucket, log: log}, nil
}

// Archive uploads one artifact to the bucket.
func (a *GCSArchiver) Archive(ctx context.Context, objectName, contentType string, data []byte) error {
	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %s: %w", objectName, err)
	}
	a.log.Debug("Report archived", "bucket", a.bucket, "object", objectName)
	return nil
}

// Close releases the underlying client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}
