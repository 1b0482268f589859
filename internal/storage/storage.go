// Package storage keeps document bytes outside the database. Only the
// returned storage path is recorded with the document metadata.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/bufete-backend/pkg/config"
)

// FileStorage is implemented by every backend.
type FileStorage interface {
	// Store writes r under key and returns the path to record.
	Store(ctx context.Context, key string, r io.Reader, contentType string, size int64) (string, error)
	// SignedURL returns a short-lived download link for a stored path.
	SignedURL(ctx context.Context, storagePath string, ttl time.Duration) (string, error)
	// Delete removes a stored path; a missing object is not an error.
	Delete(ctx context.Context, storagePath string) error
}

// ObjectKey builds a per-case key: case/<caseID>/<uuid>_<filename>.
// The random prefix keeps every version of the same filename apart.
func ObjectKey(caseID uuid.UUID, filename string) string {
	name := strings.ReplaceAll(filepath.Base(filename), " ", "_")
	return path.Join("case", caseID.String(), uuid.NewString()+"_"+name)
}

// ContentType falls back to the extension when the client sent none.
func ContentType(filename, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// New builds the configured backend. Remote backends sit behind a circuit breaker.
func New(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (FileStorage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocal(cfg.LocalPath)
	case "s3":
		s3, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewBreaker("s3", s3, cfg.BreakerErrors, cfg.BreakerReset, log), nil
	case "supabase":
		sb, err := NewSupabase(cfg.Supabase)
		if err != nil {
			return nil, err
		}
		return NewBreaker("supabase", sb, cfg.BreakerErrors, cfg.BreakerReset, log), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
