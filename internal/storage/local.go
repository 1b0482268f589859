package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aldoetobex/bufete-backend/internal/metrics"
)

// Local stores files under a base directory. Meant for development.
type Local struct {
	basePath string
}

// NewLocal creates the base directory when missing.
func NewLocal(basePath string) (*Local, error) {
	if basePath == "" {
		basePath = "./uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

func (s *Local) Store(ctx context.Context, key string, r io.Reader, _ string, _ int64) (path string, err error) {
	start := time.Now()
	defer func() {
		metrics.StorageOps.WithLabelValues("local", "store", metrics.Outcome(err)).Inc()
		metrics.StorageLatency.WithLabelValues("local", "store").Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return key, nil
}

// SignedURL returns a file URL carrying the expiry; local files are not access controlled.
func (s *Local) SignedURL(_ context.Context, storagePath string, ttl time.Duration) (string, error) {
	fullPath, err := filepath.Abs(filepath.Join(s.basePath, filepath.FromSlash(storagePath)))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(fullPath); err != nil {
		return "", fmt.Errorf("file not found: %s", storagePath)
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(fullPath),
		RawQuery: "expires=" + strconv.FormatInt(time.Now().Add(ttl).Unix(), 10),
	}
	return u.String(), nil
}

func (s *Local) Delete(_ context.Context, storagePath string) error {
	err := os.Remove(filepath.Join(s.basePath, filepath.FromSlash(storagePath)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
