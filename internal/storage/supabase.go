package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aldoetobex/bufete-backend/pkg/config"
)

/*
Supabase wraps minimal calls to Supabase Storage REST API.

Notes on authorization:
- A legacy service_role JWT needs both `apikey` and `Authorization: Bearer <token>`.
- A Secret API Key (sb_secret_...) that is NOT a JWT only needs `apikey` in some setups.
*/
type Supabase struct {
	baseURL string // e.g. https://<project>.supabase.co
	apiKey  string // service_role JWT or secret API key
	bucket  string
	client  *http.Client
}

func NewSupabase(cfg config.SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" || cfg.Key == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("supabase url, key and bucket are required")
	}
	return &Supabase{
		baseURL: cfg.URL,
		apiKey:  cfg.Key,
		bucket:  cfg.Bucket,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *Supabase) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	return req, nil
}

// Store uploads a new object: POST /storage/v1/object/{bucket}/{objectName}
func (s *Supabase) Store(ctx context.Context, key string, r io.Reader, contentType string, size int64) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)

	req, err := s.newRequest(ctx, http.MethodPost, url, r)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if size > 0 {
		req.ContentLength = size
	}

	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("supabase upload error: %s | %s", res.Status, string(body))
	}
	return key, nil
}

// SignedURL creates a short-lived signed URL:
// POST /storage/v1/object/sign/{bucket}/{objectName}  body: {"expiresIn": <seconds>}
func (s *Supabase) SignedURL(ctx context.Context, storagePath string, ttl time.Duration) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, s.bucket, storagePath)

	body, _ := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})
	req, err := s.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("supabase sign error: %s | %s", res.Status, string(b))
	}

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signedURL in response")
	}

	// API returns a relative path
	return s.baseURL + "/storage/v1" + out.SignedURL, nil
}

// Delete removes an object: DELETE /storage/v1/object/{bucket}/{objectName}
// 404 counts as success (already deleted).
func (s *Supabase) Delete(ctx context.Context, storagePath string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, storagePath)

	req, err := s.newRequest(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("supabase delete error: %s | %s", res.Status, string(b))
	}
	return nil
}
