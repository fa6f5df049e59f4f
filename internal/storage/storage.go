// Package storage archives finished runs to Supabase Storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	// Per attempt; final videos can be a few hundred MB.
	requestTimeout = 10 * time.Minute

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	baseDelay  time.Duration
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		baseDelay:  baseRetryDelay,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// ArchivePath is the object key for a run artifact: <channel>/<run id>/<name>.
func ArchivePath(channel, runID, name string) string {
	return path.Join(channel, runID, name)
}

// ArchiveRun uploads each local file under <channel>/<run id>/ and returns the
// object keys in the same order.
func (s *Storage) ArchiveRun(ctx context.Context, channel, runID string, localPaths []string) ([]string, error) {
	keys := make([]string, 0, len(localPaths))
	for _, local := range localPaths {
		key := ArchivePath(channel, runID, filepath.Base(local))
		if err := s.UploadFile(ctx, key, local); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	log.Printf("[Storage] Archived %d files under %s/%s", len(keys), channel, runID)
	return keys, nil
}

// UploadFile uploads a local file, guessing the content type from its extension.
func (s *Storage) UploadFile(ctx context.Context, storagePath, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", localPath, err)
	}
	return s.Upload(ctx, storagePath, data, contentTypeFor(localPath))
}

// Upload PUTs data with x-upsert so re-archiving a run overwrites it.
func (s *Storage) Upload(ctx context.Context, storagePath string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, storagePath)

	_, err := s.do(ctx, "upload "+storagePath, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.ContentLength = int64(len(data))
		req.Header.Set("x-upsert", "true")
		return req, nil
	})
	return err
}

// GetPublicURL returns the public URL for an object in a public bucket.
func (s *Storage) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, storagePath)
}

// GetSignedURL creates a URL valid for expiresIn seconds.
func (s *Storage) GetSignedURL(ctx context.Context, storagePath string, expiresIn int) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.Bucket, storagePath)
	payload, err := json.Marshal(map[string]int{"expiresIn": expiresIn})
	if err != nil {
		return "", err
	}

	body, err := s.do(ctx, "sign "+storagePath, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse signed URL response: %w", err)
	}
	if result.SignedURL == "" {
		return "", fmt.Errorf("signed URL response had no signedURL")
	}
	return s.url + "/storage/v1" + result.SignedURL, nil
}

// do sends the request built by build, retrying network failures and
// retryable statuses with exponential backoff. It returns the response body.
func (s *Storage) do(ctx context.Context, op string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			log.Printf("[Storage] Retry %d/%d for %s (waiting %v)...", attempt, maxRetries, op, delay)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s cancelled: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		req, err := build(reqCtx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("%s failed: %w", op, err)
			if ctx.Err() == nil && isRetryableError(err) {
				log.Printf("[Storage] %s attempt %d failed (retryable): %v", op, attempt+1, err)
				continue
			}
			return nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			if readErr != nil {
				lastErr = fmt.Errorf("%s: failed to read response: %w", op, readErr)
				continue
			}
			return body, nil
		}

		lastErr = fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, truncate(string(body), 200))
		if !isRetryableStatus(resp.StatusCode) {
			return nil, lastErr
		}
		log.Printf("[Storage] %s attempt %d returned status %d (retryable)", op, attempt+1, resp.StatusCode)
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

// retryDelay is base * 2^(attempt-1), capped, plus 0-25% jitter.
func (s *Storage) retryDelay(attempt int) time.Duration {
	delay := float64(s.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

func contentTypeFor(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".srt":
		return "application/x-subrip"
	case ".json":
		return "application/json"
	}
	if t := mime.TypeByExtension(filepath.Ext(localPath)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
