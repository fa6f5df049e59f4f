package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Image generation queue
//
// Prompts are rendered one at a time, in order, so the files' creation order
// matches the script. Each prompt is retried with backoff; retryable failures
// also rotate to the next API key so one exhausted quota does not stall the run.
// ---------------------------------------------------------------------------

const (
	defaultImageAttempts  = 5
	defaultImageBaseDelay = 2 * time.Second
	maxImageRetryDelay    = 60 * time.Second
)

// ImageProvider renders one prompt with the given credential.
type ImageProvider interface {
	GenerateImage(ctx context.Context, apiKey, prompt, aspectRatio string) ([]byte, error)
}

type ImageGenerator struct {
	provider    ImageProvider
	keys        []string
	maxAttempts int
	baseDelay   time.Duration

	mu   sync.Mutex
	next int
}

func NewImageGenerator(provider ImageProvider, keys []string) *ImageGenerator {
	var clean []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	return &ImageGenerator{
		provider:    provider,
		keys:        clean,
		maxAttempts: defaultImageAttempts,
		baseDelay:   defaultImageBaseDelay,
	}
}

// WithRetry overrides attempts per prompt and the initial backoff.
func (g *ImageGenerator) WithRetry(attempts int, baseDelay time.Duration) *ImageGenerator {
	if attempts > 0 {
		g.maxAttempts = attempts
	}
	if baseDelay > 0 {
		g.baseDelay = baseDelay
	}
	return g
}

// ImageFileName is the name of the i-th generated image.
func ImageFileName(i int) string {
	return fmt.Sprintf("image_%03d.png", i)
}

// GenerateAll renders every prompt into outDir and returns the written paths in order.
func (g *ImageGenerator) GenerateAll(ctx context.Context, prompts []string, aspectRatio, outDir string) ([]string, error) {
	if len(g.keys) == 0 {
		return nil, Wrap(ErrConfiguration, "images", "generate", "no image API keys configured", nil)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}

	paths := make([]string, 0, len(prompts))
	for i, prompt := range prompts {
		data, err := g.generateOne(ctx, i, prompt, aspectRatio)
		if err != nil {
			return paths, fmt.Errorf("image %d: %w", i+1, err)
		}

		path := filepath.Join(outDir, ImageFileName(i))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return paths, fmt.Errorf("failed to write image %d: %w", i+1, err)
		}
		paths = append(paths, path)
		log.Printf("[Images] %d/%d written (%d bytes)", i+1, len(prompts), len(data))
	}
	return paths, nil
}

func (g *ImageGenerator) generateOne(ctx context.Context, index int, prompt, aspectRatio string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(g.baseDelay, maxImageRetryDelay, attempt)
			log.Printf("[Images] Retry %d/%d for image %d (waiting %v)...", attempt, g.maxAttempts-1, index+1, delay)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("image generation cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		key, slot := g.currentKey()
		data, err := g.provider.GenerateImage(ctx, key, prompt, aspectRatio)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, Wrap(ErrExternalTool, "images", "generate", "", err)
		}
		g.rotate(slot)
		log.Printf("[Images] Attempt %d for image %d with key #%d failed (retryable): %v", attempt+1, index+1, slot%len(g.keys)+1, err)
	}
	return nil, Wrap(ErrExternalTool, "images", "generate", fmt.Sprintf("failed after %d attempts", g.maxAttempts), lastErr)
}

// currentKey returns the active key and the rotation slot it was taken from.
func (g *ImageGenerator) currentKey() (string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[g.next%len(g.keys)], g.next
}

// rotate moves past slot. Runs sharing the generator that fail on the same
// key advance it once.
func (g *ImageGenerator) rotate(slot int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next == slot {
		g.next++
	}
}

// backoffDelay is base * 2^(attempt-1) capped at maxDelay, plus up to 25% jitter.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryable reports whether an API call is worth repeating.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return isRetryableStatus(statusErr.StatusCode)
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "no image data") ||
		strings.Contains(errStr, "no candidates")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusInternalServerError ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}
