package services

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type scriptedImageProvider struct {
	errs  []error
	keys  []string
	calls int
}

func (p *scriptedImageProvider) GenerateImage(ctx context.Context, apiKey, prompt, aspectRatio string) ([]byte, error) {
	p.keys = append(p.keys, apiKey)
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []byte("png:" + prompt), nil
}

func TestImageGeneratorWritesInOrder(t *testing.T) {
	provider := &scriptedImageProvider{}
	gen := NewImageGenerator(provider, []string{"k1"}).WithRetry(2, time.Millisecond)
	dir := filepath.Join(t.TempDir(), "images")

	paths, err := gen.GenerateAll(context.Background(), []string{"a", "b", "c"}, "9:16", dir)
	if err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(paths))
	}
	for i, want := range []string{"png:a", "png:b", "png:c"} {
		if filepath.Base(paths[i]) != ImageFileName(i) {
			t.Errorf("path %d = %s", i, paths[i])
		}
		data, err := os.ReadFile(paths[i])
		if err != nil {
			t.Fatalf("read %s: %v", paths[i], err)
		}
		if string(data) != want {
			t.Errorf("image %d = %q, want %q", i, data, want)
		}
	}
}

func TestImageGeneratorRotatesKeysOnRetryableError(t *testing.T) {
	provider := &scriptedImageProvider{errs: []error{
		&StatusError{Service: "gemini", StatusCode: http.StatusTooManyRequests},
		&StatusError{Service: "gemini", StatusCode: http.StatusServiceUnavailable},
	}}
	gen := NewImageGenerator(provider, []string{"k1", " ", "k2"}).WithRetry(3, time.Millisecond)

	if _, err := gen.GenerateAll(context.Background(), []string{"a"}, "9:16", t.TempDir()); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	want := []string{"k1", "k2", "k1"}
	if len(provider.keys) != len(want) {
		t.Fatalf("keys used = %v", provider.keys)
	}
	for i := range want {
		if provider.keys[i] != want[i] {
			t.Errorf("attempt %d used %s, want %s", i, provider.keys[i], want[i])
		}
	}
}

func TestImageGeneratorStopsOnPermanentError(t *testing.T) {
	provider := &scriptedImageProvider{errs: []error{
		&StatusError{Service: "gemini", StatusCode: http.StatusBadRequest, Body: "bad prompt"},
	}}
	gen := NewImageGenerator(provider, []string{"k1", "k2"}).WithRetry(5, time.Millisecond)

	paths, err := gen.GenerateAll(context.Background(), []string{"a", "b"}, "9:16", t.TempDir())
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected a single attempt, got %d", provider.calls)
	}
	if len(paths) != 0 {
		t.Errorf("expected no images, got %v", paths)
	}
}

func TestImageGeneratorGivesUp(t *testing.T) {
	retryable := &StatusError{Service: "gemini", StatusCode: http.StatusTooManyRequests}
	provider := &scriptedImageProvider{errs: []error{retryable, retryable, retryable}}
	gen := NewImageGenerator(provider, []string{"k1"}).WithRetry(3, time.Millisecond)

	_, err := gen.GenerateAll(context.Background(), []string{"a"}, "16:9", t.TempDir())
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected last status error in chain, got %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", provider.calls)
	}
}

type throttledImageProvider struct {
	mu   sync.Mutex
	keys map[string]int
}

func (p *throttledImageProvider) GenerateImage(ctx context.Context, apiKey, prompt, aspectRatio string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[apiKey]++
	return nil, &StatusError{Service: "gemini", StatusCode: http.StatusTooManyRequests}
}

func TestImageGeneratorSharedAcrossRuns(t *testing.T) {
	provider := &throttledImageProvider{keys: map[string]int{}}
	gen := NewImageGenerator(provider, []string{"k1", "k2", "k3"}).WithRetry(4, time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gen.GenerateAll(context.Background(), []string{"a"}, "9:16", t.TempDir())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrExternalTool) {
			t.Errorf("run %d: expected external tool error, got %v", i, err)
		}
	}
	total := 0
	for key, n := range provider.keys {
		if key != "k1" && key != "k2" && key != "k3" {
			t.Errorf("unexpected key %q", key)
		}
		total += n
	}
	if total != 8 {
		t.Errorf("expected 8 attempts across both runs, got %d", total)
	}
}

func TestImageGeneratorRotatesOncePerSlot(t *testing.T) {
	gen := NewImageGenerator(&scriptedImageProvider{}, []string{"k1", "k2"})

	key, slot := gen.currentKey()
	if key != "k1" || slot != 0 {
		t.Fatalf("first key = %s (slot %d)", key, slot)
	}
	gen.rotate(slot)
	gen.rotate(slot)
	if key, _ := gen.currentKey(); key != "k2" {
		t.Errorf("two failures on the same slot should advance once, got %s", key)
	}
}

func TestImageGeneratorRequiresKeys(t *testing.T) {
	gen := NewImageGenerator(&scriptedImageProvider{}, []string{"", "  "})
	_, err := gen.GenerateAll(context.Background(), []string{"a"}, "9:16", t.TempDir())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(time.Second, 4*time.Second, attempt)
		if d < time.Second || d > 5*time.Second {
			t.Errorf("attempt %d: delay %v out of range", attempt, d)
		}
	}
}
