package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestImageService(t *testing.T, handler http.HandlerFunc) *GeminiImageService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc := NewGeminiImageService("test-image-model", "")
	svc.baseURL = srv.URL
	return svc
}

func TestGeminiGenerateImage(t *testing.T) {
	var req GeminiGenerateContentRequest
	var gotKey, gotPath string
	svc := newTestImageService(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":"here"},{"inlineData":{"mimeType":"image/png","data":%q}}]}}]}`,
			base64.StdEncoding.EncodeToString([]byte("PNGDATA")))
	})

	data, err := svc.GenerateImage(context.Background(), "key-2", "a castle at dusk", "16:9")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("unexpected image bytes %q", data)
	}
	if gotKey != "key-2" || gotPath != "/models/test-image-model:generateContent" {
		t.Errorf("key=%s path=%s", gotKey, gotPath)
	}
	if req.GenerationConfig == nil || req.GenerationConfig.ImageConfig.AspectRatio != "16:9" {
		t.Fatalf("aspect ratio not sent: %+v", req.GenerationConfig)
	}
	text := req.Contents[0].Parts[0].Text
	if !strings.Contains(text, "a castle at dusk") || !strings.Contains(text, "Landscape 16:9") {
		t.Errorf("unexpected prompt %q", text)
	}
}

func TestGeminiGenerateImageTextOnly(t *testing.T) {
	svc := newTestImageService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"I cannot draw that"}]}}]}`))
	})
	_, err := svc.GenerateImage(context.Background(), "k", "p", "9:16")
	if err == nil || !strings.Contains(err.Error(), "text instead of image") {
		t.Fatalf("expected text-instead-of-image error, got %v", err)
	}
}

func TestGeminiGenerateImageStatus(t *testing.T) {
	svc := newTestImageService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"RESOURCE_EXHAUSTED"}`, http.StatusTooManyRequests)
	})
	_, err := svc.GenerateImage(context.Background(), "k", "p", "9:16")
	if !isRetryable(err) {
		t.Fatalf("expected retryable status error, got %v", err)
	}
}

func TestComposeImagePrompt(t *testing.T) {
	p := composeImagePrompt("  a lighthouse ", "9:16", true)
	if !strings.HasPrefix(p, "STYLE REFERENCE") {
		t.Error("style reference instruction missing")
	}
	if !strings.Contains(p, "SCENE TO DEPICT:\na lighthouse\n") || !strings.HasSuffix(p, "Portrait 9:16, no text or captions in the image.") {
		t.Errorf("unexpected prompt %q", p)
	}
}
