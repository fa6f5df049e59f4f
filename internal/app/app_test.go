package app

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/bobarin/storyreel/internal/config"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LLMProvider:     config.LLMProviderGemini,
		GeminiKey:       "g-key",
		GeminiTextModel: "gemini-test",
		ImageAPIKeys:    []string{"g-key"},
		ElevenLabsKey:   "el-key",
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		WorkDir:         filepath.Join(dir, "work"),
		OutputDir:       filepath.Join(dir, "out"),
		MusicCursorPath: filepath.Join(dir, "state", "cursors.json"),
		MusicPaths: map[string]string{
			models.ModeDefault:         "default.mp3",
			models.ModeMotivationVideo: "motivation.mp3",
		},
		MusicResumeFromCursor: true,
	}
}

func TestNewMedia(t *testing.T) {
	cfg := testConfig(t)
	media, err := NewMedia(cfg)
	if err != nil {
		t.Fatalf("NewMedia: %v", err)
	}
	if media.Cursors.Path() != cfg.MusicCursorPath {
		t.Errorf("cursor path = %s", media.Cursors.Path())
	}
	if media.Music.MusicPath() != "default.mp3" {
		t.Errorf("default music = %s", media.Music.MusicPath())
	}
	if media.FFmpeg.TempDir() != filepath.Join(cfg.WorkDir, "tmp") {
		t.Errorf("temp dir = %s", media.FFmpeg.TempDir())
	}
}

func TestNewMediaRequiresCursorPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.MusicCursorPath = " "
	if _, err := NewMedia(cfg); err == nil {
		t.Fatal("expected an error for a blank cursor path")
	}
}

func TestNewTextGenerator(t *testing.T) {
	cfg := testConfig(t)

	gen, err := NewTextGenerator(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := gen.(*services.GeminiService); !ok {
		t.Errorf("gemini provider built %T", gen)
	}

	cfg.LLMProvider = config.LLMProviderOpenAI
	cfg.OpenAIKey = "o-key"
	gen, err = NewTextGenerator(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := gen.(*services.OpenAIService); !ok {
		t.Errorf("openai provider built %T", gen)
	}

	cfg.LLMProvider = "llama"
	if _, err := NewTextGenerator(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("unknown provider: err = %v, want configuration error", err)
	}
}

func TestNewGenerator(t *testing.T) {
	cfg := testConfig(t)
	media, err := NewMedia(cfg)
	if err != nil {
		t.Fatal(err)
	}

	gen, err := NewGenerator(cfg, media, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if gen == nil {
		t.Fatal("nil generator")
	}

	cfg.LLMProvider = "llama"
	if _, err := NewGenerator(cfg, media, nil); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}
