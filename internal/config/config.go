package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/services"
)

// Purpose selects which settings Validate insists on.
type Purpose int

const (
	// PurposeMedia covers commands that only drive ffmpeg (assemble, sync-music, cursors).
	PurposeMedia Purpose = iota
	// PurposeGenerate covers a local end-to-end generation run.
	PurposeGenerate
	// PurposeServer covers the HTTP API and, when enabled, the background worker.
	PurposeServer
)

const (
	LLMProviderGemini = "gemini"
	LLMProviderOpenAI = "openai"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // empty = no auth, dev mode
	CorsAllowedOrigins string // comma-separated, empty = *

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Language model
	LLMProvider     string
	GeminiKey       string
	GeminiTextModel string
	OpenAIKey       string // also used for Whisper captions
	OpenAIBaseURL   string
	OpenAIModel     string

	// Images
	ImageAPIKeys              []string
	GeminiImageModel          string
	GeminiStyleReferenceImage string

	// ElevenLabs
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Media
	FFmpegPath     string
	FFprobePath    string
	WorkDir        string
	OutputDir      string
	KeepWorkspace  bool
	EncoderTimeout time.Duration

	// Music
	MusicCursorPath       string
	MusicPaths            map[string]string // channel mode -> default track
	MusicResumeFromCursor bool
	MusicOriginalGain     float64
	MusicTrackGain        float64

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to parse .env: %w", err)
		}
	}

	workDir := getEnv("WORK_DIR", filepath.Join(os.TempDir(), "storyreel"))
	geminiKey := getEnv("GEMINI_API_KEY", "")

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "storyreel-videos"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", LLMProviderGemini)),
		GeminiKey:       geminiKey,
		GeminiTextModel: getEnv("GEMINI_TEXT_MODEL", "gemini-2.0-flash"),
		OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		ImageAPIKeys:              getEnvList("IMAGE_API_KEYS", nonEmpty(geminiKey)),
		GeminiImageModel:          getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiStyleReferenceImage: getEnv("GEMINI_STYLE_REFERENCE_IMAGE", ""),

		ElevenLabsKey:     getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),

		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),
		WorkDir:        workDir,
		OutputDir:      getEnv("OUTPUT_DIR", "output"),
		KeepWorkspace:  getEnvBool("KEEP_WORKSPACE", false),
		EncoderTimeout: getEnvDuration("ENCODER_TIMEOUT", 0),

		MusicCursorPath: getEnv("MUSIC_CURSOR_PATH", "music_sync_cache.json"),
		MusicPaths: map[string]string{
			models.ModeDefault:          getEnv("MUSIC_DEFAULT_PATH", "assets/music/music.mp3"),
			models.ModeMotivationVideo:  getEnv("MUSIC_MOTIVATION_VIDEO_PATH", "assets/music/motivation_video.mp3"),
			models.ModeMotivationShorts: getEnv("MUSIC_MOTIVATION_SHORTS_PATH", "assets/music/motivation_shorts.mp3"),
		},
		MusicResumeFromCursor: getEnvBool("MUSIC_RESUME_FROM_CURSOR", true),
		MusicOriginalGain:     getEnvFloat("MUSIC_ORIGINAL_GAIN", 10.0),
		MusicTrackGain:        getEnvFloat("MUSIC_TRACK_GAIN", 1.0),

		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 1),
	}

	return cfg, nil
}

// MusicPathFor returns the default background track for a channel mode.
func (c *Config) MusicPathFor(mode string) string {
	if p, ok := c.MusicPaths[mode]; ok && p != "" {
		return p
	}
	return c.MusicPaths[models.ModeDefault]
}

// Validate reports every missing or invalid setting the purpose needs.
func (c *Config) Validate(purpose Purpose) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", services.ErrConfiguration, fmt.Sprintf(format, args...)))
	}

	if c.FFmpegPath == "" || c.FFprobePath == "" {
		fail("FFMPEG_PATH and FFPROBE_PATH must not be empty")
	}
	if c.WorkDir == "" {
		fail("WORK_DIR must not be empty")
	}
	if c.EncoderTimeout < 0 {
		fail("ENCODER_TIMEOUT must not be negative")
	}
	if c.MusicOriginalGain < 0 || c.MusicTrackGain < 0 {
		fail("MUSIC_ORIGINAL_GAIN and MUSIC_TRACK_GAIN must not be negative")
	}

	needGeneration := purpose == PurposeGenerate || (purpose == PurposeServer && c.WorkerEnabled)
	if needGeneration {
		switch c.LLMProvider {
		case LLMProviderGemini:
			if c.GeminiKey == "" {
				fail("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
			}
		case LLMProviderOpenAI:
			if c.OpenAIKey == "" {
				fail("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
			}
		default:
			fail("LLM_PROVIDER must be %q or %q, got %q", LLMProviderGemini, LLMProviderOpenAI, c.LLMProvider)
		}
		if len(c.ImageAPIKeys) == 0 {
			fail("IMAGE_API_KEYS or GEMINI_API_KEY is required for image generation")
		}
		if c.ElevenLabsKey == "" {
			fail("ELEVENLABS_API_KEY is required for voice generation")
		}
	}

	if purpose == PurposeServer {
		if c.DatabaseURL == "" {
			fail("DATABASE_URL is required")
		}
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			fail("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
		}
		if c.MaxConcurrentJobs < 1 {
			fail("MAX_CONCURRENT_JOBS must be at least 1")
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
