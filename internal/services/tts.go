package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TTSResponse is the audio returned by a speech provider.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int
	Format     string // "mp3", "wav", etc.
}

// TTSService converts one line of narration to audio.
type TTSService interface {
	GenerateSpeech(ctx context.Context, text string) (*TTSResponse, error)
}

const (
	defaultVoiceAttempts  = 3
	defaultVoiceBaseDelay = time.Second
	maxVoiceRetryDelay    = 20 * time.Second
)

// VoiceGenerator narrates voice scripts one by one so the voice files are
// created in script order.
type VoiceGenerator struct {
	tts         TTSService
	maxAttempts int
	baseDelay   time.Duration
}

func NewVoiceGenerator(tts TTSService) *VoiceGenerator {
	return &VoiceGenerator{
		tts:         tts,
		maxAttempts: defaultVoiceAttempts,
		baseDelay:   defaultVoiceBaseDelay,
	}
}

// WithRetry overrides attempts per line and the initial backoff.
func (g *VoiceGenerator) WithRetry(attempts int, baseDelay time.Duration) *VoiceGenerator {
	if attempts > 0 {
		g.maxAttempts = attempts
	}
	if baseDelay > 0 {
		g.baseDelay = baseDelay
	}
	return g
}

// VoiceFileName is the name of the i-th narration file.
func VoiceFileName(i int, format string) string {
	if format == "" {
		format = "mp3"
	}
	return fmt.Sprintf("voice_%03d.%s", i, format)
}

// GenerateAll writes one audio file per script into outDir, in order.
func (g *VoiceGenerator) GenerateAll(ctx context.Context, scripts []string, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create voice dir: %w", err)
	}

	paths := make([]string, 0, len(scripts))
	for i, text := range scripts {
		if strings.TrimSpace(text) == "" {
			return paths, Wrap(ErrValidation, "voices", "generate", fmt.Sprintf("voice script %d is empty", i+1), nil)
		}
		resp, err := g.generateOne(ctx, i, text)
		if err != nil {
			return paths, fmt.Errorf("voice %d: %w", i+1, err)
		}

		path := filepath.Join(outDir, VoiceFileName(i, resp.Format))
		if err := os.WriteFile(path, resp.AudioData, 0644); err != nil {
			return paths, fmt.Errorf("failed to write voice %d: %w", i+1, err)
		}
		paths = append(paths, path)
		log.Printf("[Voices] %d/%d written (~%dms)", i+1, len(scripts), resp.DurationMs)
	}
	return paths, nil
}

func (g *VoiceGenerator) generateOne(ctx context.Context, index int, text string) (*TTSResponse, error) {
	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(g.baseDelay, maxVoiceRetryDelay, attempt)
			log.Printf("[Voices] Retry %d/%d for voice %d (waiting %v)...", attempt, g.maxAttempts-1, index+1, delay)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("voice generation cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := g.tts.GenerateSpeech(ctx, text)
		if err == nil {
			if len(resp.AudioData) == 0 {
				return nil, Wrap(ErrExternalTool, "voices", "generate", "provider returned empty audio", nil)
			}
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, Wrap(ErrExternalTool, "voices", "generate", "", err)
		}
	}
	return nil, Wrap(ErrExternalTool, "voices", "generate", fmt.Sprintf("failed after %d attempts", g.maxAttempts), lastErr)
}

// estimateAudioDuration assumes a narration pace of ~140 words per minute at speed 1.0.
func estimateAudioDuration(text string, speed float64) int {
	if speed <= 0 {
		speed = 1
	}
	words := len(strings.Fields(text))
	return int(math.Round(float64(words) * 60000 / (140.0 * speed)))
}
