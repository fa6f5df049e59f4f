// Package captions burns word-level subtitles into a finished video.
package captions

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bobarin/storyreel/internal/services"
)

// MediaTool is the subset of the encoder the captioner drives.
type MediaTool interface {
	ExtractAudio(ctx context.Context, videoPath, outputPath string) error
	BurnSubtitles(ctx context.Context, videoPath, subtitlePath, forceStyle, outputPath string) error
}

// Transcriber returns word timings for a narration track.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audioData []byte, fileName, language string) ([]services.WordTimestamp, error)
}

type Captioner struct {
	media       MediaTool
	transcriber Transcriber
	workRoot    string
	language    string
}

func NewCaptioner(media MediaTool, transcriber Transcriber, workRoot string) *Captioner {
	return &Captioner{
		media:       media,
		transcriber: transcriber,
		workRoot:    workRoot,
		language:    "en",
	}
}

// Caption extracts the narration from videoPath, transcribes it and writes a
// copy with burned-in subtitles to outputPath. frameHeight sizes the font.
func (c *Captioner) Caption(ctx context.Context, videoPath, outputPath string, frameHeight int) error {
	if videoPath == outputPath {
		return services.Wrap(services.ErrValidation, "captions", "prepare", "output must differ from input", nil)
	}
	if err := os.MkdirAll(c.workRoot, 0755); err != nil {
		return fmt.Errorf("failed to create caption work dir: %w", err)
	}
	workDir, err := os.MkdirTemp(c.workRoot, "captions-*")
	if err != nil {
		return fmt.Errorf("failed to create caption work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	audioPath := filepath.Join(workDir, "narration.wav")
	if err := c.media.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read extracted audio: %w", err)
	}

	words, err := c.transcriber.TranscribeAudio(ctx, audio, filepath.Base(audioPath), c.language)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "captions", "transcribe", "", err)
	}
	log.Printf("[Captions] %d words transcribed from %s", len(words), filepath.Base(videoPath))

	srtPath := filepath.Join(workDir, "captions.srt")
	if err := services.WriteSRT(words, srtPath); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create caption output dir: %w", err)
	}
	if err := c.media.BurnSubtitles(ctx, videoPath, srtPath, services.CaptionStyle(frameHeight), outputPath); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("burn subtitles: %w", err)
	}
	log.Printf("[Captions] Captioned video written to %s", outputPath)
	return nil
}
