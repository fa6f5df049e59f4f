// Package app builds the media services and the generation pipeline from
// configuration. Both the API server and the CLI start here.
package app

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/bobarin/storyreel/internal/captions"
	"github.com/bobarin/storyreel/internal/config"
	"github.com/bobarin/storyreel/internal/editor"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/musicsync"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/worker"
)

// Media is everything that only needs ffmpeg and the cursor file.
type Media struct {
	FFmpeg    *services.FFmpegService
	Assembler *editor.Assembler
	Cursors   *musicsync.Store
	Music     *musicsync.Synchronizer
}

func NewMedia(cfg *config.Config) (*Media, error) {
	ffmpeg, err := services.NewFFmpegService(services.FFmpegOptions{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		TempDir:     filepath.Join(cfg.WorkDir, "tmp"),
		Timeout:     cfg.EncoderTimeout,
	})
	if err != nil {
		return nil, err
	}

	cursors, err := musicsync.NewStore(cfg.MusicCursorPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open music cursor store: %w", err)
	}

	music := musicsync.NewSynchronizer(ffmpeg, cursors, musicsync.Options{
		MusicPath:        cfg.MusicPathFor(models.ModeDefault),
		ResumeFromCursor: cfg.MusicResumeFromCursor,
		OriginalGain:     cfg.MusicOriginalGain,
		MusicGain:        cfg.MusicTrackGain,
	})

	return &Media{
		FFmpeg:    ffmpeg,
		Assembler: editor.NewAssembler(ffmpeg, filepath.Join(cfg.WorkDir, "assembly"), editor.WithKeepWorkspace(cfg.KeepWorkspace)),
		Cursors:   cursors,
		Music:     music,
	}, nil
}

// NewTextGenerator returns the configured language model.
func NewTextGenerator(cfg *config.Config) (services.TextGenerator, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderGemini:
		log.Printf("[App] Language model: Gemini (%s)", cfg.GeminiTextModel)
		return services.NewGeminiService(cfg.GeminiKey, cfg.GeminiTextModel), nil
	case config.LLMProviderOpenAI:
		log.Printf("[App] Language model: OpenAI (%s)", cfg.OpenAIModel)
		return services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	}
	return nil, services.Wrap(services.ErrConfiguration, "app", "llm", fmt.Sprintf("unknown provider %q", cfg.LLMProvider), nil)
}

// NewGenerator wires the full pipeline on top of media. archiver may be nil.
func NewGenerator(cfg *config.Config, media *Media, archiver worker.Archiver) (*worker.Generator, error) {
	text, err := NewTextGenerator(cfg)
	if err != nil {
		return nil, err
	}

	images := services.NewImageGenerator(
		services.NewGeminiImageService(cfg.GeminiImageModel, cfg.GeminiStyleReferenceImage),
		cfg.ImageAPIKeys,
	)
	voices := services.NewVoiceGenerator(services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID))

	var captioner worker.Captioner
	if cfg.OpenAIKey != "" {
		whisper := services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		captioner = captions.NewCaptioner(media.FFmpeg, whisper, filepath.Join(cfg.WorkDir, "captions"))
	} else {
		log.Println("[App] OPENAI_API_KEY not set, captions disabled")
	}

	return worker.NewGenerator(
		services.NewScriptWriter(text),
		images,
		voices,
		media.Assembler,
		captioner,
		media.Music,
		archiver,
		worker.GeneratorConfig{
			WorkDir:       cfg.WorkDir,
			OutputDir:     cfg.OutputDir,
			MusicPaths:    cfg.MusicPaths,
			KeepWorkspace: cfg.KeepWorkspace,
		},
	), nil
}
