package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/storyreel/internal/editor"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/musicsync"
	"github.com/bobarin/storyreel/internal/services"
)

// ScriptSource writes the narrative and splits it into voice lines and image prompts.
type ScriptSource interface {
	WriteContent(ctx context.Context, title string, mode models.ChannelMode) (string, error)
	WriteScript(ctx context.Context, content string, mode models.ChannelMode) (*services.Script, error)
}

type ImageSource interface {
	GenerateAll(ctx context.Context, prompts []string, aspectRatio, outDir string) ([]string, error)
}

type VoiceSource interface {
	GenerateAll(ctx context.Context, scripts []string, outDir string) ([]string, error)
}

type Assembler interface {
	Assemble(ctx context.Context, req editor.AssembleRequest) (*editor.Result, error)
}

type Captioner interface {
	Caption(ctx context.Context, videoPath, outputPath string, frameHeight int) error
}

type Archiver interface {
	ArchiveRun(ctx context.Context, channel, runID string, localPaths []string) ([]string, error)
}

// Progress receives pipeline milestones. Implementations must not block for long.
type Progress interface {
	Status(ctx context.Context, status models.RunStatus)
	Script(ctx context.Context, content string, script *services.Script)
}

type noProgress struct{}

func (noProgress) Status(context.Context, models.RunStatus)         {}
func (noProgress) Script(context.Context, string, *services.Script) {}

type GeneratorConfig struct {
	WorkDir       string
	OutputDir     string
	MusicPaths    map[string]string // channel mode -> default track
	KeepWorkspace bool
}

// Generator runs one title through the whole pipeline: content, script,
// images and voices, assembly, optional captions, background music and
// archival. Captions, music and archival failures are logged and skipped.
type Generator struct {
	scripts   ScriptSource
	images    ImageSource
	voices    VoiceSource
	assembler Assembler
	captioner Captioner
	music     *musicsync.Synchronizer
	archiver  Archiver
	cfg       GeneratorConfig
}

// NewGenerator wires the pipeline. captioner, music and archiver may be nil.
func NewGenerator(
	scripts ScriptSource,
	images ImageSource,
	voices VoiceSource,
	assembler Assembler,
	captioner Captioner,
	music *musicsync.Synchronizer,
	archiver Archiver,
	cfg GeneratorConfig,
) *Generator {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	return &Generator{
		scripts:   scripts,
		images:    images,
		voices:    voices,
		assembler: assembler,
		captioner: captioner,
		music:     music,
		archiver:  archiver,
		cfg:       cfg,
	}
}

type RunRequest struct {
	RunID   string
	Title   string
	Channel string
	// Optional overrides. Content skips the content call; VoiceScripts and
	// ImagePrompts together skip the script call.
	Content      string
	VoiceScripts []string
	ImagePrompts []string
	Captions     bool
	MusicPath    string
	// OutputDir overrides the configured output directory for this run.
	OutputDir string
}

type RunResult struct {
	RunID         string            `json:"run_id"`
	Mode          string            `json:"mode"`
	Content       string            `json:"content"`
	Script        *services.Script  `json:"script"`
	Assembly      *editor.Result    `json:"assembly"`
	AssembledPath string            `json:"assembled_path"`
	CaptionedPath string            `json:"captioned_path,omitempty"`
	Music         *musicsync.Result `json:"music,omitempty"`
	MusicPath     string            `json:"music_path,omitempty"`
	VideoPath     string            `json:"video_path"`
	ArchivedKeys  []string          `json:"archived_keys,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// StoragePath is the archived key of the final video, or "".
func (r *RunResult) StoragePath() string {
	base := filepath.Base(r.VideoPath)
	for _, key := range r.ArchivedKeys {
		if filepath.Base(key) == base {
			return key
		}
	}
	return ""
}

func (r *RunResult) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[Pipeline] Warning: %s", msg)
	r.Warnings = append(r.Warnings, msg)
}

// Run executes the pipeline. A nil progress is allowed.
func (g *Generator) Run(ctx context.Context, req RunRequest, progress Progress) (*RunResult, error) {
	if progress == nil {
		progress = noProgress{}
	}
	mode, err := models.LookupChannelMode(req.Channel)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "mode", "", err)
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = g.cfg.OutputDir
	}

	result := &RunResult{RunID: req.RunID, Mode: mode.Name}

	script, content, err := g.prepareScript(ctx, req, mode, progress)
	if err != nil {
		return nil, err
	}
	result.Content = content
	result.Script = script
	progress.Script(ctx, content, script)

	runDir := filepath.Join(g.cfg.WorkDir, "runs", req.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}
	if g.cfg.KeepWorkspace {
		log.Printf("[Pipeline] Keeping run workspace %s", runDir)
	} else {
		defer os.RemoveAll(runDir)
	}
	imageDir := filepath.Join(runDir, "images")
	voiceDir := filepath.Join(runDir, "voices")

	progress.Status(ctx, models.RunStatusGenerating)
	if err := g.generateMedia(ctx, script, mode, imageDir, voiceDir); err != nil {
		return nil, err
	}

	progress.Status(ctx, models.RunStatusAssembling)
	assembled := filepath.Join(outputDir, mode.OutputName)
	assembly, err := g.assembler.Assemble(ctx, editor.AssembleRequest{
		ImageDir:   imageDir,
		VoiceDir:   voiceDir,
		Mode:       mode,
		OutputPath: assembled,
	})
	if err != nil {
		return nil, fmt.Errorf("assembly failed: %w", err)
	}
	result.Assembly = assembly
	result.AssembledPath = assembled
	result.VideoPath = assembled

	if req.Captions {
		g.caption(ctx, result, mode, outputDir, progress)
	}

	g.mixMusic(ctx, result, req, mode, outputDir, progress)

	if g.archiver != nil {
		g.archive(ctx, result, mode, runDir)
	}

	log.Printf("[Pipeline] Run %s finished: %s (%.1fs)", req.RunID, result.VideoPath, assembly.Duration)
	return result, nil
}

func (g *Generator) prepareScript(ctx context.Context, req RunRequest, mode models.ChannelMode, progress Progress) (*services.Script, string, error) {
	content := strings.TrimSpace(req.Content)

	if len(req.VoiceScripts) > 0 || len(req.ImagePrompts) > 0 {
		script := &services.Script{VoiceScripts: req.VoiceScripts, ImagePrompts: req.ImagePrompts}
		if err := script.Validate(mode); err != nil {
			return nil, "", err
		}
		log.Printf("[Pipeline] Using supplied script (%d lines)", len(script.VoiceScripts))
		return script, content, nil
	}

	progress.Status(ctx, models.RunStatusWriting)
	if content == "" {
		var err error
		content, err = g.scripts.WriteContent(ctx, req.Title, mode)
		if err != nil {
			return nil, "", err
		}
	}
	script, err := g.scripts.WriteScript(ctx, content, mode)
	if err != nil {
		return nil, "", err
	}
	return script, content, nil
}

// generateMedia renders images and voices as two concurrent pipelines. Each
// is sequential internally so file order follows the script.
func (g *Generator) generateMedia(ctx context.Context, script *services.Script, mode models.ChannelMode, imageDir, voiceDir string) error {
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if _, err := g.images.GenerateAll(gctx, script.ImagePrompts, mode.AspectRatio, imageDir); err != nil {
			return fmt.Errorf("image generation failed: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if _, err := g.voices.GenerateAll(gctx, script.VoiceScripts, voiceDir); err != nil {
			return fmt.Errorf("voice generation failed: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

func (g *Generator) caption(ctx context.Context, result *RunResult, mode models.ChannelMode, outputDir string, progress Progress) {
	if g.captioner == nil {
		result.warn("captions requested but no transcriber is configured")
		return
	}
	progress.Status(ctx, models.RunStatusCaptioning)
	out := filepath.Join(outputDir, "captioned", mode.OutputName)
	if err := g.captioner.Caption(ctx, result.VideoPath, out, mode.FrameHeight); err != nil {
		result.warn("captions skipped: %v", err)
		return
	}
	result.CaptionedPath = out
	result.VideoPath = out
}

func (g *Generator) mixMusic(ctx context.Context, result *RunResult, req RunRequest, mode models.ChannelMode, outputDir string, progress Progress) {
	if g.music == nil {
		return
	}
	musicPath := req.MusicPath
	if musicPath == "" {
		musicPath = g.cfg.MusicPaths[mode.Name]
	}
	sync := g.music.WithMusic(musicPath)
	result.MusicPath = sync.MusicPath()

	progress.Status(ctx, models.RunStatusMixing)
	out := filepath.Join(outputDir, "with_music", mode.OutputName)
	mixed, err := sync.SyncWithResult(ctx, result.VideoPath, out)
	if err != nil {
		result.warn("background music skipped: %v", err)
		return
	}
	result.Music = mixed
	result.VideoPath = mixed.OutputPath
}

// archive uploads the final video and the script under <channel>/<run id>/.
func (g *Generator) archive(ctx context.Context, result *RunResult, mode models.ChannelMode, runDir string) {
	files := []string{result.VideoPath}

	scriptPath := filepath.Join(runDir, "script.json")
	data, err := json.MarshalIndent(map[string]any{
		"content":       result.Content,
		"voice_scripts": result.Script.VoiceScripts,
		"image_prompts": result.Script.ImagePrompts,
		"timeline":      result.Assembly.Timeline,
		"music":         result.Music,
	}, "", "  ")
	if err == nil {
		if err := os.WriteFile(scriptPath, data, 0644); err == nil {
			files = append(files, scriptPath)
		}
	}

	keys, err := g.archiver.ArchiveRun(ctx, mode.Name, result.RunID, files)
	result.ArchivedKeys = keys
	if err != nil {
		result.warn("archival incomplete: %v", err)
	}
}
