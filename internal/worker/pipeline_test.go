package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/storyreel/internal/captions"
	"github.com/bobarin/storyreel/internal/editor"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/musicsync"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/testsupport"
)

type fakeScripts struct {
	script       *services.Script
	contentCalls int
	scriptCalls  int
}

func (f *fakeScripts) WriteContent(ctx context.Context, title string, mode models.ChannelMode) (string, error) {
	f.contentCalls++
	return "content for " + title, nil
}

func (f *fakeScripts) WriteScript(ctx context.Context, content string, mode models.ChannelMode) (*services.Script, error) {
	f.scriptCalls++
	if err := f.script.Validate(mode); err != nil {
		return nil, err
	}
	return f.script, nil
}

type fakeImages struct {
	err    error
	calls  int
	aspect string
}

func (f *fakeImages) GenerateAll(ctx context.Context, prompts []string, aspectRatio, outDir string) ([]string, error) {
	f.calls++
	f.aspect = aspectRatio
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for i := range prompts {
		p := filepath.Join(outDir, services.ImageFileName(i))
		if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

type fakeVoices struct {
	seconds float64
	calls   int
}

func (f *fakeVoices) GenerateAll(ctx context.Context, scripts []string, outDir string) ([]string, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for i := range scripts {
		p := filepath.Join(outDir, services.VoiceFileName(i, "mp3"))
		if err := os.WriteFile(p, []byte(fmt.Sprintf("%.3f\n", f.seconds)), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

type fakeTranscriber struct{ err error }

func (f *fakeTranscriber) TranscribeAudio(ctx context.Context, audioData []byte, fileName, language string) ([]services.WordTimestamp, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []services.WordTimestamp{{Word: "hello", Start: 0, End: 0.5}}, nil
}

type fakeArchiver struct {
	channel, runID string
	files          []string
}

func (f *fakeArchiver) ArchiveRun(ctx context.Context, channel, runID string, localPaths []string) ([]string, error) {
	f.channel, f.runID = channel, runID
	var keys []string
	for _, p := range localPaths {
		if _, err := os.Stat(p); err != nil {
			return keys, err
		}
		f.files = append(f.files, p)
		keys = append(keys, channel+"/"+runID+"/"+filepath.Base(p))
	}
	return keys, nil
}

type recordingProgress struct {
	mu       sync.Mutex
	statuses []models.RunStatus
	script   *services.Script
}

func (p *recordingProgress) Status(ctx context.Context, status models.RunStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
}

func (p *recordingProgress) Script(ctx context.Context, content string, script *services.Script) {
	p.script = script
}

type pipelineEnv struct {
	dir         string
	tools       *testsupport.FakeTools
	scripts     *fakeScripts
	images      *fakeImages
	voices      *fakeVoices
	transcriber *fakeTranscriber
	archiver    *fakeArchiver
	store       *musicsync.Store
	generator   *Generator
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	tools := testsupport.NewFakeTools(t)
	dir := t.TempDir()

	ff, err := services.NewFFmpegService(services.FFmpegOptions{
		FFmpegPath:  tools.FFmpeg,
		FFprobePath: tools.FFprobe,
		TempDir:     filepath.Join(dir, "scratch"),
	})
	if err != nil {
		t.Fatalf("NewFFmpegService: %v", err)
	}
	store, err := musicsync.NewStore(filepath.Join(dir, musicsync.DefaultStoreName))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	music := filepath.Join(dir, "music", "default.mp3")
	testsupport.WriteMedia(t, music, 100, time.Time{})

	env := &pipelineEnv{
		dir:   dir,
		tools: tools,
		scripts: &fakeScripts{script: &services.Script{
			VoiceScripts: []string{"line one", "line two"},
			ImagePrompts: []string{"a", "b", "c", "d"},
		}},
		images:      &fakeImages{},
		voices:      &fakeVoices{seconds: 3},
		transcriber: &fakeTranscriber{},
		archiver:    &fakeArchiver{},
		store:       store,
	}
	work := filepath.Join(dir, "work")
	env.generator = NewGenerator(
		env.scripts,
		env.images,
		env.voices,
		editor.NewAssembler(ff, filepath.Join(work, "assemble")),
		captions.NewCaptioner(ff, env.transcriber, filepath.Join(work, "captions")),
		musicsync.NewSynchronizer(ff, store, musicsync.Options{ResumeFromCursor: true}),
		env.archiver,
		GeneratorConfig{
			WorkDir:    work,
			OutputDir:  filepath.Join(dir, "output"),
			MusicPaths: map[string]string{models.ModeDefault: music},
		},
	)
	return env
}

func TestGeneratorRunFullPipeline(t *testing.T) {
	env := newPipelineEnv(t)
	progress := &recordingProgress{}

	result, err := env.generator.Run(context.Background(), RunRequest{
		RunID:    "run-1",
		Title:    "What if the library of Alexandria survived",
		Captions: true,
	}, progress)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := filepath.Join(env.dir, "output")
	if result.AssembledPath != filepath.Join(out, "youtube_shorts.mp4") {
		t.Errorf("assembled path = %s", result.AssembledPath)
	}
	if result.CaptionedPath != filepath.Join(out, "captioned", "youtube_shorts.mp4") {
		t.Errorf("captioned path = %s", result.CaptionedPath)
	}
	if result.VideoPath != filepath.Join(out, "with_music", "youtube_shorts.mp4") {
		t.Errorf("final path = %s", result.VideoPath)
	}
	if result.Assembly.Lines != 2 || result.Assembly.Duration != 7 {
		t.Errorf("unexpected assembly %+v", result.Assembly)
	}
	if result.Music == nil || result.Music.MusicStart != 0 || result.Music.Key != "youtube_shorts.mp4" {
		t.Errorf("unexpected music result %+v", result.Music)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", result.Warnings)
	}
	if env.images.aspect != "9:16" {
		t.Errorf("images requested at %s", env.images.aspect)
	}
	if env.scripts.contentCalls != 1 || env.scripts.scriptCalls != 1 {
		t.Errorf("expected one content and one script call, got %d/%d", env.scripts.contentCalls, env.scripts.scriptCalls)
	}

	want := []models.RunStatus{
		models.RunStatusWriting, models.RunStatusGenerating, models.RunStatusAssembling,
		models.RunStatusCaptioning, models.RunStatusMixing,
	}
	if fmt.Sprint(progress.statuses) != fmt.Sprint(want) {
		t.Errorf("statuses = %v, want %v", progress.statuses, want)
	}
	if progress.script == nil || len(progress.script.VoiceScripts) != 2 {
		t.Error("script not reported")
	}

	if env.archiver.channel != "default" || env.archiver.runID != "run-1" || len(env.archiver.files) != 2 {
		t.Errorf("unexpected archive call %+v", env.archiver)
	}
	if got := result.StoragePath(); got != "default/run-1/youtube_shorts.mp4" {
		t.Errorf("StoragePath = %s", got)
	}

	if _, err := os.Stat(filepath.Join(env.dir, "work", "runs", "run-1")); !os.IsNotExist(err) {
		t.Errorf("run workspace should be removed, stat err = %v", err)
	}
	if cur, ok, _ := env.store.Get(context.Background(), "youtube_shorts.mp4"); !ok || cur.LastMusicStart != result.Music.MusicEnd {
		t.Errorf("cursor not advanced: %+v %v", cur, ok)
	}
}

func TestGeneratorSuppliedScriptSkipsModel(t *testing.T) {
	env := newPipelineEnv(t)

	result, err := env.generator.Run(context.Background(), RunRequest{
		Title:        "custom",
		Channel:      models.ModeMotivationShorts,
		VoiceScripts: []string{"only line"},
		ImagePrompts: []string{"1", "2", "3", "4", "5"},
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.scripts.contentCalls != 0 || env.scripts.scriptCalls != 0 {
		t.Error("supplied script should skip the language model")
	}
	if filepath.Base(result.AssembledPath) != "motivation_shorts.mp4" {
		t.Errorf("unexpected output %s", result.AssembledPath)
	}
	if result.CaptionedPath != "" {
		t.Error("captions were not requested")
	}
	// No music track configured for this mode.
	if result.Music != nil || len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "background music") {
		t.Errorf("expected a music warning, got %v", result.Warnings)
	}
	if result.VideoPath != result.AssembledPath {
		t.Errorf("final video should fall back to the assembled one, got %s", result.VideoPath)
	}
}

func TestGeneratorRejectsMismatchedScript(t *testing.T) {
	env := newPipelineEnv(t)

	_, err := env.generator.Run(context.Background(), RunRequest{
		Title:        "custom",
		VoiceScripts: []string{"a", "b"},
		ImagePrompts: []string{"1", "2", "3"},
	}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if env.images.calls != 0 || env.voices.calls != 0 {
		t.Error("no media should be generated for an invalid script")
	}
	if len(env.tools.Calls(t)) != 0 {
		t.Error("ffmpeg should not run")
	}
}

func TestGeneratorUnknownChannel(t *testing.T) {
	env := newPipelineEnv(t)
	_, err := env.generator.Run(context.Background(), RunRequest{Title: "x", Channel: "cooking"}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGeneratorImageFailureAborts(t *testing.T) {
	env := newPipelineEnv(t)
	env.images.err = errors.New("quota exhausted")

	_, err := env.generator.Run(context.Background(), RunRequest{RunID: "r", Title: "x"}, nil)
	if err == nil || !strings.Contains(err.Error(), "image generation failed") {
		t.Fatalf("expected image failure, got %v", err)
	}
	if len(env.tools.Calls(t)) != 0 {
		t.Error("assembly should not start")
	}
	if _, err := os.Stat(filepath.Join(env.dir, "work", "runs", "r")); !os.IsNotExist(err) {
		t.Error("run workspace should be removed on failure")
	}
}

func TestGeneratorCaptionAndMusicFailuresAreNotFatal(t *testing.T) {
	env := newPipelineEnv(t)
	env.transcriber.err = errors.New("whisper down")
	env.tools.FailWhen(t, "amix")

	result, err := env.generator.Run(context.Background(), RunRequest{Title: "x", Captions: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected caption and music warnings, got %v", result.Warnings)
	}
	if result.VideoPath != result.AssembledPath {
		t.Errorf("final video should be the assembled one, got %s", result.VideoPath)
	}
	if _, ok, _ := env.store.Get(context.Background(), "youtube_shorts.mp4"); ok {
		t.Error("cursor must not advance when the mix fails")
	}
}

func TestGeneratorMusicOverride(t *testing.T) {
	env := newPipelineEnv(t)
	custom := filepath.Join(env.dir, "music", "custom.mp3")
	testsupport.WriteMedia(t, custom, 50, time.Time{})

	result, err := env.generator.Run(context.Background(), RunRequest{Title: "x", MusicPath: custom}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.MusicPath != custom {
		t.Errorf("music path = %s, want %s", result.MusicPath, custom)
	}
	var mixed bool
	for _, call := range env.tools.Calls(t) {
		if call.HasArg(custom) {
			mixed = true
		}
	}
	if !mixed {
		t.Error("override track was not mixed")
	}
}
