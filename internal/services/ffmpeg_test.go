package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/testsupport"
)

func newTestFFmpeg(t *testing.T) (*FFmpegService, *testsupport.FakeTools) {
	t.Helper()
	tools := testsupport.NewFakeTools(t)
	svc, err := NewFFmpegService(FFmpegOptions{
		FFmpegPath:  tools.FFmpeg,
		FFprobePath: tools.FFprobe,
		TempDir:     filepath.Join(t.TempDir(), "scratch"),
	})
	if err != nil {
		t.Fatalf("NewFFmpegService: %v", err)
	}
	return svc, tools
}

func TestProbeDuration(t *testing.T) {
	svc, _ := newTestFFmpeg(t)
	path := filepath.Join(t.TempDir(), "voice.mp3")
	testsupport.WriteMedia(t, path, 12.5, time.Time{})

	got, err := svc.ProbeDuration(context.Background(), path)
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if got != 12.5 {
		t.Errorf("expected 12.5, got %v", got)
	}
}

func TestProbeDurationFailures(t *testing.T) {
	svc, _ := newTestFFmpeg(t)
	dir := t.TempDir()

	cases := map[string]string{
		"unparsable": "N/A\n",
		"zero":       "0.000\n",
		"negative":   "-3\n",
		"nan":        "NaN\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name+".mp4")
		testsupport.WriteMediaRaw(t, path, content, time.Time{})

		_, err := svc.ProbeDuration(context.Background(), path)
		var probeErr *ProbeError
		if !errors.As(err, &probeErr) {
			t.Errorf("%s: expected ProbeError, got %v", name, err)
			continue
		}
		if probeErr.Path != path {
			t.Errorf("%s: expected path %s, got %s", name, path, probeErr.Path)
		}
		if !errors.Is(err, ErrExternalTool) {
			t.Errorf("%s: ProbeError should classify as external tool error", name)
		}
	}

	_, err := svc.ProbeDuration(context.Background(), filepath.Join(dir, "missing.mp4"))
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Errorf("missing file: expected ProbeError, got %v", err)
	}
}

func TestRenderSegmentArgs(t *testing.T) {
	svc, tools := newTestFFmpeg(t)
	out := filepath.Join(t.TempDir(), "seg.mp4")

	err := svc.RenderSegment(context.Background(), SegmentSpec{
		ImagePath:  "img.png",
		OutputPath: out,
		Duration:   4,
		Effect:     models.EffectZoom,
		Width:      1080,
		Height:     1920,
	})
	if err != nil {
		t.Fatalf("RenderSegment: %v", err)
	}

	calls := tools.Calls(t)
	if len(calls) != 1 {
		t.Fatalf("expected 1 ffmpeg call, got %d", len(calls))
	}
	call := calls[0]
	if call.ArgAfter("-loop") != "1" || call.ArgAfter("-t") != "4.000" {
		t.Errorf("expected looped still image for 4s: %v", call.Args)
	}
	if call.ArgAfter("-c:v") != "libx264" || call.ArgAfter("-pix_fmt") != "yuv420p" {
		t.Errorf("expected libx264 yuv420p: %v", call.Args)
	}
	if !call.HasArg("-an") {
		t.Errorf("segments should be silent: %v", call.Args)
	}
	if !strings.Contains(call.ArgAfter("-vf"), "zoompan") {
		t.Errorf("expected zoompan filter: %s", call.ArgAfter("-vf"))
	}
	if call.Output() != out {
		t.Errorf("expected output %s last, got %s", out, call.Output())
	}
}

func TestRenderSegmentRejectsBadInput(t *testing.T) {
	svc, tools := newTestFFmpeg(t)

	for _, d := range []float64{0, 0.0004, 0.02} {
		if err := svc.RenderSegment(context.Background(), SegmentSpec{Duration: d, Effect: models.EffectZoom, Width: 2, Height: 2}); err == nil {
			t.Errorf("expected error for %vs segment", d)
		}
	}
	if err := svc.RenderGap(context.Background(), "gap.mp4", 2, 2, 0.0004); err == nil {
		t.Error("expected error for sub-frame gap")
	}
	if err := svc.RenderSegment(context.Background(), SegmentSpec{Duration: 1, Effect: "spin", Width: 2, Height: 2}); err == nil {
		t.Error("expected error for unknown effect")
	}
	if calls := tools.Calls(t); len(calls) != 0 {
		t.Errorf("ffmpeg should not run for invalid specs, got %d calls", len(calls))
	}
}

func TestEncodeErrorCarriesOutput(t *testing.T) {
	svc, tools := newTestFFmpeg(t)
	tools.FailWhen(t, "libx264")

	err := svc.RenderSegment(context.Background(), SegmentSpec{
		ImagePath:  "img.png",
		OutputPath: filepath.Join(t.TempDir(), "seg.mp4"),
		Duration:   1,
		Effect:     models.EffectPan,
		Width:      1080,
		Height:     1920,
	})
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodeError, got %v", err)
	}
	if encErr.Op != "render_segment" {
		t.Errorf("expected op render_segment, got %s", encErr.Op)
	}
	if !strings.Contains(encErr.Output, "simulated failure") {
		t.Errorf("expected stderr tail in error, got %q", encErr.Output)
	}
}

func TestRenderGapHasSilentTrack(t *testing.T) {
	svc, tools := newTestFFmpeg(t)
	if err := svc.RenderGap(context.Background(), filepath.Join(t.TempDir(), "gap.mp4"), 1920, 1080, 1); err != nil {
		t.Fatalf("RenderGap: %v", err)
	}
	call := tools.Calls(t)[0]
	joined := strings.Join(call.Args, " ")
	if !strings.Contains(joined, "color=c=black:s=1920x1080:r=30:d=1.000") {
		t.Errorf("expected black source: %s", joined)
	}
	if !strings.Contains(joined, "anullsrc=channel_layout=stereo:sample_rate=44100") {
		t.Errorf("expected silent stereo track: %s", joined)
	}
}

func TestConcatenateClipsWritesList(t *testing.T) {
	svc, tools := newTestFFmpeg(t)
	dir := t.TempDir()
	clips := []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "it's.mp4")}

	if err := svc.ConcatenateClips(context.Background(), clips, "", filepath.Join(dir, "out.mp4")); err != nil {
		t.Fatalf("ConcatenateClips: %v", err)
	}

	call := tools.Calls(t)[0]
	if call.ArgAfter("-c") != "copy" {
		t.Errorf("concat must stream copy: %v", call.Args)
	}
	if len(call.List) != 2 {
		t.Fatalf("expected 2 list entries, got %v", call.List)
	}
	want := "file '" + filepath.ToSlash(filepath.Join(dir, "it")) + `'\''s.mp4'`
	if call.List[1] != want {
		t.Errorf("expected escaped entry %q, got %q", want, call.List[1])
	}

	entries, _ := os.ReadDir(svc.TempDir())
	if len(entries) != 0 {
		t.Errorf("concat list should be removed, found %d files", len(entries))
	}
}

func TestConcatenateClipsUsesListDir(t *testing.T) {
	svc, tools := newTestFFmpeg(t)
	listDir := t.TempDir()

	if err := svc.ConcatenateClips(context.Background(), []string{"a.mp4"}, listDir, filepath.Join(listDir, "out.mp4")); err != nil {
		t.Fatalf("ConcatenateClips: %v", err)
	}
	if got := filepath.Dir(tools.Calls(t)[0].ArgAfter("-i")); got != listDir {
		t.Errorf("concat list written to %s, want %s", got, listDir)
	}
	if entries, _ := os.ReadDir(svc.TempDir()); len(entries) != 0 {
		t.Errorf("temp dir should stay untouched, found %d files", len(entries))
	}
}

func TestConcatenateClipsEmpty(t *testing.T) {
	svc, _ := newTestFFmpeg(t)
	if err := svc.ConcatenateClips(context.Background(), nil, "", "out.mp4"); err == nil {
		t.Fatal("expected error for empty clip list")
	}
}

func TestMixMusicFilter(t *testing.T) {
	got := MixMusicFilter(MusicMix{Start: 15, Duration: 20, OriginalGain: 10, MusicGain: 1})
	want := "[1:a]atrim=start=15.000:end=35.000,asetpts=PTS-STARTPTS[music];" +
		"[0:a]volume=10.0[original_loud];" +
		"[music]volume=1.0[music_low];" +
		"[original_loud][music_low]amix=inputs=2:duration=first[aout]"
	if got != want {
		t.Errorf("unexpected filter\n got: %s\nwant: %s", got, want)
	}
}

func TestMixMusicLoopsTrack(t *testing.T) {
	svc, tools := newTestFFmpeg(t)
	dir := t.TempDir()
	music := filepath.Join(dir, "music.mp3")
	testsupport.WriteMedia(t, music, 60, time.Time{})

	err := svc.MixMusic(context.Background(), MusicMix{
		VideoPath:    filepath.Join(dir, "in.mp4"),
		MusicPath:    music,
		OutputPath:   filepath.Join(dir, "out.mp4"),
		Duration:     10,
		OriginalGain: 10,
		MusicGain:    1,
	})
	if err != nil {
		t.Fatalf("MixMusic: %v", err)
	}
	call := tools.Calls(t)[0]
	if call.ArgAfter("-stream_loop") != "-1" {
		t.Errorf("music input should loop: %v", call.Args)
	}
	if call.ArgAfter("-c:v") != "copy" || call.ArgAfter("-c:a") != "aac" || !call.HasArg("-shortest") {
		t.Errorf("unexpected remux flags: %v", call.Args)
	}
}

func TestMixMusicMissingTrack(t *testing.T) {
	svc, tools := newTestFFmpeg(t)
	err := svc.MixMusic(context.Background(), MusicMix{MusicPath: filepath.Join(t.TempDir(), "none.mp3"), Duration: 5})
	if err == nil {
		t.Fatal("expected error for missing music")
	}
	if len(tools.Calls(t)) != 0 {
		t.Error("ffmpeg should not run without a music track")
	}
}

func TestEscapeFFmpegFilterPath(t *testing.T) {
	got := escapeFFmpegFilterPath("/tmp/a:b/it's.srt")
	want := `/tmp/a\:b/it'\''s.srt`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[string]error{
		"validation":    Wrap(ErrValidation, "script", "parse", "count mismatch", nil),
		"configuration": Wrap(ErrConfiguration, "config", "", "missing key", nil),
		"external_tool": &EncodeError{Op: "concat", Err: errors.New("exit 1")},
		"internal":      errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorCode(err); got != want {
			t.Errorf("ErrorCode(%v) = %s, want %s", err, got, want)
		}
	}
}
