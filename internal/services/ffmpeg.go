package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bobarin/storyreel/internal/models"
)

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

const (
	audioSampleRate = 44100
	audioBitrate    = "192k"
	outputTailLines = 6

	// minClipDuration is one frame; anything shorter renders no video.
	minClipDuration = 1.0 / videoFPS
)

type FFmpegOptions struct {
	FFmpegPath  string // Default: "ffmpeg" from PATH
	FFprobePath string // Default: "ffprobe" from PATH
	TempDir     string
	// Timeout bounds each subprocess. Zero disables the limit.
	Timeout time.Duration
}

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	timeout     time.Duration
}

func NewFFmpegService(opts FFmpegOptions) (*FFmpegService, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}

	// Create temp directory if it doesn't exist
	if err := os.MkdirAll(opts.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return &FFmpegService{
		ffmpegPath:  opts.FFmpegPath,
		ffprobePath: opts.FFprobePath,
		tempDir:     opts.TempDir,
		timeout:     opts.Timeout,
	}, nil
}

// TempDir is the directory used for scratch files such as concat lists.
func (s *FFmpegService) TempDir() string {
	return s.tempDir
}

// run executes ffmpeg with args. The output path must be the final argument.
func (s *FFmpegService) run(ctx context.Context, op string, args ...string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	cmd := exec.CommandContext(ctx, s.ffmpegPath, full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return &EncodeError{Op: op, Output: tailOutput(output), Err: err}
	}
	return nil
}

func tailOutput(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) > outputTailLines {
		lines = lines[len(lines)-outputTailLines:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ---------------------------------------------------------------------------
// Probing
// ---------------------------------------------------------------------------

// ProbeDuration returns the container duration of a media file in seconds.
// Unreadable files and non-positive or unparsable durations yield a *ProbeError.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return 0, &ProbeError{Path: path, Output: tailOutput(stderr.Bytes()), Err: err}
	}

	raw := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ProbeError{Path: path, Output: raw, Err: fmt.Errorf("failed to parse duration: %w", err)}
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return 0, &ProbeError{Path: path, Output: raw, Err: fmt.Errorf("invalid duration %v", duration)}
	}

	return duration, nil
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// SegmentSpec describes one still image rendered as a fixed-length clip.
type SegmentSpec struct {
	ImagePath  string
	OutputPath string
	Duration   float64 // seconds, > 0
	Effect     models.Effect
	Width      int
	Height     int
}

// RenderSegment encodes a silent H.264 clip of exactly spec.Duration seconds
// from a still image, normalized to the frame and animated with spec.Effect.
func (s *FFmpegService) RenderSegment(ctx context.Context, spec SegmentSpec) error {
	if spec.Duration < minClipDuration {
		return fmt.Errorf("segment duration %s is shorter than one frame", formatSeconds(spec.Duration))
	}
	vf, err := BuildSegmentFilter(spec.Effect, spec.Width, spec.Height, spec.Duration)
	if err != nil {
		return err
	}

	log.Printf("[FFmpeg] Rendering segment effect=%s duration=%.3fs -> %s", spec.Effect, spec.Duration, filepath.Base(spec.OutputPath))

	args := []string{
		"-loop", "1",
		"-framerate", strconv.Itoa(videoFPS),
		"-i", spec.ImagePath,
		"-t", formatSeconds(spec.Duration),
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(videoFPS),
		"-an",
		spec.OutputPath,
	}

	return s.run(ctx, "render_segment", args...)
}

// RenderGap encodes a black filler clip with short fades and a silent stereo
// track, so it concatenates losslessly with voiced line clips.
func (s *FFmpegService) RenderGap(ctx context.Context, outputPath string, width, height int, duration float64) error {
	if duration < minClipDuration {
		return fmt.Errorf("gap duration %s is shorter than one frame", formatSeconds(duration))
	}

	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%s", width, height, videoFPS, formatSeconds(duration)),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", audioSampleRate),
		"-vf", gapFilter(duration),
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(videoFPS),
		"-c:a", "aac",
		"-ar", strconv.Itoa(audioSampleRate),
		"-ac", "2",
		"-b:a", audioBitrate,
		"-shortest",
		outputPath,
	}

	return s.run(ctx, "render_gap", args...)
}

// MuxVoice pairs a silent clip with its narration. The video stream is
// copied; the output ends with the shorter stream.
func (s *FFmpegService) MuxVoice(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", strconv.Itoa(audioSampleRate),
		"-ac", "2",
		"-b:a", audioBitrate,
		"-shortest",
		outputPath,
	}

	return s.run(ctx, "mux_voice", args...)
}

// ConcatenateClips joins clips in order with the concat demuxer, without
// re-encoding. All clips must share codec parameters. The list file is
// written to listDir, or the service temp dir when listDir is empty.
func (s *FFmpegService) ConcatenateClips(ctx context.Context, clipPaths []string, listDir, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}
	if listDir == "" {
		listDir = s.tempDir
	}

	f, err := os.CreateTemp(listDir, "concat-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	listPath := f.Name()
	defer os.Remove(listPath)

	if err := WriteConcatList(f, clipPaths); err != nil {
		f.Close()
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}

	return s.run(ctx, "concat", args...)
}

type stringWriter interface {
	WriteString(string) (int, error)
}

// WriteConcatList writes one `file '<path>'` line per clip. Paths are made
// absolute, use forward slashes and have single quotes escaped.
func WriteConcatList(w stringWriter, clipPaths []string) error {
	for _, path := range clipPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("file '%s'\n", escapeConcatPath(filepath.ToSlash(abs)))
		if _, err := w.WriteString(line); err != nil {
			return err
		}
	}
	return nil
}

func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// ---------------------------------------------------------------------------
// Audio
// ---------------------------------------------------------------------------

// MusicMix describes one background-music pass over a finished video.
type MusicMix struct {
	VideoPath    string
	MusicPath    string
	OutputPath   string
	Start        float64 // seconds into the (looped) music track
	Duration     float64 // seconds of music to lay under the video
	OriginalGain float64 // gain on the video's own audio
	MusicGain    float64
}

// MixMusicFilter builds the filter graph: trim the music window, rebase its
// timestamps, apply both gains and mix for the length of the video audio.
func MixMusicFilter(mix MusicMix) string {
	return fmt.Sprintf(
		"[1:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[music];"+
			"[0:a]volume=%s[original_loud];"+
			"[music]volume=%s[music_low];"+
			"[original_loud][music_low]amix=inputs=2:duration=first[aout]",
		formatSeconds(mix.Start), formatSeconds(mix.Start+mix.Duration),
		formatGain(mix.OriginalGain), formatGain(mix.MusicGain),
	)
}

// MixMusic lays a window of background music under the video's audio. The
// music input loops, so windows past the end of the track wrap around.
func (s *FFmpegService) MixMusic(ctx context.Context, mix MusicMix) error {
	if mix.Duration <= 0 {
		return fmt.Errorf("music window must be positive, got %v", mix.Duration)
	}
	if _, err := os.Stat(mix.MusicPath); err != nil {
		return fmt.Errorf("background music unavailable: %w", err)
	}

	log.Printf("[FFmpeg] Mixing background music %s window=[%.3f, %.3f]", filepath.Base(mix.MusicPath), mix.Start, mix.Start+mix.Duration)

	args := []string{
		"-i", mix.VideoPath,
		"-stream_loop", "-1",
		"-i", mix.MusicPath,
		"-filter_complex", MixMusicFilter(mix),
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-shortest",
		mix.OutputPath,
	}

	return s.run(ctx, "mix_music", args...)
}

// ExtractAudio writes the video's audio as 16 kHz mono WAV for transcription.
func (s *FFmpegService) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}

	return s.run(ctx, "extract_audio", args...)
}

// BurnSubtitles re-encodes the video with an SRT file rendered into the picture.
func (s *FFmpegService) BurnSubtitles(ctx context.Context, videoPath, subtitlePath, forceStyle, outputPath string) error {
	vf := fmt.Sprintf("subtitles='%s'", escapeFFmpegFilterPath(subtitlePath))
	if forceStyle != "" {
		vf += fmt.Sprintf(":force_style='%s'", forceStyle)
	}

	log.Printf("[FFmpeg] Burning in subtitles from %s", subtitlePath)

	args := []string{
		"-i", videoPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		outputPath,
	}

	return s.run(ctx, "burn_subtitles", args...)
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
func escapeFFmpegFilterPath(path string) string {
	path = filepath.ToSlash(path)
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func formatGain(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
