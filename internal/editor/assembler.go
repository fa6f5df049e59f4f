package editor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/services"
)

// DefaultGapDuration is the black filler between consecutive lines, in seconds.
const DefaultGapDuration = 1.0

// Encoder is the subset of the ffmpeg service the assembler drives.
type Encoder interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	RenderSegment(ctx context.Context, spec services.SegmentSpec) error
	RenderGap(ctx context.Context, outputPath string, width, height int, duration float64) error
	MuxVoice(ctx context.Context, videoPath, audioPath, outputPath string) error
	ConcatenateClips(ctx context.Context, clipPaths []string, listDir, outputPath string) error
}

type Assembler struct {
	encoder       Encoder
	workRoot      string
	gapDuration   float64
	keepWorkspace bool
}

type Option func(*Assembler)

// WithGapDuration overrides the filler length between lines.
func WithGapDuration(seconds float64) Option {
	return func(a *Assembler) {
		if seconds > 0 {
			a.gapDuration = seconds
		}
	}
}

// WithKeepWorkspace leaves intermediate clips on disk for debugging.
func WithKeepWorkspace(keep bool) Option {
	return func(a *Assembler) {
		a.keepWorkspace = keep
	}
}

// NewAssembler creates intermediate workspaces under workRoot.
func NewAssembler(encoder Encoder, workRoot string, opts ...Option) *Assembler {
	a := &Assembler{
		encoder:     encoder,
		workRoot:    workRoot,
		gapDuration: DefaultGapDuration,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type AssembleRequest struct {
	ImageDir   string
	VoiceDir   string
	Mode       models.ChannelMode
	OutputPath string
}

const (
	EntryLine = "line"
	EntryGap  = "gap"
)

// TimelineEntry is one clip of the final concat, in playback order.
type TimelineEntry struct {
	Kind     string  `json:"kind"`
	Line     int     `json:"line"`
	Duration float64 `json:"duration"`
}

type Result struct {
	OutputPath string          `json:"output_path"`
	Mode       string          `json:"mode"`
	Lines      int             `json:"lines"`
	Timeline   []TimelineEntry `json:"timeline"`
	Duration   float64         `json:"duration"`
}

// Assemble renders every voice line with its image group, separates lines
// with gaps and joins everything into req.OutputPath. Counts are validated
// before any workspace is created or encoder invoked. The workspace is removed
// on every exit path.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (*Result, error) {
	if err := req.Mode.Validate(); err != nil {
		return nil, err
	}

	images, err := ListMedia(req.ImageDir, ImageExtensions)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	voices, err := ListMedia(req.VoiceDir, VoiceExtensions)
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	plans, err := PlanLines(req.Mode, images, voices)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.workRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work root: %w", err)
	}
	workspace, err := os.MkdirTemp(a.workRoot, "assemble-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if a.keepWorkspace {
		log.Printf("[Assembler] Keeping workspace %s", workspace)
	} else {
		defer os.RemoveAll(workspace)
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	log.Printf("[Assembler] Mode %s: %d lines, %d images", req.Mode.Name, len(plans), len(images))

	result := &Result{
		OutputPath: req.OutputPath,
		Mode:       req.Mode.Name,
		Lines:      len(plans),
	}
	var clips []string

	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		clip, duration, err := a.renderLine(ctx, workspace, req.Mode, plan)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
		result.Timeline = append(result.Timeline, TimelineEntry{Kind: EntryLine, Line: plan.Index, Duration: duration})
		result.Duration += duration

		if plan.Index == len(plans)-1 {
			continue
		}
		gap := filepath.Join(workspace, fmt.Sprintf("gap_%03d.mp4", plan.Index))
		if err := a.encoder.RenderGap(ctx, gap, req.Mode.FrameWidth, req.Mode.FrameHeight, a.gapDuration); err != nil {
			return nil, &RenderError{Line: plan.Index, Image: -1, Step: "gap", Err: err}
		}
		clips = append(clips, gap)
		result.Timeline = append(result.Timeline, TimelineEntry{Kind: EntryGap, Line: plan.Index, Duration: a.gapDuration})
		result.Duration += a.gapDuration
	}

	if err := a.encoder.ConcatenateClips(ctx, clips, workspace, req.OutputPath); err != nil {
		return nil, &RenderError{Line: -1, Image: -1, Step: "final concat", Err: err}
	}

	log.Printf("[Assembler] Wrote %s (%d clips, %.3fs)", req.OutputPath, len(clips), result.Duration)
	return result, nil
}

// renderLine produces the voiced clip for one line and returns its path and
// the probed narration length.
func (a *Assembler) renderLine(ctx context.Context, workspace string, mode models.ChannelMode, plan LinePlan) (string, float64, error) {
	duration, err := a.encoder.ProbeDuration(ctx, plan.VoicePath)
	if err != nil {
		return "", 0, fmt.Errorf("line %d: %w", plan.Index, err)
	}

	slots := SplitDuration(duration, len(plan.Images))
	log.Printf("[Assembler] Line %d: %.3fs across %d images", plan.Index, duration, len(slots))

	segments := make([]string, len(plan.Images))
	for j, image := range plan.Images {
		segments[j] = filepath.Join(workspace, fmt.Sprintf("line_%03d_seg_%02d.mp4", plan.Index, j))
		spec := services.SegmentSpec{
			ImagePath:  image,
			OutputPath: segments[j],
			Duration:   slots[j],
			Effect:     models.EffectFor(mode, j),
			Width:      mode.FrameWidth,
			Height:     mode.FrameHeight,
		}
		if err := a.encoder.RenderSegment(ctx, spec); err != nil {
			return "", 0, &RenderError{Line: plan.Index, Image: j, Step: "segment", Err: err}
		}
	}

	silent := filepath.Join(workspace, fmt.Sprintf("line_%03d_video.mp4", plan.Index))
	if err := a.encoder.ConcatenateClips(ctx, segments, workspace, silent); err != nil {
		return "", 0, &RenderError{Line: plan.Index, Image: -1, Step: "segment concat", Err: err}
	}

	voiced := filepath.Join(workspace, fmt.Sprintf("line_%03d.mp4", plan.Index))
	if err := a.encoder.MuxVoice(ctx, silent, plan.VoicePath, voiced); err != nil {
		return "", 0, &RenderError{Line: plan.Index, Image: -1, Step: "voice mux", Err: err}
	}

	return voiced, duration, nil
}
