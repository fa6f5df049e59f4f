package musicsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/bobarin/storyreel/internal/services"
)

const (
	DefaultOriginalGain = 10.0
	DefaultMusicGain    = 1.0
)

// MediaTool probes durations and performs the music mix.
type MediaTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	MixMusic(ctx context.Context, mix services.MusicMix) error
}

type Options struct {
	MusicPath string
	// ResumeFromCursor trims the music from the stored cursor. When false
	// every video gets the track's opening [0, D] while the cursor still
	// advances.
	ResumeFromCursor bool
	OriginalGain     float64
	MusicGain        float64
}

// Synchronizer lays background music under finished videos, continuing the
// track where the previous video with the same name left off.
type Synchronizer struct {
	media MediaTool
	store *Store
	opts  Options
}

func NewSynchronizer(media MediaTool, store *Store, opts Options) *Synchronizer {
	if opts.OriginalGain <= 0 {
		opts.OriginalGain = DefaultOriginalGain
	}
	if opts.MusicGain <= 0 {
		opts.MusicGain = DefaultMusicGain
	}
	return &Synchronizer{media: media, store: store, opts: opts}
}

// WithMusic returns a synchronizer that shares the cursor store but mixes
// musicPath. An empty path keeps the current track.
func (s *Synchronizer) WithMusic(musicPath string) *Synchronizer {
	if musicPath == "" {
		return s
	}
	c := *s
	c.opts.MusicPath = musicPath
	return &c
}

// MusicPath is the track this synchronizer mixes.
func (s *Synchronizer) MusicPath() string {
	return s.opts.MusicPath
}

// SyncError reports a failed sync. The input video is untouched and the
// cursor was not advanced.
type SyncError struct {
	Video string
	Stage string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("music sync %s (%s): %v", filepath.Base(e.Video), e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

type Result struct {
	OutputPath string  `json:"output_path"`
	Key        string  `json:"key"`
	Duration   float64 `json:"duration"`
	MusicStart float64 `json:"music_start"`
	MusicEnd   float64 `json:"music_end"`
	// Offset is where in the music file the trim window began.
	Offset float64 `json:"offset"`
}

// Key returns the cursor key for a video path.
func Key(videoPath string) string {
	return filepath.Base(videoPath)
}

// Sync mixes music into videoPath and writes outputPath. On any failure it
// returns videoPath together with a *SyncError, so callers can carry on with
// the unmixed video.
func (s *Synchronizer) Sync(ctx context.Context, videoPath, outputPath string) (string, error) {
	result, err := s.SyncWithResult(ctx, videoPath, outputPath)
	if err != nil {
		return videoPath, err
	}
	return result.OutputPath, nil
}

// SyncWithResult is Sync with the cursor positions reported.
func (s *Synchronizer) SyncWithResult(ctx context.Context, videoPath, outputPath string) (*Result, error) {
	fail := func(stage string, err error) (*Result, error) {
		log.Printf("[MusicSync] Warning: %s failed for %s, keeping original: %v", stage, filepath.Base(videoPath), err)
		return nil, &SyncError{Video: videoPath, Stage: stage, Err: err}
	}

	if s.opts.MusicPath == "" {
		return fail("prepare", errors.New("no background music configured"))
	}
	if filepath.Clean(videoPath) == filepath.Clean(outputPath) {
		return fail("prepare", errors.New("output path must differ from input"))
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fail("prepare", err)
	}

	duration, err := s.media.ProbeDuration(ctx, videoPath)
	if err != nil {
		return fail("probe", err)
	}

	key := Key(videoPath)
	result := &Result{OutputPath: outputPath, Key: key, Duration: duration}

	_, err = s.store.Advance(ctx, key, func(cur Cursor) (Cursor, error) {
		result.MusicStart = cur.LastMusicStart
		result.MusicEnd = cur.LastMusicStart + duration
		result.Offset = s.trimOffset(ctx, cur.LastMusicStart)

		err := s.media.MixMusic(ctx, services.MusicMix{
			VideoPath:    videoPath,
			MusicPath:    s.opts.MusicPath,
			OutputPath:   outputPath,
			Start:        result.Offset,
			Duration:     duration,
			OriginalGain: s.opts.OriginalGain,
			MusicGain:    s.opts.MusicGain,
		})
		if err != nil {
			return cur, err
		}
		return Cursor{LastMusicStart: result.MusicEnd}, nil
	})
	if err != nil {
		os.Remove(outputPath)
		return fail("mix", err)
	}

	log.Printf("[MusicSync] %s: music %.3f -> %.3f (offset %.3f)", key, result.MusicStart, result.MusicEnd, result.Offset)
	return result, nil
}

// trimOffset maps the stored cursor onto the music file. The music input is
// looped, so the cursor wraps by the track length when it is known.
func (s *Synchronizer) trimOffset(ctx context.Context, cursor float64) float64 {
	if !s.opts.ResumeFromCursor {
		return 0
	}
	length, err := s.media.ProbeDuration(ctx, s.opts.MusicPath)
	if err != nil {
		log.Printf("[MusicSync] Warning: could not probe music length, using raw cursor: %v", err)
		return cursor
	}
	return math.Mod(cursor, length)
}
