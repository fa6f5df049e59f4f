package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

const (
	videoFPS = 30

	// Headroom for crop-based effects so the moving window never leaves the frame.
	motionHeadroom = 1.2
	zoomCeiling    = 1.1
	gapFadeFrames  = 5
)

// segmentFrames is the number of output frames for a clip of the given length.
func segmentFrames(duration float64) int {
	frames := int(math.Ceil(duration * videoFPS))
	if frames < 1 {
		frames = 1
	}
	return frames
}

// evenScaled scales v by factor and rounds down to an even value, which
// libx264 with yuv420p requires.
func evenScaled(v int, factor float64) int {
	n := int(math.Round(float64(v) * factor))
	return n - n%2
}

// normalizeFilter fits the source inside the frame and letterboxes the rest
// with black, so every segment has identical dimensions.
func normalizeFilter(width, height int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,setsar=1",
		width, height, width, height,
	)
}

// zoomFilter scales in from 1.0 toward zoomCeiling over the clip, never past it.
func zoomFilter(width, height int, duration float64) string {
	frames := segmentFrames(duration)
	return fmt.Sprintf(
		"zoompan=z='min(1+%.2f*on/%d,%.2f)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=1:s=%dx%d:fps=%d",
		zoomCeiling-1, frames, zoomCeiling, width, height, videoFPS,
	)
}

// panFilter drifts a frame-sized window around the enlarged image along
// two slow sine curves.
func panFilter(width, height int) string {
	bigW, bigH := evenScaled(width, motionHeadroom), evenScaled(height, motionHeadroom)
	return fmt.Sprintf(
		"scale=%d:%d,crop=%d:%d:x='(iw-ow)/2+((iw-ow)/2)*sin(t/5)':y='(ih-oh)/2+((ih-oh)/2)*sin(t/7)'",
		bigW, bigH, width, height,
	)
}

// slideFilter moves the window left to right at constant speed so it reaches
// the far edge exactly at the end of the clip.
func slideFilter(width, height int, duration float64) string {
	bigW, bigH := evenScaled(width, motionHeadroom), evenScaled(height, motionHeadroom)
	return fmt.Sprintf(
		"scale=%d:%d,crop=%d:%d:x='(iw-ow)*min(t/%.3f,1)':y='(ih-oh)/2'",
		bigW, bigH, width, height, duration,
	)
}

func fadeFilter(duration float64) string {
	return fmt.Sprintf("fade=t=in:st=0:d=%.3f", math.Min(1, duration))
}

// BuildSegmentFilter returns the full -vf chain for one still-image segment:
// normalization followed by the effect.
func BuildSegmentFilter(effect models.Effect, width, height int, duration float64) (string, error) {
	var motion string
	switch effect {
	case models.EffectZoom:
		motion = zoomFilter(width, height, duration)
	case models.EffectPan:
		motion = panFilter(width, height)
	case models.EffectSlide:
		motion = slideFilter(width, height, duration)
	case models.EffectFade:
		motion = fadeFilter(duration)
	default:
		return "", fmt.Errorf("unknown effect %q", effect)
	}
	return strings.Join([]string{normalizeFilter(width, height), motion}, ","), nil
}

// gapFilter fades the black filler in and out over a few frames at each end.
func gapFilter(duration float64) string {
	frames := segmentFrames(duration)
	fadeOutStart := frames - gapFadeFrames
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}
	return fmt.Sprintf("fade=t=in:s=0:n=%d,fade=t=out:s=%d:n=%d", gapFadeFrames, fadeOutStart, gapFadeFrames)
}
