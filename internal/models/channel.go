package models

import (
	"fmt"
	"sort"
	"strings"
)

// Effect is the motion applied to a single still image segment.
type Effect string

const (
	EffectZoom  Effect = "zoom"  // progressive scale-in, capped at 1.1x
	EffectPan   Effect = "pan"   // sinusoidal crop drift
	EffectSlide Effect = "slide" // linear horizontal crop travel
	EffectFade  Effect = "fade"  // fade in over the first second, then static
)

// Valid reports whether e is one of the known effects.
func (e Effect) Valid() bool {
	switch e {
	case EffectZoom, EffectPan, EffectSlide, EffectFade:
		return true
	}
	return false
}

// ChannelMode bundles everything that varies between channels: how many
// images illustrate each voice line, the output frame, the effect palette
// and where the assembled file lands.
type ChannelMode struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	ImagesPerLine int      `json:"images_per_line"`
	FrameWidth    int      `json:"frame_width"`
	FrameHeight   int      `json:"frame_height"`
	Effects       []Effect `json:"effects"`
	// OutputName is stable across runs so the music cursor keyed on it
	// keeps advancing from one video to the next.
	OutputName  string `json:"output_name"`
	AspectRatio string `json:"aspect_ratio"`
	// Short-form modes prompt for brief voice lines.
	ShortForm bool `json:"short_form"`
}

// Portrait reports whether the frame is taller than it is wide.
func (m ChannelMode) Portrait() bool {
	return m.FrameHeight > m.FrameWidth
}

// ExpectedImages returns the image count required for the given number of voice lines.
func (m ChannelMode) ExpectedImages(voiceLines int) int {
	return m.ImagesPerLine * voiceLines
}

// Validate checks that the record is usable for rendering.
func (m ChannelMode) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("channel mode name is required")
	}
	if m.ImagesPerLine < 1 {
		return fmt.Errorf("channel mode %s: images per line must be positive", m.Name)
	}
	if m.FrameWidth <= 0 || m.FrameHeight <= 0 || m.FrameWidth%2 != 0 || m.FrameHeight%2 != 0 {
		return fmt.Errorf("channel mode %s: frame %dx%d must be positive and even", m.Name, m.FrameWidth, m.FrameHeight)
	}
	if len(m.Effects) == 0 {
		return fmt.Errorf("channel mode %s: effect sequence is empty", m.Name)
	}
	for _, e := range m.Effects {
		if !e.Valid() {
			return fmt.Errorf("channel mode %s: unknown effect %q", m.Name, e)
		}
	}
	return nil
}

const (
	ModeDefault          = "default"
	ModeMotivationVideo  = "motivation_video"
	ModeMotivationShorts = "motivation_shorts"
)

var channelModes = map[string]ChannelMode{
	ModeDefault: {
		Name:          ModeDefault,
		Description:   "History shorts: two images per voice line, portrait",
		ImagesPerLine: 2,
		FrameWidth:    1080,
		FrameHeight:   1920,
		Effects:       []Effect{EffectZoom, EffectPan},
		OutputName:    "youtube_shorts.mp4",
		AspectRatio:   "9:16",
		ShortForm:     true,
	},
	ModeMotivationVideo: {
		Name:          ModeMotivationVideo,
		Description:   "Long-form motivational video: three images per paragraph, landscape",
		ImagesPerLine: 3,
		FrameWidth:    1920,
		FrameHeight:   1080,
		Effects:       []Effect{EffectZoom, EffectSlide},
		OutputName:    "motivation_video.mp4",
		AspectRatio:   "16:9",
	},
	ModeMotivationShorts: {
		Name:          ModeMotivationShorts,
		Description:   "Motivational shorts: five images per paragraph, portrait",
		ImagesPerLine: 5,
		FrameWidth:    1080,
		FrameHeight:   1920,
		Effects:       []Effect{EffectZoom, EffectFade},
		OutputName:    "motivation_shorts.mp4",
		AspectRatio:   "9:16",
		ShortForm:     true,
	},
}

// LookupChannelMode returns the mode registered under name. An empty name
// selects the default mode.
func LookupChannelMode(name string) (ChannelMode, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		name = ModeDefault
	}
	mode, ok := channelModes[name]
	if !ok {
		return ChannelMode{}, fmt.Errorf("unknown channel mode %q (known: %s)", name, strings.Join(ChannelModeNames(), ", "))
	}
	mode.Effects = append([]Effect(nil), mode.Effects...)
	return mode, nil
}

// ChannelModeNames lists the registered modes in sorted order.
func ChannelModeNames() []string {
	names := make([]string, 0, len(channelModes))
	for name := range channelModes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChannelModes returns every registered mode, sorted by name.
func ChannelModes() []ChannelMode {
	var modes []ChannelMode
	for _, name := range ChannelModeNames() {
		mode, _ := LookupChannelMode(name)
		modes = append(modes, mode)
	}
	return modes
}

// EffectFor picks the effect for the image at position index within its
// line group. Effects alternate through the mode's sequence.
func EffectFor(mode ChannelMode, index int) Effect {
	if len(mode.Effects) == 0 {
		return EffectZoom
	}
	if index < 0 {
		index = -index
	}
	return mode.Effects[index%len(mode.Effects)]
}
