package services

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// Word-by-word SRT captions
//
// One cue per spoken word, burned in with a bold gold Impact style near the
// bottom of the frame. Each cue lingers a little past the word so the text
// does not flicker, but never overlaps the next word.
// ---------------------------------------------------------------------------

const (
	captionFontName = "Impact"

	// ASS colours in &HAABBGGRR& form.
	captionPrimaryColour = "&H00FFD700&"
	captionOutlineColour = "&H60FFD700&"

	captionOutline = 3
	captionMarginV = 50

	// Font size as a share of the frame height.
	captionFontScale = 0.04

	// Extra time a word stays on screen after it ends, in seconds.
	captionTail = 0.1
)

// CaptionStyle returns the force_style value for a frame of the given height.
func CaptionStyle(frameHeight int) string {
	fontSize := int(float64(frameHeight) * captionFontScale)
	return strings.Join([]string{
		"Alignment=2",
		"FontName=" + captionFontName,
		fmt.Sprintf("FontSize=%d", fontSize),
		"PrimaryColour=" + captionPrimaryColour,
		"OutlineColour=" + captionOutlineColour,
		"Shadow=0",
		"BorderStyle=1",
		fmt.Sprintf("Outline=%d", captionOutline),
		fmt.Sprintf("MarginV=%d", captionMarginV),
	}, ",")
}

// BuildSRT renders one numbered cue per non-empty word.
func BuildSRT(words []WordTimestamp) (string, error) {
	var cues []WordTimestamp
	for _, w := range words {
		if text := strings.TrimSpace(w.Word); text != "" {
			cues = append(cues, WordTimestamp{Word: text, Start: w.Start, End: w.End})
		}
	}
	if len(cues) == 0 {
		return "", fmt.Errorf("no words to generate captions from")
	}

	var sb strings.Builder
	for i, cue := range cues {
		start := math.Max(cue.Start, 0)
		end := cue.End + captionTail
		if i < len(cues)-1 && cues[i+1].Start > start && end > cues[i+1].Start {
			end = cues[i+1].Start
		}
		if end < start {
			end = start
		}

		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTime(start), formatSRTTime(end), cue.Word)
	}
	return sb.String(), nil
}

// WriteSRT writes the word captions to outputPath.
func WriteSRT(words []WordTimestamp, outputPath string) error {
	content, err := BuildSRT(words)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write SRT file: %w", err)
	}
	return nil
}

// formatSRTTime converts seconds to HH:MM:SS,mmm.
func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))
	hours := totalMs / 3_600_000
	minutes := (totalMs % 3_600_000) / 60_000
	secs := (totalMs % 60_000) / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}
