package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bobarin/storyreel/internal/models"
)

var (
	ImageExtensions = []string{".png", ".jpg", ".jpeg"}
	VoiceExtensions = []string{".wav", ".mp3"}
)

// LinePlan is one voice line and the images that illustrate it, in order.
type LinePlan struct {
	Index     int
	VoicePath string
	Images    []string
}

// ListMedia returns the files in dir whose extension is in exts, ordered by
// modification time (oldest first) with the file name breaking ties. Files
// are written once by the generators, so this follows creation order rather
// than lexical order.
func ListMedia(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	type media struct {
		path    string
		name    string
		modTime time.Time
	}
	var files []media
	for _, entry := range entries {
		if entry.IsDir() || !hasExtension(entry.Name(), exts) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		files = append(files, media{
			path:    filepath.Join(dir, entry.Name()),
			name:    entry.Name(),
			modTime: info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.Before(files[j].modTime)
		}
		return files[i].name < files[j].name
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// PlanLines checks the image/voice ratio for the mode and groups images by
// line. It does no I/O.
func PlanLines(mode models.ChannelMode, images, voices []string) ([]LinePlan, error) {
	if len(voices) == 0 || len(images) != mode.ExpectedImages(len(voices)) {
		return nil, &ValidationError{
			Mode:          mode.Name,
			ImagesPerLine: mode.ImagesPerLine,
			Images:        len(images),
			Voices:        len(voices),
		}
	}

	plans := make([]LinePlan, len(voices))
	for i, voice := range voices {
		start := i * mode.ImagesPerLine
		plans[i] = LinePlan{
			Index:     i,
			VoicePath: voice,
			Images:    images[start : start+mode.ImagesPerLine],
		}
	}
	return plans, nil
}

// SplitDuration divides total into n slots that sum to total. Every slot
// gets total/n except the last, which absorbs the rounding remainder.
func SplitDuration(total float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	per := total / float64(n)
	slots := make([]float64, n)
	used := 0.0
	for i := 0; i < n-1; i++ {
		slots[i] = per
		used += per
	}
	slots[n-1] = total - used
	return slots
}
