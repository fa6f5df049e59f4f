package editor

import (
	"fmt"

	"github.com/bobarin/storyreel/internal/services"
)

// ValidationError reports an image count that does not match the mode's
// images-per-line ratio. It is raised before any encoder runs.
type ValidationError struct {
	Mode          string
	ImagesPerLine int
	Images        int
	Voices        int
}

func (e *ValidationError) Error() string {
	if e.Voices == 0 {
		return fmt.Sprintf("mode %s: no voice lines found (%d images)", e.Mode, e.Images)
	}
	return fmt.Sprintf("mode %s: expected %d images for %d voice lines (%d per line), found %d",
		e.Mode, e.ImagesPerLine*e.Voices, e.Voices, e.ImagesPerLine, e.Images)
}

func (e *ValidationError) Is(target error) bool { return target == services.ErrValidation }

// RenderError locates an encoder failure within the assembly. Image is -1
// for line-level steps; Line is -1 for the final concat.
type RenderError struct {
	Line  int
	Image int
	Step  string
	Err   error
}

func (e *RenderError) Error() string {
	switch {
	case e.Line < 0:
		return fmt.Sprintf("assemble %s: %v", e.Step, e.Err)
	case e.Image < 0:
		return fmt.Sprintf("line %d %s: %v", e.Line, e.Step, e.Err)
	default:
		return fmt.Sprintf("line %d image %d %s: %v", e.Line, e.Image, e.Step, e.Err)
	}
}

func (e *RenderError) Unwrap() error { return e.Err }
