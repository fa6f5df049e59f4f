package services

import (
	"strings"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
)

func TestBuildSegmentFilterNormalizesFirst(t *testing.T) {
	for _, effect := range []models.Effect{models.EffectZoom, models.EffectPan, models.EffectSlide, models.EffectFade} {
		vf, err := BuildSegmentFilter(effect, 1080, 1920, 5)
		if err != nil {
			t.Fatalf("%s: %v", effect, err)
		}
		prefix := "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black,setsar=1,"
		if !strings.HasPrefix(vf, prefix) {
			t.Errorf("%s: filter does not start with normalization: %s", effect, vf)
		}
	}
}

func TestZoomFilterCapped(t *testing.T) {
	vf, err := BuildSegmentFilter(models.EffectZoom, 1080, 1920, 5)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// 5s at 30fps
	if !strings.Contains(vf, "z='min(1+0.10*on/150,1.10)'") {
		t.Errorf("zoom expression not capped at 1.1: %s", vf)
	}
	if !strings.Contains(vf, "s=1080x1920") {
		t.Errorf("zoompan output size missing: %s", vf)
	}
}

func TestPanFilterUsesSineDrift(t *testing.T) {
	vf, err := BuildSegmentFilter(models.EffectPan, 1080, 1920, 4)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(vf, "scale=1296:2304,crop=1080:1920") {
		t.Errorf("pan should crop a frame from an enlarged image: %s", vf)
	}
	if !strings.Contains(vf, "sin(t/5)") || !strings.Contains(vf, "sin(t/7)") {
		t.Errorf("pan should drift sinusoidally: %s", vf)
	}
}

func TestSlideFilterLinearInTime(t *testing.T) {
	vf, err := BuildSegmentFilter(models.EffectSlide, 1920, 1080, 2.5)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(vf, "x='(iw-ow)*min(t/2.500,1)'") {
		t.Errorf("slide should move linearly over the duration: %s", vf)
	}
}

func TestFadeFilterFirstSecondOnly(t *testing.T) {
	vf, _ := BuildSegmentFilter(models.EffectFade, 1080, 1920, 6)
	if !strings.HasSuffix(vf, "fade=t=in:st=0:d=1.000") {
		t.Errorf("unexpected fade filter: %s", vf)
	}

	short, _ := BuildSegmentFilter(models.EffectFade, 1080, 1920, 0.5)
	if !strings.HasSuffix(short, "fade=t=in:st=0:d=0.500") {
		t.Errorf("fade longer than the clip: %s", short)
	}
}

func TestBuildSegmentFilterUnknownEffect(t *testing.T) {
	if _, err := BuildSegmentFilter("spin", 1080, 1920, 1); err == nil {
		t.Fatal("expected error for unknown effect")
	}
}

func TestEvenScaled(t *testing.T) {
	if got := evenScaled(1081, 1.2); got%2 != 0 {
		t.Errorf("expected even value, got %d", got)
	}
	if got := evenScaled(1080, 1.2); got != 1296 {
		t.Errorf("expected 1296, got %d", got)
	}
}

func TestGapFilterFadesBothEnds(t *testing.T) {
	if got := gapFilter(1); got != "fade=t=in:s=0:n=5,fade=t=out:s=25:n=5" {
		t.Errorf("unexpected gap filter: %s", got)
	}
}
