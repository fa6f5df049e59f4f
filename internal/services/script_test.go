package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
)

func TestParseScriptOutputFenced(t *testing.T) {
	raw := "Here you go:\n```json\n{\"voice_scripts\": [\" one \", \"two\"], \"image_prompts\": [\"a\", \"b\", \"c\", \"d\"]}\n```\nEnjoy!"
	script, err := ParseScriptOutput(raw)
	if err != nil {
		t.Fatalf("ParseScriptOutput: %v", err)
	}
	if len(script.VoiceScripts) != 2 || script.VoiceScripts[0] != "one" {
		t.Errorf("unexpected voice scripts %q", script.VoiceScripts)
	}
	if len(script.ImagePrompts) != 4 {
		t.Errorf("unexpected image prompts %q", script.ImagePrompts)
	}
}

func TestParseScriptOutputBareObject(t *testing.T) {
	raw := `Sure. {"voice_scripts": ["x"], "image_prompts": ["p1", "p2"]}`
	script, err := ParseScriptOutput(raw)
	if err != nil {
		t.Fatalf("ParseScriptOutput: %v", err)
	}
	if len(script.VoiceScripts) != 1 || len(script.ImagePrompts) != 2 {
		t.Errorf("unexpected script %+v", script)
	}
}

func TestParseScriptOutputInvalid(t *testing.T) {
	for _, raw := range []string{"no json here", "```json\n{broken\n```"} {
		if _, err := ParseScriptOutput(raw); !errors.Is(err, ErrValidation) {
			t.Errorf("%q: expected validation error, got %v", raw, err)
		}
	}
}

func TestScriptValidateRatio(t *testing.T) {
	mode, _ := models.LookupChannelMode(models.ModeMotivationVideo)
	script := &Script{VoiceScripts: []string{"a", "b"}, ImagePrompts: make([]string, 6)}
	if err := script.Validate(mode); err != nil {
		t.Errorf("6 images for 2 lines should pass: %v", err)
	}
	script.ImagePrompts = script.ImagePrompts[:5]
	if err := script.Validate(mode); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	empty := &Script{}
	if err := empty.Validate(mode); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for empty script, got %v", err)
	}
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("first\r\n\n  second  \n\t\nthird")
	if strings.Join(got, "|") != "first|second|third" {
		t.Errorf("unexpected lines %q", got)
	}
}

type promptRecorder struct {
	prompts []string
	replies []string
}

func (r *promptRecorder) GenerateText(ctx context.Context, prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	reply := r.replies[0]
	r.replies = r.replies[1:]
	return reply, nil
}

func TestScriptWriter(t *testing.T) {
	mode, _ := models.LookupChannelMode(models.ModeDefault)
	gen := &promptRecorder{replies: []string{
		"A long story.",
		"```json\n{\"voice_scripts\": [\"l1\"], \"image_prompts\": [\"i1\", \"i2\"]}\n```",
	}}
	w := NewScriptWriter(gen)

	content, err := w.WriteContent(context.Background(), "What if Rome never fell", mode)
	if err != nil || content != "A long story." {
		t.Fatalf("WriteContent = %q, %v", content, err)
	}
	if !strings.Contains(gen.prompts[0], "What if Rome never fell") {
		t.Error("content prompt should carry the title")
	}

	script, err := w.WriteScript(context.Background(), content, mode)
	if err != nil {
		t.Fatalf("WriteScript: %v", err)
	}
	if len(script.ImagePrompts) != 2 {
		t.Errorf("unexpected script %+v", script)
	}
	if !strings.Contains(gen.prompts[1], "A long story.") || !strings.Contains(gen.prompts[1], "vertical 9:16") {
		t.Errorf("script prompt missing content or orientation: %s", gen.prompts[1])
	}
}

func TestWriteContentRequiresTitle(t *testing.T) {
	w := NewScriptWriter(&promptRecorder{})
	mode, _ := models.LookupChannelMode("")
	if _, err := w.WriteContent(context.Background(), "  ", mode); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestScriptPromptLineCounts(t *testing.T) {
	mode, _ := models.LookupChannelMode(models.ModeMotivationShorts)
	prompt := ScriptPrompt("content", mode)
	if !strings.Contains(prompt, "Exactly 2 voice scripts") || !strings.Contains(prompt, "Exactly 10 image prompts") {
		t.Errorf("unexpected prompt: %s", prompt)
	}
	landscape, _ := models.LookupChannelMode(models.ModeMotivationVideo)
	if !strings.Contains(ScriptPrompt("c", landscape), "horizontal 16:9") {
		t.Error("landscape mode should ask for horizontal images")
	}
}
