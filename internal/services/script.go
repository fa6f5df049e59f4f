package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
)

// TextGenerator is a language model that answers a single prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Script is the narration split into voice lines and the image prompts that illustrate them.
type Script struct {
	VoiceScripts []string `json:"voice_scripts"`
	ImagePrompts []string `json:"image_prompts"`
}

// Validate checks the image/voice ratio for the mode.
func (s *Script) Validate(mode models.ChannelMode) error {
	if len(s.VoiceScripts) == 0 {
		return Wrap(ErrValidation, "script", "validate", "no voice scripts", nil)
	}
	if want := mode.ExpectedImages(len(s.VoiceScripts)); len(s.ImagePrompts) != want {
		return Wrap(ErrValidation, "script", "validate",
			fmt.Sprintf("mode %s needs %d image prompts for %d voice scripts, got %d",
				mode.Name, want, len(s.VoiceScripts), len(s.ImagePrompts)), nil)
	}
	for i, line := range s.VoiceScripts {
		if strings.TrimSpace(line) == "" {
			return Wrap(ErrValidation, "script", "validate", fmt.Sprintf("voice script %d is empty", i+1), nil)
		}
	}
	return nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseScriptOutput extracts the script from a model reply. The reply is
// expected to hold a fenced json block; a bare JSON object is accepted too.
func ParseScriptOutput(raw string) (*Script, error) {
	payload := ""
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		payload = m[1]
	} else if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		payload = raw[start : end+1]
	}
	if payload == "" {
		return nil, Wrap(ErrValidation, "script", "parse", "no JSON block in model output", nil)
	}

	var script Script
	if err := json.Unmarshal([]byte(payload), &script); err != nil {
		return nil, Wrap(ErrValidation, "script", "parse", "invalid JSON", err)
	}
	script.VoiceScripts = trimAll(script.VoiceScripts)
	script.ImagePrompts = trimAll(script.ImagePrompts)
	return &script, nil
}

// SplitLines turns user-supplied text into one entry per non-blank line.
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ScriptWriter produces narrative content and scripts through a TextGenerator.
type ScriptWriter struct {
	gen TextGenerator
}

func NewScriptWriter(gen TextGenerator) *ScriptWriter {
	return &ScriptWriter{gen: gen}
}

// WriteContent generates the narrative for a title.
func (w *ScriptWriter) WriteContent(ctx context.Context, title string, mode models.ChannelMode) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", Wrap(ErrValidation, "content", "generate", "title is required", nil)
	}
	content, err := w.gen.GenerateText(ctx, ContentPrompt(title, mode))
	if err != nil {
		return "", Wrap(ErrExternalTool, "content", "generate", "", err)
	}
	log.Printf("[Script] Content for %q: %d characters", title, len(content))
	return content, nil
}

// WriteScript splits content into voice scripts and image prompts and
// checks the result against the mode.
func (w *ScriptWriter) WriteScript(ctx context.Context, content string, mode models.ChannelMode) (*Script, error) {
	raw, err := w.gen.GenerateText(ctx, ScriptPrompt(content, mode))
	if err != nil {
		return nil, Wrap(ErrExternalTool, "script", "generate", "", err)
	}
	script, err := ParseScriptOutput(raw)
	if err != nil {
		log.Printf("[Script] Unparsable model output: %s", truncateString(raw, 500))
		return nil, err
	}
	if err := script.Validate(mode); err != nil {
		return nil, err
	}
	log.Printf("[Script] %d voice scripts, %d image prompts", len(script.VoiceScripts), len(script.ImagePrompts))
	return script, nil
}
