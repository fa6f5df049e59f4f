package services

import (
	"fmt"

	"github.com/bobarin/storyreel/internal/models"
)

// Voice lines requested from the script prompt, per channel mode.
var scriptLineCounts = map[string]int{
	models.ModeDefault:          10,
	models.ModeMotivationVideo:  8,
	models.ModeMotivationShorts: 2,
}

// ScriptLineCount returns how many voice lines the script prompt asks for.
func ScriptLineCount(mode models.ChannelMode) int {
	if n, ok := scriptLineCounts[mode.Name]; ok {
		return n
	}
	return 10
}

const historyContentPrompt = `You write scripts for a YouTube Shorts channel about alternate history and "what if" scenarios grounded in real events.

Title: "%s"

Write a single continuous narrative of about 60 seconds of narration. Open with a hook in the first sentence, keep the story linear, build curiosity, and end on a line that makes viewers want to comment. Plain prose only: no headings, no bullet points, no stage directions.`

const motivationContentPrompt = `You write scripts for a motivational YouTube channel.

Title: "%s"

Write a %s motivational script built entirely around the title. Open with a bold statement that challenges a common assumption, use a real story or concrete scenario if it helps, and close with one clear action the viewer can take today. Speak directly to the viewer. Plain prose only: no headings, no bullet points, no timestamps.`

const scriptPrompt = `Turn the content below into a narrated video script.

Content:
%s

Requirements:
- Exactly %d voice scripts. Each is %s and must read naturally on its own when spoken aloud.
- Exactly %d image prompts: %d per voice script, in the same order, so image prompts %d..%d illustrate voice script 1 and so on.
- Image prompts are vivid, concrete scene descriptions for an image model (%s composition). Describe setting, lighting, mood and subject. Never ask for text in the image.

Respond with a single fenced block and nothing else:
` + "```json" + `
{"voice_scripts": ["..."], "image_prompts": ["..."]}
` + "```"

// ContentPrompt builds the narrative prompt for a title.
func ContentPrompt(title string, mode models.ChannelMode) string {
	switch mode.Name {
	case models.ModeMotivationVideo:
		return fmt.Sprintf(motivationContentPrompt, title, "long-form (5 to 8 minute)")
	case models.ModeMotivationShorts:
		return fmt.Sprintf(motivationContentPrompt, title, "short (under 60 seconds)")
	default:
		return fmt.Sprintf(historyContentPrompt, title)
	}
}

// ScriptPrompt builds the prompt that splits content into voice scripts and image prompts.
func ScriptPrompt(content string, mode models.ChannelMode) string {
	lines := ScriptLineCount(mode)
	lineLength := "one or two sentences, about 6 seconds when spoken"
	if !mode.ShortForm || mode.ImagesPerLine > 2 {
		lineLength = "a full paragraph"
	}
	orientation := "vertical 9:16"
	if !mode.Portrait() {
		orientation = "horizontal 16:9"
	}
	return fmt.Sprintf(scriptPrompt,
		content,
		lines, lineLength,
		mode.ExpectedImages(lines), mode.ImagesPerLine, 1, mode.ImagesPerLine,
		orientation,
	)
}
