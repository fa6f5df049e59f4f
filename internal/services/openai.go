package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIService talks to OpenAI or any OpenAI-compatible endpoint (for
// example OpenRouter) for text generation, and to Whisper for captions.
type OpenAIService struct {
	client *openai.Client
	model  string
}

// NewOpenAIService creates a client. An empty baseURL targets api.openai.com.
func NewOpenAIService(apiKey, baseURL, model string) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// GenerateText sends prompt as a single user message and returns the reply.
func (s *OpenAIService) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 1.0,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai returned an empty response")
	}

	log.Printf("[OpenAI] Generated %d characters with %s", len(text), s.model)
	return text, nil
}

// ---------------------------------------------------------------------------
// Whisper transcription: word-level timestamps for captions
// ---------------------------------------------------------------------------

// WordTimestamp represents a single word with its precise timing from Whisper.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
}

// TranscribeAudio sends audio to OpenAI Whisper and returns word-level timestamps.
// fileName is a hint for the container format (e.g. "audio.wav").
func (s *OpenAIService) TranscribeAudio(ctx context.Context, audioData []byte, fileName, language string) ([]WordTimestamp, error) {
	if language == "" {
		language = "en"
	}
	if fileName == "" {
		fileName = "audio.wav"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audioData),
		FilePath: fileName,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	if len(resp.Words) == 0 {
		return nil, fmt.Errorf("whisper returned no word timestamps (text: %q)", resp.Text)
	}

	words := make([]WordTimestamp, len(resp.Words))
	for i, w := range resp.Words {
		words[i] = WordTimestamp{
			Word:  strings.TrimSpace(w.Word),
			Start: w.Start,
			End:   w.End,
		}
	}

	log.Printf("[Whisper] Transcribed %d words (duration: %.1fs, text: %q)",
		len(words), resp.Duration, truncateString(resp.Text, 80))

	return words, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
