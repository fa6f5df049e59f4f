package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultGeminiTextModel  = "gemini-2.0-flash"
	defaultGeminiImageModel = "gemini-2.5-flash-image"
	geminiAPIBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
)

// ---------------------------------------------------------------------------
// Text generation (Google Gen AI SDK)
// ---------------------------------------------------------------------------

// GeminiService generates narrative text and scripts with Gemini.
type GeminiService struct {
	apiKey string
	model  string
}

func NewGeminiService(apiKey, model string) *GeminiService {
	if model == "" {
		model = defaultGeminiTextModel
	}
	return &GeminiService{
		apiKey: apiKey,
		model:  model,
	}
}

// GenerateText sends a single prompt and returns the concatenated text of the response.
func (s *GeminiService) GenerateText(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](1),
		TopP:            genai.Ptr[float32](0.95),
		TopK:            genai.Ptr[float32](40),
		MaxOutputTokens: 8192,
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	log.Printf("[Gemini] Generated %d characters with %s", len(text), s.model)
	return text, nil
}

// ---------------------------------------------------------------------------
// Image generation (REST, one API key per call)
// ---------------------------------------------------------------------------

// GeminiImageService renders still images from prompts. The API key is
// supplied per call so a generator can rotate across credentials.
type GeminiImageService struct {
	model              string
	baseURL            string
	styleReferencePath string
	styleImageCache    []byte
	styleMimeType      string
	client             *http.Client
}

// NewGeminiImageService creates an image client. styleReferencePath may be
// empty, in which case prompts are sent as text only.
func NewGeminiImageService(model, styleReferencePath string) *GeminiImageService {
	if model == "" {
		model = defaultGeminiImageModel
	}
	return &GeminiImageService{
		model:              model,
		baseURL:            geminiAPIBaseURL,
		styleReferencePath: styleReferencePath,
		client:             &http.Client{Timeout: 300 * time.Second},
	}
}

// Gemini API request/response structures
type GeminiGenerateContentRequest struct {
	Contents         []GeminiContent         `json:"contents"`
	GenerationConfig *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *GeminiImageConfig `json:"imageConfig,omitempty"`
}

type GeminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GeminiGenerateContentResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

type GeminiCandidate struct {
	Content GeminiContent `json:"content"`
}

// StatusError is a non-200 response from an HTTP API.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, truncateString(e.Body, 200))
}

// GenerateImage renders prompt at the given aspect ratio ("9:16" or "16:9").
func (s *GeminiImageService) GenerateImage(ctx context.Context, apiKey, prompt, aspectRatio string) ([]byte, error) {
	parts := []GeminiPart{{Text: composeImagePrompt(prompt, aspectRatio, s.styleReferencePath != "")}}

	if s.styleReferencePath != "" {
		styleData, mimeType, err := s.loadStyleReferenceImage()
		if err != nil {
			log.Printf("[Gemini] WARNING: could not load style reference image: %v (proceeding without)", err)
			parts[0].Text = composeImagePrompt(prompt, aspectRatio, false)
		} else {
			parts = append(parts, GeminiPart{InlineData: &GeminiInlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(styleData),
			}})
		}
	}

	reqBody := GeminiGenerateContentRequest{
		Contents: []GeminiContent{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: &GeminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        &GeminiImageConfig{AspectRatio: aspectRatio},
		},
	}

	return s.doGenerateContent(ctx, apiKey, reqBody)
}

func (s *GeminiImageService) loadStyleReferenceImage() ([]byte, string, error) {
	if s.styleImageCache != nil {
		return s.styleImageCache, s.styleMimeType, nil
	}

	data, err := os.ReadFile(s.styleReferencePath)
	if err != nil {
		return nil, "", fmt.Errorf("could not load style reference from %s: %w", s.styleReferencePath, err)
	}
	log.Printf("[Gemini] Loaded style reference image from %s (%d bytes)", s.styleReferencePath, len(data))

	mimeType := "image/jpeg"
	if strings.EqualFold(filepath.Ext(s.styleReferencePath), ".png") {
		mimeType = "image/png"
	}

	s.styleImageCache = data
	s.styleMimeType = mimeType
	return data, mimeType, nil
}

func (s *GeminiImageService) doGenerateContent(ctx context.Context, apiKey string, reqBody GeminiGenerateContentRequest) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, s.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Service: "gemini", StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var geminiResp GeminiGenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var textParts []string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			imageData, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 image: %w", err)
			}
			return imageData, nil
		}
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	if len(textParts) > 0 {
		return nil, fmt.Errorf("gemini returned text instead of image: %s", truncateString(textParts[0], 200))
	}
	return nil, fmt.Errorf("no image data found in response (got %d parts, none with inlineData)", len(geminiResp.Candidates[0].Content.Parts))
}

// composeImagePrompt wraps the scene description with orientation and,
// when a reference image is attached, a style instruction.
func composeImagePrompt(basePrompt, aspectRatio string, withStyleRef bool) string {
	var prompt bytes.Buffer

	if withStyleRef {
		prompt.WriteString("STYLE REFERENCE: Use the attached image only as a guide for style, lighting and color palette. Do NOT copy its subject.\n\n")
	}

	prompt.WriteString("SCENE TO DEPICT:\n")
	prompt.WriteString(strings.TrimSpace(basePrompt))

	orientLabel := "Portrait"
	if aspectRatio == "16:9" {
		orientLabel = "Landscape"
	}
	prompt.WriteString(fmt.Sprintf("\n\nOutput: %s %s, no text or captions in the image.", orientLabel, aspectRatio))

	return prompt.String()
}
