package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/guestlens/guestlens/internal/imaging"
)

const geminiModel = "gemini-2.5-flash"

// GeminiProvider compares photos through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) Compare(ctx context.Context, eventPhoto, selfie []byte) (*Verdict, error) {
	const maxRetries = 3

	photo, err := imaging.Resize(eventPhoto, maxImageSize)
	if err != nil {
		return nil, fmt.Errorf("prepare event photo: %w", err)
	}
	reference, err := imaging.Resize(selfie, maxImageSize)
	if err != nil {
		return nil, fmt.Errorf("prepare selfie: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: comparePrompt},
				{InlineData: &genai.Blob{Data: photo, MIMEType: "image/jpeg"}},
				{InlineData: &genai.Blob{Data: reference, MIMEType: "image/jpeg"}},
			},
		},
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}
		lastResponse = content

		var verdict Verdict
		if err := json.Unmarshal([]byte(content), &verdict); err != nil {
			lastError = err
			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: fmt.Sprintf("JSON parse error: %v. Please respond with only the JSON object.", err)}},
				},
			)
			continue
		}
		return &verdict, nil
	}

	return nil, fmt.Errorf("failed to parse verdict JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}
