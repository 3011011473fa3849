// Package review asks a vision model for a second opinion on recorded
// candidate matches. Verdicts are advisory: a candidate is never promoted
// automatically.
package review

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/guestlens/guestlens/internal/config"
)

//go:embed prompts/compare.txt
var comparePrompt string

// maxImageSize is the longest edge sent to the vision model. Full-size event
// photos waste tokens without improving the verdict.
const maxImageSize = 800

// Verdict is the model's answer for one candidate photo.
type Verdict struct {
	SamePerson bool    `json:"same_person"`
	Confidence float64 `json:"confidence"` // 0-1
	Reasoning  string  `json:"reasoning"`
}

// Provider is a vision model backend that can compare two images.
type Provider interface {
	Name() string
	// Compare asks whether the person in the reference selfie appears in
	// the event photo.
	Compare(ctx context.Context, eventPhoto, selfie []byte) (*Verdict, error)
}

// New creates the named provider from configuration.
func New(ctx context.Context, cfg *config.Config, name string) (Provider, error) {
	switch name {
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, fmt.Errorf("OPENAI_TOKEN is required for the openai provider")
		}
		return NewOpenAIProvider(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey)
	case "ollama":
		return NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("unknown review provider: %s (supported: openai, gemini, ollama)", name)
	}
}

// extractJSON attempts to extract a JSON object from a response that may
// contain extra text around it.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return content[start:]
}
