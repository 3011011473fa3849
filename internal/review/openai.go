package review

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/guestlens/guestlens/internal/imaging"
)

const openAIModel = openai.ChatModelGPT4_1Mini

// OpenAIProvider compares photos through the OpenAI chat API.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) Name() string {
	return openAIModel
}

func (p *OpenAIProvider) Compare(ctx context.Context, eventPhoto, selfie []byte) (*Verdict, error) {
	const maxRetries = 3

	photoURL, err := dataURL(eventPhoto)
	if err != nil {
		return nil, fmt.Errorf("prepare event photo: %w", err)
	}
	selfieURL, err := dataURL(selfie)
	if err != nil {
		return nil, fmt.Errorf("prepare selfie: %w", err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(comparePrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart("Compare the two images."),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    photoURL,
							Detail: "low",
						}),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    selfieURL,
							Detail: "low",
						}),
					},
				},
			},
		},
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    openAIModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(200),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("no response from OpenAI")
		}

		content := resp.Choices[0].Message.Content
		lastResponse = content

		var verdict Verdict
		if err := json.Unmarshal([]byte(content), &verdict); err != nil {
			lastError = err
			messages = append(messages,
				openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(content),
						},
					},
				},
				openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(fmt.Sprintf("JSON parse error: %v. Please respond with only the JSON object.", err)),
						},
					},
				},
			)
			continue
		}
		return &verdict, nil
	}

	return nil, fmt.Errorf("failed to parse verdict JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}

// dataURL resizes an image and encodes it as a base64 JPEG data URL.
func dataURL(data []byte) (string, error) {
	resized, err := imaging.Resize(data, maxImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized), nil
}
