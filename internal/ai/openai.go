package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kozaktomas/photo-moments/internal/prompt"
)

const defaultOpenAIModel = openai.ChatModelGPT4_1Mini

type OpenAIProvider struct {
	usageTracker
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI backed provider. Extra options are
// passed to the client, e.g. option.WithBaseURL for compatible endpoints.
func NewOpenAIProvider(apiKey, model string, pricing RequestPricing, opts ...option.RequestOption) *OpenAIProvider {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIProvider{
		usageTracker: usageTracker{pricing: pricing},
		client:       &client,
		model:        model,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.model
}

func (p *OpenAIProvider) LabelPhoto(ctx context.Context, imageData []byte) ([]prompt.Label, error) {
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(buildLabelPrompt()),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart("Label this photo."),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    imageURL,
							Detail: "low",
						}),
					},
				},
			},
		},
	}

	var lastError error
	var lastResponse string

	for range maxParseRetries {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    p.model,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(300),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}

		if len(resp.Choices) == 0 {
			return nil, errors.New("no response from OpenAI")
		}

		p.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		content := resp.Choices[0].Message.Content
		lastResponse = content

		labels, err := parseLabels(content)
		if err != nil {
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
							OfString: openai.String(jsonRepairMessage(err)),
						},
					},
				},
			)
			continue
		}

		return labels, nil
	}

	return nil, fmt.Errorf("failed to parse labels JSON after %d attempts: %w (last response: %s)", maxParseRetries, lastError, lastResponse)
}
