package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/photo-moments/internal/prompt"
)

const defaultGeminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	usageTracker
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, pricing RequestPricing) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		usageTracker: usageTracker{pricing: pricing},
		client:       client,
		model:        model,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return p.model
}

func (p *GeminiProvider) LabelPhoto(ctx context.Context, imageData []byte) ([]prompt.Label, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildLabelPrompt() + "\n\nLabel this photo."},
				{InlineData: &genai.Blob{Data: imageData, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range maxParseRetries {
		result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		if result.UsageMetadata != nil {
			p.trackUsage(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}
		lastResponse = content

		labels, err := parseLabels(content)
		if err != nil {
			lastError = err
			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: jsonRepairMessage(err)}},
				},
			)
			continue
		}

		return labels, nil
	}

	return nil, fmt.Errorf("failed to parse labels JSON after %d attempts: %w (last response: %s)", maxParseRetries, lastError, lastResponse)
}
