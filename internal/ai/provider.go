package ai

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kozaktomas/photo-moments/internal/config"
	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/prompt"
)

//go:embed prompts/photo_labels.txt
var photoLabelsPrompt string

// maxParseRetries is how many times a model is asked to repair invalid JSON.
const maxParseRetries = 3

// Provider defines the interface for vision model backends that label photos.
type Provider interface {
	Name() string
	LabelPhoto(ctx context.Context, imageData []byte) ([]prompt.Label, error)

	// Usage tracking.
	GetUsage() Usage
	ResetUsage()
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens.
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker is embedded by providers. Labeling runs concurrently, so
// every update is guarded.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (u *usageTracker) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

func (u *usageTracker) ResetUsage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage = Usage{}
}

func (u *usageTracker) trackUsage(inputTokens, outputTokens int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.Requests++
	u.usage.InputTokens += int(inputTokens)
	u.usage.OutputTokens += int(outputTokens)
	u.usage.TotalCost += float64(inputTokens) / 1_000_000 * u.pricing.Input
	u.usage.TotalCost += float64(outputTokens) / 1_000_000 * u.pricing.Output
}

// LabelWithConfidence is one label as returned by a model.
type LabelWithConfidence struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // 0-1
}

type labelResponse struct {
	Labels []LabelWithConfidence `json:"labels"`
}

// buildLabelPrompt returns the system prompt with the label vocabulary filled in.
func buildLabelPrompt() string {
	vocabulary, _ := json.Marshal(prompt.Vocabulary())
	return fmt.Sprintf(photoLabelsPrompt, string(vocabulary))
}

// parseLabels decodes a model response. Labels without a name are dropped
// and confidences are clamped to [0, 1].
func parseLabels(content string) ([]prompt.Label, error) {
	var resp labelResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &resp); err != nil {
		return nil, err
	}
	labels := make([]prompt.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			continue
		}
		labels = append(labels, prompt.Label{Name: name, Confidence: min(max(l.Confidence, 0), 1)})
	}
	return labels, nil
}

// jsonRepairMessage is sent back to a model after it produced invalid JSON.
func jsonRepairMessage(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Output ONLY valid JSON, no other text.", err)
}

// extractJSON attempts to extract a JSON object from a response that may contain extra text.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return content[start:]
}

// ErrUnknownProvider is returned by NewProvider for an unsupported name.
var ErrUnknownProvider = errors.New("unknown label provider")

// NewProvider creates the vision provider named by name (openai, gemini or
// ollama) from cfg.
func NewProvider(ctx context.Context, name string, cfg *config.Config) (Provider, error) {
	switch name {
	case constants.ProviderOpenAI:
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai label provider")
		}
		model := cfg.OpenAI.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIProvider(cfg.OpenAI.Token, model, pricingFor(cfg, model)), nil
	case constants.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini label provider")
		}
		model := cfg.Gemini.Model
		if model == "" {
			model = defaultGeminiModel
		}
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey, model, pricingFor(cfg, model))
	case constants.ProviderOllama:
		return NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

func pricingFor(cfg *config.Config, model string) RequestPricing {
	p := cfg.GetModelPricing(model).Standard
	return RequestPricing{Input: p.Input, Output: p.Output}
}
