// Package classify implements relevance classification and entity-label
// normalization on top of the Anthropic API
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	perr "muckrake/internal/platform/errors"
	"muckrake/internal/services/pipeline/domain"
)

// DefaultModel is used when none is configured
const DefaultModel = string(anthropic.ModelClaudeSonnet4_0)

// messageAPI is the slice of the Anthropic client the adapters call,
// narrowed so tests can stub it
type messageAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config configures the classification adapters
type Config struct {
	APIKey string
	Model  string

	// Topic steers the relevance question, e.g. "corruption and
	// government accountability issues"
	Topic string
}

// Corruption classifies articles for corruption and accountability
// relevance. It implements domain.Classifier.
type Corruption struct {
	api   messageAPI
	model string
	topic string
}

// NewCorruption builds the classifier
func NewCorruption(cfg Config) *Corruption {
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return newCorruption(&client.Messages, cfg)
}

func newCorruption(api messageAPI, cfg Config) *Corruption {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Topic == "" {
		cfg.Topic = "corruption and government accountability issues"
	}
	return &Corruption{api: api, model: cfg.Model, topic: cfg.Topic}
}

// Name implements domain.Classifier
func (c *Corruption) Name() string { return "corruption" }

// verdictJSON is the strict response schema the model must produce
type verdictJSON struct {
	IsRelevant  bool     `json:"is_relevant"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	KeyEntities []string `json:"key_entities"`
}

// Classify implements domain.Classifier
func (c *Corruption) Classify(ctx context.Context, in domain.ClassificationInput) (domain.Verdict, error) {
	text, err := c.complete(ctx, c.prompt(in))
	if err != nil {
		return domain.Verdict{}, perr.Classificationf("classify %s: %v", in.URL, err)
	}

	var v verdictJSON
	if err := json.Unmarshal([]byte(stripFences(text)), &v); err != nil {
		return domain.Verdict{}, perr.Classificationf("classify %s: bad verdict json: %v", in.URL, err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return domain.Verdict{}, perr.Classificationf("classify %s: confidence %v out of range", in.URL, v.Confidence)
	}
	return domain.Verdict{
		IsRelevant:  v.IsRelevant,
		Confidence:  v.Confidence,
		Reasoning:   v.Reasoning,
		KeyEntities: v.KeyEntities,
		Classifier:  c.Name(),
		Model:       c.model,
	}, nil
}

func (c *Corruption) prompt(in domain.ClassificationInput) string {
	published := "Unknown"
	if in.PublishedAt != nil {
		published = in.PublishedAt.Format("2006-01-02")
	}
	return fmt.Sprintf(`Analyze this Jamaican news article for %s.

**Article Details:**
- Title: %s
- URL: %s
- Section: %s
- Published: %s

**Full Text:**
%s

Return ONLY a JSON object with these fields and no other text:
{"is_relevant": bool, "confidence": number between 0 and 1, "reasoning": string, "key_entities": [string]}`,
		c.topic, in.Title, in.URL, in.Section, published, in.FullText)
}

func (c *Corruption) complete(ctx context.Context, prompt string) (string, error) {
	return complete(ctx, c.api, c.model, prompt)
}

func complete(ctx context.Context, api messageAPI, model, prompt string) (string, error) {
	resp, err := api.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 2000,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty model response")
	}
	return sb.String(), nil
}

// stripFences tolerates models wrapping their JSON in a markdown code block
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
