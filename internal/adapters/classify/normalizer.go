package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"muckrake/internal/core/labelcache"
	perr "muckrake/internal/platform/errors"
)

// Normalizer canonicalizes entity labels through the model, one batched
// call per label set. It implements domain.LabelNormalizer.
type Normalizer struct {
	api   messageAPI
	model string
}

// NewNormalizer builds the label normalizer
func NewNormalizer(cfg Config) *Normalizer {
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return newNormalizer(&client.Messages, cfg)
}

func newNormalizer(api messageAPI, cfg Config) *Normalizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Normalizer{api: api, model: cfg.Model}
}

type normalizedJSON struct {
	NormalizedEntities []struct {
		OriginalValue   string  `json:"original_value"`
		NormalizedValue string  `json:"normalized_value"`
		Confidence      float64 `json:"confidence"`
		Reason          string  `json:"reason"`
	} `json:"normalized_entities"`
}

// NormalizeLabels implements domain.LabelNormalizer. The result maps each
// input label to its canonical entry; labels the model dropped are absent.
func (n *Normalizer) NormalizeLabels(ctx context.Context, labels []string) (map[string]labelcache.Entry, error) {
	if len(labels) == 0 {
		return map[string]labelcache.Entry{}, nil
	}
	text, err := complete(ctx, n.api, n.model, n.prompt(labels))
	if err != nil {
		return nil, perr.Classificationf("normalize labels: %v", err)
	}
	var parsed normalizedJSON
	if err := json.Unmarshal([]byte(stripFences(text)), &parsed); err != nil {
		return nil, perr.Classificationf("normalize labels: bad json: %v", err)
	}

	out := make(map[string]labelcache.Entry, len(parsed.NormalizedEntities))
	for _, e := range parsed.NormalizedEntities {
		if e.OriginalValue == "" || e.NormalizedValue == "" {
			continue
		}
		out[e.OriginalValue] = labelcache.Entry{
			OriginalValue:   e.OriginalValue,
			NormalizedValue: e.NormalizedValue,
			Confidence:      e.Confidence,
			Reason:          e.Reason,
		}
	}
	return out, nil
}

func (n *Normalizer) prompt(labels []string) string {
	var list strings.Builder
	for _, l := range labels {
		fmt.Fprintf(&list, "- %s\n", l)
	}
	return fmt.Sprintf(`Normalize these entity names from Jamaican news coverage into canonical forms.

Rules:
1. Remove honorifics and titles (Hon., Dr., Minister, MP)
2. Lowercase everything
3. Replace spaces with underscores in the normalized form
4. Keep well-known acronyms as the lowercased acronym

Entities:
%s
Return ONLY a JSON object with no other text:
{"normalized_entities": [{"original_value": string, "normalized_value": string, "confidence": number between 0 and 1, "reason": string}]}
Include one entry per input entity, with original_value copied verbatim.`, list.String())
}
