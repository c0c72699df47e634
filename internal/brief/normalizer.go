// Package brief distills the chat history and free-text input into a
// normalized Brief. The generator reply is JSON-extracted, schema-validated
// and decoded; out-of-contract output surfaces as a Validation error so the
// pipeline can fall back to the built-in default brief.
package brief

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pageforge/pageforge/internal/capability"
	"github.com/pageforge/pageforge/internal/validation"
	"github.com/pageforge/pageforge/pkg/schema"
)

const systemPrompt = `You are a requirements analyst for healthcare and wellness marketing websites.

Analyze the conversation and extract a structured brief for page generation.

Focus areas:
- Medical spas, dental offices, wellness clinics, hospitals, healthcare practices
- Professional yet approachable tone
- Trust-building elements (certifications, testimonials, expertise)
- Clear calls-to-action (book appointment, consultation, etc.)

Return ONLY a JSON object with these exact keys:
{
  "industry": "healthcare/wellness/medical",
  "business_type": "med-spa/dental/wellness/clinic/hospital",
  "tone": "professional/warm/modern/luxurious",
  "key_services": ["service1", "service2"],
  "target_audience": "description",
  "primary_cta": "Book Appointment/Schedule Consultation/etc",
  "sections_requested": ["Header", "Hero", "Services", "Footer"],
  "notes": "optional special requirements"
}`

// Normalizer turns raw conversation input into a validated Brief.
type Normalizer struct {
	gen       capability.TextGenerator
	validator *validation.LLMValidator
	cfg       capability.GenConfig
}

// NewNormalizer creates a brief normalizer. cfg.System is ignored; the
// normalizer installs its own system prompt.
func NewNormalizer(gen capability.TextGenerator, validator *validation.LLMValidator, cfg capability.GenConfig) *Normalizer {
	cfg.System = systemPrompt
	return &Normalizer{gen: gen, validator: validator, cfg: cfg}
}

// Normalize extracts a Brief from the latest input and the chat history.
func (n *Normalizer) Normalize(ctx context.Context, input string, history []schema.ChatMessage) (*schema.Brief, error) {
	if strings.TrimSpace(input) == "" && len(history) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty generation input").WithStage(schema.StageRequirements)
	}

	reply, err := n.gen.Complete(ctx, buildPrompt(input, history), n.cfg)
	if err != nil {
		return nil, stageErr(err)
	}

	raw, err := validation.ExtractJSON(reply)
	if err != nil {
		return nil, stageErr(err)
	}

	var b schema.Brief
	if err := validation.Decode(raw, n.validator.ValidateBrief, &b); err != nil {
		return nil, stageErr(err)
	}
	return &b, nil
}

// Fallback returns the deterministic default brief.
func (n *Normalizer) Fallback() *schema.Brief {
	return schema.DefaultBrief()
}

func buildPrompt(input string, history []schema.ChatMessage) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Previous chat:\n")
		for _, msg := range history {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Latest input:\n")
	sb.WriteString(input)
	return sb.String()
}

func stageErr(err error) error {
	var ferr *schema.ForgeError
	if errors.As(err, &ferr) {
		return ferr.WithStage(schema.StageRequirements)
	}
	return schema.NewError(schema.ErrCodeStageFailed, err.Error()).
		WithStage(schema.StageRequirements).
		WithCause(err)
}
