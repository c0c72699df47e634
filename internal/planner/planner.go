package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pageforge/pageforge/internal/capability"
	"github.com/pageforge/pageforge/internal/validation"
	"github.com/pageforge/pageforge/pkg/schema"
)

const planningPrompt = `You are a page layout planner for healthcare and wellness websites.

HEALTHCARE LAYOUT PRINCIPLES:
1. Trust & Credibility First - professional header, certifications visible
2. Clear Value Proposition - hero section with primary service/benefit
3. Social Proof - testimonials, before/after, credentials
4. Service Clarity - clear service descriptions with benefits
5. Easy Action - prominent call-to-action buttons

AVAILABLE SECTION TYPES:
Header, Hero, Services, About, Features, Testimonials, BeforeAfter, CTA, FAQ, Contact, Footer

Return ONLY a JSON object with this exact structure:
{
  "page_name": "Page Name",
  "sections": [
    {"type": "Header", "props": {"logo": true, "nav": ["Home", "Services"], "cta": "Book Now"}},
    {"type": "Hero", "props": {"title": "Headline", "subtitle": "Supporting text", "cta": "Button", "imageSlot": "hero"}}
  ],
  "assets": {}
}`

// Planner creates a PageSpec from a Brief plus the merged design system. The
// generator plans the layout; out-of-contract output falls back to the
// deterministic page-kind template.
type Planner struct {
	gen       capability.TextGenerator
	validator *validation.LLMValidator
	templates *TemplateEngine
	cfg       capability.GenConfig
}

// NewPlanner creates a planner. cfg.System is ignored; the planner installs
// its own system prompt.
func NewPlanner(gen capability.TextGenerator, validator *validation.LLMValidator, templates *TemplateEngine, cfg capability.GenConfig) *Planner {
	cfg.System = planningPrompt
	return &Planner{gen: gen, validator: validator, templates: templates, cfg: cfg}
}

// Plan asks the generator for a page layout and validates the result. On a
// redesign the pinned slot list names sections that must stay planned.
func (p *Planner) Plan(ctx context.Context, b *schema.Brief, ds *schema.DesignSystem, pageKind string, pinnedSlots []string) (*schema.PageSpec, error) {
	reply, err := p.gen.Complete(ctx, planInput(b, ds, pageKind, pinnedSlots), p.cfg)
	if err != nil {
		return nil, planErr(err)
	}

	raw, err := validation.ExtractJSON(reply)
	if err != nil {
		return nil, planErr(err)
	}

	var spec schema.PageSpec
	if err := validation.Decode(raw, p.validator.ValidatePageSpec, &spec); err != nil {
		return nil, planErr(err)
	}
	ensurePinnedSections(&spec, pinnedSlots)
	return &spec, nil
}

// Fallback expands the deterministic template for the page kind.
func (p *Planner) Fallback(ctx context.Context, b *schema.Brief, pageKind string, pinnedSlots []string) (*schema.PageSpec, error) {
	spec, err := p.templates.Expand(ctx, pageKind, b)
	if err != nil {
		return nil, err
	}
	ensurePinnedSections(spec, pinnedSlots)
	return spec, nil
}

// ensurePinnedSections appends a section for any pinned slot the plan left
// out, so redesigns keep composing the sections the user pinned.
func ensurePinnedSections(spec *schema.PageSpec, pinnedSlots []string) {
	present := make(map[string]bool, len(spec.Sections))
	for _, s := range spec.Sections {
		present[strings.ToLower(s.Type)] = true
	}
	for _, slot := range pinnedSlots {
		name := sectionForSlot(slot)
		if name == "" || present[strings.ToLower(name)] {
			continue
		}
		spec.Sections = append(spec.Sections, schema.SectionSpec{Type: name})
		present[strings.ToLower(name)] = true
	}
}

// sectionForSlot maps a pinned slot tag ("section:features" or "Features")
// to its section type name.
func sectionForSlot(slot string) string {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(slot), "section:"))
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func planInput(b *schema.Brief, ds *schema.DesignSystem, pageKind string, pinnedSlots []string) string {
	var sb strings.Builder
	sb.WriteString("Create a page layout for:\n\nBusiness Brief:\n")
	fmt.Fprintf(&sb, "Industry: %s\n", b.Industry)
	fmt.Fprintf(&sb, "Business Type: %s\n", b.BusinessType)
	fmt.Fprintf(&sb, "Tone: %s\n", b.Tone)
	fmt.Fprintf(&sb, "Key Services: %s\n", strings.Join(b.KeyServices, ", "))
	fmt.Fprintf(&sb, "Target Audience: %s\n", b.TargetAudience)
	fmt.Fprintf(&sb, "Primary CTA: %s\n", b.PrimaryCTA)
	fmt.Fprintf(&sb, "Requested Sections: %s\n", strings.Join(b.Sections, ", "))
	if b.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", b.Notes)
	}

	sb.WriteString("\nDesign System:\n")
	if t, ok := ds.Color("primary"); ok {
		fmt.Fprintf(&sb, "Primary Color: %s\n", t.Hex)
	}
	if t, ok := ds.Type("body"); ok {
		fmt.Fprintf(&sb, "Font Family: %s\n", t.Family)
	}

	fmt.Fprintf(&sb, "\nPage Type: %s\n", pageKind)
	if len(pinnedSlots) > 0 {
		fmt.Fprintf(&sb, "Pinned Sections (keep them in the layout): %s\n", strings.Join(pinnedSlots, ", "))
	}
	return sb.String()
}

func planErr(err error) error {
	var ferr *schema.ForgeError
	if errors.As(err, &ferr) {
		return ferr.WithStage(schema.StagePlanning)
	}
	return schema.NewError(schema.ErrCodeStageFailed, err.Error()).
		WithStage(schema.StagePlanning).
		WithCause(err)
}
