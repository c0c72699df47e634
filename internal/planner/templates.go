// Package planner turns a Brief and DesignSystem into a PageSpec and expands
// it into the concrete component tree. Planning is generator-backed with
// deterministic section templates as fallback; composition is fully
// deterministic so identical inputs yield identical trees.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/pageforge/pageforge/pkg/schema"
)

// SectionTemplate is one candidate section of a page-kind template. Include is
// an optional CEL predicate over the brief; empty means always included.
type SectionTemplate struct {
	Type    string
	Include string
	Props   func(b *schema.Brief) map[string]any
}

// pageTemplates maps a page kind to its ordered section templates. Unknown
// kinds fall back to the Home template.
var pageTemplates = map[string][]SectionTemplate{
	"Home": {
		{Type: "Header", Props: headerProps},
		{Type: "Hero", Props: heroProps},
		{Type: "Services", Props: servicesProps},
		{Type: "Features", Props: featuresProps},
		{Type: "BeforeAfter", Include: `brief.business_type == "med-spa"`, Props: beforeAfterProps},
		{Type: "Testimonials", Include: `"Testimonials" in brief.sections_requested`, Props: testimonialsProps},
		{Type: "CTA", Props: ctaProps},
		{Type: "Footer", Props: footerProps},
	},
	"Landing": {
		{Type: "Header", Props: headerProps},
		{Type: "Hero", Props: heroProps},
		{Type: "Features", Props: featuresProps},
		{Type: "Testimonials", Include: `"Testimonials" in brief.sections_requested`, Props: testimonialsProps},
		{Type: "CTA", Props: ctaProps},
		{Type: "Footer", Props: footerProps},
	},
	"Services": {
		{Type: "Header", Props: headerProps},
		{Type: "Hero", Props: heroProps},
		{Type: "Services", Props: servicesProps},
		{Type: "FAQ", Include: `"FAQ" in brief.sections_requested`, Props: faqProps},
		{Type: "CTA", Props: ctaProps},
		{Type: "Footer", Props: footerProps},
	},
	"About": {
		{Type: "Header", Props: headerProps},
		{Type: "Hero", Props: heroProps},
		{Type: "About", Props: aboutProps},
		{Type: "Testimonials", Include: `"Testimonials" in brief.sections_requested`, Props: testimonialsProps},
		{Type: "CTA", Props: ctaProps},
		{Type: "Footer", Props: footerProps},
	},
	"Contact": {
		{Type: "Header", Props: headerProps},
		{Type: "Hero", Props: heroProps},
		{Type: "Contact", Props: contactProps},
		{Type: "Footer", Props: footerProps},
	},
}

// TemplateEngine expands page-kind templates deterministically, evaluating
// include predicates against the brief. Thread-safe: compiled programs are
// cached and reused.
type TemplateEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewTemplateEngine creates the engine with a sandboxed CEL environment
// exposing a single top-level variable:
//   - brief: map(string, dyn) holding the normalized brief fields
func NewTemplateEngine() (*TemplateEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("brief", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &TemplateEngine{env: env, cache: make(map[string]cel.Program)}, nil
}

// Expand builds the deterministic PageSpec for a page kind from its template.
func (e *TemplateEngine) Expand(ctx context.Context, pageKind string, b *schema.Brief) (*schema.PageSpec, error) {
	templates, ok := pageTemplates[pageKind]
	if !ok {
		templates = pageTemplates["Home"]
	}

	briefEnv, err := briefActivation(b)
	if err != nil {
		return nil, err
	}

	spec := &schema.PageSpec{
		PageName: pageName(pageKind, b),
		Assets:   map[string]string{},
	}
	for _, tpl := range templates {
		if tpl.Include != "" {
			include, err := e.evalInclude(tpl.Include, briefEnv)
			if err != nil {
				return nil, err
			}
			if !include {
				continue
			}
		}
		spec.Sections = append(spec.Sections, schema.SectionSpec{Type: tpl.Type, Props: tpl.Props(b)})
	}
	return spec, nil
}

func (e *TemplateEngine) evalInclude(expression string, activation map[string]any) (bool, error) {
	prg, err := e.getOrCompile(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"include condition failed for %q: %s", expression, err.Error()).WithCause(err)
	}

	verdict, ok := out.Value().(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "include condition %q is not boolean", expression)
	}
	return verdict, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *TemplateEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).WithCause(issues.Err())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).WithCause(err)
	}

	e.cache[expression] = prg
	return prg, nil
}

// briefActivation converts the brief into the CEL activation map via JSON so
// field names match the wire form (business_type, sections_requested).
func briefActivation(b *schema.Brief) (map[string]any, error) {
	buf, err := json.Marshal(b)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "marshal brief for template evaluation").WithCause(err)
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "unmarshal brief for template evaluation").WithCause(err)
	}
	// Absent optional arrays become empty lists so membership checks work.
	if m["key_services"] == nil {
		m["key_services"] = []any{}
	}
	if m["sections_requested"] == nil {
		m["sections_requested"] = []any{}
	}
	return map[string]any{"brief": m}, nil
}

func pageName(pageKind string, b *schema.Brief) string {
	bt := b.BusinessType
	if bt == "" {
		bt = b.Industry
	}
	if bt == "" {
		return pageKind + " Page"
	}
	return fmt.Sprintf("%s %s", capitalize(bt), pageKind)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func headerProps(b *schema.Brief) map[string]any {
	return map[string]any{
		"logo": true,
		"nav":  []any{"Home", "Services", "About", "Contact"},
		"cta":  b.PrimaryCTA,
	}
}

func heroProps(b *schema.Brief) map[string]any {
	title := "Professional Care You Can Trust"
	if len(b.KeyServices) > 0 {
		title = b.KeyServices[0]
	}
	return map[string]any{
		"title":     title,
		"subtitle":  fmt.Sprintf("Expert %s for %s", b.BusinessType, b.TargetAudience),
		"cta":       b.PrimaryCTA,
		"imageSlot": "hero",
	}
}

func servicesProps(b *schema.Brief) map[string]any {
	services := make([]any, 0, len(b.KeyServices))
	for _, s := range b.KeyServices {
		services = append(services, map[string]any{"name": s})
	}
	return map[string]any{"title": "Our Services", "services": services}
}

func featuresProps(b *schema.Brief) map[string]any {
	return map[string]any{
		"title": "Why Choose Us",
		"items": []any{"Experienced Team", "Modern Facilities", "Personalized Plans"},
	}
}

func beforeAfterProps(b *schema.Brief) map[string]any {
	return map[string]any{"title": "Real Results", "imageSlot": "beforeafter"}
}

func testimonialsProps(b *schema.Brief) map[string]any {
	return map[string]any{"title": "What Our Patients Say"}
}

func ctaProps(b *schema.Brief) map[string]any {
	return map[string]any{"title": "Ready to Get Started?", "cta": b.PrimaryCTA}
}

func faqProps(b *schema.Brief) map[string]any {
	return map[string]any{"title": "Frequently Asked Questions"}
}

func aboutProps(b *schema.Brief) map[string]any {
	return map[string]any{"title": "About Us", "imageSlot": "about"}
}

func contactProps(b *schema.Brief) map[string]any {
	return map[string]any{"title": "Get In Touch", "cta": b.PrimaryCTA}
}

func footerProps(b *schema.Brief) map[string]any {
	return map[string]any{"nav": []any{"Privacy", "Terms", "Contact"}}
}
