package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/pkg/schema"
)

func sectionTypes(spec *schema.PageSpec) []string {
	out := make([]string, 0, len(spec.Sections))
	for _, s := range spec.Sections {
		out = append(out, s.Type)
	}
	return out
}

func TestExpandHomeTemplate(t *testing.T) {
	e, err := NewTemplateEngine()
	require.NoError(t, err)

	b := schema.DefaultBrief()
	spec, err := e.Expand(context.Background(), "Home", b)
	require.NoError(t, err)

	types := sectionTypes(spec)
	assert.Contains(t, types, "Header")
	assert.Contains(t, types, "Hero")
	assert.Contains(t, types, "Services")
	assert.Contains(t, types, "Footer")
	// DefaultBrief is a clinic without Testimonials requested.
	assert.NotContains(t, types, "Testimonials")
	assert.NotContains(t, types, "BeforeAfter")
}

func TestExpandIncludeConditions(t *testing.T) {
	e, err := NewTemplateEngine()
	require.NoError(t, err)

	b := &schema.Brief{
		Industry:       "healthcare",
		BusinessType:   "med-spa",
		Tone:           "luxurious",
		TargetAudience: "adults",
		PrimaryCTA:     "Book Now",
		Sections:       []string{"Hero", "Testimonials"},
	}

	spec, err := e.Expand(context.Background(), "Home", b)
	require.NoError(t, err)

	types := sectionTypes(spec)
	assert.Contains(t, types, "BeforeAfter")
	assert.Contains(t, types, "Testimonials")
}

func TestExpandUnknownKindFallsBackToHome(t *testing.T) {
	e, err := NewTemplateEngine()
	require.NoError(t, err)

	home, err := e.Expand(context.Background(), "Home", schema.DefaultBrief())
	require.NoError(t, err)
	other, err := e.Expand(context.Background(), "SomethingElse", schema.DefaultBrief())
	require.NoError(t, err)

	assert.Equal(t, sectionTypes(home), sectionTypes(other))
}

func TestExpandPropsCarryBriefValues(t *testing.T) {
	e, err := NewTemplateEngine()
	require.NoError(t, err)

	b := schema.DefaultBrief()
	spec, err := e.Expand(context.Background(), "Home", b)
	require.NoError(t, err)

	for _, s := range spec.Sections {
		if s.Type == "Hero" {
			assert.Equal(t, b.PrimaryCTA, s.Props["cta"])
			assert.Equal(t, "hero", s.Props["imageSlot"])
			return
		}
	}
	t.Fatal("no Hero section expanded")
}

func TestExpandCachesCompiledConditions(t *testing.T) {
	e, err := NewTemplateEngine()
	require.NoError(t, err)

	_, err = e.Expand(context.Background(), "Home", schema.DefaultBrief())
	require.NoError(t, err)
	first := len(e.cache)
	require.NotZero(t, first)

	_, err = e.Expand(context.Background(), "Home", schema.DefaultBrief())
	require.NoError(t, err)
	assert.Equal(t, first, len(e.cache))
}
