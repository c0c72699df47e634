package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/planner"
	"github.com/pageforge/pageforge/internal/tokens"
	"github.com/pageforge/pageforge/pkg/schema"
)

func composedFixture(t *testing.T) (*schema.ComponentSpec, *schema.DesignSystem, *schema.PageSpec) {
	t.Helper()

	ds, err := tokens.NewMerger().Merge(nil)
	require.NoError(t, err)

	e, err := planner.NewTemplateEngine()
	require.NoError(t, err)
	spec, err := e.Expand(context.Background(), "Home", schema.DefaultBrief())
	require.NoError(t, err)

	root, slots, err := planner.NewComposer().Compose(spec, &ds)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	return root, &ds, spec
}

func TestVerifyComposedTreePasses(t *testing.T) {
	root, ds, spec := composedFixture(t)

	report, err := NewVerifier().Verify(root, ds, spec, 1)
	require.NoError(t, err)

	assert.Equal(t, root.Count(), report.NodeCount)
	assert.Equal(t, "simple", report.Complexity)
	assert.Zero(t, report.ContrastFixApplied)
	for _, w := range report.Warnings {
		assert.NotContains(t, w, "missing from composed tree")
	}
}

func TestVerifyNodeCeiling(t *testing.T) {
	root, ds, spec := composedFixture(t)

	_, err := NewVerifier(WithNodeCeiling(3)).Verify(root, ds, spec, 0)
	require.Error(t, err)

	var ferr *schema.ForgeError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeNodeCeiling, ferr.Code)
	assert.Equal(t, schema.ClassValidation, ferr.Class())
}

func TestVerifyCyclicTreeRejected(t *testing.T) {
	_, ds, _ := composedFixture(t)

	root := schema.MustComponentSpec(schema.NodeFrame, "Root")
	child := schema.MustComponentSpec(schema.NodeFrame, "Child")
	root.Append(child)
	child.Append(root)

	_, err := NewVerifier().Verify(root, ds, nil, 0)
	require.Error(t, err)

	var ferr *schema.ForgeError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeCycleDetected, ferr.Code)
	assert.Equal(t, schema.ClassValidation, ferr.Class())
}

func TestVerifySharedSubtreeRejected(t *testing.T) {
	_, ds, _ := composedFixture(t)

	root := schema.MustComponentSpec(schema.NodeFrame, "Root")
	shared := schema.MustComponentSpec(schema.NodeText, "Shared")
	left := schema.MustComponentSpec(schema.NodeFrame, "Left")
	right := schema.MustComponentSpec(schema.NodeFrame, "Right")
	left.Append(shared)
	right.Append(shared)
	root.Append(left)
	root.Append(right)

	_, err := NewVerifier().Verify(root, ds, nil, 0)
	require.Error(t, err)

	var ferr *schema.ForgeError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeCycleDetected, ferr.Code)
}

func TestVerifyUnresolvableTokenRef(t *testing.T) {
	root, ds, spec := composedFixture(t)
	root.Children[0].Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "nonexistent"))

	_, err := NewVerifier().Verify(root, ds, spec, 0)
	require.Error(t, err)

	var ferr *schema.ForgeError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)
}

func TestVerifyContrastAutoFix(t *testing.T) {
	_, ds, _ := composedFixture(t)

	root := schema.MustComponentSpec(schema.NodeFrame, "Root")
	root.Props.FillHex = "#FFFFFF"
	lowContrast := schema.MustComponentSpec(schema.NodeText, "Pale")
	lowContrast.Props.Text = "hard to read"
	lowContrast.Props.FillHex = "#FEFEFE"
	root.Append(lowContrast)

	report, err := NewVerifier().Verify(root, ds, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.ContrastFixApplied)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "contrast")
	// Fixed fill now clears the AA threshold against the background.
	assert.GreaterOrEqual(t, ContrastRatio(lowContrast.Props.FillHex, "#FFFFFF"), 4.5)
}

func TestVerifyDepthAndFontWarnings(t *testing.T) {
	_, ds, _ := composedFixture(t)

	root := schema.MustComponentSpec(schema.NodeFrame, "Root")
	cur := root
	for i := 0; i < 9; i++ {
		next := schema.MustComponentSpec(schema.NodeFrame, "Nested")
		cur.Append(next)
		cur = next
	}
	tiny := schema.MustComponentSpec(schema.NodeText, "Tiny")
	tiny.Props.FontSize = 9
	cur.Append(tiny)

	report, err := NewVerifier().Verify(root, ds, nil, 0)
	require.NoError(t, err)

	var depthWarned, fontWarned bool
	for _, w := range report.Warnings {
		depthWarned = depthWarned || strings.Contains(w, "deep nesting")
		fontWarned = fontWarned || strings.Contains(w, "font size")
	}
	assert.True(t, depthWarned)
	assert.True(t, fontWarned)
}

func TestVerifyMissingPlannedSectionWarns(t *testing.T) {
	root, ds, spec := composedFixture(t)
	spec.Sections = append(spec.Sections, schema.SectionSpec{Type: "Ghost"})

	report, err := NewVerifier().Verify(root, ds, spec, 0)
	require.NoError(t, err)

	var warned bool
	for _, w := range report.Warnings {
		warned = warned || (strings.Contains(w, "Ghost") && strings.Contains(w, "missing"))
	}
	assert.True(t, warned)
}

func TestContrastRatioKnownPairs(t *testing.T) {
	assert.InDelta(t, 21.0, ContrastRatio("#000000", "#FFFFFF"), 0.01)
	assert.InDelta(t, 1.0, ContrastRatio("#808080", "#808080"), 0.01)
	// Malformed input cannot fail the check.
	assert.Equal(t, 21.0, ContrastRatio("nope", "#FFFFFF"))
}
