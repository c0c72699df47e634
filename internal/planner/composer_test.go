package planner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/tokens"
	"github.com/pageforge/pageforge/pkg/schema"
)

func testDesignSystem(t *testing.T) *schema.DesignSystem {
	t.Helper()
	ds, err := tokens.NewMerger().Merge(nil)
	require.NoError(t, err)
	return &ds
}

func testPageSpec(t *testing.T) *schema.PageSpec {
	t.Helper()
	e, err := NewTemplateEngine()
	require.NoError(t, err)
	spec, err := e.Expand(context.Background(), "Home", schema.DefaultBrief())
	require.NoError(t, err)
	return spec
}

func TestComposeBuildsSectionPerPlanEntry(t *testing.T) {
	ds := testDesignSystem(t)
	spec := testPageSpec(t)

	root, slots, err := NewComposer().Compose(spec, ds)
	require.NoError(t, err)

	assert.Equal(t, "page", root.Role)
	assert.Equal(t, schema.LayoutVertical, root.Props.LayoutMode)
	require.Len(t, root.Children, len(spec.Sections))
	for i, section := range spec.Sections {
		assert.Equal(t, "section:"+strings.ToLower(section.Type), root.Children[i].Role)
	}

	// Hero requested one image slot.
	require.Len(t, slots, 1)
	assert.Equal(t, "hero", slots[0].Role)
	assert.NotEmpty(t, slots[0].Prompt)
}

func TestComposeIsDeterministic(t *testing.T) {
	ds := testDesignSystem(t)
	spec := testPageSpec(t)

	c := NewComposer()
	a, _, err := c.Compose(spec, ds)
	require.NoError(t, err)
	b, _, err := c.Compose(spec, ds)
	require.NoError(t, err)

	aj, err := json.Marshal(a)
	require.NoError(t, err)
	bj, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(aj), string(bj))
}

func TestComposeEveryStyledNodeCarriesResolvableRefs(t *testing.T) {
	ds := testDesignSystem(t)
	spec := testPageSpec(t)

	root, _, err := NewComposer().Compose(spec, ds)
	require.NoError(t, err)

	root.Walk(func(n *schema.ComponentSpec) bool {
		for prop, ref := range n.TokenRefs {
			assert.Truef(t, ds.Resolvable(ref), "node %s prop %s has unresolvable ref %s", n.Name, prop, ref)
		}
		return true
	})
}

func TestComposeUnknownSectionGetsLabeledPlaceholder(t *testing.T) {
	ds := testDesignSystem(t)
	spec := &schema.PageSpec{
		PageName: "Test",
		Sections: []schema.SectionSpec{{Type: "Mystery", Props: map[string]any{}}},
	}

	root, _, err := NewComposer().Compose(spec, ds)
	require.NoError(t, err)
	require.Len(t, root.Children, 1)

	section := root.Children[0]
	assert.Equal(t, "section:mystery", section.Role)

	var label *schema.ComponentSpec
	section.Walk(func(n *schema.ComponentSpec) bool {
		if n.Kind == schema.NodeText {
			label = n
			return false
		}
		return true
	})
	require.NotNil(t, label)
	assert.Equal(t, "Mystery", label.Props.Text)
}

func TestComposeFallbackMinimalTree(t *testing.T) {
	ds := testDesignSystem(t)

	root, slots, err := NewComposer().Fallback(ds, "")
	require.NoError(t, err)

	var roles []string
	for _, ch := range root.Children {
		roles = append(roles, ch.Role)
	}
	assert.Equal(t, []string{"section:header", "section:hero", "section:footer"}, roles)
	assert.Equal(t, "Home_Container", root.Name)

	require.Len(t, slots, 1)
	assert.Equal(t, "hero", slots[0].Role)
}

func TestComposeEmptyPlanRejected(t *testing.T) {
	ds := testDesignSystem(t)

	_, _, err := NewComposer().Compose(&schema.PageSpec{PageName: "Empty"}, ds)
	require.Error(t, err)

	var ferr *schema.ForgeError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.StageComposition, ferr.Stage)
}
