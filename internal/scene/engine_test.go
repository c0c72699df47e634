package scene

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/tokens"
	"github.com/pageforge/pageforge/pkg/schema"
)

func fixtureResult(t *testing.T, heroTitle string) *schema.GenerationResult {
	t.Helper()

	ds, err := tokens.NewMerger().Merge(nil)
	require.NoError(t, err)

	root := schema.MustComponentSpec(schema.NodeFrame, "Page_Container")
	root.Role = "page"
	root.Props = schema.NodeProps{Width: 1440, LayoutMode: schema.LayoutVertical, FillHex: "#FFFFFF"}
	root.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "background"))

	header := schema.MustComponentSpec(schema.NodeFrame, "Section_Header")
	header.Role = "section:header"
	header.Props = schema.NodeProps{Width: 1440, LayoutMode: schema.LayoutHorizontal}
	logo := schema.MustComponentSpec(schema.NodeRectangle, "Logo")
	logo.Role = "logo"
	logo.Props = schema.NodeProps{Width: 120, Height: 40}
	header.Append(logo)

	hero := schema.MustComponentSpec(schema.NodeFrame, "Section_Hero")
	hero.Role = "section:hero"
	hero.Props = schema.NodeProps{Width: 1440, LayoutMode: schema.LayoutVertical}
	title := schema.MustComponentSpec(schema.NodeText, "Hero_Title")
	title.Props = schema.NodeProps{Text: heroTitle, FontFamily: "Inter", FontSize: 44, FillHex: "#1F2937"}
	title.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "text"))
	title.Ref("font_size", schema.NewTokenRef(schema.TokenKindType, "display"))
	img := schema.MustComponentSpec(schema.NodeRectangle, "Hero_Image")
	img.Role = "hero"
	img.Props = schema.NodeProps{Width: 600, Height: 400, ImageSlot: "hero"}
	hero.Append(title, img)

	footer := schema.MustComponentSpec(schema.NodeFrame, "Section_Footer")
	footer.Role = "section:footer"
	footer.Props = schema.NodeProps{Width: 1440}

	root.Append(header, hero, footer)

	return &schema.GenerationResult{
		RunID:         "run-1",
		ComponentTree: root,
		DesignSystem:  &ds,
		Images: map[string]schema.ResolvedImage{
			"hero": {Role: "hero", URL: "https://img.example/hero.jpg"},
		},
	}
}

func TestApplyFullMaterializesTree(t *testing.T) {
	e := NewEngine(nil, nil)
	res := fixtureResult(t, "Welcome")

	ids, err := e.ApplyFull(context.Background(), "doc1", res)
	require.NoError(t, err)
	assert.Len(t, ids, res.ComponentTree.Count())

	e.Inspect("doc1", func(d *Document) {
		assert.NoError(t, d.Validate())
		assert.Equal(t, res.ComponentTree.Count(), d.Len())
		assert.Equal(t, res.DesignSystem.Version, d.StyleVersion)

		hero, ok := d.ByRole("section:hero")
		require.True(t, ok)
		assert.Equal(t, schema.NodeFrame, hero.Kind)

		slot, ok := d.ByRole("hero")
		require.True(t, ok)
		assert.Equal(t, "https://img.example/hero.jpg", slot.Props.ImageURL)
	})
}

func TestRegeneratePreservesPinnedHeaderBitIdentical(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx := context.Background()

	_, err := e.ApplyFull(ctx, "doc1", fixtureResult(t, "Old Title"))
	require.NoError(t, err)

	var headerID string
	e.Inspect("doc1", func(d *Document) {
		header, ok := d.ByRole("section:header")
		require.True(t, ok)
		headerID = header.ID
	})
	e.Pin(ctx, "doc1", headerID, true)

	var headerBefore []byte
	e.Inspect("doc1", func(d *Document) {
		headerBefore = snapshotSubtree(t, d, headerID)
	})

	next := fixtureResult(t, "New Title")
	stats, err := e.ApplyRegenerate(ctx, "doc1", next, []string{headerID})
	require.NoError(t, err)
	assert.Contains(t, stats.Preserved, headerID)

	e.Inspect("doc1", func(d *Document) {
		require.NoError(t, d.Validate())

		header, ok := d.Node(headerID)
		require.True(t, ok, "pinned header identity must survive")
		assert.Equal(t, headerBefore, snapshotSubtree(t, d, header.ID))

		hero, ok := d.ByRole("section:hero")
		require.True(t, ok)
		var heroTitle string
		d.walkFrom(hero.ID, func(n *Node) bool {
			if n.Kind == schema.NodeText {
				heroTitle = n.Props.Text
			}
			return true
		})
		assert.Equal(t, "New Title", heroTitle)
	})
}

func TestRegeneratePreservesPinnedDescendantOfDroppedSection(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx := context.Background()

	// Seed with an extra features section holding a badge the user will pin.
	res := fixtureResult(t, "Old")
	features := schema.MustComponentSpec(schema.NodeFrame, "Section_Features")
	features.Role = "section:features"
	features.Props = schema.NodeProps{Width: 1440, LayoutMode: schema.LayoutVertical}
	badge := schema.MustComponentSpec(schema.NodeRectangle, "Trust_Badge")
	badge.Role = "component:badge"
	badge.Props = schema.NodeProps{Width: 80, Height: 80}
	features.Append(badge)
	res.ComponentTree.Append(features)

	_, err := e.ApplyFull(ctx, "doc1", res)
	require.NoError(t, err)

	var badgeID, featuresID string
	var badgeBefore []byte
	e.Inspect("doc1", func(d *Document) {
		b, ok := d.ByRole("component:badge")
		require.True(t, ok)
		badgeID = b.ID
		f, ok := d.ByRole("section:features")
		require.True(t, ok)
		featuresID = f.ID
	})
	e.Pin(ctx, "doc1", badgeID, true)
	e.Inspect("doc1", func(d *Document) {
		badgeBefore = snapshotSubtree(t, d, badgeID)
	})

	// The new tree drops the features section entirely.
	stats, err := e.ApplyRegenerate(ctx, "doc1", fixtureResult(t, "New"), nil)
	require.NoError(t, err)
	assert.NotContains(t, stats.Removed, featuresID)
	assert.Contains(t, stats.Preserved, badgeID)

	e.Inspect("doc1", func(d *Document) {
		require.NoError(t, d.Validate())

		badge, ok := d.Node(badgeID)
		require.True(t, ok, "pinned node must survive removal of its section")
		assert.Equal(t, badgeBefore, snapshotSubtree(t, d, badge.ID))

		features, ok := d.Node(featuresID)
		require.True(t, ok, "section sheltering a pinned node must survive")
		assert.Contains(t, features.Children, badgeID)
	})
}

func TestRegenerateKeepsRoleMatchedIdentity(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx := context.Background()

	_, err := e.ApplyFull(ctx, "doc1", fixtureResult(t, "Old"))
	require.NoError(t, err)

	var heroIDBefore string
	e.Inspect("doc1", func(d *Document) {
		hero, ok := d.ByRole("section:hero")
		require.True(t, ok)
		heroIDBefore = hero.ID
	})

	_, err = e.ApplyRegenerate(ctx, "doc1", fixtureResult(t, "New"), nil)
	require.NoError(t, err)

	e.Inspect("doc1", func(d *Document) {
		hero, ok := d.ByRole("section:hero")
		require.True(t, ok)
		assert.Equal(t, heroIDBefore, hero.ID, "role match must update in place")
	})
}

func TestRegenerateRemovesAbsentRoles(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx := context.Background()

	_, err := e.ApplyFull(ctx, "doc1", fixtureResult(t, "Old"))
	require.NoError(t, err)

	next := fixtureResult(t, "New")
	// Drop the footer from the new tree.
	kept := next.ComponentTree.Children[:0]
	for _, ch := range next.ComponentTree.Children {
		if ch.Role != "section:footer" {
			kept = append(kept, ch)
		}
	}
	next.ComponentTree.Children = kept

	stats, err := e.ApplyRegenerate(ctx, "doc1", next, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, stats.Removed)

	e.Inspect("doc1", func(d *Document) {
		_, ok := d.ByRole("section:footer")
		assert.False(t, ok)
		require.NoError(t, d.Validate())
	})
}

func TestRegenerateOnEmptyDocumentActsAsFullApply(t *testing.T) {
	e := NewEngine(nil, nil)

	stats, err := e.ApplyRegenerate(context.Background(), "fresh", fixtureResult(t, "Hello"), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, stats.Created)

	e.Inspect("fresh", func(d *Document) {
		assert.NoError(t, d.Validate())
		assert.NotZero(t, d.Len())
	})
}

func TestSyncStylesIdempotent(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx := context.Background()

	res := fixtureResult(t, "Hello")
	_, err := e.ApplyFull(ctx, "doc1", res)
	require.NoError(t, err)

	// New design system version with a different text color.
	ds, err := tokens.NewMerger().Merge([]schema.RawSignals{{
		Primary: true,
		Colors:  map[string]schema.ColorToken{"text": {Hex: "#111827", Confidence: 0.9}},
	}})
	require.NoError(t, err)

	first, err := e.SyncStyles(ctx, "doc1", &ds)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	var afterFirst []byte
	e.Inspect("doc1", func(d *Document) { afterFirst = snapshotSubtree(t, d, d.RootID) })

	second, err := e.SyncStyles(ctx, "doc1", &ds)
	require.NoError(t, err)
	assert.Empty(t, second, "second sync of the same version must be a no-op")

	e.Inspect("doc1", func(d *Document) {
		assert.Equal(t, afterFirst, snapshotSubtree(t, d, d.RootID))
		assert.Equal(t, ds.Version, d.StyleVersion)
	})
}

func TestSyncStylesNeverTouchesUnreferencedNodes(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx := context.Background()

	_, err := e.ApplyFull(ctx, "doc1", fixtureResult(t, "Hello"))
	require.NoError(t, err)

	ds, err := tokens.NewMerger().Merge([]schema.RawSignals{{
		Primary: true,
		Colors:  map[string]schema.ColorToken{"text": {Hex: "#000000", Confidence: 0.9}},
	}})
	require.NoError(t, err)

	updated, err := e.SyncStyles(ctx, "doc1", &ds)
	require.NoError(t, err)

	e.Inspect("doc1", func(d *Document) {
		for _, id := range updated {
			n, ok := d.Node(id)
			require.True(t, ok)
			assert.NotEmpty(t, n.TokenRefs)
		}
	})
}

func TestConcurrentRegenerateSerialized(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx := context.Background()

	_, err := e.ApplyFull(ctx, "doc1", fixtureResult(t, "Base"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := "Title A"
			if i%2 == 1 {
				title = "Title B"
			}
			_, err := e.ApplyRegenerate(ctx, "doc1", fixtureResult(t, title), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	e.Inspect("doc1", func(d *Document) {
		require.NoError(t, d.Validate())
		var title string
		d.Walk(func(n *Node) bool {
			if n.Name == "Hero_Title" {
				title = n.Props.Text
			}
			return true
		})
		// One of the two committed last; never an interleaved mix.
		assert.Contains(t, []string{"Title A", "Title B"}, title)
	})
}

func TestConcurrentRegenerateOnEmptyDocument(t *testing.T) {
	e := NewEngine(nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := "Title A"
			if i%2 == 1 {
				title = "Title B"
			}
			_, err := e.ApplyRegenerate(ctx, "fresh", fixtureResult(t, title), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	e.Inspect("fresh", func(d *Document) {
		require.NoError(t, d.Validate())
		assert.Equal(t, fixtureResult(t, "x").ComponentTree.Count(), d.Len())
	})
}

func TestPinUnknownNodeIsNoOp(t *testing.T) {
	e := NewEngine(nil, nil)
	e.Pin(context.Background(), "doc1", "ghost", true)

	e.Inspect("doc1", func(d *Document) {
		assert.Zero(t, d.Len())
	})
}

// snapshotSubtree serializes a subtree deterministically for bit-identity
// comparison.
func snapshotSubtree(t *testing.T, d *Document, rootID string) []byte {
	t.Helper()
	var nodes []*Node
	d.walkFrom(rootID, func(n *Node) bool {
		nodes = append(nodes, n)
		return true
	})
	buf, err := json.Marshal(nodes)
	require.NoError(t, err)
	return buf
}
