package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/scene"
	"github.com/pageforge/pageforge/internal/store"
	"github.com/pageforge/pageforge/internal/tokens"
	"github.com/pageforge/pageforge/pkg/schema"
)

// --- Mock store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	runs     []*store.Run
	events   []*store.RunEvent
	versions map[string]*store.DesignVersion
	snaps    []*store.DocumentSnapshot
}

func newMockStore() *mockStore {
	return &mockStore{versions: make(map[string]*store.DesignVersion)}
}

func (m *mockStore) GetRun(_ context.Context, id string) (*store.Run, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, schema.NewError(schema.ErrCodeNotFound, "run not found")
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]*store.Run, error) {
	result := make([]*store.Run, 0)
	for _, r := range m.runs {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.ProjectID != "" && r.ProjectID != filter.ProjectID {
			continue
		}
		result = append(result, r)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) GetRunEvents(_ context.Context, runID string, since int64) ([]*store.RunEvent, error) {
	result := make([]*store.RunEvent, 0)
	for _, e := range m.events {
		if e.RunID == runID && e.Sequence > since {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockStore) SaveDesignVersion(_ context.Context, dv *store.DesignVersion) error {
	m.versions[dv.Version] = dv
	return nil
}

func (m *mockStore) GetDesignVersion(_ context.Context, version string) (*store.DesignVersion, error) {
	if dv, ok := m.versions[version]; ok {
		return dv, nil
	}
	return nil, schema.NewError(schema.ErrCodeNotFound, "design version not found")
}

func (m *mockStore) ListDesignVersions(_ context.Context, documentID string, _ int) ([]*store.DesignVersion, error) {
	var out []*store.DesignVersion
	for _, dv := range m.versions {
		if dv.DocumentID == documentID {
			out = append(out, dv)
		}
	}
	return out, nil
}

func (m *mockStore) SaveSnapshot(_ context.Context, snap *store.DocumentSnapshot) error {
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *mockStore) ListSnapshots(_ context.Context, documentID string, _ int) ([]*store.DocumentSnapshot, error) {
	var out []*store.DocumentSnapshot
	for _, s := range m.snaps {
		if s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	return out, nil
}

// --- Mock runner ---

type mockRunner struct {
	result  *schema.GenerationResult
	err     error
	lastReq schema.RunRequest
}

func (m *mockRunner) Run(_ context.Context, req schema.RunRequest) (*schema.GenerationResult, error) {
	m.lastReq = req
	return m.result, m.err
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func generationFixture(t *testing.T) *schema.GenerationResult {
	t.Helper()

	ds, err := tokens.NewMerger().Merge(nil)
	require.NoError(t, err)

	root := schema.MustComponentSpec(schema.NodeFrame, "Page_Container")
	root.Role = "page"
	root.Props = schema.NodeProps{Width: 1440, LayoutMode: schema.LayoutVertical}

	header := schema.MustComponentSpec(schema.NodeFrame, "Section_Header")
	header.Role = "section:header"
	hero := schema.MustComponentSpec(schema.NodeFrame, "Section_Hero")
	hero.Role = "section:hero"
	title := schema.MustComponentSpec(schema.NodeText, "Hero_Title")
	title.Props = schema.NodeProps{Text: "Welcome", FillHex: "#1F2937"}
	title.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "text"))
	hero.Append(title)
	root.Append(header, hero)

	return &schema.GenerationResult{
		RunID:         "run-123",
		ComponentTree: root,
		DesignSystem:  &ds,
	}
}

func resultPayload(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text := mcp.GetTextFromContent(result.Content[0])
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	return payload
}

// --- Tests ---

func TestGenerateTool(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{result: generationFixture(t)}
	eng := scene.NewEngine(nil, nil)

	s := NewForgeServer(ForgeServerDeps{Runner: runner, Scene: eng, Store: ms})

	req := buildRequest("page.generate", map[string]any{
		"project_id":     "proj-1",
		"input":          "a dental clinic homepage",
		"reference_urls": []any{"https://example.com"},
		"pinned_slots":   []any{"section:pricing"},
		"use_ai_images":  true,
		"model":          "gpt-4o-mini",
	})

	result, err := s.handleGenerate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	payload := resultPayload(t, result)
	assert.Equal(t, "run-123", payload["run_id"])
	assert.Equal(t, "proj-1", payload["document_id"])
	assert.Len(t, payload["applied_node_ids"], 4)

	// Request fields forwarded to the pipeline.
	assert.Equal(t, []string{"https://example.com"}, runner.lastReq.ReferenceURLs)
	assert.Equal(t, []string{"section:pricing"}, runner.lastReq.PinnedSlots)
	assert.True(t, runner.lastReq.UseAIImages)
	assert.Equal(t, "Home", runner.lastReq.PageKind)
	assert.Equal(t, "gpt-4o-mini", runner.lastReq.Model)

	// Design version and snapshot persisted.
	assert.Len(t, ms.versions, 1)
	require.Len(t, ms.snaps, 1)
	assert.Equal(t, "run-123", ms.snaps[0].RunID)
}

func TestGenerateToolMissingParams(t *testing.T) {
	s := NewForgeServer(ForgeServerDeps{})

	result, err := s.handleGenerate(context.Background(), buildRequest("page.generate", map[string]any{"input": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleGenerate(context.Background(), buildRequest("page.generate", map[string]any{"project_id": "p"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGenerateToolRunFailure(t *testing.T) {
	runner := &mockRunner{err: errors.New("composition produced no sections")}
	s := NewForgeServer(ForgeServerDeps{Runner: runner, Scene: scene.NewEngine(nil, nil)})

	result, err := s.handleGenerate(context.Background(), buildRequest("page.generate", map[string]any{
		"project_id": "proj-1",
		"input":      "broken",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRegenerateToolPreservesPinned(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{result: generationFixture(t)}
	eng := scene.NewEngine(nil, nil)
	s := NewForgeServer(ForgeServerDeps{Runner: runner, Scene: eng, Store: ms})
	ctx := context.Background()

	_, err := s.handleGenerate(ctx, buildRequest("page.generate", map[string]any{
		"project_id": "proj-1",
		"input":      "first pass",
	}))
	require.NoError(t, err)

	var headerID string
	eng.Inspect("proj-1", func(d *scene.Document) {
		header, ok := d.ByRole("section:header")
		require.True(t, ok)
		headerID = header.ID
	})

	runner.result = generationFixture(t)
	result, err := s.handleRegenerate(ctx, buildRequest("page.regenerate", map[string]any{
		"project_id":      "proj-1",
		"input":           "second pass",
		"pinned_node_ids": []any{headerID},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	payload := resultPayload(t, result)
	assert.Contains(t, payload["preserved"], headerID)

	eng.Inspect("proj-1", func(d *scene.Document) {
		_, ok := d.Node(headerID)
		assert.True(t, ok)
	})
}

func TestSyncStylesTool(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{result: generationFixture(t)}
	eng := scene.NewEngine(nil, nil)
	s := NewForgeServer(ForgeServerDeps{Runner: runner, Scene: eng, Store: ms})
	ctx := context.Background()

	_, err := s.handleGenerate(ctx, buildRequest("page.generate", map[string]any{
		"project_id": "proj-1",
		"input":      "first pass",
	}))
	require.NoError(t, err)

	// Store a second version with a different text color.
	ds, err := tokens.NewMerger().Merge([]schema.RawSignals{{
		Primary: true,
		Colors:  map[string]schema.ColorToken{"text": {Hex: "#111827", Confidence: 0.9}},
	}})
	require.NoError(t, err)
	payload, err := json.Marshal(&ds)
	require.NoError(t, err)
	require.NoError(t, ms.SaveDesignVersion(ctx, &store.DesignVersion{
		Version: ds.Version, DocumentID: "proj-1", Payload: payload,
	}))

	result, err := s.handleSyncStyles(ctx, buildRequest("styles.sync", map[string]any{
		"document_id": "proj-1",
		"version":     ds.Version,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	out := resultPayload(t, result)
	assert.NotEmpty(t, out["updated_node_ids"])
}

func TestSyncStylesToolUnknownVersion(t *testing.T) {
	s := NewForgeServer(ForgeServerDeps{Store: newMockStore(), Scene: scene.NewEngine(nil, nil)})

	result, err := s.handleSyncStyles(context.Background(), buildRequest("styles.sync", map[string]any{
		"document_id": "proj-1",
		"version":     "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestPinTool(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{result: generationFixture(t)}
	eng := scene.NewEngine(nil, nil)
	s := NewForgeServer(ForgeServerDeps{Runner: runner, Scene: eng, Store: ms})
	ctx := context.Background()

	_, err := s.handleGenerate(ctx, buildRequest("page.generate", map[string]any{
		"project_id": "proj-1",
		"input":      "first pass",
	}))
	require.NoError(t, err)

	var headerID string
	eng.Inspect("proj-1", func(d *scene.Document) {
		header, ok := d.ByRole("section:header")
		require.True(t, ok)
		headerID = header.ID
	})

	result, err := s.handlePin(ctx, buildRequest("node.pin", map[string]any{
		"document_id": "proj-1",
		"node_id":     headerID,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	eng.Inspect("proj-1", func(d *scene.Document) {
		n, ok := d.Node(headerID)
		require.True(t, ok)
		assert.True(t, n.Pinned)
	})
}

func TestStatusTool(t *testing.T) {
	ms := newMockStore()
	ms.runs = []*store.Run{{ID: "run-1", Status: schema.RunStatusCompleted}}
	ms.events = []*store.RunEvent{{RunID: "run-1", Type: "run_started", Sequence: 1}}

	s := NewForgeServer(ForgeServerDeps{Store: ms})

	result, err := s.handleStatus(context.Background(), buildRequest("run.status", map[string]any{
		"run_id": "run-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	payload := resultPayload(t, result)
	assert.Contains(t, payload, "run")
	assert.Contains(t, payload, "events")
}

func TestStatusToolNoStore(t *testing.T) {
	s := NewForgeServer(ForgeServerDeps{})
	result, err := s.handleStatus(context.Background(), buildRequest("run.status", map[string]any{"run_id": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryToolRuns(t *testing.T) {
	ms := newMockStore()
	ms.runs = []*store.Run{
		{ID: "r1", ProjectID: "proj-1", Status: schema.RunStatusCompleted},
		{ID: "r2", ProjectID: "proj-2", Status: schema.RunStatusFailed},
	}
	s := NewForgeServer(ForgeServerDeps{Store: ms})

	result, err := s.handleQuery(context.Background(), buildRequest("forge.query", map[string]any{
		"resource": "runs",
		"filter":   map[string]any{"project_id": "proj-1"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	payload := resultPayload(t, result)
	runs, ok := payload["runs"].([]any)
	require.True(t, ok)
	assert.Len(t, runs, 1)
}

func TestQueryToolUnknownResource(t *testing.T) {
	s := NewForgeServer(ForgeServerDeps{Store: newMockStore()})
	result, err := s.handleQuery(context.Background(), buildRequest("forge.query", map[string]any{
		"resource": "galaxies",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
