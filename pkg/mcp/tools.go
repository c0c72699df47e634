package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pageforge/pageforge/internal/scene"
	"github.com/pageforge/pageforge/internal/store"
	"github.com/pageforge/pageforge/pkg/schema"
)

// handleGenerate runs the pipeline and applies the result as a fresh page.
func (s *ForgeServer) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id is required"), nil
	}
	input, err := req.RequireString("input")
	if err != nil {
		return mcp.NewToolResultError("input is required"), nil
	}
	documentID := req.GetString("document_id", projectID)

	s.captureSession(ctx, projectID)

	runReq := s.buildRunRequest(req, projectID, input)
	res, runErr := s.runner.Run(ctx, runReq)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", runErr)), nil
	}
	s.sessions.BindRun(res.RunID, projectID)

	applied, applyErr := s.scene.ApplyFull(ctx, documentID, res)
	if applyErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scene apply failed: %v", applyErr)), nil
	}
	s.persistArtifacts(ctx, documentID, res)

	return marshalResult(map[string]any{
		"run_id":           res.RunID,
		"document_id":      documentID,
		"applied_node_ids": applied,
		"degraded":         res.Degraded,
		"warnings":         res.Warnings,
	})
}

// handleRegenerate runs the pipeline and reconciles the result against the
// live document, preserving pinned subtrees.
func (s *ForgeServer) handleRegenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id is required"), nil
	}
	input, err := req.RequireString("input")
	if err != nil {
		return mcp.NewToolResultError("input is required"), nil
	}
	documentID := req.GetString("document_id", projectID)
	pinned := stringSlice(req.GetArguments()["pinned_node_ids"])

	s.captureSession(ctx, projectID)

	runReq := s.buildRunRequest(req, projectID, input)
	res, runErr := s.runner.Run(ctx, runReq)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", runErr)), nil
	}
	s.sessions.BindRun(res.RunID, projectID)

	stats, applyErr := s.scene.ApplyRegenerate(ctx, documentID, res, pinned)
	if applyErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scene regenerate failed: %v", applyErr)), nil
	}
	s.persistArtifacts(ctx, documentID, res)

	return marshalResult(map[string]any{
		"run_id":      res.RunID,
		"document_id": documentID,
		"created":     stats.Created,
		"updated":     stats.Updated,
		"preserved":   stats.Preserved,
		"removed":     stats.Removed,
		"degraded":    res.Degraded,
		"warnings":    res.Warnings,
	})
}

// handleSyncStyles replays a stored design system version onto a document.
func (s *ForgeServer) handleSyncStyles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	version, err := req.RequireString("version")
	if err != nil {
		return mcp.NewToolResultError("version is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("no store configured, cannot resolve design versions"), nil
	}

	dv, dvErr := s.store.GetDesignVersion(ctx, version)
	if dvErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("design version lookup failed: %v", dvErr)), nil
	}
	var ds schema.DesignSystem
	if umErr := json.Unmarshal(dv.Payload, &ds); umErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stored design version is corrupt: %v", umErr)), nil
	}

	updated, syncErr := s.scene.SyncStyles(ctx, documentID, &ds)
	if syncErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("style sync failed: %v", syncErr)), nil
	}
	s.snapshotDocument(ctx, documentID, "")

	return marshalResult(map[string]any{
		"document_id":      documentID,
		"version":          version,
		"updated_node_ids": updated,
	})
}

// handlePin pins or unpins a node on a live document.
func (s *ForgeServer) handlePin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	pinned := true
	if v, ok := req.GetArguments()["pinned"].(bool); ok {
		pinned = v
	}

	s.scene.Pin(ctx, documentID, nodeID, pinned)

	return marshalResult(map[string]any{
		"document_id": documentID,
		"node_id":     nodeID,
		"pinned":      pinned,
	})
}

// handleStatus returns the run row and its event log.
func (s *ForgeServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("no store configured, run history is unavailable"), nil
	}

	run, runErr := s.store.GetRun(ctx, runID)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", runErr)), nil
	}
	events, evErr := s.store.GetRunEvents(ctx, runID, 0)
	if evErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event query failed: %v", evErr)), nil
	}

	return marshalResult(map[string]any{"run": run, "events": events})
}

// handleQuery lists runs, events, snapshots, or design versions.
func (s *ForgeServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("no store configured, query is unavailable"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "runs":
		return s.queryRuns(ctx, filter)
	case "events":
		return s.queryEvents(ctx, filter)
	case "snapshots":
		return s.querySnapshots(ctx, filter)
	case "design_versions":
		return s.queryDesignVersions(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *ForgeServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		rs := schema.RunStatus(status)
		rf.Status = &rs
	}
	if projectID, ok := filter["project_id"].(string); ok {
		rf.ProjectID = projectID
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			rf.Since = &t
		}
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *ForgeServer) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	runID, _ := filter["run_id"].(string)
	if runID == "" {
		return mcp.NewToolResultError("event query requires 'run_id' in filter"), nil
	}
	since := int64(extractInt(filter, "since", 0))

	events, err := s.store.GetRunEvents(ctx, runID, since)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"events": events})
}

func (s *ForgeServer) querySnapshots(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	documentID, _ := filter["document_id"].(string)
	if documentID == "" {
		return mcp.NewToolResultError("snapshot query requires 'document_id' in filter"), nil
	}

	snaps, err := s.store.ListSnapshots(ctx, documentID, extractInt(filter, "limit", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"snapshots": snaps})
}

func (s *ForgeServer) queryDesignVersions(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	documentID, _ := filter["document_id"].(string)
	if documentID == "" {
		return mcp.NewToolResultError("design version query requires 'document_id' in filter"), nil
	}

	versions, err := s.store.ListDesignVersions(ctx, documentID, extractInt(filter, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"design_versions": versions})
}

// --- Internal helpers ---

// buildRunRequest assembles the pipeline request from shared tool arguments.
func (s *ForgeServer) buildRunRequest(req mcp.CallToolRequest, projectID, input string) schema.RunRequest {
	args := req.GetArguments()
	useAI, _ := args["use_ai_images"].(bool)
	return schema.RunRequest{
		ProjectID:     projectID,
		Input:         input,
		ChatHistory:   chatHistory(args["chat_history"]),
		ReferenceURLs: stringSlice(args["reference_urls"]),
		PageKind:      req.GetString("page_kind", "Home"),
		PinnedSlots:   stringSlice(args["pinned_slots"]),
		UseAIImages:   useAI,
		Model:         req.GetString("model", ""),
	}
}

// persistArtifacts stores the merged design system version and a document
// snapshot. Best-effort: persistence failures are logged, not surfaced.
func (s *ForgeServer) persistArtifacts(ctx context.Context, documentID string, res *schema.GenerationResult) {
	if s.store == nil {
		return
	}
	if res.DesignSystem != nil {
		payload, err := json.Marshal(res.DesignSystem)
		if err == nil {
			err = s.store.SaveDesignVersion(ctx, &store.DesignVersion{
				Version:    res.DesignSystem.Version,
				DocumentID: documentID,
				RunID:      res.RunID,
				Payload:    payload,
			})
		}
		if err != nil {
			s.logger.WarnContext(ctx, "design version persist failed", "error", err.Error())
		}
	}
	s.snapshotDocument(ctx, documentID, res.RunID)
}

// snapshotDocument captures the document's current node graph into the store.
func (s *ForgeServer) snapshotDocument(ctx context.Context, documentID, runID string) {
	if s.store == nil {
		return
	}
	var nodes []*scene.Node
	var styleVersion string
	s.scene.Inspect(documentID, func(d *scene.Document) {
		styleVersion = d.StyleVersion
		d.Walk(func(n *scene.Node) bool {
			nodes = append(nodes, n)
			return true
		})
	})
	payload, err := json.Marshal(nodes)
	if err == nil {
		err = s.store.SaveSnapshot(ctx, &store.DocumentSnapshot{
			DocumentID:   documentID,
			RunID:        runID,
			StyleVersion: styleVersion,
			Nodes:        payload,
		})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "snapshot persist failed", "error", err.Error())
	}
}

// captureSession maps the project ID to its current MCP session for notifications.
func (s *ForgeServer) captureSession(ctx context.Context, projectID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(projectID, session.SessionID())
	}
}

// stringSlice coerces a JSON array argument into a string slice.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// chatHistory coerces a JSON array argument into chat messages.
func chatHistory(v any) []schema.ChatMessage {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []schema.ChatMessage
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		if content != "" {
			out = append(out, schema.ChatMessage{Role: role, Content: content})
		}
	}
	return out
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
