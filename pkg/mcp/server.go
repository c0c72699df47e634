package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pageforge/pageforge/internal/scene"
	"github.com/pageforge/pageforge/internal/store"
	"github.com/pageforge/pageforge/internal/streaming"
	"github.com/pageforge/pageforge/pkg/schema"
)

// PageRunner executes a full generation run. Satisfied by the pipeline;
// an interface here keeps tool handlers testable without live models.
type PageRunner interface {
	Run(ctx context.Context, req schema.RunRequest) (*schema.GenerationResult, error)
}

// ForgeServerDeps holds the dependencies for creating a ForgeServer.
type ForgeServerDeps struct {
	Runner PageRunner
	Scene  *scene.Engine
	Store  store.Store
	Hub    streaming.ProgressHub
	Logger *slog.Logger
}

// ForgeServer wraps an MCP server with the page generation tool handlers.
type ForgeServer struct {
	runner    PageRunner
	scene     *scene.Engine
	store     store.Store
	hub       streaming.ProgressHub
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewForgeServer creates a ForgeServer with all 6 tools registered.
func NewForgeServer(deps ForgeServerDeps) *ForgeServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &ForgeServer{
		runner:   deps.Runner,
		scene:    deps.Scene,
		store:    deps.Store,
		hub:      deps.Hub,
		sessions: NewSessionRegistry(),
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"pageforge",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Pageforge turns a natural-language brief plus reference URLs into a styled page on a live scene document. Use page.generate for a fresh page, page.regenerate to rebuild around pinned nodes, styles.sync to reapply a design system version, node.pin to protect nodes, run.status for one run, and forge.query to list runs, events, snapshots or design versions."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ForgeServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ForgeServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ForwardProgress streams hub events to the session of the project that
// started the run. Blocks until ctx is cancelled; run in a goroutine.
func (s *ForgeServer) ForwardProgress(ctx context.Context) error {
	if s.hub == nil {
		return nil
	}
	notifier := NewMCPNotifier(s.mcpServer, s.sessions)
	events, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			projectID, found := s.projectFor(ctx, ev.RunID)
			if !found {
				continue
			}
			payload := map[string]any{
				"run_id":     ev.RunID,
				"event_type": ev.Type,
				"step":       ev.Step,
				"percent":    ev.Percent,
			}
			if err := notifier.Notify(ctx, projectID, payload); err != nil {
				s.logger.WarnContext(ctx, "progress notify failed", slog.String("error", err.Error()))
			}
		}
	}
}

// projectFor resolves the project that owns a run, consulting the registry
// cache first and falling back to the run row in the store.
func (s *ForgeServer) projectFor(ctx context.Context, runID string) (string, bool) {
	if projectID, ok := s.sessions.ProjectForRun(runID); ok {
		return projectID, true
	}
	if s.store == nil {
		return "", false
	}
	run, err := s.store.GetRun(ctx, runID)
	if err != nil || run.ProjectID == "" {
		return "", false
	}
	s.sessions.BindRun(runID, run.ProjectID)
	return run.ProjectID, true
}

// tools returns the 6 registered MCP tools as ServerTool entries.
func (s *ForgeServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: regenerateTool(), Handler: s.handleRegenerate},
		{Tool: syncStylesTool(), Handler: s.handleSyncStyles},
		{Tool: pinTool(), Handler: s.handlePin},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func generateTool() mcp.Tool {
	return mcp.NewTool("page.generate",
		mcp.WithDescription("Generate a full page from a natural-language brief and apply it to a document"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project the page belongs to")),
		mcp.WithString("input", mcp.Required(), mcp.Description("Natural-language brief for the page")),
		mcp.WithString("document_id", mcp.Description("Target document (default: project_id)")),
		mcp.WithString("page_kind", mcp.Description("Page type: Home, Landing, Services, About or Contact (default: Home)")),
		mcp.WithArray("reference_urls", mcp.Description("Reference site URLs to extract design tokens from; the first is primary")),
		mcp.WithArray("chat_history", mcp.Description("Prior chat turns as {role, content} objects")),
		mcp.WithArray("pinned_slots", mcp.Description("Section slots the plan must keep, e.g. section:pricing")),
		mcp.WithBoolean("use_ai_images", mcp.Description("Generate real images instead of placeholders (default: false)")),
		mcp.WithString("model", mcp.Description("Model override for text generation")),
	)
}

func regenerateTool() mcp.Tool {
	return mcp.NewTool("page.regenerate",
		mcp.WithDescription("Regenerate a page onto its live document, preserving pinned nodes and their subtrees"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project the page belongs to")),
		mcp.WithString("input", mcp.Required(), mcp.Description("Natural-language brief for the regeneration")),
		mcp.WithString("document_id", mcp.Description("Target document (default: project_id)")),
		mcp.WithString("page_kind", mcp.Description("Page type (default: Home)")),
		mcp.WithArray("reference_urls", mcp.Description("Reference site URLs; the first is primary")),
		mcp.WithArray("chat_history", mcp.Description("Prior chat turns as {role, content} objects")),
		mcp.WithArray("pinned_node_ids", mcp.Description("Node ids to protect in addition to already pinned nodes")),
		mcp.WithArray("pinned_slots", mcp.Description("Section slots the plan must keep, e.g. section:pricing")),
		mcp.WithBoolean("use_ai_images", mcp.Description("Generate real images instead of placeholders (default: false)")),
		mcp.WithString("model", mcp.Description("Model override for text generation")),
	)
}

func syncStylesTool() mcp.Tool {
	return mcp.NewTool("styles.sync",
		mcp.WithDescription("Reapply a stored design system version to every token-referencing node of a document"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Target document")),
		mcp.WithString("version", mcp.Required(), mcp.Description("Design system version id to apply")),
	)
}

func pinTool() mcp.Tool {
	return mcp.NewTool("node.pin",
		mcp.WithDescription("Pin or unpin a node; pinned subtrees survive regeneration untouched"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Target document")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node to pin or unpin")),
		mcp.WithBoolean("pinned", mcp.Description("Pin state to set (default: true)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("run.status",
		mcp.WithDescription("Get the state and event log of a generation run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to query")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("forge.query",
		mcp.WithDescription("Query runs, run events, document snapshots, or design system versions"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("runs", "events", "snapshots", "design_versions"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (status, project_id, since, limit, run_id, document_id)")),
	)
}
