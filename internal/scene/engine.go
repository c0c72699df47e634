package scene

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pageforge/pageforge/internal/streaming"
	"github.com/pageforge/pageforge/pkg/schema"
)

// RegenerateStats reports what a regeneration touched.
type RegenerateStats struct {
	Created   []string `json:"created"`
	Updated   []string `json:"updated"`
	Preserved []string `json:"preserved"`
	Removed   []string `json:"removed"`
}

// Engine synchronizes generation results onto live documents. Mutations are
// serialized per document: concurrent regenerate or sync requests for the
// same page queue on the session lock, while other pages proceed freely.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*session

	logger *slog.Logger
	hub    streaming.ProgressHub
}

type session struct {
	mu  sync.Mutex
	doc *Document
}

// NewEngine creates a scene engine. hub may be nil.
func NewEngine(logger *slog.Logger, hub streaming.ProgressHub) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sessions: make(map[string]*session),
		logger:   logger,
		hub:      hub,
	}
}

func (e *Engine) session(docID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[docID]
	if !ok {
		s = &session{doc: NewDocument(docID)}
		e.sessions[docID] = s
	}
	return s
}

// Inspect runs fn against the document under its lock. Used by status
// queries and tests; fn must not retain the document.
func (e *Engine) Inspect(docID string, fn func(*Document)) {
	s := e.session(docID)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Pin marks a node (and implicitly its subtree) as excluded from
// regeneration. Unknown ids are logged no-ops.
func (e *Engine) Pin(ctx context.Context, docID, nodeID string, pinned bool) {
	s := e.session(docID)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.doc.Node(nodeID)
	if !ok {
		e.logger.WarnContext(ctx, "pin target missing", slog.String("node_id", nodeID))
		return
	}
	n.Pinned = pinned
}

// ApplyFull materializes the result tree as a fresh page, replacing whatever
// the document held. Returns the created node ids in depth-first order.
func (e *Engine) ApplyFull(ctx context.Context, docID string, res *schema.GenerationResult) ([]string, error) {
	if res == nil || res.ComponentTree == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "no component tree to apply")
	}

	s := e.session(docID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.applyFullLocked(ctx, docID, s, res)
}

// applyFullLocked materializes the tree into a fresh document. The caller
// holds the session lock.
func (e *Engine) applyFullLocked(ctx context.Context, docID string, s *session, res *schema.GenerationResult) ([]string, error) {
	doc := NewDocument(docID)
	rootID := materialize(doc, res.ComponentTree, "", res.Images)
	doc.RootID = rootID
	if res.DesignSystem != nil {
		doc.StyleVersion = res.DesignSystem.Version
	}
	doc.rebuildRoleIndex()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	s.doc = doc

	var applied []string
	doc.Walk(func(n *Node) bool {
		applied = append(applied, n.ID)
		return true
	})

	e.publish(ctx, docID, schema.EventSceneApplied, map[string]any{"nodes": len(applied)})
	e.logger.InfoContext(ctx, "scene applied", slog.String("document", docID), slog.Int("nodes", len(applied)))
	return applied, nil
}

// ApplyRegenerate reconciles the result tree against the live graph. Pinned
// subtrees are preserved untouched; the incoming tree is pruned of sections
// matching pinned roles before diffing. Role-matched nodes are updated in
// place to preserve identity; roles absent from the new tree are removed.
func (e *Engine) ApplyRegenerate(ctx context.Context, docID string, res *schema.GenerationResult, pinnedNodeIDs []string) (*RegenerateStats, error) {
	if res == nil || res.ComponentTree == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "no component tree to apply")
	}

	s := e.session(docID)
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc
	if doc.RootID == "" {
		// Nothing live yet; regenerate degenerates to a full apply without
		// releasing the session.
		ids, err := e.applyFullLocked(ctx, docID, s, res)
		if err != nil {
			return nil, err
		}
		return &RegenerateStats{Created: ids}, nil
	}

	for _, id := range pinnedNodeIDs {
		if n, ok := doc.Node(id); ok {
			n.Pinned = true
		} else {
			e.logger.WarnContext(ctx, "pinned node missing", slog.String("node_id", id))
		}
	}

	pinnedRoles := doc.PinnedRoles(nil)
	tree := res.ComponentTree.PruneRoles(pinnedRoles)
	if tree == nil {
		// Everything the new tree offered is pinned; nothing to do.
		return &RegenerateStats{Preserved: pinnedIDs(doc)}, nil
	}

	stats := &RegenerateStats{}
	root, _ := doc.Node(doc.RootID)
	reconcile(doc, root, tree, res.Images, stats)
	if res.DesignSystem != nil {
		doc.StyleVersion = res.DesignSystem.Version
	}
	doc.rebuildRoleIndex()
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	stats.Preserved = pinnedIDs(doc)
	e.publish(ctx, docID, schema.EventSceneApplied, map[string]any{
		"created": len(stats.Created), "updated": len(stats.Updated),
		"preserved": len(stats.Preserved), "removed": len(stats.Removed),
	})
	return stats, nil
}

// SyncStyles reapplies current token values to every node carrying a token
// reference. Nodes without references are never touched; unresolvable
// references and missing nodes are logged no-ops. Idempotent per design
// system version.
func (e *Engine) SyncStyles(ctx context.Context, docID string, ds *schema.DesignSystem) ([]string, error) {
	if ds == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "no design system to sync")
	}

	s := e.session(docID)
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc
	var updated []string
	doc.Walk(func(n *Node) bool {
		if len(n.TokenRefs) == 0 {
			return true
		}
		changed := false
		for prop, ref := range n.TokenRefs {
			if applyToken(n, prop, ref, ds) {
				changed = true
			} else if !ds.Resolvable(ref) {
				e.logger.WarnContext(ctx, "token ref unresolvable",
					slog.String("node_id", n.ID), slog.String("ref", string(ref)))
			}
		}
		if changed {
			updated = append(updated, n.ID)
		}
		return true
	})

	doc.StyleVersion = ds.Version
	e.publish(ctx, docID, schema.EventStylesSynced, map[string]any{"updated": len(updated), "version": ds.Version})
	return updated, nil
}

// materialize creates arena nodes for the spec subtree depth-first and
// returns the created root id.
func materialize(doc *Document, spec *schema.ComponentSpec, parentID string, imgs map[string]schema.ResolvedImage) string {
	n := &Node{
		ID:       uuid.NewString(),
		ParentID: parentID,
		Kind:     spec.Kind,
		Name:     spec.Name,
		Role:     spec.Role,
		Props:    spec.Props,
	}
	if len(spec.TokenRefs) > 0 {
		n.TokenRefs = make(map[string]schema.TokenRef, len(spec.TokenRefs))
		for k, v := range spec.TokenRefs {
			n.TokenRefs[k] = v
		}
	}
	if n.Props.ImageSlot != "" {
		if img, ok := imgs[n.Props.ImageSlot]; ok {
			n.Props.ImageURL = img.URL
		}
	}
	doc.put(n)
	for _, ch := range spec.Children {
		childID := materialize(doc, ch, n.ID, imgs)
		n.Children = append(n.Children, childID)
	}
	return n.ID
}

// reconcile diffs the children of a live container against a spec subtree's
// children. The container itself is updated in place.
func reconcile(doc *Document, live *Node, spec *schema.ComponentSpec, imgs map[string]schema.ResolvedImage, stats *RegenerateStats) {
	overwrite(live, spec, imgs)
	stats.Updated = append(stats.Updated, live.ID)

	// Index live children by role for matching.
	liveByRole := map[string]*Node{}
	for _, id := range live.Children {
		if ch, ok := doc.Node(id); ok && ch.Role != "" {
			if _, dup := liveByRole[ch.Role]; !dup {
				liveByRole[ch.Role] = ch
			}
		}
	}

	wantRoles := map[string]bool{}
	var newChildren []string
	for _, chSpec := range spec.Children {
		if chSpec.Role != "" {
			wantRoles[chSpec.Role] = true
			if liveChild, ok := liveByRole[chSpec.Role]; ok {
				reconcile(doc, liveChild, chSpec, imgs, stats)
				newChildren = append(newChildren, liveChild.ID)
				continue
			}
		}
		id := materialize(doc, chSpec, live.ID, imgs)
		markCreated(doc, id, stats)
		newChildren = append(newChildren, id)
	}

	// Keep children that are pinned or shelter a pinned descendant at their
	// original index; drop the rest whose role is absent from the new tree,
	// and role-less strays the user did not pin.
	for idx, id := range live.Children {
		ch, ok := doc.Node(id)
		if !ok {
			continue
		}
		if ch.Pinned || doc.containsPinned(id) {
			if !contains(newChildren, id) {
				at := idx
				if at > len(newChildren) {
					at = len(newChildren)
				}
				newChildren = append(newChildren[:at], append([]string{id}, newChildren[at:]...)...)
			}
			continue
		}
		if ch.Role != "" && wantRoles[ch.Role] && liveByRole[ch.Role] != nil && liveByRole[ch.Role].ID == id {
			continue // already reconciled
		}
		stats.Removed = append(stats.Removed, id)
		doc.removeSubtree(id)
	}
	live.Children = newChildren
}

// overwrite replaces the diffable surface of a live node: properties, token
// refs and name. Identity and pin state survive.
func overwrite(live *Node, spec *schema.ComponentSpec, imgs map[string]schema.ResolvedImage) {
	live.Kind = spec.Kind
	live.Name = spec.Name
	live.Props = spec.Props
	live.TokenRefs = nil
	if len(spec.TokenRefs) > 0 {
		live.TokenRefs = make(map[string]schema.TokenRef, len(spec.TokenRefs))
		for k, v := range spec.TokenRefs {
			live.TokenRefs[k] = v
		}
	}
	if live.Props.ImageSlot != "" {
		if img, ok := imgs[live.Props.ImageSlot]; ok {
			live.Props.ImageURL = img.URL
		}
	}
}

// applyToken writes one token's current value into the property it styles.
// Returns whether the node now differs from its previous value.
func applyToken(n *Node, prop string, ref schema.TokenRef, ds *schema.DesignSystem) bool {
	kind, role, ok := ref.Parts()
	if !ok {
		return false
	}
	switch kind {
	case schema.TokenKindColor:
		tok, ok := ds.Color(role)
		if !ok || prop != "fill_hex" {
			return false
		}
		if n.Props.FillHex == tok.Hex {
			return false
		}
		n.Props.FillHex = tok.Hex
		return true
	case schema.TokenKindType:
		tok, ok := ds.Type(role)
		if !ok {
			return false
		}
		switch prop {
		case "font_family":
			if n.Props.FontFamily == tok.Family {
				return false
			}
			n.Props.FontFamily = tok.Family
			return true
		case "font_size":
			if n.Props.FontSize == tok.Size {
				return false
			}
			n.Props.FontSize = tok.Size
			return true
		}
		return false
	case schema.TokenKindRadius:
		tok, ok := ds.Radius[role]
		if !ok || prop != "corner_radius" {
			return false
		}
		if n.Props.CornerRadius == tok.Px {
			return false
		}
		n.Props.CornerRadius = tok.Px
		return true
	case schema.TokenKindComponent:
		tok, ok := ds.Components[role]
		if !ok || prop != "corner_radius" {
			return false
		}
		r, ok := tok.Props["radius"].(float64)
		if !ok || n.Props.CornerRadius == r {
			return false
		}
		n.Props.CornerRadius = r
		return true
	}
	return false
}

func markCreated(doc *Document, id string, stats *RegenerateStats) {
	doc.walkFrom(id, func(n *Node) bool {
		stats.Created = append(stats.Created, n.ID)
		return true
	})
}

func pinnedIDs(doc *Document) []string {
	var out []string
	doc.Walk(func(n *Node) bool {
		if n.Pinned {
			out = append(out, n.ID)
			return false
		}
		return true
	})
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (e *Engine) publish(ctx context.Context, docID, eventType string, payload any) {
	if e.hub == nil {
		return
	}
	_ = e.hub.Publish(ctx, streaming.ProgressEvent{
		RunID:   docID,
		Type:    eventType,
		Percent: 100,
		Payload: payload,
	})
}
