// Package scene holds the live node graph and the synchronization engine
// that applies generation results onto it. The graph is an arena of nodes
// keyed by stable id with a parent pointer and a role index rebuilt on each
// apply; pinned subtrees survive regeneration untouched.
package scene

import (
	"github.com/pageforge/pageforge/pkg/schema"
)

// Node is one live scene node. Created by the engine; mutated only by the
// engine or by the end user out of band. A pinned node and its subtree are
// never destroyed by regeneration.
type Node struct {
	ID        string                         `json:"id"`
	ParentID  string                         `json:"parent_id,omitempty"`
	Kind      schema.NodeKind                `json:"kind"`
	Name      string                         `json:"name"`
	Role      string                         `json:"role,omitempty"`
	Pinned    bool                           `json:"pinned"`
	Props     schema.NodeProps               `json:"props"`
	TokenRefs map[string]schema.TokenRef     `json:"token_refs,omitempty"`
	Children  []string                       `json:"children,omitempty"`
}

// Document is the arena for one page: all nodes keyed by id plus a secondary
// role index. Not safe for concurrent use; the engine serializes access.
type Document struct {
	ID           string
	RootID       string
	StyleVersion string

	nodes map[string]*Node
	roles map[string]string
}

// NewDocument creates an empty document arena.
func NewDocument(id string) *Document {
	return &Document{
		ID:    id,
		nodes: make(map[string]*Node),
		roles: make(map[string]string),
	}
}

// Node returns the node with the given id.
func (d *Document) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// ByRole returns the node currently indexed under a role.
func (d *Document) ByRole(role string) (*Node, bool) {
	id, ok := d.roles[role]
	if !ok {
		return nil, false
	}
	return d.Node(id)
}

// Len returns the number of live nodes.
func (d *Document) Len() int {
	return len(d.nodes)
}

// Walk visits the tree depth-first from the root. Returning false skips the
// node's children.
func (d *Document) Walk(visit func(*Node) bool) {
	d.walkFrom(d.RootID, visit)
}

func (d *Document) walkFrom(id string, visit func(*Node) bool) {
	n, ok := d.nodes[id]
	if !ok {
		return
	}
	if !visit(n) {
		return
	}
	for _, ch := range n.Children {
		d.walkFrom(ch, visit)
	}
}

// put inserts a node into the arena.
func (d *Document) put(n *Node) {
	d.nodes[n.ID] = n
}

// removeSubtree deletes a node and its descendants and detaches it from its
// parent's child list.
func (d *Document) removeSubtree(id string) {
	n, ok := d.nodes[id]
	if !ok {
		return
	}
	if parent, ok := d.nodes[n.ParentID]; ok {
		kept := parent.Children[:0]
		for _, ch := range parent.Children {
			if ch != id {
				kept = append(kept, ch)
			}
		}
		parent.Children = kept
	}
	d.deleteRecursive(id)
}

func (d *Document) deleteRecursive(id string) {
	n, ok := d.nodes[id]
	if !ok {
		return
	}
	for _, ch := range n.Children {
		d.deleteRecursive(ch)
	}
	delete(d.nodes, id)
}

// containsPinned reports whether the subtree rooted at id holds any pinned
// node, the root included.
func (d *Document) containsPinned(id string) bool {
	found := false
	d.walkFrom(id, func(n *Node) bool {
		if n.Pinned {
			found = true
			return false
		}
		return true
	})
	return found
}

// rebuildRoleIndex rebuilds the role index from scratch. First writer wins
// for duplicate roles, in tree order.
func (d *Document) rebuildRoleIndex() {
	d.roles = make(map[string]string, len(d.nodes))
	d.Walk(func(n *Node) bool {
		if n.Role != "" {
			if _, exists := d.roles[n.Role]; !exists {
				d.roles[n.Role] = n.ID
			}
		}
		return true
	})
}

// Validate checks structural well-formedness: a known root, no orphan
// children, no cycles, every parent link consistent.
func (d *Document) Validate() error {
	if d.RootID == "" {
		return nil
	}
	if _, ok := d.nodes[d.RootID]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "document %s root %s missing", d.ID, d.RootID)
	}

	seen := make(map[string]bool, len(d.nodes))
	var walk func(id string) error
	walk = func(id string) error {
		if seen[id] {
			return schema.NewErrorf(schema.ErrCodeCycleDetected, "node %s visited twice", id)
		}
		seen[id] = true
		n := d.nodes[id]
		for _, ch := range n.Children {
			child, ok := d.nodes[ch]
			if !ok {
				return schema.NewErrorf(schema.ErrCodeValidation, "node %s references missing child %s", id, ch)
			}
			if child.ParentID != id {
				return schema.NewErrorf(schema.ErrCodeValidation, "node %s parent link inconsistent", ch)
			}
			if err := walk(ch); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(d.RootID); err != nil {
		return err
	}

	for id := range d.nodes {
		if !seen[id] {
			return schema.NewErrorf(schema.ErrCodeValidation, "orphan node %s unreachable from root", id)
		}
	}
	return nil
}

// PinnedRoles returns the roles of all pinned nodes, plus the roles of any
// node in the extra id list.
func (d *Document) PinnedRoles(extraIDs []string) map[string]bool {
	out := make(map[string]bool)
	for _, n := range d.nodes {
		if n.Pinned && n.Role != "" {
			out[n.Role] = true
		}
	}
	for _, id := range extraIDs {
		if n, ok := d.nodes[id]; ok && n.Role != "" {
			out[n.Role] = true
		}
	}
	return out
}
