package schema

// NodeKind is the closed set of visual node kinds a ComponentSpec may take.
// Unknown kinds are rejected at construction, not at apply time.
type NodeKind string

const (
	NodeFrame     NodeKind = "frame"
	NodeText      NodeKind = "text"
	NodeRectangle NodeKind = "rectangle"
	NodeEllipse   NodeKind = "ellipse"
	NodeGroup     NodeKind = "group"
)

var validNodeKinds = map[NodeKind]bool{
	NodeFrame:     true,
	NodeText:      true,
	NodeRectangle: true,
	NodeEllipse:   true,
	NodeGroup:     true,
}

// Layout modes for frame nodes.
const (
	LayoutVertical   = "vertical"
	LayoutHorizontal = "horizontal"
	LayoutNone       = "none"
)

// NodeProps holds the geometry and style properties of a planned node.
// Style values are always token-derived; the TokenRefs map on the spec
// records which token produced which property.
type NodeProps struct {
	Width         float64 `json:"width,omitempty"`
	Height        float64 `json:"height,omitempty"`
	LayoutMode    string  `json:"layout_mode,omitempty"`
	ItemSpacing   float64 `json:"item_spacing,omitempty"`
	PaddingTop    float64 `json:"padding_top,omitempty"`
	PaddingRight  float64 `json:"padding_right,omitempty"`
	PaddingBottom float64 `json:"padding_bottom,omitempty"`
	PaddingLeft   float64 `json:"padding_left,omitempty"`
	CornerRadius  float64 `json:"corner_radius,omitempty"`
	FillHex       string  `json:"fill_hex,omitempty"`
	Text          string  `json:"text,omitempty"`
	FontFamily    string  `json:"font_family,omitempty"`
	FontSize      float64 `json:"font_size,omitempty"`
	FontWeight    string  `json:"font_weight,omitempty"`
	ImageSlot     string  `json:"image_slot,omitempty"` // image role this node hosts
	ImageURL      string  `json:"image_url,omitempty"`  // resolved image for the slot
}

// ComponentSpec is the concrete node plan the Scene Synchronization Engine
// consumes. A tagged variant over the closed NodeKind set with an ordered
// child sequence.
type ComponentSpec struct {
	Kind      NodeKind            `json:"kind"`
	Name      string              `json:"name"`
	Role      string              `json:"role,omitempty"` // logo | hero | section:<type> | component:<name>
	Props     NodeProps           `json:"props"`
	TokenRefs map[string]TokenRef `json:"token_refs,omitempty"` // property name → token that produced it
	Children  []*ComponentSpec    `json:"children,omitempty"`
}

// NewComponentSpec constructs a spec node, rejecting unknown kinds.
func NewComponentSpec(kind NodeKind, name string) (*ComponentSpec, error) {
	if !validNodeKinds[kind] {
		return nil, NewErrorf(ErrCodeValidation, "unknown node kind: %s", kind)
	}
	if name == "" {
		return nil, NewError(ErrCodeValidation, "component spec has empty name")
	}
	return &ComponentSpec{Kind: kind, Name: name}, nil
}

// MustComponentSpec is NewComponentSpec for statically known kinds; panics on
// invalid input. Used by built-in presets.
func MustComponentSpec(kind NodeKind, name string) *ComponentSpec {
	c, err := NewComponentSpec(kind, name)
	if err != nil {
		panic(err)
	}
	return c
}

// Ref records a token reference alongside the property value it produced.
func (c *ComponentSpec) Ref(prop string, ref TokenRef) *ComponentSpec {
	if c.TokenRefs == nil {
		c.TokenRefs = make(map[string]TokenRef, 2)
	}
	c.TokenRefs[prop] = ref
	return c
}

// Append adds children in order and returns the receiver.
func (c *ComponentSpec) Append(children ...*ComponentSpec) *ComponentSpec {
	c.Children = append(c.Children, children...)
	return c
}

// Count returns the total node count of the subtree including the receiver.
func (c *ComponentSpec) Count() int {
	n := 1
	for _, ch := range c.Children {
		n += ch.Count()
	}
	return n
}

// Depth returns the maximum nesting depth of the subtree (a leaf is 1).
func (c *ComponentSpec) Depth() int {
	max := 0
	for _, ch := range c.Children {
		if d := ch.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Walk visits the subtree depth-first, receiver first. Returning false from
// the visitor stops descent into that node's children.
func (c *ComponentSpec) Walk(visit func(*ComponentSpec) bool) {
	if !visit(c) {
		return
	}
	for _, ch := range c.Children {
		ch.Walk(visit)
	}
}

// FindRole returns the first node in the subtree with the given role, or nil.
func (c *ComponentSpec) FindRole(role string) *ComponentSpec {
	var found *ComponentSpec
	c.Walk(func(n *ComponentSpec) bool {
		if found != nil {
			return false
		}
		if n.Role == role {
			found = n
			return false
		}
		return true
	})
	return found
}

// PruneRoles returns a copy of the subtree with any node whose role is in the
// given set removed, along with its descendants. Used on regenerate to drop
// sections matching pinned live nodes before diffing.
func (c *ComponentSpec) PruneRoles(roles map[string]bool) *ComponentSpec {
	if c.Role != "" && roles[c.Role] {
		return nil
	}
	out := *c
	out.Children = nil
	for _, ch := range c.Children {
		if kept := ch.PruneRoles(roles); kept != nil {
			out.Children = append(out.Children, kept)
		}
	}
	return &out
}
