package schema

import (
	"fmt"
	"strings"
)

// Token kinds referenced by a TokenRef.
const (
	TokenKindColor     = "color"
	TokenKindType      = "type"
	TokenKindRadius    = "radius"
	TokenKindSpacing   = "spacing"
	TokenKindComponent = "component"
)

// ColorToken is one named color role with the extraction confidence.
type ColorToken struct {
	Hex        string  `json:"hex"`
	Confidence float64 `json:"confidence"`
}

// TypeToken is one typography role.
type TypeToken struct {
	Family     string  `json:"family"`
	Size       float64 `json:"size"`
	Weight     string  `json:"weight"`
	LineHeight float64 `json:"line_height,omitempty"`
	Confidence float64 `json:"confidence"`
}

// RadiusToken is one corner-radius role.
type RadiusToken struct {
	Px         float64 `json:"px"`
	Confidence float64 `json:"confidence"`
}

// ComponentToken carries component-style defaults (button padding, card
// shadow, section spacing) as a loose property bag.
type ComponentToken struct {
	Props      map[string]any `json:"props"`
	Confidence float64        `json:"confidence"`
}

// DesignSystem is the merged, complete token set for a project. Complete by
// construction: every required role resolves, either from a reference or from
// the built-in defaults. Each Sync Styles propagation carries a new Version;
// token references are stable across versions.
type DesignSystem struct {
	Version      string                    `json:"version"`
	Colors       map[string]ColorToken     `json:"colors"`
	Typography   map[string]TypeToken      `json:"typography"`
	SpacingScale []float64                 `json:"spacing_scale"`
	Radius       map[string]RadiusToken    `json:"radius"`
	Components   map[string]ComponentToken `json:"components"`
}

// TokenRef links a scene node back to the token that styled it, formatted as
// "<kind>/<role>", e.g. "color/primary" or "type/h1".
type TokenRef string

// NewTokenRef builds a TokenRef from kind and role.
func NewTokenRef(kind, role string) TokenRef {
	return TokenRef(kind + "/" + role)
}

// Parts splits the ref into kind and role. Malformed refs return ok=false.
func (r TokenRef) Parts() (kind, role string, ok bool) {
	kind, role, ok = strings.Cut(string(r), "/")
	return kind, role, ok && kind != "" && role != ""
}

// Color returns the color token for a role.
func (ds *DesignSystem) Color(role string) (ColorToken, bool) {
	t, ok := ds.Colors[role]
	return t, ok
}

// Type returns the typography token for a role.
func (ds *DesignSystem) Type(role string) (TypeToken, bool) {
	t, ok := ds.Typography[role]
	return t, ok
}

// Spacing returns the spacing value at an index of the scale, clamped to the
// last entry when the index is out of range.
func (ds *DesignSystem) Spacing(idx int) float64 {
	if len(ds.SpacingScale) == 0 {
		return 0
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(ds.SpacingScale) {
		idx = len(ds.SpacingScale) - 1
	}
	return ds.SpacingScale[idx]
}

// Resolvable reports whether a TokenRef resolves against this design system.
func (ds *DesignSystem) Resolvable(ref TokenRef) bool {
	kind, role, ok := ref.Parts()
	if !ok {
		return false
	}
	switch kind {
	case TokenKindColor:
		_, ok = ds.Colors[role]
	case TokenKindType:
		_, ok = ds.Typography[role]
	case TokenKindRadius:
		_, ok = ds.Radius[role]
	case TokenKindComponent:
		_, ok = ds.Components[role]
	case TokenKindSpacing:
		ok = len(ds.SpacingScale) > 0
	default:
		ok = false
	}
	return ok
}

// RequiredColorRoles are the color roles every merged design system must
// populate, from references or defaults.
var RequiredColorRoles = []string{"primary", "secondary", "accent", "text", "textMuted", "background"}

// RequiredTypeRoles are the typography roles every merged design system must
// populate.
var RequiredTypeRoles = []string{"display", "h1", "h2", "h3", "body", "small"}

// RequiredRadiusRoles are the corner-radius roles every merged design system
// must populate.
var RequiredRadiusRoles = []string{"sm", "md", "lg", "xl"}

// Validate checks completeness of the design system.
func (ds *DesignSystem) Validate() error {
	for _, role := range RequiredColorRoles {
		if _, ok := ds.Colors[role]; !ok {
			return NewErrorf(ErrCodeValidation, "design system missing color role %q", role)
		}
	}
	for _, role := range RequiredTypeRoles {
		if _, ok := ds.Typography[role]; !ok {
			return NewErrorf(ErrCodeValidation, "design system missing typography role %q", role)
		}
	}
	for _, role := range RequiredRadiusRoles {
		if _, ok := ds.Radius[role]; !ok {
			return NewErrorf(ErrCodeValidation, "design system missing radius role %q", role)
		}
	}
	if len(ds.SpacingScale) == 0 {
		return NewError(ErrCodeValidation, "design system has empty spacing scale")
	}
	for i := 1; i < len(ds.SpacingScale); i++ {
		if ds.SpacingScale[i] < ds.SpacingScale[i-1] {
			return NewErrorf(ErrCodeValidation, "spacing scale not ascending at index %d", i)
		}
	}
	return nil
}

// RawSignals is one reference's extracted style signals before merging.
// Primary designates the reference whose tokens win on collision.
type RawSignals struct {
	SourceURL  string                    `json:"source_url"`
	Primary    bool                      `json:"primary"`
	Colors     map[string]ColorToken     `json:"colors,omitempty"`
	Typography map[string]TypeToken      `json:"typography,omitempty"`
	Spacing    []float64                 `json:"spacing,omitempty"`
	Radius     map[string]RadiusToken    `json:"radius,omitempty"`
	Components map[string]ComponentToken `json:"components,omitempty"`
}

func (t ColorToken) String() string {
	return fmt.Sprintf("%s (%.2f)", t.Hex, t.Confidence)
}
