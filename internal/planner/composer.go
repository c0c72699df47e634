package planner

import (
	"github.com/pageforge/pageforge/pkg/schema"
)

// Composer deterministically expands a PageSpec into the component tree the
// scene engine applies. Identical inputs always yield identical trees.
type Composer struct{}

// NewComposer creates a composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Compose builds the full component tree and collects the image slots the
// sections requested.
func (c *Composer) Compose(spec *schema.PageSpec, ds *schema.DesignSystem) (*schema.ComponentSpec, []schema.ImageSlot, error) {
	if spec == nil || len(spec.Sections) == 0 {
		return nil, nil, schema.NewError(schema.ErrCodeValidation, "page spec has no sections").
			WithStage(schema.StageComposition)
	}

	root := schema.MustComponentSpec(schema.NodeFrame, spec.PageName+"_Container")
	root.Role = "page"
	root.Props = schema.NodeProps{
		Width:      pageWidth,
		LayoutMode: schema.LayoutVertical,
	}
	if tok, ok := ds.Color("background"); ok {
		root.Props.FillHex = tok.Hex
		root.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "background"))
	}

	var slots []schema.ImageSlot
	for _, section := range spec.Sections {
		frame := sectionFrame(section.Type, ds)

		var sectionSlots []schema.ImageSlot
		switch section.Type {
		case "Header":
			sectionSlots = composeHeader(frame, section.Props, ds)
		case "Hero":
			sectionSlots = composeHero(frame, section.Props, ds)
		case "Services":
			sectionSlots = composeServices(frame, section.Props, ds)
		default:
			sectionSlots = composeGeneric(frame, section.Type, section.Props, ds)
		}

		slots = append(slots, sectionSlots...)
		root.Append(frame)
	}

	return root, slots, nil
}

// Fallback composes the minimal placeholder page used when the planned
// sections cannot be composed: header, hero and footer only.
func (c *Composer) Fallback(ds *schema.DesignSystem, pageName string) (*schema.ComponentSpec, []schema.ImageSlot, error) {
	if pageName == "" {
		pageName = "Home"
	}
	spec := &schema.PageSpec{
		PageName: pageName,
		Sections: []schema.SectionSpec{{Type: "Header"}, {Type: "Hero"}, {Type: "Footer"}},
	}
	return c.Compose(spec, ds)
}
