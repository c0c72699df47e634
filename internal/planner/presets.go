package planner

import (
	"fmt"
	"strings"

	"github.com/pageforge/pageforge/pkg/schema"
)

// pageWidth is the fixed desktop frame width all compositions target.
const pageWidth = 1440

// sectionFrame builds the outer container every section shares. The role tag
// is what regenerate matching and pinning key on.
func sectionFrame(sectionType string, ds *schema.DesignSystem) *schema.ComponentSpec {
	f := schema.MustComponentSpec(schema.NodeFrame, "Section_"+sectionType)
	f.Role = "section:" + strings.ToLower(sectionType)
	f.Props = schema.NodeProps{
		Width:         pageWidth,
		LayoutMode:    schema.LayoutVertical,
		ItemSpacing:   ds.Spacing(4),
		PaddingTop:    ds.Spacing(6),
		PaddingBottom: ds.Spacing(6),
		PaddingLeft:   ds.Spacing(4),
		PaddingRight:  ds.Spacing(4),
	}
	if t, ok := ds.Color("background"); ok {
		f.Props.FillHex = t.Hex
		f.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "background"))
	}
	return f
}

// textSpec builds a text node styled by a typography role.
func textSpec(name, content, typeRole string, colorRole string, ds *schema.DesignSystem) *schema.ComponentSpec {
	t := schema.MustComponentSpec(schema.NodeText, name)
	t.Props.Text = content
	if tok, ok := ds.Type(typeRole); ok {
		t.Props.FontFamily = tok.Family
		t.Props.FontSize = tok.Size
		t.Props.FontWeight = tok.Weight
		t.Ref("font_family", schema.NewTokenRef(schema.TokenKindType, typeRole))
		t.Ref("font_size", schema.NewTokenRef(schema.TokenKindType, typeRole))
	}
	if tok, ok := ds.Color(colorRole); ok {
		t.Props.FillHex = tok.Hex
		t.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, colorRole))
	}
	return t
}

// buttonSpec builds the shared CTA button preset.
func buttonSpec(label string, ds *schema.DesignSystem) *schema.ComponentSpec {
	b := schema.MustComponentSpec(schema.NodeFrame, "Button_"+label)
	b.Role = "component:Button"
	b.Props = schema.NodeProps{
		LayoutMode:    schema.LayoutHorizontal,
		PaddingTop:    ds.Spacing(2),
		PaddingBottom: ds.Spacing(2),
		PaddingLeft:   ds.Spacing(3),
		PaddingRight:  ds.Spacing(3),
	}
	if tok, ok := ds.Color("primary"); ok {
		b.Props.FillHex = tok.Hex
		b.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "primary"))
	}
	if tok, ok := ds.Radius["md"]; ok {
		b.Props.CornerRadius = tok.Px
		b.Ref("corner_radius", schema.NewTokenRef(schema.TokenKindRadius, "md"))
	}
	if btn, ok := ds.Components["Button"]; ok {
		if r, ok := btn.Props["radius"].(float64); ok {
			b.Props.CornerRadius = r
			b.Ref("corner_radius", schema.NewTokenRef(schema.TokenKindComponent, "Button"))
		}
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = "Learn More"
	}
	text := textSpec("Button_Label", label, "body", "background", ds)
	text.Props.FontWeight = "700"
	return b.Append(text)
}

// composeHeader fills a header section: logo, navigation, CTA.
func composeHeader(section *schema.ComponentSpec, props map[string]any, ds *schema.DesignSystem) []schema.ImageSlot {
	content := schema.MustComponentSpec(schema.NodeFrame, "Header_Content")
	content.Props = schema.NodeProps{
		Width:       pageWidth,
		LayoutMode:  schema.LayoutHorizontal,
		ItemSpacing: ds.Spacing(4),
	}

	if propBool(props, "logo") {
		logo := schema.MustComponentSpec(schema.NodeRectangle, "Logo")
		logo.Role = "logo"
		logo.Props = schema.NodeProps{Width: 120, Height: 40, FillHex: "#E5E7EB"}
		content.Append(logo)
	}

	if items := propList(props, "nav"); len(items) > 0 {
		nav := schema.MustComponentSpec(schema.NodeFrame, "Navigation")
		nav.Props = schema.NodeProps{LayoutMode: schema.LayoutHorizontal, ItemSpacing: ds.Spacing(4)}
		for _, item := range items {
			nav.Append(textSpec("Nav_"+item, item, "body", "text", ds))
		}
		content.Append(nav)
	}

	if cta := propString(props, "cta"); cta != "" {
		content.Append(buttonSpec(cta, ds))
	}

	section.Append(content)
	return nil
}

// composeHero fills a hero section: headline column plus an optional image
// slot that becomes an image request.
func composeHero(section *schema.ComponentSpec, props map[string]any, ds *schema.DesignSystem) []schema.ImageSlot {
	container := schema.MustComponentSpec(schema.NodeFrame, "Hero_Container")
	container.Props = schema.NodeProps{
		Width:       pageWidth,
		LayoutMode:  schema.LayoutHorizontal,
		ItemSpacing: ds.Spacing(6),
	}

	column := schema.MustComponentSpec(schema.NodeFrame, "Hero_Text")
	column.Props = schema.NodeProps{Width: 600, LayoutMode: schema.LayoutVertical, ItemSpacing: ds.Spacing(4)}

	title := propString(props, "title")
	if title != "" {
		column.Append(textSpec("Hero_Title", title, "display", "text", ds))
	}
	if subtitle := propString(props, "subtitle"); subtitle != "" {
		column.Append(textSpec("Hero_Subtitle", subtitle, "body", "textMuted", ds))
	}
	if cta := propString(props, "cta"); cta != "" {
		column.Append(buttonSpec(cta, ds))
	}
	container.Append(column)

	var slots []schema.ImageSlot
	if slot := propString(props, "imageSlot"); slot != "" {
		img := schema.MustComponentSpec(schema.NodeRectangle, "Hero_Image")
		img.Role = slot
		img.Props = schema.NodeProps{Width: 600, Height: 400, FillHex: "#E5E7EB", ImageSlot: slot}
		if tok, ok := ds.Radius["lg"]; ok {
			img.Props.CornerRadius = tok.Px
			img.Ref("corner_radius", schema.NewTokenRef(schema.TokenKindRadius, "lg"))
		}
		container.Append(img)

		subject := title
		if subject == "" {
			subject = "medical practice"
		}
		hints := map[string]any{
			"style": "professional medical photography",
			"mood":  "clean, trustworthy, modern",
		}
		if tok, ok := ds.Color("primary"); ok {
			hints["colors"] = []string{tok.Hex}
		}
		slots = append(slots, schema.ImageSlot{
			Role:        slot,
			Prompt:      fmt.Sprintf("Professional healthcare hero image for %s, clean and modern", subject),
			AspectRatio: "3:2",
			StyleHints:  hints,
		})
	}

	section.Append(container)
	return slots
}

// composeServices fills a services section with one card per service.
func composeServices(section *schema.ComponentSpec, props map[string]any, ds *schema.DesignSystem) []schema.ImageSlot {
	if title := propString(props, "title"); title != "" {
		section.Append(textSpec("Services_Title", title, "h2", "text", ds))
	}

	row := schema.MustComponentSpec(schema.NodeFrame, "Services_Cards")
	row.Props = schema.NodeProps{
		Width:       pageWidth,
		LayoutMode:  schema.LayoutHorizontal,
		ItemSpacing: ds.Spacing(4),
	}

	for _, svc := range serviceNames(props) {
		card := schema.MustComponentSpec(schema.NodeFrame, "Card_"+svc)
		card.Role = "component:Card"
		card.Props = schema.NodeProps{
			Width:         360,
			LayoutMode:    schema.LayoutVertical,
			ItemSpacing:   ds.Spacing(2),
			PaddingTop:    ds.Spacing(3),
			PaddingBottom: ds.Spacing(3),
			PaddingLeft:   ds.Spacing(3),
			PaddingRight:  ds.Spacing(3),
		}
		if tok, ok := ds.Color("backgroundSecondary"); ok {
			card.Props.FillHex = tok.Hex
			card.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "backgroundSecondary"))
		}
		if tok, ok := ds.Components["Card"]; ok {
			if r, ok := tok.Props["radius"].(float64); ok {
				card.Props.CornerRadius = r
				card.Ref("corner_radius", schema.NewTokenRef(schema.TokenKindComponent, "Card"))
			}
		}
		card.Append(textSpec("Card_Title", svc, "h3", "text", ds))
		row.Append(card)
	}
	section.Append(row)
	return nil
}

// composeGeneric fills any section type without a dedicated preset: a labeled
// placeholder so the page keeps its planned structure.
func composeGeneric(section *schema.ComponentSpec, sectionType string, props map[string]any, ds *schema.DesignSystem) []schema.ImageSlot {
	title := propString(props, "title")
	if title == "" {
		title = sectionType
	}
	section.Append(textSpec(sectionType+"_Title", title, "h2", "text", ds))

	placeholder := schema.MustComponentSpec(schema.NodeRectangle, sectionType+"_Placeholder")
	placeholder.Props = schema.NodeProps{Width: pageWidth - 2*ds.Spacing(4), Height: 240, FillHex: "#F3F4F6"}
	if tok, ok := ds.Radius["md"]; ok {
		placeholder.Props.CornerRadius = tok.Px
		placeholder.Ref("corner_radius", schema.NewTokenRef(schema.TokenKindRadius, "md"))
	}
	section.Append(placeholder)

	if slot := propString(props, "imageSlot"); slot != "" {
		placeholder.Role = slot
		placeholder.Props.ImageSlot = slot
		return []schema.ImageSlot{{
			Role:        slot,
			Prompt:      fmt.Sprintf("Professional healthcare imagery for a %s section", strings.ToLower(sectionType)),
			AspectRatio: "16:9",
		}}
	}
	return nil
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func propBool(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}

func propList(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func serviceNames(props map[string]any) []string {
	raw, ok := props["services"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch item := v.(type) {
		case string:
			out = append(out, item)
		case map[string]any:
			if name, ok := item["name"].(string); ok && name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
