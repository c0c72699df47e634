// Package tokens turns per-reference style signals into one complete design
// system. Extraction pulls RawSignals out of analysis documents with jq
// queries, the merger resolves collisions with a primary-wins policy, and the
// built-in defaults backfill every role no reference supplied. The merged
// result is complete by construction.
package tokens

import "github.com/pageforge/pageforge/pkg/schema"

// defaultConfidence marks tokens that came from the built-in defaults rather
// than a reference.
const defaultConfidence = 0.5

// DefaultDesignSystem returns the built-in professional healthcare token set.
// Used verbatim when no references are given and as backfill for roles the
// references did not cover. Version is left empty; the merger stamps it.
func DefaultDesignSystem() schema.DesignSystem {
	return schema.DesignSystem{
		Colors: map[string]schema.ColorToken{
			"primary":             {Hex: "#2563EB", Confidence: defaultConfidence},
			"primaryDark":         {Hex: "#1D4ED8", Confidence: defaultConfidence},
			"primaryLight":        {Hex: "#3B82F6", Confidence: defaultConfidence},
			"secondary":           {Hex: "#059669", Confidence: defaultConfidence},
			"text":                {Hex: "#1F2937", Confidence: defaultConfidence},
			"textMuted":           {Hex: "#6B7280", Confidence: defaultConfidence},
			"background":          {Hex: "#FFFFFF", Confidence: defaultConfidence},
			"backgroundSecondary": {Hex: "#F9FAFB", Confidence: defaultConfidence},
			"accent":              {Hex: "#DC2626", Confidence: defaultConfidence},
			"border":              {Hex: "#E5E7EB", Confidence: defaultConfidence},
			"success":             {Hex: "#10B981", Confidence: defaultConfidence},
			"warning":             {Hex: "#F59E0B", Confidence: defaultConfidence},
		},
		Typography: map[string]schema.TypeToken{
			"display": {Family: "Inter", Size: 44, Weight: "700", LineHeight: 1.2, Confidence: defaultConfidence},
			"h1":      {Family: "Inter", Size: 36, Weight: "700", Confidence: defaultConfidence},
			"h2":      {Family: "Inter", Size: 28, Weight: "600", Confidence: defaultConfidence},
			"h3":      {Family: "Inter", Size: 24, Weight: "600", Confidence: defaultConfidence},
			"body":    {Family: "Inter", Size: 16, Weight: "400", LineHeight: 1.5, Confidence: defaultConfidence},
			"small":   {Family: "Inter", Size: 14, Weight: "400", LineHeight: 1.4, Confidence: defaultConfidence},
		},
		SpacingScale: []float64{8, 12, 16, 24, 32, 48, 64, 96},
		Radius: map[string]schema.RadiusToken{
			"sm": {Px: 4, Confidence: defaultConfidence},
			"md": {Px: 8, Confidence: defaultConfidence},
			"lg": {Px: 12, Confidence: defaultConfidence},
			"xl": {Px: 16, Confidence: defaultConfidence},
		},
		Components: map[string]schema.ComponentToken{
			"Button": {
				Props: map[string]any{
					"radius": 12.0,
					"padX":   32.0,
					"padY":   16.0,
					"weight": "700",
				},
				Confidence: defaultConfidence,
			},
			"Card": {
				Props: map[string]any{
					"radius":  12.0,
					"padding": 24.0,
					"shadow":  "0 4px 12px rgba(0,0,0,0.1)",
				},
				Confidence: defaultConfidence,
			},
			"Section": {
				Props: map[string]any{
					"padY":      96.0,
					"container": 1200.0,
				},
				Confidence: defaultConfidence,
			},
		},
	}
}
