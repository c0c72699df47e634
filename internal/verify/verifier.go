package verify

import (
	"fmt"
	"strings"

	"github.com/pageforge/pageforge/pkg/schema"
)

// Default verification limits.
const (
	DefaultNodeCeiling = 400
	DefaultMaxDepth    = 8
	DefaultMinContrast = 4.5
	DefaultMinFontSize = 12
)

// fixTextHex is the replacement fill applied when a text node fails the
// contrast check and the design system's text color passes.
const fixTextHex = "#1F2937"

// Report is the verification outcome for one composed tree. Warnings never
// fail the run; structural violations surface as errors from Verify.
type Report struct {
	NodeCount          int      `json:"node_count"`
	Depth              int      `json:"depth"`
	ImageCount         int      `json:"image_count"`
	Complexity         string   `json:"complexity"` // simple | moderate | complex
	EstimatedRenderMs  int      `json:"estimated_render_ms"`
	Warnings           []string `json:"warnings,omitempty"`
	ContrastFixApplied int      `json:"contrast_fixes_applied"`
}

// Verifier runs the quality gate. Zero limits take the defaults.
type Verifier struct {
	nodeCeiling int
	maxDepth    int
	minContrast float64
	minFontSize float64
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithNodeCeiling overrides the hard node count limit.
func WithNodeCeiling(n int) Option {
	return func(v *Verifier) { v.nodeCeiling = n }
}

// NewVerifier creates a verifier with default limits.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		nodeCeiling: DefaultNodeCeiling,
		maxDepth:    DefaultMaxDepth,
		minContrast: DefaultMinContrast,
		minFontSize: DefaultMinFontSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the composed tree against the page plan and design system.
// The tree is mutated in place when a contrast auto-fix applies; every fix is
// recorded as a warning. Structural violations (node ceiling, unresolvable
// token references) return an error.
func (v *Verifier) Verify(root *schema.ComponentSpec, ds *schema.DesignSystem, spec *schema.PageSpec, imageCount int) (*Report, error) {
	if root == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "no component tree to verify").
			WithStage(schema.StageVerification)
	}

	// Cycles must be ruled out before Count, Depth or any Walk touches the
	// tree; those recurse without revisit protection.
	if err := checkAcyclic(root); err != nil {
		return nil, err
	}

	report := &Report{
		NodeCount:  root.Count(),
		Depth:      root.Depth(),
		ImageCount: imageCount,
	}

	if report.NodeCount > v.nodeCeiling {
		return nil, schema.NewErrorf(schema.ErrCodeNodeCeiling,
			"component tree has %d nodes, ceiling is %d", report.NodeCount, v.nodeCeiling).
			WithStage(schema.StageVerification).
			WithDetails(map[string]any{"node_count": report.NodeCount, "ceiling": v.nodeCeiling})
	}

	if err := checkTokenRefs(root, ds); err != nil {
		return nil, err
	}

	v.checkContrast(root, root.Props.FillHex, ds, report)
	v.checkFontSizes(root, report)

	if report.Depth > v.maxDepth {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("deep nesting: %d levels (recommended max %d)", report.Depth, v.maxDepth))
	}
	checkPlannedSections(root, spec, report)

	report.Complexity = complexityLevel(report.NodeCount)
	report.EstimatedRenderMs = 500 + 2*report.NodeCount + 100*imageCount
	return report, nil
}

// checkAcyclic fails verification when a node is reachable through two parent
// links or through itself.
func checkAcyclic(root *schema.ComponentSpec) error {
	seen := make(map[*schema.ComponentSpec]bool)
	var visit func(n *schema.ComponentSpec) error
	visit = func(n *schema.ComponentSpec) error {
		if seen[n] {
			return schema.NewErrorf(schema.ErrCodeCycleDetected,
				"component %q appears more than once in the tree", n.Name).
				WithStage(schema.StageVerification)
		}
		seen[n] = true
		for _, ch := range n.Children {
			if err := visit(ch); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(root)
}

// checkTokenRefs fails verification if any recorded token reference does not
// resolve against the design system the tree was composed from.
func checkTokenRefs(root *schema.ComponentSpec, ds *schema.DesignSystem) error {
	var bad []string
	root.Walk(func(n *schema.ComponentSpec) bool {
		for prop, ref := range n.TokenRefs {
			if !ds.Resolvable(ref) {
				bad = append(bad, fmt.Sprintf("%s.%s -> %s", n.Name, prop, ref))
			}
		}
		return true
	})
	if len(bad) > 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "%d unresolvable token references", len(bad)).
			WithStage(schema.StageVerification).
			WithDetails(map[string]any{"refs": bad})
	}
	return nil
}

// checkContrast walks the tree tracking the nearest ancestor fill and fixes
// text nodes that fall below the WCAG AA ratio.
func (v *Verifier) checkContrast(n *schema.ComponentSpec, bgHex string, ds *schema.DesignSystem, report *Report) {
	if n.Kind == schema.NodeText && n.Props.FillHex != "" && bgHex != "" {
		if ratio := ContrastRatio(n.Props.FillHex, bgHex); ratio < v.minContrast {
			fixed := fixTextHex
			if tok, ok := ds.Color("text"); ok && ContrastRatio(tok.Hex, bgHex) >= v.minContrast {
				fixed = tok.Hex
			}
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("text %q contrast %.2f below %.1f on %s, fill adjusted to %s",
					n.Name, ratio, v.minContrast, bgHex, fixed))
			n.Props.FillHex = fixed
			n.Ref("fill_hex", schema.NewTokenRef(schema.TokenKindColor, "text"))
			report.ContrastFixApplied++
		}
	}

	next := bgHex
	if n.Kind != schema.NodeText && n.Props.FillHex != "" {
		next = n.Props.FillHex
	}
	for _, ch := range n.Children {
		v.checkContrast(ch, next, ds, report)
	}
}

func (v *Verifier) checkFontSizes(root *schema.ComponentSpec, report *Report) {
	root.Walk(func(n *schema.ComponentSpec) bool {
		if n.Kind == schema.NodeText && n.Props.FontSize > 0 && n.Props.FontSize < v.minFontSize {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("text %q font size %.0f below readable minimum %.0f", n.Name, n.Props.FontSize, v.minFontSize))
		}
		return true
	})
}

// checkPlannedSections warns when a planned section type has no matching
// section frame in the composed tree.
func checkPlannedSections(root *schema.ComponentSpec, spec *schema.PageSpec, report *Report) {
	if spec == nil {
		return
	}
	present := map[string]bool{}
	root.Walk(func(n *schema.ComponentSpec) bool {
		if strings.HasPrefix(n.Role, "section:") {
			present[strings.TrimPrefix(n.Role, "section:")] = true
		}
		return true
	})
	for _, s := range spec.Sections {
		if !present[strings.ToLower(s.Type)] {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("planned section %q missing from composed tree", s.Type))
		}
	}
}

func complexityLevel(nodes int) string {
	switch {
	case nodes < 100:
		return "simple"
	case nodes < 300:
		return "moderate"
	default:
		return "complex"
	}
}
