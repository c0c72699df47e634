package tokens

import (
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/pageforge/pageforge/pkg/schema"
)

// DefaultConfidenceThreshold is the minimum extraction confidence a reference
// token needs to displace the defaults.
const DefaultConfidenceThreshold = 0.4

// Merger folds per-reference RawSignals into one complete DesignSystem.
// Collisions resolve primary-wins: the primary reference's token displaces any
// non-primary token for the same role. Roles no accepted signal covers are
// backfilled from DefaultDesignSystem, so the output always validates.
type Merger struct {
	threshold float64

	// acceptRule is an optional expr predicate evaluated per candidate token
	// with kind, role, confidence, source and primary in scope. A false result
	// rejects the token on top of the confidence threshold.
	acceptRule string

	mu       sync.Mutex
	compiled *vm.Program
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithConfidenceThreshold overrides the acceptance threshold.
func WithConfidenceThreshold(t float64) MergerOption {
	return func(m *Merger) { m.threshold = t }
}

// WithAcceptRule installs an expr predicate for token acceptance.
func WithAcceptRule(rule string) MergerOption {
	return func(m *Merger) { m.acceptRule = rule }
}

// NewMerger creates a merger with the default threshold.
func NewMerger(opts ...MergerOption) *Merger {
	m := &Merger{threshold: DefaultConfidenceThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge produces a complete design system from the extracted signals. Safe to
// call with no signals at all; the result is then the stamped defaults.
func (m *Merger) Merge(signals []schema.RawSignals) (schema.DesignSystem, error) {
	ds := schema.DesignSystem{
		Version:    uuid.NewString(),
		Colors:     make(map[string]schema.ColorToken),
		Typography: make(map[string]schema.TypeToken),
		Radius:     make(map[string]schema.RadiusToken),
		Components: make(map[string]schema.ComponentToken),
	}

	// Non-primary references first, primary last so its tokens win.
	ordered := make([]schema.RawSignals, 0, len(signals))
	for _, s := range signals {
		if !s.Primary {
			ordered = append(ordered, s)
		}
	}
	for _, s := range signals {
		if s.Primary {
			ordered = append(ordered, s)
		}
	}

	for _, s := range ordered {
		if err := m.fold(&ds, s); err != nil {
			return schema.DesignSystem{}, err
		}
	}

	backfill(&ds)
	sort.Float64s(ds.SpacingScale)

	if err := ds.Validate(); err != nil {
		// Backfill guarantees completeness; a failure here is a programming
		// error in the defaults.
		return schema.DesignSystem{}, schema.NewError(schema.ErrCodeStageFailed, "merged design system incomplete").WithCause(err)
	}
	return ds, nil
}

func (m *Merger) fold(ds *schema.DesignSystem, s schema.RawSignals) error {
	for role, tok := range s.Colors {
		ok, err := m.accept(schema.TokenKindColor, role, tok.Confidence, s)
		if err != nil {
			return err
		}
		if ok {
			ds.Colors[role] = tok
		}
	}
	for role, tok := range s.Typography {
		ok, err := m.accept(schema.TokenKindType, role, tok.Confidence, s)
		if err != nil {
			return err
		}
		if ok {
			ds.Typography[role] = tok
		}
	}
	for role, tok := range s.Radius {
		ok, err := m.accept(schema.TokenKindRadius, role, tok.Confidence, s)
		if err != nil {
			return err
		}
		if ok {
			ds.Radius[role] = tok
		}
	}
	for role, tok := range s.Components {
		ok, err := m.accept(schema.TokenKindComponent, role, tok.Confidence, s)
		if err != nil {
			return err
		}
		if ok {
			ds.Components[role] = tok
		}
	}
	// Spacing carries no per-value confidence; any non-empty scale replaces
	// the previous one wholesale.
	if len(s.Spacing) > 0 {
		ds.SpacingScale = append([]float64(nil), s.Spacing...)
	}
	return nil
}

// accept applies the confidence threshold and the optional expr rule.
func (m *Merger) accept(kind, role string, confidence float64, s schema.RawSignals) (bool, error) {
	if confidence < m.threshold {
		return false, nil
	}
	if m.acceptRule == "" {
		return true, nil
	}

	prg, err := m.rule()
	if err != nil {
		return false, err
	}

	out, err := vm.Run(prg, map[string]any{
		"kind":       kind,
		"role":       role,
		"confidence": confidence,
		"source":     s.SourceURL,
		"primary":    s.Primary,
	})
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"accept rule evaluation failed for %q: %s", m.acceptRule, err.Error()).WithCause(err)
	}

	verdict, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "accept rule %q did not return a boolean", m.acceptRule)
	}
	return verdict, nil
}

// rule compiles the accept rule once and reuses the program.
func (m *Merger) rule() (*vm.Program, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.compiled != nil {
		return m.compiled, nil
	}

	prg, err := expr.Compile(m.acceptRule,
		expr.Env(map[string]any{
			"kind":       "",
			"role":       "",
			"confidence": 0.0,
			"source":     "",
			"primary":    false,
		}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig,
			"accept rule compile error in %q: %s", m.acceptRule, err.Error()).WithCause(err)
	}
	m.compiled = prg
	return prg, nil
}

// backfill fills every role the references did not cover from the defaults.
func backfill(ds *schema.DesignSystem) {
	def := DefaultDesignSystem()

	for role, tok := range def.Colors {
		if _, ok := ds.Colors[role]; !ok {
			ds.Colors[role] = tok
		}
	}
	for role, tok := range def.Typography {
		if _, ok := ds.Typography[role]; !ok {
			ds.Typography[role] = tok
		}
	}
	for role, tok := range def.Radius {
		if _, ok := ds.Radius[role]; !ok {
			ds.Radius[role] = tok
		}
	}
	for role, tok := range def.Components {
		if _, ok := ds.Components[role]; !ok {
			ds.Components[role] = tok
		}
	}
	if len(ds.SpacingScale) == 0 {
		ds.SpacingScale = append([]float64(nil), def.SpacingScale...)
	}
}
