// Package pipeline orchestrates the generation run: six stages with
// per-stage timeout, bounded retry on transient failures, deterministic
// fallback on validation failures and abort on fatal errors. Requirements
// and reference analysis run concurrently; everything downstream is
// sequential on the merged state.
package pipeline

import (
	"sync"
	"time"

	"github.com/pageforge/pageforge/internal/verify"
	"github.com/pageforge/pageforge/pkg/schema"
)

// StageRecord is one entry of the run's stage-outcome log.
type StageRecord struct {
	Stage    string              `json:"stage"`
	Outcome  schema.StageOutcome `json:"outcome"`
	Attempts int                 `json:"attempts"`
	Duration time.Duration       `json:"duration"`
	Error    string              `json:"error,omitempty"`
}

// State is the accumulating run state threaded through the stages. The two
// concurrent stages write disjoint fields; the record log and warnings are
// mutex-guarded.
type State struct {
	RunID   string
	Request schema.RunRequest

	Brief        *schema.Brief
	Signals      []schema.RawSignals
	DesignSystem *schema.DesignSystem
	PageSpec     *schema.PageSpec
	Tree         *schema.ComponentSpec
	Slots        []schema.ImageSlot
	Images       map[string]schema.ResolvedImage
	Report       *verify.Report

	mu       sync.Mutex
	records  []StageRecord
	warnings []string
	degraded bool
}

func newState(runID string, req schema.RunRequest) *State {
	return &State{
		RunID:   runID,
		Request: req,
		Images:  make(map[string]schema.ResolvedImage),
	}
}

func (s *State) record(rec StageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if rec.Outcome == schema.OutcomeFallback {
		s.degraded = true
	}
}

// degrade flags the run as degraded outside the fallback bookkeeping, for
// stages that succeed while substituting partial defaults.
func (s *State) degrade() {
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
}

func (s *State) warn(msgs ...string) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	s.warnings = append(s.warnings, msgs...)
	s.mu.Unlock()
}

// Records returns a copy of the stage-outcome log.
func (s *State) Records() []StageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StageRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *State) result() *schema.GenerationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &schema.GenerationResult{
		RunID:         s.RunID,
		PageSpec:      s.PageSpec,
		ComponentTree: s.Tree,
		DesignSystem:  s.DesignSystem,
		Images:        s.Images,
		Degraded:      s.degraded,
		Warnings:      append([]string(nil), s.warnings...),
	}
}
