package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pageforge/pageforge/internal/brief"
	"github.com/pageforge/pageforge/internal/capability"
	"github.com/pageforge/pageforge/internal/images"
	"github.com/pageforge/pageforge/internal/logging"
	"github.com/pageforge/pageforge/internal/planner"
	"github.com/pageforge/pageforge/internal/streaming"
	"github.com/pageforge/pageforge/internal/tokens"
	"github.com/pageforge/pageforge/internal/verify"
	"github.com/pageforge/pageforge/pkg/schema"
)

// Config tunes the orchestrator's retry and timeout policy.
type Config struct {
	StageTimeout time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c Config) withDefaults() Config {
	if c.StageTimeout <= 0 {
		c.StageTimeout = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

// RunRecorder persists run lifecycle and stage events. Optional; a nil
// recorder disables persistence.
type RunRecorder interface {
	RecordRunStart(ctx context.Context, runID string, req schema.RunRequest) error
	RecordRunEnd(ctx context.Context, runID string, status schema.RunStatus, result *schema.GenerationResult) error
	RecordEvent(ctx context.Context, runID, eventType, stage string, payload any) error
}

// stagePercent is the progress value reported when a stage completes.
var stagePercent = map[string]int{
	schema.StageRequirements:      15,
	schema.StageReferenceAnalysis: 30,
	schema.StagePlanning:          45,
	schema.StageComposition:       65,
	schema.StageImageGeneration:   85,
	schema.StageVerification:      95,
}

// Pipeline wires the six stages together.
type Pipeline struct {
	normalizer *brief.Normalizer
	analyzer   *tokens.Analyzer
	merger     *tokens.Merger
	planner    *planner.Planner
	composer   *planner.Composer
	resolver   *images.Resolver
	verifier   *verify.Verifier
	hub        streaming.ProgressHub
	recorder   RunRecorder
	logger     *slog.Logger
	cfg        Config
}

// New assembles a pipeline. hub and recorder may be nil.
func New(
	normalizer *brief.Normalizer,
	analyzer *tokens.Analyzer,
	merger *tokens.Merger,
	pagePlanner *planner.Planner,
	composer *planner.Composer,
	resolver *images.Resolver,
	verifier *verify.Verifier,
	hub streaming.ProgressHub,
	recorder RunRecorder,
	logger *slog.Logger,
	cfg Config,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		normalizer: normalizer,
		analyzer:   analyzer,
		merger:     merger,
		planner:    pagePlanner,
		composer:   composer,
		resolver:   resolver,
		verifier:   verifier,
		hub:        hub,
		recorder:   recorder,
		logger:     logger,
		cfg:        cfg.withDefaults(),
	}
}

// Run executes one generation run end to end. The returned result is never
// partial: either every stage concluded (possibly via fallback, flagged as
// degraded) or Run returns an error and no result.
func (p *Pipeline) Run(ctx context.Context, req schema.RunRequest) (*schema.GenerationResult, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	if req.ProjectID != "" {
		ctx = logging.WithProjectID(ctx, req.ProjectID)
	}
	// A per-request model choice overrides the configured default for every
	// generator call in this run.
	ctx = capability.WithModel(ctx, req.Model)

	st := newState(runID, req)
	p.logger.InfoContext(ctx, "run started", slog.String("page_kind", req.PageKind))
	p.publish(ctx, runID, "", 0, schema.EventRunStarted, nil)
	if p.recorder != nil {
		if err := p.recorder.RecordRunStart(ctx, runID, req); err != nil {
			p.logger.WarnContext(ctx, "record run start failed", slog.String("error", err.Error()))
		}
	}

	if err := p.execute(ctx, st); err != nil {
		status := schema.RunStatusFailed
		event := schema.EventRunFailed
		if errors.Is(err, context.Canceled) {
			status = schema.RunStatusCancelled
			event = schema.EventRunCancelled
		}
		p.publish(ctx, runID, "", 100, event, err.Error())
		p.recordEnd(ctx, runID, status, nil)
		p.logger.ErrorContext(ctx, "run finished", slog.String("status", string(status)), slog.String("error", err.Error()))
		return nil, err
	}

	res := st.result()
	event := schema.EventRunCompleted
	if res.Degraded {
		event = schema.EventRunDegraded
	}
	p.publish(ctx, runID, "", 100, event, nil)
	p.recordEnd(ctx, runID, schema.RunStatusCompleted, res)
	p.logger.InfoContext(ctx, "run finished",
		slog.Bool("degraded", res.Degraded), slog.Int("warnings", len(res.Warnings)))
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, st *State) error {
	// Requirements and reference analysis have no data dependency.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.runStage(gctx, st, schema.StageRequirements,
			func(ctx context.Context) error {
				b, err := p.normalizer.Normalize(ctx, st.Request.Input, st.Request.ChatHistory)
				if err != nil {
					return err
				}
				st.Brief = b
				return nil
			},
			func(context.Context) error {
				st.Brief = p.normalizer.Fallback()
				st.warn("requirements normalization unavailable, default brief applied")
				return nil
			})
	})
	g.Go(func() error {
		if len(st.Request.ReferenceURLs) == 0 {
			st.record(StageRecord{Stage: schema.StageReferenceAnalysis, Outcome: schema.OutcomeSkipped})
			return nil
		}
		return p.runStage(gctx, st, schema.StageReferenceAnalysis,
			func(ctx context.Context) error {
				signals, warns, err := p.analyzer.AnalyzeAll(ctx, st.Request.ReferenceURLs, st.Request.Input)
				st.warn(warns...)
				if err != nil {
					return err
				}
				st.Signals = signals
				return nil
			},
			func(context.Context) error {
				st.Signals = nil
				st.warn("reference analysis unavailable, built-in design system applied")
				return nil
			})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	ds, err := p.merger.Merge(st.Signals)
	if err != nil {
		return err
	}
	st.DesignSystem = &ds

	if err := p.runStage(ctx, st, schema.StagePlanning,
		func(ctx context.Context) error {
			spec, err := p.planner.Plan(ctx, st.Brief, st.DesignSystem, st.Request.PageKind, st.Request.PinnedSlots)
			if err != nil {
				return err
			}
			st.PageSpec = spec
			return nil
		},
		func(ctx context.Context) error {
			spec, err := p.planner.Fallback(ctx, st.Brief, st.Request.PageKind, st.Request.PinnedSlots)
			if err != nil {
				return err
			}
			st.PageSpec = spec
			st.warn("layout planning unavailable, template layout applied")
			return nil
		}); err != nil {
		return err
	}

	if err := p.runStage(ctx, st, schema.StageComposition,
		func(context.Context) error {
			tree, slots, err := p.composer.Compose(st.PageSpec, st.DesignSystem)
			if err != nil {
				return err
			}
			st.Tree = tree
			st.Slots = slots
			return nil
		},
		func(context.Context) error {
			name := ""
			if st.PageSpec != nil {
				name = st.PageSpec.PageName
			}
			tree, slots, err := p.composer.Fallback(st.DesignSystem, name)
			if err != nil {
				return err
			}
			st.Tree = tree
			st.Slots = slots
			st.warn("composition unavailable, minimal placeholder layout applied")
			return nil
		}); err != nil {
		return err
	}

	if err := p.runStage(ctx, st, schema.StageImageGeneration,
		func(ctx context.Context) error {
			st.Images = p.resolver.Resolve(ctx, st.Slots, st.Request.UseAIImages)
			if st.Request.UseAIImages {
				var degraded []string
				for role, img := range st.Images {
					if img.Placeholder {
						degraded = append(degraded, role)
					}
				}
				if len(degraded) > 0 {
					st.warn(fmt.Sprintf("image generation degraded, placeholders used for: %s", strings.Join(degraded, ", ")))
					st.degrade()
				}
			}
			return nil
		}, nil); err != nil {
		return err
	}

	// Verification never aborts a run that composed: a violation degrades the
	// result and ships it with the warning instead.
	var verifyErr error
	return p.runStage(ctx, st, schema.StageVerification,
		func(context.Context) error {
			report, err := p.verifier.Verify(st.Tree, st.DesignSystem, st.PageSpec, len(st.Slots))
			if err != nil {
				verifyErr = err
				return err
			}
			st.Report = report
			st.warn(report.Warnings...)
			return nil
		},
		func(context.Context) error {
			msg := "verification incomplete, result returned unverified"
			if verifyErr != nil {
				msg = "verification failed: " + verifyErr.Error()
			}
			st.warn(msg)
			return nil
		})
}

// runStage executes one stage under the retry policy. Transient failures
// retry with exponential backoff up to the attempt budget, then route to the
// fallback like validation failures do. A stage without a fallback aborts the
// run on any non-transient failure or on budget exhaustion.
func (p *Pipeline) runStage(ctx context.Context, st *State, stage string, fn, fallback func(context.Context) error) error {
	sctx := logging.WithStage(ctx, stage)
	start := time.Now()
	percent := stagePercent[stage]
	p.publish(sctx, st.RunID, stage, percent, schema.EventStageStarted, nil)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		if err := ctx.Err(); err != nil {
			st.record(StageRecord{Stage: stage, Outcome: schema.OutcomeError, Attempts: attempt, Duration: time.Since(start), Error: err.Error()})
			return context.Canceled
		}
		stageCtx, cancel := context.WithTimeout(sctx, p.cfg.StageTimeout)
		err := fn(stageCtx)
		cancel()
		if err == nil {
			st.record(StageRecord{Stage: stage, Outcome: schema.OutcomeSuccess, Attempts: attempt, Duration: time.Since(start)})
			p.publish(sctx, st.RunID, stage, percent, schema.EventStageDone, nil)
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			st.record(StageRecord{Stage: stage, Outcome: schema.OutcomeError, Attempts: attempt, Duration: time.Since(start), Error: ctx.Err().Error()})
			return context.Canceled
		}

		switch Classify(err) {
		case schema.ClassFatal:
			st.record(StageRecord{Stage: stage, Outcome: schema.OutcomeError, Attempts: attempt, Duration: time.Since(start), Error: err.Error()})
			return err
		case schema.ClassValidation:
			return p.fallbackStage(sctx, st, stage, attempts, start, lastErr, fallback)
		default:
			if attempt == p.cfg.MaxAttempts {
				return p.fallbackStage(sctx, st, stage, attempts, start, lastErr, fallback)
			}
			p.logger.WarnContext(sctx, "stage retrying",
				slog.Int("attempt", attempt), slog.String("error", err.Error()))
			p.publish(sctx, st.RunID, stage, percent, schema.EventStageRetrying, map[string]any{"attempt": attempt})
			if werr := WaitForBackoff(ctx, ComputeBackoff(p.cfg.BaseBackoff, attempt, p.cfg.MaxBackoff)); werr != nil {
				st.record(StageRecord{Stage: stage, Outcome: schema.OutcomeError, Attempts: attempt, Duration: time.Since(start), Error: werr.Error()})
				return context.Canceled
			}
		}
	}
	return lastErr
}

func (p *Pipeline) fallbackStage(ctx context.Context, st *State, stage string, attempts int, start time.Time, cause error, fallback func(context.Context) error) error {
	if fallback == nil {
		st.record(StageRecord{Stage: stage, Outcome: schema.OutcomeError, Attempts: attempts, Duration: time.Since(start), Error: cause.Error()})
		return cause
	}

	p.logger.WarnContext(ctx, "stage falling back", slog.String("error", cause.Error()))
	if err := fallback(ctx); err != nil {
		st.record(StageRecord{Stage: stage, Outcome: schema.OutcomeError, Attempts: attempts, Duration: time.Since(start), Error: err.Error()})
		return cause
	}
	st.record(StageRecord{Stage: stage, Outcome: schema.OutcomeFallback, Attempts: attempts, Duration: time.Since(start), Error: cause.Error()})
	p.publish(ctx, st.RunID, stage, stagePercent[stage], schema.EventStageFallback, cause.Error())
	p.publish(ctx, st.RunID, stage, stagePercent[stage], schema.EventStageDone, nil)
	return nil
}

func (p *Pipeline) publish(ctx context.Context, runID, stage string, percent int, eventType string, payload any) {
	if p.hub != nil {
		_ = p.hub.Publish(ctx, streaming.ProgressEvent{
			RunID:   runID,
			Step:    stage,
			Percent: percent,
			Type:    eventType,
			Payload: payload,
		})
	}
	if p.recorder != nil {
		if err := p.recorder.RecordEvent(ctx, runID, eventType, stage, payload); err != nil {
			p.logger.WarnContext(ctx, "record event failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) recordEnd(ctx context.Context, runID string, status schema.RunStatus, res *schema.GenerationResult) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordRunEnd(ctx, runID, status, res); err != nil {
		p.logger.WarnContext(ctx, "record run end failed", slog.String("error", err.Error()))
	}
}
