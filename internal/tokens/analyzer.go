package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pageforge/pageforge/internal/capability"
	"github.com/pageforge/pageforge/internal/validation"
	"github.com/pageforge/pageforge/pkg/schema"
)

// fetchParallelism bounds concurrent reference fetches per run.
const fetchParallelism = 3

const analysisPrompt = `You are a design system analyst for healthcare websites.

Analyze the provided website content and extract design tokens:
1. COLOR PALETTE: primary brand colors, text colors, backgrounds, CTA accents
2. TYPOGRAPHY: font families, heading hierarchy, body specifications
3. SPACING: common spacing values (8, 16, 24, ...)
4. UI COMPONENTS: button styles, card designs

Focus on healthcare aesthetics: clean, trustworthy, professional.

Return ONLY a JSON object with this structure:
{
  "colors": {"primary": {"hex": "#2563EB", "confidence": 0.9}},
  "typography": {"body": {"family": "Inter", "size": 16, "weight": "400", "confidence": 0.8}},
  "spacing": [8, 16, 24, 32],
  "radius": {"md": {"px": 8, "confidence": 0.7}},
  "components": {"Button": {"props": {"radius": 8}, "confidence": 0.6}}
}
Include only tokens you actually observe; confidence reflects how certain you are.`

// Analyzer runs reference analysis end to end for one run: fetch each URL,
// have the generator extract style signals, validate and normalize them. The
// first URL is the primary reference; its tokens win merge collisions.
type Analyzer struct {
	gen       capability.TextGenerator
	fetcher   capability.ReferenceFetcher
	validator *validation.LLMValidator
	extractor *Extractor
	logger    *slog.Logger
	cfg       capability.GenConfig
}

// NewAnalyzer creates a reference analyzer. cfg.System is ignored; the
// analyzer installs its own system prompt.
func NewAnalyzer(gen capability.TextGenerator, fetcher capability.ReferenceFetcher, validator *validation.LLMValidator, logger *slog.Logger, cfg capability.GenConfig) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.System = analysisPrompt
	return &Analyzer{
		gen:       gen,
		fetcher:   fetcher,
		validator: validator,
		extractor: NewExtractor(),
		logger:    logger,
		cfg:       cfg,
	}
}

// AnalyzeAll analyzes every reference URL with bounded parallelism. A failed
// URL is skipped with a warning; the stage only errors when every URL fails
// or the context is cancelled.
func (a *Analyzer) AnalyzeAll(ctx context.Context, urls []string, briefContext string) ([]schema.RawSignals, []string, error) {
	if len(urls) == 0 {
		return nil, nil, nil
	}

	var mu sync.Mutex
	signals := make([]schema.RawSignals, 0, len(urls))
	var warnings []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			sig, err := a.Analyze(gctx, url, i == 0, briefContext)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				a.logger.WarnContext(gctx, "reference analysis failed",
					slog.String("url", url), slog.String("error", err.Error()))
				warnings = append(warnings, fmt.Sprintf("reference %s skipped: %s", url, err.Error()))
				return nil
			}
			signals = append(signals, sig)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, warnings, err
	}

	if len(signals) == 0 {
		return nil, warnings, schema.NewErrorf(schema.ErrCodeUpstream, "all %d reference analyses failed", len(urls)).
			WithStage(schema.StageReferenceAnalysis)
	}
	return signals, warnings, nil
}

// Analyze runs the fetch-extract-validate chain for one URL.
func (a *Analyzer) Analyze(ctx context.Context, url string, primary bool, briefContext string) (schema.RawSignals, error) {
	content, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return schema.RawSignals{}, analysisErr(err)
	}

	prompt := fmt.Sprintf("Website content to analyze (URL %s):\n%s", url, content)
	if briefContext != "" {
		prompt = "Target business context: " + briefContext + "\n\n" + prompt
	}

	reply, err := a.gen.Complete(ctx, prompt, a.cfg)
	if err != nil {
		return schema.RawSignals{}, analysisErr(err)
	}

	raw, err := validation.ExtractJSON(reply)
	if err != nil {
		return schema.RawSignals{}, analysisErr(err)
	}
	if err := a.validator.ValidateSignals(raw); err != nil {
		return schema.RawSignals{}, analysisErr(err)
	}

	sig, err := a.extractor.Extract(ctx, raw, url, primary)
	if err != nil {
		return schema.RawSignals{}, analysisErr(err)
	}
	return sig, nil
}

func analysisErr(err error) error {
	var ferr *schema.ForgeError
	if errors.As(err, &ferr) {
		return ferr.WithStage(schema.StageReferenceAnalysis)
	}
	return schema.NewError(schema.ErrCodeStageFailed, err.Error()).
		WithStage(schema.StageReferenceAnalysis).
		WithCause(err)
}
