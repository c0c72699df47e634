package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pageforge/pageforge/internal/capability"
	"github.com/pageforge/pageforge/pkg/schema"
)

// DefaultConcurrency is the fan-out width for slot generation.
const DefaultConcurrency = 4

// perSlotRetries bounds transient-failure retries for one slot.
const perSlotRetries = 3

// placeholderByRole maps well-known slot roles to curated stock placeholders.
var placeholderByRole = map[string]string{
	"hero":    "https://images.unsplash.com/photo-1559757148-5c350d0d3c56?w=800&h=600&fit=crop&crop=center",
	"logo":    "https://via.placeholder.com/200x80/2563EB/FFFFFF?text=LOGO",
	"team":    "https://images.unsplash.com/photo-1612349317150-e413f6a5b16d?w=800&h=600&fit=crop&crop=center",
	"service": "https://images.unsplash.com/photo-1576091160399-112ba8d25d1f?w=800&h=600&fit=crop&crop=center",
	"about":   "https://images.unsplash.com/photo-1519494026892-80bbd2d6fd0d?w=800&h=600&fit=crop&crop=center",
}

const placeholderGeneric = "https://via.placeholder.com/800x600/CCCCCC/666666?text=Image"

const enhancementPrompt = `You are a prompt engineer for healthcare marketing imagery.

Enhance the image generation prompt for professional medical marketing material.

GUIDELINES:
- Professional, clean, modern aesthetic
- Diverse representation when showing people
- Medical accuracy and sensitivity
- High-quality commercial photography look

Keep the result under 200 characters. Return the enhanced prompt only, no commentary.`

// Resolver resolves image slots concurrently. Generation failures degrade to
// placeholders per slot; Resolve never fails the run.
type Resolver struct {
	gen         capability.ImageGenerator
	enhancer    capability.TextGenerator
	logger      *slog.Logger
	concurrency int
	backoff     time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithConcurrency sets the fan-out width.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) { r.concurrency = n }
}

// WithEnhancer installs a text generator used to enhance slot prompts before
// generation. Enhancement failure is non-fatal; the base prompt is used.
func WithEnhancer(gen capability.TextGenerator) ResolverOption {
	return func(r *Resolver) { r.enhancer = gen }
}

// WithBackoff overrides the base retry backoff. Tests use this to stay fast.
func WithBackoff(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.backoff = d }
}

// NewResolver creates a resolver. gen may be nil; every slot then resolves to
// its placeholder.
func NewResolver(gen capability.ImageGenerator, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		gen:         gen,
		logger:      logger,
		concurrency: DefaultConcurrency,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns every slot into a ResolvedImage, generating concurrently when
// useAI is set and the generator is available. The returned map always has one
// entry per distinct slot role.
func (r *Resolver) Resolve(ctx context.Context, slots []schema.ImageSlot, useAI bool) map[string]schema.ResolvedImage {
	out := make(map[string]schema.ResolvedImage, len(slots))
	if len(slots) == 0 {
		return out
	}

	if !useAI || r.gen == nil {
		for _, slot := range slots {
			out[slot.Role] = placeholder(slot)
		}
		return out
	}

	var mu sync.Mutex
	p := newPool(r.concurrency)
	defer p.shutdown()

	for _, slot := range slots {
		slot := slot
		err := p.submit(ctx, func(ctx context.Context) {
			img := r.resolveSlot(ctx, slot)
			mu.Lock()
			out[slot.Role] = img
			mu.Unlock()
		})
		if err != nil {
			// Cancelled mid fan-out; remaining slots get placeholders.
			mu.Lock()
			out[slot.Role] = placeholder(slot)
			mu.Unlock()
		}
	}
	p.wait()
	return out
}

// resolveSlot generates one slot with bounded retries, degrading to the
// placeholder on exhaustion or a non-transient error.
func (r *Resolver) resolveSlot(ctx context.Context, slot schema.ImageSlot) schema.ResolvedImage {
	prompt := r.enhance(ctx, slot)

	for attempt := 1; attempt <= perSlotRetries; attempt++ {
		url, err := r.gen.Generate(ctx, prompt)
		if err == nil && url != "" {
			return schema.ResolvedImage{Role: slot.Role, URL: url, Prompt: prompt}
		}

		var ferr *schema.ForgeError
		if err != nil && errors.As(err, &ferr) && ferr.Class() != schema.ClassTransient {
			r.logger.WarnContext(ctx, "image generation not retryable",
				slog.String("role", slot.Role), slog.String("code", ferr.Code))
			break
		}
		r.logger.WarnContext(ctx, "image generation attempt failed",
			slog.String("role", slot.Role), slog.Int("attempt", attempt))

		if attempt < perSlotRetries {
			select {
			case <-time.After(r.backoff * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return placeholder(slot)
			}
		}
	}
	return placeholder(slot)
}

// enhance rewrites the slot prompt through the text generator when one is
// configured. Any failure falls back to the deterministic enhancement.
func (r *Resolver) enhance(ctx context.Context, slot schema.ImageSlot) string {
	if r.enhancer == nil {
		return defaultEnhanced(slot)
	}

	input := fmt.Sprintf("Base prompt: %s\nStyle hints: %v", slot.Prompt, slot.StyleHints)
	enhanced, err := r.enhancer.Complete(ctx, input, capability.GenConfig{System: enhancementPrompt})
	if err != nil || enhanced == "" {
		return defaultEnhanced(slot)
	}
	return enhanced
}

// defaultEnhanced appends the stock quality modifiers to the base prompt.
func defaultEnhanced(slot schema.ImageSlot) string {
	return slot.Prompt + ", professional commercial photography, high resolution, clean composition, professional lighting"
}

// placeholder resolves a slot deterministically by role.
func placeholder(slot schema.ImageSlot) schema.ResolvedImage {
	url, ok := placeholderByRole[slot.Role]
	if !ok {
		url = placeholderGeneric
	}
	return schema.ResolvedImage{
		Role:        slot.Role,
		URL:         url,
		Prompt:      slot.Prompt,
		Placeholder: true,
	}
}
