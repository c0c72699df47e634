// Package capability defines the external collaborator surfaces the pipeline
// consumes: text generation, reference fetching, and image generation. Every
// call is fallible with a class-tagged ForgeError so the pipeline's retry
// policy can act on it.
package capability

import (
	"context"

	"github.com/pageforge/pageforge/pkg/schema"
)

// GenConfig tunes a single text-generation call.
type GenConfig struct {
	Model       string
	Temperature float64
	System      string
}

// TextGenerator completes a prompt into text.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, cfg GenConfig) (string, error)
}

// ReferenceFetcher retrieves the raw content of a reference URL.
type ReferenceFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ImageGenerator produces an image for a prompt and returns its URL.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Disabled is a TextGenerator for deployments without model credentials.
// Every call fails with a validation-class error so each stage routes
// straight to its deterministic fallback instead of retrying.
type Disabled struct{}

func (Disabled) Complete(context.Context, string, GenConfig) (string, error) {
	return "", schema.NewError(schema.ErrCodeValidation, "text generation disabled: no api key configured")
}

type modelCtxKey struct{}

// WithModel returns a context carrying a per-run model override. An empty
// model leaves the context unchanged.
func WithModel(ctx context.Context, model string) context.Context {
	if model == "" {
		return ctx
	}
	return context.WithValue(ctx, modelCtxKey{}, model)
}

// ModelFromContext returns the per-run model override, or "".
func ModelFromContext(ctx context.Context) string {
	v, _ := ctx.Value(modelCtxKey{}).(string)
	return v
}

// ClassifyStatus maps an upstream HTTP status to a ForgeError code.
func ClassifyStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return schema.ErrCodeAuth
	case status == 429:
		return schema.ErrCodeRateLimit
	case status == 404:
		return schema.ErrCodeNotFound
	case status >= 400 && status < 500:
		return schema.ErrCodeValidation
	default:
		return schema.ErrCodeUpstream
	}
}
