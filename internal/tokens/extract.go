package tokens

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/pageforge/pageforge/pkg/schema"
)

// jq queries that normalize one analysis document into signal sections.
// Analysis output varies in shape across models; the queries default missing
// sections and strip malformed entries instead of failing the stage.
const (
	queryColors     = `.colors // {} | with_entries(select(.value.hex != null))`
	queryTypography = `.typography // {} | with_entries(select(.value.family != null and .value.size != null))`
	querySpacing    = `.spacing // [] | map(select(type == "number" and . >= 0)) | sort | unique`
	queryRadius     = `.radius // {} | with_entries(select(.value.px != null))`
	queryComponents = `.components // {}`
)

// Extractor pulls RawSignals out of a validated reference-analysis document.
// Thread-safe: compiled *gojq.Code objects are cached and reused.
type Extractor struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewExtractor creates a signal extractor.
func NewExtractor() *Extractor {
	return &Extractor{cache: make(map[string]*gojq.Code)}
}

// Extract runs the normalization queries against one analysis document and
// decodes the results into RawSignals for the merger.
func (e *Extractor) Extract(ctx context.Context, raw []byte, sourceURL string, primary bool) (schema.RawSignals, error) {
	out := schema.RawSignals{SourceURL: sourceURL, Primary: primary}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return out, schema.NewErrorf(schema.ErrCodeValidation, "analysis for %s is not a JSON object: %s", sourceURL, err.Error()).WithCause(err)
	}

	if err := e.query(ctx, queryColors, doc, &out.Colors); err != nil {
		return out, err
	}
	if err := e.query(ctx, queryTypography, doc, &out.Typography); err != nil {
		return out, err
	}
	if err := e.query(ctx, querySpacing, doc, &out.Spacing); err != nil {
		return out, err
	}
	if err := e.query(ctx, queryRadius, doc, &out.Radius); err != nil {
		return out, err
	}
	if err := e.query(ctx, queryComponents, doc, &out.Components); err != nil {
		return out, err
	}
	return out, nil
}

// query evaluates one jq expression and decodes its single output into dst.
func (e *Extractor) query(ctx context.Context, expression string, doc map[string]any, dst any) error {
	code, err := e.getOrCompile(expression)
	if err != nil {
		return err
	}

	iter := code.RunWithContext(ctx, doc)
	val, ok := iter.Next()
	if !ok {
		return nil
	}
	if qerr, isErr := val.(error); isErr {
		return schema.NewErrorf(schema.ErrCodeValidation, "signal query %q failed: %s", expression, qerr.Error()).
			WithCause(qerr).
			WithDetails(map[string]any{"expression": expression})
	}

	// Round-trip through JSON to land on the typed token maps.
	buf, err := json.Marshal(val)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "signal query %q produced unmarshalable output", expression).WithCause(err)
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "signal query %q output has wrong shape: %s", expression, err.Error()).WithCause(err)
	}
	return nil
}

// getOrCompile returns a cached compiled query or compiles and caches a new one.
func (e *Extractor) getOrCompile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "jq parse error in %q: %s", expression, err.Error()).WithCause(err)
	}

	code, err := gojq.Compile(query,
		// Sandbox: block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "jq compile error in %q: %s", expression, err.Error()).WithCause(err)
	}

	e.cache[expression] = code
	return code, nil
}
