package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	// Initially empty.
	assert.Equal(t, "", RunID(ctx))
	assert.Equal(t, "", Stage(ctx))
	assert.Equal(t, "", ProjectID(ctx))

	// Set values.
	ctx = WithRunID(ctx, "run-123")
	ctx = WithStage(ctx, "planning")
	ctx = WithProjectID(ctx, "proj-42")

	// Round-trip.
	assert.Equal(t, "run-123", RunID(ctx))
	assert.Equal(t, "planning", Stage(ctx))
	assert.Equal(t, "proj-42", ProjectID(ctx))
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := context.Background()
	ctx = WithRunID(ctx, "run-abc")
	ctx = WithStage(ctx, "composition")
	ctx = WithProjectID(ctx, "proj-7")

	logger.InfoContext(ctx, "stage started")

	out := buf.String()
	assert.Contains(t, out, "run_id=run-abc")
	assert.Contains(t, out, "stage=composition")
	assert.Contains(t, out, "project_id=proj-7")
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.Info("no correlation")

	out := buf.String()
	assert.NotContains(t, out, "run_id")
	assert.NotContains(t, out, "stage=")
	assert.NotContains(t, out, "project_id")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner)).With(slog.String("component", "pipeline"))

	ctx := WithRunID(context.Background(), "run-xyz")
	logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "component=pipeline")
	assert.Contains(t, out, "run_id=run-xyz")
}
