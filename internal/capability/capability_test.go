package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ModelFromContext(ctx))

	ctx = WithModel(ctx, "gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", ModelFromContext(ctx))
}

func TestWithModelEmptyIsNoOp(t *testing.T) {
	ctx := WithModel(context.Background(), "gpt-4o")
	assert.Equal(t, ctx, WithModel(ctx, ""))
	assert.Equal(t, "gpt-4o", ModelFromContext(ctx))
}
