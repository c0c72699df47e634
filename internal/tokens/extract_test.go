package tokens

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNormalizesAnalysisDocument(t *testing.T) {
	raw := []byte(`{
		"colors": {
			"primary": {"hex": "#336699", "confidence": 0.9},
			"broken": {"confidence": 0.5}
		},
		"typography": {
			"body": {"family": "Roboto", "size": 16, "confidence": 0.8},
			"broken": {"family": "Roboto"}
		},
		"spacing": [24, 8, "x", 8, -4, 16],
		"radius": {
			"md": {"px": 10, "confidence": 0.7}
		},
		"components": {
			"Button": {"props": {"radius": 8}, "confidence": 0.6}
		}
	}`)

	sig, err := NewExtractor().Extract(context.Background(), raw, "https://ref.example", true)
	require.NoError(t, err)

	assert.Equal(t, "https://ref.example", sig.SourceURL)
	assert.True(t, sig.Primary)

	// Malformed entries are dropped, not fatal.
	assert.Len(t, sig.Colors, 1)
	assert.Equal(t, "#336699", sig.Colors["primary"].Hex)
	assert.Len(t, sig.Typography, 1)
	assert.Equal(t, "Roboto", sig.Typography["body"].Family)

	// Spacing is sorted, deduplicated and stripped of junk.
	assert.Equal(t, []float64{8, 16, 24}, sig.Spacing)

	assert.Equal(t, 10.0, sig.Radius["md"].Px)
	assert.Equal(t, 0.6, sig.Components["Button"].Confidence)
}

func TestExtractMissingSectionsDefaultEmpty(t *testing.T) {
	sig, err := NewExtractor().Extract(context.Background(), []byte(`{}`), "https://ref.example", false)
	require.NoError(t, err)

	assert.Empty(t, sig.Colors)
	assert.Empty(t, sig.Typography)
	assert.Empty(t, sig.Spacing)
	assert.Empty(t, sig.Radius)
	assert.Empty(t, sig.Components)
}

func TestExtractRejectsNonObjectDocument(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte(`[1,2,3]`), "https://ref.example", false)
	require.Error(t, err)
}

func TestExtractorReusesCompiledQueries(t *testing.T) {
	e := NewExtractor()

	_, err := e.Extract(context.Background(), []byte(`{}`), "a", false)
	require.NoError(t, err)
	first := len(e.cache)

	_, err = e.Extract(context.Background(), []byte(`{}`), "b", false)
	require.NoError(t, err)

	assert.Equal(t, first, len(e.cache))
	assert.Equal(t, 5, first)
}
