package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractString_DottedPath(t *testing.T) {
	e := NewPathExtractor()
	ctx := context.Background()

	data := map[string]any{
		"issue": map[string]any{
			"id":     "ISS-7",
			"number": 7,
		},
	}

	id, ok := e.ExtractString(ctx, "issue.id", data)
	require.True(t, ok)
	assert.Equal(t, "ISS-7", id)

	num, ok := e.ExtractString(ctx, "issue.number", data)
	require.True(t, ok)
	assert.Equal(t, "7", num)
}

func TestExtractString_MissingPath(t *testing.T) {
	e := NewPathExtractor()
	ctx := context.Background()

	_, ok := e.ExtractString(ctx, "issue.missing.deep", map[string]any{"issue": map[string]any{}})
	assert.False(t, ok)

	_, ok = e.ExtractString(ctx, "top", map[string]any{})
	assert.False(t, ok)
}

func TestExtractString_NonScalar(t *testing.T) {
	e := NewPathExtractor()
	ctx := context.Background()

	_, ok := e.ExtractString(ctx, "issue", map[string]any{"issue": map[string]any{"id": "x"}})
	assert.False(t, ok)
}

func TestEvaluate_RawJQQuery(t *testing.T) {
	e := NewPathExtractor()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, ".items[0].id", map[string]any{
		"items": []any{map[string]any{"id": "first"}, map[string]any{"id": "second"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "first", out)
}

func TestEvaluate_EmptyExpression(t *testing.T) {
	e := NewPathExtractor()
	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
}
