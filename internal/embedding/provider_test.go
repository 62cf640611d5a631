package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_Deterministic(t *testing.T) {
	p := NewLocalProvider(64)

	a, err := p.Embed(context.Background(), "metformin lowers blood glucose")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "metformin lowers blood glucose")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestEmbed_L2Normalized(t *testing.T) {
	p := NewLocalProvider(128)

	vec, err := p.Embed(context.Background(), "insulin therapy for adults with type 2 diabetes")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestEmbed_SimilarTextsShareBuckets(t *testing.T) {
	p := NewLocalProvider(128)

	a, _ := p.Embed(context.Background(), "metformin blood glucose control")
	b, _ := p.Embed(context.Background(), "blood glucose control with metformin")
	c, _ := p.Embed(context.Background(), "unrelated bariatric surgery referral criteria")

	assert.Greater(t, dot(a, b), dot(a, c))
}

func TestEmbed_EmptyText(t *testing.T) {
	p := NewLocalProvider(32)

	vec, err := p.Embed(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, vec, 32)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestNewLocalProvider_DefaultDims(t *testing.T) {
	assert.Equal(t, 256, NewLocalProvider(0).Dims())
	assert.Equal(t, 16, NewLocalProvider(16).Dims())
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	if math.IsNaN(sum) {
		return 0
	}
	return sum
}
