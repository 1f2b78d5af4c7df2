package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivy-plugin-exposure-risk/internal/score"
)

func TestExposureFactor(t *testing.T) {
	t.Run("lambda has no effect at zero probability", func(t *testing.T) {
		ef, err := ExposureFactor(score.Of(0.5), score.Of(0.0), 0.3)
		require.NoError(t, err)
		assert.Equal(t, 0.5, ef)
	})

	t.Run("maximum amplification doubles the impact", func(t *testing.T) {
		ef, err := ExposureFactor(score.Of(0.5), score.Of(1.0), 1.0)
		require.NoError(t, err)
		assert.Equal(t, 1.0, ef)
	})

	t.Run("lambda zero keeps the impact", func(t *testing.T) {
		ef, err := ExposureFactor(score.Of(0.42), score.Of(0.8), 0)
		require.NoError(t, err)
		assert.Equal(t, 0.42, ef)
	})

	t.Run("unavailable impact is surfaced", func(t *testing.T) {
		_, err := ExposureFactor(score.Unavailable(), score.Of(0.5), 0.3)
		assert.ErrorIs(t, err, score.ErrUnavailable)
	})

	t.Run("unavailable probability is surfaced", func(t *testing.T) {
		_, err := ExposureFactor(score.Of(0.5), score.Unavailable(), 0.3)
		assert.ErrorIs(t, err, score.ErrUnavailable)
	})

	t.Run("lambda outside [0, 1] is invalid", func(t *testing.T) {
		_, err := ExposureFactor(score.Of(0.5), score.Of(0.5), 1.5)
		assert.ErrorIs(t, err, score.ErrInvalidParameter)
	})
}

func TestRisk(t *testing.T) {
	t.Run("reference product", func(t *testing.T) {
		r, err := Risk(2.0, score.Of(0.5), 1.0)
		require.NoError(t, err)
		assert.Equal(t, 1.0, r)
	})

	t.Run("unavailable exposure factor is surfaced", func(t *testing.T) {
		_, err := Risk(2.0, score.Unavailable(), 1.0)
		assert.ErrorIs(t, err, score.ErrUnavailable)
	})

	t.Run("negative occurrence rate is invalid", func(t *testing.T) {
		_, err := Risk(2.0, score.Of(0.5), -1)
		assert.ErrorIs(t, err, score.ErrInvalidParameter)
	})
}

func TestAssetValue(t *testing.T) {
	av, err := AssetValue(High, Moderate, Low)
	require.NoError(t, err)
	assert.Equal(t, 2.0, av)

	_, err = AssetValue(High, 4, Low)
	assert.ErrorIs(t, err, score.ErrInvalidParameter)
	_, err = AssetValue(0, Low, Low)
	assert.ErrorIs(t, err, score.ErrInvalidParameter)
}

func TestMeanExposureFactor(t *testing.T) {
	mean := MeanExposureFactor([]score.Value{score.Of(0.2), score.Unavailable(), score.Of(0.4)})
	v, ok := mean.Get()
	require.True(t, ok)
	assert.InDelta(t, 0.3, v, 1e-12)

	assert.False(t, MeanExposureFactor([]score.Value{score.Unavailable()}).Available())
	assert.False(t, MeanExposureFactor(nil).Available())
}
