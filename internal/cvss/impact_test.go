package cvss

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivy-plugin-exposure-risk/internal/score"
)

func TestImpactScore(t *testing.T) {
	t.Run("legacy none/none/none is zero", func(t *testing.T) {
		b, err := ImpactScore(Ratings{C: "N", I: "N", A: "N"}, Legacy, DefaultWeights())
		require.NoError(t, err)
		assert.Equal(t, 0.0, b)
	})

	t.Run("legacy complete/complete/complete with equal weights", func(t *testing.T) {
		b, err := ImpactScore(Ratings{C: "C", I: "C", A: "C"}, Legacy, DefaultWeights())
		require.NoError(t, err)
		assert.InDelta(t, 0.66, b, 1e-12)
	})

	t.Run("modern mixed ratings", func(t *testing.T) {
		b, err := ImpactScore(Ratings{C: "H", I: "L", A: "N"}, Modern, DefaultWeights())
		require.NoError(t, err)
		assert.InDelta(t, (0.56+0.22)/3, b, 1e-12)
	})

	t.Run("weighted mean honours weights", func(t *testing.T) {
		b, err := ImpactScore(Ratings{C: "H", I: "N", A: "N"}, Modern, Weights{C: 1, I: 0, A: 0})
		require.NoError(t, err)
		assert.InDelta(t, 0.56, b, 1e-12)
	})

	t.Run("uniform rescaling of weights does not change the score", func(t *testing.T) {
		r := Ratings{C: "P", I: "C", A: "N"}
		one, err := ImpactScore(r, Legacy, Weights{C: 1, I: 1, A: 1})
		require.NoError(t, err)
		two, err := ImpactScore(r, Legacy, Weights{C: 2, I: 2, A: 2})
		require.NoError(t, err)
		assert.InDelta(t, one, two, 1e-12)
	})

	t.Run("missing rating is unavailable", func(t *testing.T) {
		_, err := ImpactScore(Ratings{C: "H", I: "", A: "H"}, Modern, DefaultWeights())
		assert.ErrorIs(t, err, score.ErrUnavailable)
	})

	t.Run("rating from the other scheme is unavailable", func(t *testing.T) {
		_, err := ImpactScore(Ratings{C: "P", I: "N", A: "N"}, Modern, DefaultWeights())
		assert.ErrorIs(t, err, score.ErrUnavailable)
	})

	t.Run("zero weights are invalid", func(t *testing.T) {
		_, err := ImpactScore(Ratings{C: "H", I: "H", A: "H"}, Modern, Weights{})
		assert.ErrorIs(t, err, ErrInvalidWeights)
		assert.ErrorIs(t, err, score.ErrInvalidParameter)
		assert.False(t, errors.Is(err, score.ErrUnavailable))
	})

	t.Run("negative weight is invalid", func(t *testing.T) {
		_, err := ImpactScore(Ratings{C: "H", I: "H", A: "H"}, Modern, Weights{C: 2, I: -1, A: 1})
		assert.ErrorIs(t, err, score.ErrInvalidParameter)
	})
}

func TestRatingsFromVector(t *testing.T) {
	t.Run("cvss 2.0 vector uses the legacy scheme", func(t *testing.T) {
		r, scheme, err := RatingsFromVector("AV:N/AC:L/Au:N/C:P/I:C/A:N")
		require.NoError(t, err)
		assert.Equal(t, Legacy, scheme)
		assert.Equal(t, Ratings{C: "P", I: "C", A: "N"}, r)
	})

	t.Run("cvss 3.1 vector uses the modern scheme", func(t *testing.T) {
		r, scheme, err := RatingsFromVector("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:L")
		require.NoError(t, err)
		assert.Equal(t, Modern, scheme)
		assert.Equal(t, Ratings{C: "H", I: "H", A: "L"}, r)
	})

	t.Run("modified impact takes precedence", func(t *testing.T) {
		r, _, err := RatingsFromVector("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H/MC:L")
		require.NoError(t, err)
		assert.Equal(t, Ratings{C: "L", I: "H", A: "H"}, r)
	})

	t.Run("cvss 4.0 has no impact mapping", func(t *testing.T) {
		_, _, err := RatingsFromVector("CVSS:4.0/AV:N/AC:L/AT:N/PR:N/UI:N/VC:H/VI:H/VA:H/SC:N/SI:N/SA:N")
		assert.ErrorIs(t, err, score.ErrUnavailable)
	})

	t.Run("garbage is unavailable", func(t *testing.T) {
		_, _, err := RatingsFromVector("not a vector")
		assert.ErrorIs(t, err, score.ErrUnavailable)
	})
}

func TestApplyImpact(t *testing.T) {
	base := "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:L/I:H/A:N"

	t.Run("appends modified impact", func(t *testing.T) {
		out, err := ApplyImpact(base, ImpactOptions{MI: "l"})
		require.NoError(t, err)
		assert.Equal(t, base+"/MI:L", out)
	})

	t.Run("smart mode refuses to raise impact", func(t *testing.T) {
		out, err := ApplyImpact(base, ImpactOptions{MC: "H", MI: "N", Smart: true})
		require.NoError(t, err)
		assert.Equal(t, base+"/MI:N", out)
	})

	t.Run("legacy vectors are left alone", func(t *testing.T) {
		v2 := "AV:N/AC:L/Au:N/C:P/I:P/A:P"
		out, err := ApplyImpact(v2, ImpactOptions{MC: "N"})
		require.NoError(t, err)
		assert.Equal(t, v2, out)
	})
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, "CRITICAL", SeverityOf(9.8).String())
	assert.Equal(t, "HIGH", SeverityOf(7.5).String())
	assert.Equal(t, "MEDIUM", SeverityOf(5.0).String())
	assert.Equal(t, "LOW", SeverityOf(0.1).String())
	assert.Equal(t, "UNKNOWN", SeverityOf(0).String())
}
