package rate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yoga07/safe-farming/config"
)

func curves(t *testing.T, capacity uint64) map[string]Curve {
	out := map[string]Curve{}
	for _, cfg := range []config.RateCurveConfig{
		{Shape: ShapeLinear},
		{Shape: ShapeExponential, Decay: "0.1"},
		{Shape: ShapeExponential, Decay: "0.9"},
		{Shape: ShapeInverse, Steepness: "0"},
		{Shape: ShapeInverse, Steepness: "4"},
		{Shape: ShapeLinear, MaxRate: "3", MinRate: "0.5"},
	} {
		c, err := NewCurve(capacity, cfg)
		require.NoError(t, err)
		out[cfg.Shape+"/"+cfg.Decay+cfg.Steepness+cfg.MinRate] = c
	}
	return out
}

func TestCurvesAreMonotonic(t *testing.T) {
	const capacity = 1000
	for name, c := range curves(t, capacity) {
		t.Run(name, func(t *testing.T) {
			prev := c.Rate(0)
			assert.True(t, prev.Equal(c.MaxRate()), "rate(0) is the maximum")
			for u := uint64(1); u <= capacity+50; u++ {
				r := c.Rate(u)
				assert.False(
					t,
					r.GreaterThan(prev),
					"rate(%d)=%s exceeds rate(%d)=%s", u, r, u-1, prev,
				)
				assert.False(t, r.IsNegative())
				prev = r
			}
		})
	}
}

func TestCurvesAtCapacity(t *testing.T) {
	for name, c := range curves(t, 1000) {
		t.Run(name, func(t *testing.T) {
			assert.True(t, c.Rate(1000).Equal(c.FloorRate()))
			assert.True(t, c.Rate(5000).Equal(c.FloorRate()))
			assert.True(t, c.Rate(^uint64(0)).Equal(c.FloorRate()))
		})
	}
}

func TestLinearCurveMidpoint(t *testing.T) {
	c, err := NewCurve(1000, config.RateCurveConfig{Shape: ShapeLinear, MaxRate: "1"})
	require.NoError(t, err)

	assert.True(t, c.Rate(0).Equal(decimal.NewFromInt(1)))
	assert.True(t, c.Rate(500).Equal(decimal.RequireFromString("0.5")))
	assert.True(t, c.Rate(1000).Equal(decimal.Zero))
}

func TestMinRateClampsBelowCapacity(t *testing.T) {
	c, err := NewCurve(1000, config.RateCurveConfig{
		Shape:     ShapeLinear,
		MaxRate:   "1",
		MinRate:   "0.25",
		FloorRate: "0.1",
	})
	require.NoError(t, err)

	assert.True(t, c.Rate(900).Equal(decimal.RequireFromString("0.25")))
	assert.True(t, c.Rate(999).Equal(decimal.RequireFromString("0.25")))
	assert.True(t, c.Rate(1000).Equal(decimal.RequireFromString("0.1")))
}

func TestExponentialCurveEndpoints(t *testing.T) {
	c, err := NewCurve(1000, config.RateCurveConfig{
		Shape:   ShapeExponential,
		MaxRate: "2",
		Decay:   "0.5",
	})
	require.NoError(t, err)

	assert.True(t, c.Rate(0).Equal(decimal.NewFromInt(2)))
	// 2 × (0.5^0.5 − 0.5) / 0.5 ≈ 0.8284
	mid := c.Rate(500)
	assert.True(t, mid.Sub(decimal.RequireFromString("0.828427")).Abs().LessThan(
		decimal.RequireFromString("0.000001"),
	), "got %s", mid)
}

func TestNewCurveRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint64
		cfg      config.RateCurveConfig
	}{
		{"zero capacity", 0, config.RateCurveConfig{}},
		{"unknown shape", 10, config.RateCurveConfig{Shape: "sigmoid"}},
		{"negative max", 10, config.RateCurveConfig{MaxRate: "-1"}},
		{"min above max", 10, config.RateCurveConfig{MaxRate: "1", MinRate: "2"}},
		{"floor above min", 10, config.RateCurveConfig{MinRate: "0.1", FloorRate: "0.2"}},
		{"decay of one", 10, config.RateCurveConfig{Shape: ShapeExponential, Decay: "1"}},
		{"decay of zero", 10, config.RateCurveConfig{Shape: ShapeExponential, Decay: "0"}},
		{"unparseable", 10, config.RateCurveConfig{MaxRate: "lots"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCurve(tt.capacity, tt.cfg)
			assert.Error(t, err)
		})
	}
}
