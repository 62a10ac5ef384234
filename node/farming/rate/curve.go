// Package rate prices stored bytes. The rate falls as aggregate network usage
// approaches capacity, steering vaults toward the network when space is short
// and away from it when space is plentiful.
package rate

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Yoga07/safe-farming/config"
)

const (
	ShapeLinear      = "linear"
	ShapeExponential = "exponential"
	ShapeInverse     = "inverse"
)

// Precision of fractional powers in the exponential curve.
const powPrecision = 32

// Curve maps total network usage to a reward rate. Every implementation is
// monotonically non-increasing in usage, returns MaxRate at zero usage and
// FloorRate at or beyond capacity.
type Curve interface {
	Rate(totalUsage uint64) decimal.Decimal
	Capacity() uint64
	MaxRate() decimal.Decimal
	FloorRate() decimal.Decimal
}

// bounds holds what every curve shape shares: the clamp below capacity and
// the floor at and beyond it.
type bounds struct {
	capacity uint64
	max      decimal.Decimal
	min      decimal.Decimal
	floor    decimal.Decimal
}

func (b *bounds) Capacity() uint64           { return b.capacity }
func (b *bounds) MaxRate() decimal.Decimal   { return b.max }
func (b *bounds) FloorRate() decimal.Decimal { return b.floor }

// fill returns u/c in [0, 1) and false when usage is at or past capacity.
func (b *bounds) fill(totalUsage uint64) (decimal.Decimal, bool) {
	if totalUsage >= b.capacity {
		return decimal.Zero, false
	}
	return decimal.NewFromUint64(totalUsage).Div(
		decimal.NewFromUint64(b.capacity),
	), true
}

func (b *bounds) clamp(rate decimal.Decimal) decimal.Decimal {
	if rate.GreaterThan(b.max) {
		return b.max
	}
	if rate.LessThan(b.min) {
		return b.min
	}
	return rate
}

// LinearCurve pays max × (1 − u/c).
type LinearCurve struct {
	bounds
}

func (l *LinearCurve) Rate(totalUsage uint64) decimal.Decimal {
	fill, ok := l.fill(totalUsage)
	if !ok {
		return l.floor
	}
	return l.clamp(l.max.Mul(decimal.NewFromInt(1).Sub(fill)))
}

// ExponentialCurve pays max × (b^(u/c) − b) / (1 − b) for a decay base
// 0 < b < 1. Small bases keep the rate high until the network is nearly full
// and then drop it sharply.
type ExponentialCurve struct {
	bounds
	decay decimal.Decimal
}

func (e *ExponentialCurve) Rate(totalUsage uint64) decimal.Decimal {
	fill, ok := e.fill(totalUsage)
	if !ok {
		return e.floor
	}
	if fill.IsZero() {
		return e.clamp(e.max)
	}

	pow, err := e.decay.PowWithPrecision(fill, powPrecision)
	if err != nil {
		// Only reachable for a zero base, which NewCurve rejects.
		return e.floor
	}

	one := decimal.NewFromInt(1)
	scaled := pow.Sub(e.decay).Div(one.Sub(e.decay))
	return e.clamp(e.max.Mul(scaled))
}

// InverseCurve pays max × (1 − u/c) / (1 + k·u/c). Larger k pulls the rate
// down earlier.
type InverseCurve struct {
	bounds
	steepness decimal.Decimal
}

func (i *InverseCurve) Rate(totalUsage uint64) decimal.Decimal {
	fill, ok := i.fill(totalUsage)
	if !ok {
		return i.floor
	}
	one := decimal.NewFromInt(1)
	numerator := i.max.Mul(one.Sub(fill))
	denominator := one.Add(i.steepness.Mul(fill))
	return i.clamp(numerator.Div(denominator))
}

// NewCurve builds the curve described by cfg for the given capacity.
func NewCurve(capacity uint64, cfg config.RateCurveConfig) (Curve, error) {
	cfg = cfg.WithDefaults()
	if capacity == 0 {
		return nil, errors.Wrap(errors.New("zero capacity"), "new curve")
	}

	parse := func(name, value string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "new curve: %s", name)
		}
		if d.IsNegative() {
			return decimal.Zero, errors.Errorf("new curve: negative %s", name)
		}
		return d, nil
	}

	b := bounds{capacity: capacity}
	var err error
	if b.max, err = parse("maxRate", cfg.MaxRate); err != nil {
		return nil, err
	}
	if b.min, err = parse("minRate", cfg.MinRate); err != nil {
		return nil, err
	}
	if b.floor, err = parse("floorRate", cfg.FloorRate); err != nil {
		return nil, err
	}
	if b.min.GreaterThan(b.max) || b.floor.GreaterThan(b.min) {
		return nil, errors.New("new curve: rates must satisfy floor <= min <= max")
	}

	switch cfg.Shape {
	case ShapeLinear:
		return &LinearCurve{bounds: b}, nil
	case ShapeExponential:
		decay, err := parse("decay", cfg.Decay)
		if err != nil {
			return nil, err
		}
		if decay.IsZero() || !decay.LessThan(decimal.NewFromInt(1)) {
			return nil, errors.New("new curve: decay must be in (0, 1)")
		}
		return &ExponentialCurve{bounds: b, decay: decay}, nil
	case ShapeInverse:
		steepness, err := parse("steepness", cfg.Steepness)
		if err != nil {
			return nil, err
		}
		return &InverseCurve{bounds: b, steepness: steepness}, nil
	default:
		return nil, errors.Errorf("new curve: unknown shape %q", cfg.Shape)
	}
}
