package traffic

import (
	"fmt"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/interp"
)

// AccelerationCurve maps a normalised speed deficit (1 - speed/topSpeed) to
// the largest speed change allowed in one tick. Inputs outside the key range
// are clamped to it.
type AccelerationCurve struct {
	keys [][2]float64
	fit  interp.PiecewiseLinear
}

// NewAccelerationCurve fits a piecewise linear curve through keys of the
// form [deficit, max speed change]. Deficits must be strictly increasing.
func NewAccelerationCurve(keys [][2]float64) (*AccelerationCurve, error) {
	if len(keys) < 2 {
		return nil, fmt.Errorf("acceleration curve needs at least 2 keys, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i][0] <= keys[i-1][0] {
			return nil, fmt.Errorf("acceleration curve deficits must be strictly increasing at key %d", i)
		}
	}
	xs := lo.Map(keys, func(k [2]float64, _ int) float64 { return k[0] })
	ys := lo.Map(keys, func(k [2]float64, _ int) float64 { return k[1] })

	c := &AccelerationCurve{keys: append([][2]float64(nil), keys...)}
	if err := c.fit.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("failed to fit acceleration curve: %w", err)
	}
	return c, nil
}

// MustAccelerationCurve is NewAccelerationCurve for static key sets.
func MustAccelerationCurve(keys [][2]float64) *AccelerationCurve {
	c, err := NewAccelerationCurve(keys)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultAccelerationCurve is the stock curve: gentle near top speed, strong
// from standstill.
func DefaultAccelerationCurve() *AccelerationCurve {
	return MustAccelerationCurve([][2]float64{{0, 0.02}, {0.5, 0.15}, {1, 0.3}})
}

// Eval returns the maximum speed change for the given deficit.
func (c *AccelerationCurve) Eval(deficit float64) float64 {
	lower, upper := c.keys[0][0], c.keys[len(c.keys)-1][0]
	return c.fit.Predict(lo.Clamp(deficit, lower, upper))
}

// Keys returns a copy of the curve keys.
func (c *AccelerationCurve) Keys() [][2]float64 {
	return append([][2]float64(nil), c.keys...)
}
