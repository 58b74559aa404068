package stats

import (
	"math"

	"github.com/cockroachdb/apd/v3"
)

// workPrecision is the number of significant digits kept while accumulating.
// The shortest decimal form of a float64 has at most 17 digits, so sums of
// values with a moderate exponent spread stay exact.
const workPrecision = 200

// sqrtPrecision bounds the cost of the square root in StdDev.
const sqrtPrecision = 50

func newContext(precision uint32) *apd.Context {
	ctx := apd.BaseContext.WithPrecision(precision)
	ctx.Rounding = apd.RoundHalfEven
	return ctx
}

var (
	workCtx = newContext(workPrecision)
	sqrtCtx = newContext(sqrtPrecision)
)

// isFloat reports whether T is a floating-point type.
func isFloat[T Number]() bool {
	var one T = 1
	return one/2 != 0
}

// decimalOf converts v to an exact decimal. Floats use their shortest
// round-tripping representation.
func decimalOf[T Number](v T) *apd.Decimal {
	d := new(apd.Decimal)
	if !isFloat[T]() {
		d.SetInt64(int64(v))
		return d
	}
	f := float64(v)
	if math.IsInf(f, 0) {
		d.Form = apd.Infinite
		d.Negative = f < 0
		return d
	}
	if _, err := d.SetFloat64(f); err != nil {
		d.Form = apd.NaN
	}
	return d
}

// quantize rounds d half-to-even to precision fractional digits.
func quantize(d *apd.Decimal, precision int32) *apd.Decimal {
	if d.Form != apd.Finite {
		return d
	}
	out := new(apd.Decimal)
	if _, err := workCtx.Quantize(out, d, -precision); err != nil {
		// Too many digits for the working precision; the unrounded value is
		// already more precise than any float64.
		return d
	}
	return out
}

// toFloat converts d to the nearest float64.
func toFloat(d *apd.Decimal) float64 {
	switch d.Form {
	case apd.Infinite:
		if d.Negative {
			return math.Inf(-1)
		}
		return math.Inf(1)
	case apd.NaN, apd.NaNSignaling:
		return math.NaN()
	}
	f, err := d.Float64()
	if err != nil {
		return math.NaN()
	}
	return f
}
