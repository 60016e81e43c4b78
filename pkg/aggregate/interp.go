package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// Interpolation selects how a run is resampled between its own time points.
type Interpolation string

const (
	Linear   Interpolation = "linear"
	Nearest  Interpolation = "nearest"
	Previous Interpolation = "previous"
	Next     Interpolation = "next"
	Cubic    Interpolation = "cubic"
)

// ParseInterpolation maps a method name to an Interpolation. Empty means Linear.
func ParseInterpolation(name string) (Interpolation, error) {
	switch m := Interpolation(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return Linear, nil
	case Linear, Nearest, Previous, Next, Cubic:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, name)
}

func newPredictor(method Interpolation, xs, ys []float64) (interp.Predictor, error) {
	if len(xs) == 1 {
		return interp.Constant(ys[0]), nil
	}

	switch method {
	case Linear, "":
		return newSlopeExtrapolator(&interp.PiecewiseLinear{}, xs, ys)
	case Cubic:
		if len(xs) < 3 {
			return newSlopeExtrapolator(&interp.PiecewiseLinear{}, xs, ys)
		}
		return newSlopeExtrapolator(&interp.NaturalCubic{}, xs, ys)
	case Next:
		next := &interp.PiecewiseConstant{}
		if err := next.Fit(xs, ys); err != nil {
			return nil, err
		}
		return next, nil
	case Nearest, Previous:
		return step{method: method, xs: xs, ys: ys}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
}

// slopeExtrapolator wraps a gonum fit, which clamps outside its range, and
// continues the end segments linearly instead.
type slopeExtrapolator struct {
	fit    interp.FittablePredictor
	x0, xn float64
	y0, yn float64
	slope0 float64
	slopeN float64
}

func newSlopeExtrapolator(fit interp.FittablePredictor, xs, ys []float64) (*slopeExtrapolator, error) {
	if err := fit.Fit(xs, ys); err != nil {
		return nil, err
	}
	n := len(xs)
	e := &slopeExtrapolator{
		fit: fit,
		x0:  xs[0], xn: xs[n-1],
		y0: ys[0], yn: ys[n-1],
	}

	if d, ok := fit.(interp.DerivativePredictor); ok {
		e.slope0, e.slopeN = d.PredictDerivative(e.x0), d.PredictDerivative(e.xn)
	} else {
		e.slope0 = (ys[1] - ys[0]) / (xs[1] - xs[0])
		e.slopeN = (ys[n-1] - ys[n-2]) / (xs[n-1] - xs[n-2])
	}
	return e, nil
}

func (e *slopeExtrapolator) Predict(x float64) float64 {
	switch {
	case x < e.x0:
		return e.y0 + e.slope0*(x-e.x0)
	case x > e.xn:
		return e.yn + e.slopeN*(x-e.xn)
	}
	return e.fit.Predict(x)
}

// step implements previous and nearest. Outside the run's range the edge
// value is held.
type step struct {
	method Interpolation
	xs, ys []float64
}

func (s step) Predict(x float64) float64 {
	n := len(s.xs)
	// First index with xs[i] >= x.
	i := sort.SearchFloat64s(s.xs, x)
	switch {
	case i == 0:
		return s.ys[0]
	case i == n:
		return s.ys[n-1]
	case s.xs[i] == x:
		return s.ys[i]
	}

	if s.method == Previous {
		return s.ys[i-1]
	}
	if x-s.xs[i-1] < s.xs[i]-x {
		return s.ys[i-1]
	}
	return s.ys[i]
}
