package aggregate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Histogram2D is a normalized time/value histogram of an aligned channel.
// Density has one row per time bin and one column per value bin; it
// integrates to 1 over the binned area.
type Histogram2D struct {
	TimeEdges  []float64
	ValueEdges []float64
	Density    *mat.Dense
	Samples    int
}

// Density bins every (grid time, value) pair of aligned into bins x bins
// cells. A zero-width axis is widened by 0.5 on each side.
func Density(aligned *Aligned, bins int) (*Histogram2D, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBins, bins)
	}
	if aligned == nil || len(aligned.Runs) == 0 {
		return nil, ErrNoRuns
	}

	raw := aligned.Values.RawMatrix()
	vlo, vhi := math.Inf(1), math.Inf(-1)
	for i := range raw.Rows {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		vlo, vhi = math.Min(vlo, floats.Min(row)), math.Max(vhi, floats.Max(row))
	}
	if math.IsInf(vlo, 0) || math.IsInf(vhi, 0) || math.IsNaN(vlo) || math.IsNaN(vhi) {
		return nil, fmt.Errorf("%w: channel %s has non-finite values", ErrInvalidGrid, aligned.Channel)
	}

	tlo, thi := widen(aligned.Grid[0], aligned.Grid[len(aligned.Grid)-1])
	vlo, vhi = widen(vlo, vhi)

	h := &Histogram2D{
		TimeEdges:  floats.Span(make([]float64, bins+1), tlo, thi),
		ValueEdges: floats.Span(make([]float64, bins+1), vlo, vhi),
		Density:    mat.NewDense(bins, bins, nil),
	}

	for j, t := range aligned.Grid {
		ti := binOf(t, tlo, thi, bins)
		for i := range raw.Rows {
			vi := binOf(aligned.Values.At(i, j), vlo, vhi, bins)
			h.Density.Set(ti, vi, h.Density.At(ti, vi)+1)
			h.Samples++
		}
	}

	dt := (thi - tlo) / float64(bins)
	dv := (vhi - vlo) / float64(bins)
	h.Density.Scale(1/(float64(h.Samples)*dt*dv), h.Density)
	return h, nil
}

func widen(lo, hi float64) (float64, float64) {
	if lo == hi {
		return lo - 0.5, hi + 0.5
	}
	return lo, hi
}

// binOf maps x into [0, bins). The upper edge belongs to the last bin.
func binOf(x, lo, hi float64, bins int) int {
	i := int((x - lo) / (hi - lo) * float64(bins))
	return min(max(i, 0), bins-1)
}

// LogDensity returns log10 of the density with empty cells set to floor
// first, so every cell is finite.
func (h *Histogram2D) LogDensity(floor float64) (*mat.Dense, error) {
	if !(floor > 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidLogFloor, floor)
	}
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if v <= 0 {
			v = floor
		}
		return math.Log10(v)
	}, h.Density)
	return &out, nil
}

// Dims reports the number of time and value bins.
func (h *Histogram2D) Dims() (int, int) {
	return h.Density.Dims()
}
