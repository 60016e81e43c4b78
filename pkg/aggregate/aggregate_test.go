package aggregate

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/mcspice/pkg/waveform"
)

func ramp(name string, time []float64, slope float64) Run {
	v := make([]float64, len(time))
	for i, t := range time {
		v[i] = slope * t
	}
	return Run{Name: name, Series: &waveform.Series{Time: time, Outputs: map[string][]float64{"V(out)": v}}}
}

func TestAlignSpansUnion(t *testing.T) {
	runs := []Run{
		ramp("a", []float64{0, 1, 2}, 1),
		ramp("b", []float64{1, 2, 3, 4}, 2),
	}

	aligned, excluded, err := Align(runs, "V(out)", 5, Linear)
	require.NoError(t, err)
	assert.Empty(t, excluded)

	assert.Equal(t, []float64{0, 1, 2, 3, 4}, aligned.Grid)
	assert.Equal(t, []string{"a", "b"}, aligned.Runs)
	r, c := aligned.Values.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 5, c)

	// Linear extrapolation continues each run's end slope.
	approx := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff([]float64{0, 1, 2, 3, 4}, aligned.Row(0), approx); diff != "" {
		t.Errorf("run a (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 2, 4, 6, 8}, aligned.Row(1), approx); diff != "" {
		t.Errorf("run b (-want +got):\n%s", diff)
	}
}

func TestAlignExcludesMismatchedRuns(t *testing.T) {
	other := ramp("c", []float64{0, 1}, 1)
	other.Series.Outputs = map[string][]float64{"V(in)": {0, 1}}

	runs := []Run{
		ramp("a", []float64{0, 1}, 1),
		other,
		{Name: "broken", Series: &waveform.Series{Time: []float64{1, 0}}},
		{Name: "nil"},
	}

	aligned, excluded, err := Align(runs, "v(OUT)", 3, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, aligned.Runs)
	require.Len(t, excluded, 3)

	assert.Equal(t, "c", excluded[0].Run)
	assert.ErrorIs(t, excluded[0], ErrChannelMismatch)
	assert.ErrorIs(t, excluded[1], waveform.ErrInvalidSeries)
	assert.ErrorIs(t, excluded[2], waveform.ErrInvalidSeries)

	_, _, err = Align([]Run{other}, "V(out)", 3, Linear)
	require.ErrorIs(t, err, ErrNoRuns)
}

func TestAlignArgumentErrors(t *testing.T) {
	runs := []Run{ramp("a", []float64{0, 1}, 1)}

	_, _, err := Align(runs, "V(out)", 1, Linear)
	require.ErrorIs(t, err, ErrInvalidGrid)

	_, _, err = Align(runs, "V(out)", 4, "spline")
	require.ErrorIs(t, err, ErrUnsupportedMethod)

	_, _, err = Align([]Run{ramp("p", []float64{2}, 1)}, "V(out)", 4, Linear)
	require.ErrorIs(t, err, ErrInvalidGrid)
}

func TestStepMethods(t *testing.T) {
	run := Run{Name: "s", Series: &waveform.Series{
		Time:    []float64{0, 1, 2},
		Outputs: map[string][]float64{"x": {10, 20, 30}},
	}}
	wide := Run{Name: "w", Series: &waveform.Series{
		Time:    []float64{-1, 3},
		Outputs: map[string][]float64{"x": {0, 0}},
	}}

	cases := map[Interpolation][]float64{
		// grid: -1, -0.5, 0, 0.5, 1, 1.5, 2, 2.5, 3
		Previous: {10, 10, 10, 10, 20, 20, 30, 30, 30},
		Next:     {10, 10, 10, 20, 20, 30, 30, 30, 30},
		Nearest:  {10, 10, 10, 20, 20, 30, 30, 30, 30},
	}
	for method, want := range cases {
		t.Run(string(method), func(t *testing.T) {
			aligned, _, err := Align([]Run{run, wide}, "x", 9, method)
			require.NoError(t, err)
			assert.Equal(t, want, aligned.Row(0))
		})
	}
}

func TestCubicMatchesKnots(t *testing.T) {
	time := []float64{0, 1, 2, 3, 4}
	run := Run{Name: "q", Series: &waveform.Series{
		Time:    time,
		Outputs: map[string][]float64{"x": {0, 1, 4, 9, 16}},
	}}

	aligned, _, err := Align([]Run{run}, "x", 5, Cubic)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 4, 9, 16}, aligned.Row(0), 1e-9)

	// Two points fall back to linear.
	short := ramp("l", []float64{0, 2}, 3)
	aligned, _, err = Align([]Run{short}, "V(out)", 3, Cubic)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 3, 6}, aligned.Row(0), 1e-9)
}

func alignedOf(grid []float64, rows ...[]float64) *Aligned {
	names := make([]string, len(rows))
	data := make([]float64, 0, len(rows)*len(grid))
	for i, r := range rows {
		names[i] = string(rune('a' + i))
		data = append(data, r...)
	}
	return &Aligned{Channel: "x", Grid: grid, Runs: names, Values: mat.NewDense(len(rows), len(grid), data)}
}

func TestFitNormalUsesPopulationSigma(t *testing.T) {
	a := alignedOf([]float64{0, 1}, []float64{1, 5}, []float64{3, 5})

	trace, err := Fit(a, FamilyNormal)
	require.NoError(t, err)
	require.Len(t, trace.Points, 2)

	assert.InDelta(t, 2.0, trace.Points[0].Params["mu"], 1e-12)
	assert.InDelta(t, 1.0, trace.Points[0].Params["sigma"], 1e-12)
	assert.InDelta(t, 0.0, trace.Points[1].Params["sigma"], 1e-12)

	p, ok := trace.At(0.9)
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Time)
	assert.InDelta(t, 5.0, p.Dist().Mean(), 1e-12)
}

func TestFitUniform(t *testing.T) {
	a := alignedOf([]float64{0}, []float64{4}, []float64{1}, []float64{2})

	trace, err := Fit(a, FamilyUniform)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"min": 1, "max": 4}, trace.Points[0].Params)
	assert.InDelta(t, 2.5, trace.Points[0].Dist().Mean(), 1e-12)

	_, err = Fit(a, "cauchy")
	require.ErrorIs(t, err, ErrUnsupportedFamily)
	_, err = ParseFamily("Cauchy")
	require.ErrorIs(t, err, ErrUnsupportedFamily)
}

func TestTraceAtEmpty(t *testing.T) {
	_, ok := Trace{}.At(1)
	assert.False(t, ok)
}

func TestBand(t *testing.T) {
	a := alignedOf([]float64{0, 1}, []float64{1, 5}, []float64{3, 5})
	trace, err := Fit(a, FamilyNormal)
	require.NoError(t, err)

	band, err := Band(trace, 0.05, 0.95)
	require.NoError(t, err)

	assert.InDelta(t, 2-1.644854, band.Lower[0], 1e-5)
	assert.InDelta(t, 2.0, band.Median[0], 1e-9)
	assert.InDelta(t, 2+1.644854, band.Upper[0], 1e-5)
	assert.Equal(t, []float64{5, 5, 5}, []float64{band.Lower[1], band.Median[1], band.Upper[1]})

	_, err = Band(trace, 0.9, 0.1)
	require.ErrorIs(t, err, ErrInvalidQuantile)
}

func TestDensityIntegratesToOne(t *testing.T) {
	a := alignedOf([]float64{0, 1, 2, 3}, []float64{0, 1, 2, 3}, []float64{1, 1, 1, 1}, []float64{3, 2, 1, 0})

	h, err := Density(a, 4)
	require.NoError(t, err)
	assert.Equal(t, 12, h.Samples)

	rows, cols := h.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)
	assert.Equal(t, []float64{0, 0.75, 1.5, 2.25, 3}, h.TimeEdges)

	dt := h.TimeEdges[1] - h.TimeEdges[0]
	dv := h.ValueEdges[1] - h.ValueEdges[0]
	assert.InDelta(t, 1.0, mat.Sum(h.Density)*dt*dv, 1e-12)

	// The last value edge is inclusive: v=3 lands in the top bin.
	assert.Positive(t, h.Density.At(3, 3))
}

func TestDensityDegenerateRange(t *testing.T) {
	a := alignedOf([]float64{0, 1}, []float64{2, 2})

	h, err := Density(a, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 2.5}, h.ValueEdges)

	logd, err := h.LogDensity(1e-6)
	require.NoError(t, err)
	logd.Apply(func(_, _ int, v float64) float64 {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
		return v
	}, logd)
	assert.InDelta(t, -6.0, logd.At(0, 0), 1e-12)

	_, err = h.LogDensity(0)
	require.ErrorIs(t, err, ErrInvalidLogFloor)

	_, err = Density(a, 0)
	require.ErrorIs(t, err, ErrInvalidBins)
}

func TestExclusionUnwraps(t *testing.T) {
	ex := Exclusion{Run: "r", Err: ErrChannelMismatch}
	assert.True(t, errors.Is(ex, ErrChannelMismatch))
	assert.Equal(t, "run r: channel not present in run", ex.Error())
}
