package aggregate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Align resamples channel of every run onto numTimesteps uniformly spaced
// points spanning the union of the included runs' time ranges.
//
// Runs that lack the channel or carry an invalid series are reported as
// exclusions and left out; they never fall back to another channel. Each
// run is extrapolated past its own range as described on Interpolation.
func Align(runs []Run, channel string, numTimesteps int, method Interpolation) (*Aligned, []Exclusion, error) {
	if numTimesteps < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 timesteps, got %d", ErrInvalidGrid, numTimesteps)
	}
	if method == "" {
		method = Linear
	}
	if _, err := ParseInterpolation(string(method)); err != nil {
		return nil, nil, err
	}

	type included struct {
		name   string
		time   []float64
		values []float64
	}

	var (
		keep     []included
		excluded []Exclusion
		lo       = math.Inf(1)
		hi       = math.Inf(-1)
	)
	for _, run := range runs {
		if err := run.Series.Validate(); err != nil {
			excluded = append(excluded, Exclusion{Run: run.Name, Err: err})
			continue
		}
		values, ok := run.Series.Channel(channel)
		if !ok {
			excluded = append(excluded, Exclusion{
				Run: run.Name,
				Err: fmt.Errorf("%w: %s (have %v)", ErrChannelMismatch, channel, run.Series.Channels()),
			})
			continue
		}

		start, end := run.Series.Span()
		lo, hi = math.Min(lo, start), math.Max(hi, end)
		keep = append(keep, included{name: run.Name, time: run.Series.Time, values: values})
	}

	if len(keep) == 0 {
		return nil, excluded, fmt.Errorf("%w: channel %s", ErrNoRuns, channel)
	}
	if lo == hi {
		return nil, excluded, fmt.Errorf("%w: every run covers only t=%g", ErrInvalidGrid, lo)
	}

	grid := floats.Span(make([]float64, numTimesteps), lo, hi)
	aligned := &Aligned{
		Channel: channel,
		Grid:    grid,
		Runs:    make([]string, len(keep)),
		Values:  mat.NewDense(len(keep), numTimesteps, nil),
	}

	for i, run := range keep {
		p, err := newPredictor(method, run.time, run.values)
		if err != nil {
			return nil, excluded, fmt.Errorf("run %s: %w", run.name, err)
		}
		aligned.Runs[i] = run.name
		for j, t := range grid {
			aligned.Values.Set(i, j, p.Predict(t))
		}
	}

	return aligned, excluded, nil
}
