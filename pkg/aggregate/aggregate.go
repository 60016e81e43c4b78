// Package aggregate aligns the output series of many Monte Carlo runs onto a
// shared time grid and summarizes them per timestep.
//
// The usual flow is Align, then Fit for a per-timestep distribution trace and
// Density for a time/value histogram. Inputs are never modified.
package aggregate

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/mcspice/pkg/waveform"
)

var (
	ErrChannelMismatch   = errors.New("channel not present in run")
	ErrNoRuns            = errors.New("no runs to aggregate")
	ErrInvalidGrid       = errors.New("invalid grid")
	ErrUnsupportedFamily = errors.New("unsupported distribution family")
	ErrUnsupportedMethod = errors.New("unsupported interpolation method")
	ErrInvalidQuantile   = errors.New("invalid quantile range")
	ErrInvalidLogFloor   = errors.New("log floor must be positive")
	ErrInvalidBins       = errors.New("bin count must be positive")
)

// Run is one named simulation result.
type Run struct {
	Name   string
	Series *waveform.Series
}

// Exclusion records a run that Align left out and why.
type Exclusion struct {
	Run string
	Err error
}

func (e Exclusion) Error() string { return fmt.Sprintf("run %s: %v", e.Run, e.Err) }

func (e Exclusion) Unwrap() error { return e.Err }

// Aligned holds one channel of every included run resampled onto Grid.
// Values has one row per run and one column per grid point.
type Aligned struct {
	Channel string
	Grid    []float64
	Runs    []string
	Values  *mat.Dense
}

// Column copies the values of every run at grid index j.
func (a *Aligned) Column(j int) []float64 {
	return mat.Col(nil, j, a.Values)
}

// Row copies one run's resampled values.
func (a *Aligned) Row(i int) []float64 {
	return mat.Row(nil, i, a.Values)
}
