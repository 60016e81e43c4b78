// Package simulate runs netlist variants through a circuit solver.
package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/edp1096/mcspice/pkg/waveform"
)

var ErrSolverFailure = errors.New("solver failure")

// Solver simulates one netlist and returns its time series.
type Solver interface {
	Simulate(ctx context.Context, name, netlist string) (*waveform.Series, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, name, netlist string) (*waveform.Series, error)

func (f SolverFunc) Simulate(ctx context.Context, name, netlist string) (*waveform.Series, error) {
	return f(ctx, name, netlist)
}

// RunError is the failure of one run. It matches both ErrSolverFailure and
// the underlying cause.
type RunError struct {
	Run string
	Err error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: %v: %v", e.Run, ErrSolverFailure, e.Err)
}

func (e *RunError) Unwrap() []error { return []error{ErrSolverFailure, e.Err} }
