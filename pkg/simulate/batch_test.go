package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/mcspice/pkg/waveform"
)

// fakeSolver returns a ramp whose slope is the netlist length, and fails
// netlists containing "FAIL".
func fakeSolver(calls *atomic.Int32) Solver {
	return SolverFunc(func(ctx context.Context, name, netlist string) (*waveform.Series, error) {
		calls.Add(1)
		if strings.Contains(netlist, "FAIL") {
			return nil, errors.New("did not converge")
		}
		if strings.Contains(netlist, "SLOW") {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		k := float64(len(netlist))
		return &waveform.Series{
			Time:    []float64{0, 1, 2},
			Outputs: map[string][]float64{"V(out)": {0, k, 2 * k}},
		}, nil
	})
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	jobs := []Job{
		{Name: "a", Netlist: "x"},
		{Name: "b", Netlist: "FAIL"},
		{Name: "c", Netlist: "xyz"},
		{Name: "d", Netlist: "SLOW"},
	}
	events := make(chan Event, 16)
	var calls atomic.Int32

	results := RunBatch(context.Background(), fakeSolver(&calls), jobs, BatchOptions{
		Workers: 2,
		Timeout: 50 * time.Millisecond,
		Events:  events,
	})
	close(events)

	require.Len(t, results, 4)
	assert.EqualValues(t, 4, calls.Load())
	for i, r := range results {
		assert.Equal(t, jobs[i].Name, r.Name)
	}

	assert.NoError(t, results[0].Err)
	assert.Equal(t, []float64{0, 1, 2}, results[0].Series.Outputs["V(out)"])
	assert.Equal(t, []float64{0, 3, 6}, results[2].Series.Outputs["V(out)"])

	var runErr *RunError
	require.ErrorAs(t, results[1].Err, &runErr)
	assert.Equal(t, "b", runErr.Run)
	assert.ErrorIs(t, results[1].Err, ErrSolverFailure)
	assert.ErrorIs(t, results[3].Err, context.DeadlineExceeded)
	assert.Nil(t, results[3].Series)

	assert.Len(t, Succeeded(results), 2)
	assert.Len(t, Failed(results), 2)

	kinds := map[EventKind]int{}
	for ev := range events {
		kinds[ev.Kind]++
		assert.Equal(t, 4, ev.Total)
	}
	assert.Equal(t, map[EventKind]int{RunStarted: 4, RunSucceeded: 2, RunFailed: 2}, kinds)
}

func TestRunBatchRejectsInvalidSeries(t *testing.T) {
	solver := SolverFunc(func(ctx context.Context, name, netlist string) (*waveform.Series, error) {
		return &waveform.Series{Time: []float64{1, 0}}, nil
	})

	results := RunBatch(context.Background(), solver, []Job{{Name: "r"}}, BatchOptions{})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, waveform.ErrInvalidSeries)
	assert.ErrorIs(t, results[0].Err, ErrSolverFailure)
}

func TestRunBatchIsolatesNonFiniteOutput(t *testing.T) {
	solver := SolverFunc(func(ctx context.Context, name, netlist string) (*waveform.Series, error) {
		v := 1.0
		if name == "bad" {
			v = math.NaN()
		}
		return &waveform.Series{
			Time:    []float64{0, 1},
			Outputs: map[string][]float64{"V(1)": {1, v}},
		}, nil
	})

	results := RunBatch(context.Background(), solver, []Job{{Name: "good"}, {Name: "bad"}}, BatchOptions{})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, waveform.ErrInvalidSeries)
	assert.Nil(t, results[1].Series)
	assert.Len(t, Succeeded(results), 1)
}

func TestRunBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = Job{Name: fmt.Sprintf("r%d", i), Netlist: "x"}
	}

	results := RunBatch(ctx, fakeSolver(&calls), jobs, BatchOptions{Workers: 3})
	assert.Zero(t, calls.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRunBatchEmpty(t *testing.T) {
	var calls atomic.Int32
	assert.Empty(t, RunBatch(context.Background(), fakeSolver(&calls), nil, BatchOptions{}))
}
