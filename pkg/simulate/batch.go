package simulate

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/edp1096/mcspice/internal/ctxlog"
	"github.com/edp1096/mcspice/pkg/waveform"
)

// Job is one netlist to simulate.
type Job struct {
	Name    string
	Netlist string
}

// Result is the outcome of one job. Exactly one of Series and Err is set.
type Result struct {
	Name    string
	Series  *waveform.Series
	Err     error
	Elapsed time.Duration
}

type BatchOptions struct {
	Workers int           // <= 0 means GOMAXPROCS
	Timeout time.Duration // per run, 0 means none
	Events  chan<- Event
}

type EventKind int

const (
	RunStarted EventKind = iota
	RunSucceeded
	RunFailed
)

func (k EventKind) String() string {
	switch k {
	case RunStarted:
		return "started"
	case RunSucceeded:
		return "succeeded"
	}
	return "failed"
}

type Event struct {
	Kind  EventKind
	Index int
	Total int
	Name  string
	Err   error
}

// RunBatch runs every job on a bounded worker pool. A failing run never stops
// the others; results come back in job order.
func RunBatch(ctx context.Context, solver Solver, jobs []Job, opts BatchOptions) []Result {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, max(len(jobs), 1))

	results := make([]Result, len(jobs))
	readyChan := make(chan int)

	var wg sync.WaitGroup
	for id := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, id, solver, jobs, results, readyChan, opts)
		}()
	}

	for i := range jobs {
		readyChan <- i
	}
	close(readyChan)
	wg.Wait()

	return results
}

// worker is the processing loop of one pool member.
func worker(ctx context.Context, workerID int, solver Solver, jobs []Job, results []Result, readyChan <-chan int, opts BatchOptions) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	total := len(jobs)

	for i := range readyChan {
		job := jobs[i]
		runLogger := logger.With("run", job.Name)

		if err := ctx.Err(); err != nil {
			results[i] = Result{Name: job.Name, Err: &RunError{Run: job.Name, Err: err}}
			emit(ctx, opts.Events, Event{Kind: RunFailed, Index: i, Total: total, Name: job.Name, Err: results[i].Err})
			continue
		}

		emit(ctx, opts.Events, Event{Kind: RunStarted, Index: i, Total: total, Name: job.Name})
		runLogger.Debug("run started")

		results[i] = runOne(ctx, solver, job, opts.Timeout)

		if err := results[i].Err; err != nil {
			runLogger.Warn("run failed", "error", err, "elapsed", results[i].Elapsed)
			emit(ctx, opts.Events, Event{Kind: RunFailed, Index: i, Total: total, Name: job.Name, Err: err})
			continue
		}
		runLogger.Debug("run finished", "points", len(results[i].Series.Time), "elapsed", results[i].Elapsed)
		emit(ctx, opts.Events, Event{Kind: RunSucceeded, Index: i, Total: total, Name: job.Name})
	}
}

func runOne(ctx context.Context, solver Solver, job Job, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	series, err := solver.Simulate(ctx, job.Name, job.Netlist)
	elapsed := time.Since(start)

	if err == nil {
		err = series.Validate()
	}
	if err != nil {
		return Result{Name: job.Name, Err: &RunError{Run: job.Name, Err: err}, Elapsed: elapsed}
	}
	return Result{Name: job.Name, Series: series, Elapsed: elapsed}
}

func emit(ctx context.Context, events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// Succeeded returns the results that produced a series.
func Succeeded(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
