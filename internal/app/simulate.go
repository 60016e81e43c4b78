package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edp1096/mcspice/internal/ctxlog"
	"github.com/edp1096/mcspice/pkg/simulate"
	"github.com/edp1096/mcspice/pkg/store"
)

var ErrNoVariants = errors.New("no variant netlists found")

// SimulateResult is the outcome of simulating every variant of a batch.
type SimulateResult struct {
	BatchID   string
	Results   []simulate.Result
	Succeeded int
	Failed    int
	Archive   string
}

// Simulate runs the solver over the variants in dir, archives the series and
// records every run in the ledger. Failed runs are recorded, not fatal.
func (a *App) Simulate(ctx context.Context, dir string) (*SimulateResult, error) {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx).With("dir", dir)

	batch := store.Batch{
		CreatedAt: a.now().UTC(),
		Source:    dir,
		Solver:    a.cfg.Simulate.Solver,
		Seed:      a.cfg.Perturb.Seed,
	}
	prefix := a.cfg.Output.Prefix

	m, err := store.ReadManifest(dir)
	switch {
	case err == nil:
		batch.ID, batch.Source, batch.Seed = m.BatchID, m.Source, m.Seed
		prefix = m.Prefix
	case errors.Is(err, os.ErrNotExist):
		batch.ID = a.newID()
		logger.Info("no manifest, starting a new batch", "batch", batch.ID)
	default:
		return nil, err
	}

	netlists, err := store.ReadNetlists(dir, prefix)
	if err != nil {
		return nil, err
	}
	if len(netlists) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVariants, filepath.Join(dir, prefix+"_*"+store.NetlistExt))
	}
	batch.Trials = len(netlists)

	jobs := make([]simulate.Job, len(netlists))
	for i, n := range netlists {
		jobs[i] = simulate.Job{Name: n.Name, Netlist: n.Text}
	}

	events := make(chan simulate.Event)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			if ev.Kind == simulate.RunFailed {
				logger.Warn("run failed", "run", ev.Name, "index", ev.Index, "total", ev.Total, "error", ev.Err)
				continue
			}
			logger.Debug("run "+ev.Kind.String(), "run", ev.Name, "index", ev.Index, "total", ev.Total)
		}
	}()

	logger.Info("simulating batch", "batch", batch.ID, "runs", len(jobs), "solver", batch.Solver)
	results := simulate.RunBatch(ctx, a.solver, jobs, simulate.BatchOptions{
		Workers: a.cfg.Simulate.Workers,
		Timeout: a.cfg.Simulate.Timeout,
		Events:  events,
	})
	close(events)
	<-drained
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &SimulateResult{
		BatchID: batch.ID,
		Results: results,
		Archive: filepath.Join(dir, store.ArchiveName),
	}
	archive := &store.Archive{BatchID: batch.ID, Runs: make([]store.ArchivedRun, len(results))}
	records := make([]store.RunRecord, len(results))
	for i, r := range results {
		archive.Runs[i] = store.ArchivedRun{Name: r.Name, Series: r.Series}
		records[i] = store.RunRecord{Name: r.Name, OK: r.Err == nil, Elapsed: r.Elapsed}
		if r.Err != nil {
			res.Failed++
			archive.Runs[i].Error = r.Err.Error()
			records[i].Error = r.Err.Error()
			continue
		}
		res.Succeeded++
		records[i].Points = len(r.Series.Time)
	}

	if err := store.WriteArchive(res.Archive, archive); err != nil {
		return nil, err
	}
	if err := a.record(ctx, dir, batch, records); err != nil {
		return nil, err
	}

	logger.Info("batch simulated", "batch", batch.ID, "succeeded", res.Succeeded, "failed", res.Failed)
	return res, nil
}

func (a *App) record(ctx context.Context, dir string, batch store.Batch, records []store.RunRecord) (err error) {
	ledger, err := store.OpenLedger(ctx, filepath.Join(dir, store.LedgerName))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ledger.Close(); err == nil {
			err = cerr
		}
	}()

	if err := ledger.RecordBatch(ctx, batch); err != nil {
		return err
	}
	return ledger.RecordRuns(ctx, batch.ID, records)
}
