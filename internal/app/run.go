package app

import (
	"context"
	"fmt"
	"time"

	"github.com/edp1096/mcspice/internal/ctxlog"
)

// RunResult collects the outcome of every stage of a full pipeline run.
type RunResult struct {
	Generate *GenerateResult
	Simulate *SimulateResult
	Analyze  *AnalyzeResult
	Elapsed  time.Duration
}

// Run executes generate, simulate and analyze in sequence against
// output.dir.
func (a *App) Run(ctx context.Context, netlistPath string) (*RunResult, error) {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)
	start := a.now()

	var (
		res RunResult
		err error
	)
	if res.Generate, err = a.Generate(ctx, netlistPath); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if len(res.Generate.Paths) == 0 {
		return nil, fmt.Errorf("generate: every trial failed: %w", ErrNoVariants)
	}
	if res.Simulate, err = a.Simulate(ctx, res.Generate.Dir); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	if res.Analyze, err = a.Analyze(ctx, res.Generate.Dir); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	res.Elapsed = a.now().Sub(start)
	logger.Info("pipeline finished", "batch", res.Simulate.BatchID, "elapsed", res.Elapsed)
	return &res, nil
}
