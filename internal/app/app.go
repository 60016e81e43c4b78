// Package app wires the Monte Carlo pipeline together: parse a netlist,
// generate perturbed variants, simulate them and aggregate the results.
// Each stage reads and writes the output directory so stages can run apart.
package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edp1096/mcspice/internal/config"
	"github.com/edp1096/mcspice/internal/ctxlog"
	"github.com/edp1096/mcspice/pkg/simulate"
)

// App holds the configuration and collaborators of one pipeline.
type App struct {
	cfg    *config.Config
	outW   io.Writer
	logger *slog.Logger
	solver simulate.Solver
	now    func() time.Time
	newID  func() string
}

type Option func(*App)

// WithSolver replaces the solver chosen by simulate.solver.
func WithSolver(s simulate.Solver) Option {
	return func(a *App) { a.solver = s }
}

// WithClock replaces time.Now for manifest and ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New builds an App. Human-readable summaries go to outW; the logger is
// attached to the context of every stage.
func New(cfg *config.Config, outW io.Writer, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:    cfg,
		outW:   outW,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.solver == nil {
		a.solver = solverFor(cfg.Simulate)
	}
	return a
}

func solverFor(sc config.SimulateConfig) simulate.Solver {
	if sc.Solver == "ngspice" {
		return &simulate.Ngspice{Binary: sc.NgspiceBinary, ASCII: sc.NgspiceASCII}
	}
	return simulate.Builtin{Method: sc.Method, MaxPoints: sc.MaxPoints}
}

func (a *App) withLogger(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Config returns the configuration the App was built with.
func (a *App) Config() *config.Config { return a.cfg }
