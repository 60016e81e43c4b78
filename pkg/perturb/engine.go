// Package perturb draws randomized component values for Monte Carlo trials.
package perturb

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/edp1096/mcspice/internal/ctxlog"
	"github.com/edp1096/mcspice/pkg/netlist"
)

// DefaultMaxRetries bounds the resampling of negative draws per component.
const DefaultMaxRetries = 1000

type Config struct {
	Seed       uint64
	Workers    int // <= 0 means GOMAXPROCS
	MaxRetries int // <= 0 means DefaultMaxRetries
	Events     chan<- Event
}

type Stage int

const (
	StageTrialDone Stage = iota
	StageTrialFailed
)

func (s Stage) String() string {
	if s == StageTrialFailed {
		return "trial-failed"
	}
	return "trial-done"
}

// Event reports the completion of one trial.
type Event struct {
	Stage Stage
	Index int
	Total int
	Err   error
}

// Trial is one perturbed set. Values holds only the lines that were sampled;
// a failed trial carries Err and no values.
type Trial struct {
	Index  int
	Values netlist.Overrides
	Err    error
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Engine{cfg: cfg}
}

// Generate produces count trials. Trial i draws from its own PCG stream seeded
// by (Seed, i) and visits components in ascending line order, so the result
// does not depend on scheduling. A nil plan uses the document's annotations.
func (e *Engine) Generate(ctx context.Context, doc *netlist.Document, count int, plan Plan) ([]Trial, error) {
	if count < 0 {
		return nil, fmt.Errorf("trial count must not be negative: %d", count)
	}
	if plan == nil {
		plan = PlanFor(doc, Params{Distribution: netlist.Uniform}, nil)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx)
	comps := doc.Components()
	trials := make([]Trial, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i := range count {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			trials[i] = e.trial(i, comps, plan)

			ev := Event{Stage: StageTrialDone, Index: i, Total: count}
			if err := trials[i].Err; err != nil {
				ev.Stage, ev.Err = StageTrialFailed, err
				logger.Warn("trial failed", "trial", i, "error", err)
			}
			return e.emit(gctx, ev)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Debug("perturbation finished", "trials", count, "components", len(comps), "seed", e.cfg.Seed)
	return trials, nil
}

func (e *Engine) trial(index int, comps []*netlist.Component, plan Plan) Trial {
	src := rand.NewPCG(e.cfg.Seed, uint64(index))
	t := Trial{Index: index, Values: make(netlist.Overrides)}

	for _, comp := range comps {
		p, ok := plan[comp.Line]
		if !ok || p.Scale == 0 {
			continue
		}

		v, err := sample(p, comp.Value, src, e.cfg.MaxRetries)
		if err != nil {
			if errors.Is(err, ErrPerturbationExhausted) {
				err = &ExhaustedError{Trial: index, Line: comp.Line, Name: comp.Name, Attempts: e.cfg.MaxRetries}
			}
			return Trial{Index: index, Err: err}
		}
		t.Values[comp.Line] = v
	}
	return t
}

func (e *Engine) emit(ctx context.Context, ev Event) error {
	if e.cfg.Events == nil {
		return nil
	}
	select {
	case e.cfg.Events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type rander interface{ Rand() float64 }

// sample draws one non-negative value, resampling negative draws.
func sample(p Params, value float64, src rand.Source, maxRetries int) (float64, error) {
	var dist rander
	switch p.Distribution {
	case netlist.Uniform:
		dist = distuv.Uniform{Min: value * (1 - p.Scale), Max: value * (1 + p.Scale), Src: src}
	case netlist.Normal:
		dist = distuv.Normal{Mu: value, Sigma: value * p.Scale, Src: src}
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDistribution, p.Distribution)
	}

	for range maxRetries {
		if x := dist.Rand(); x >= 0 {
			return x, nil
		}
	}
	return 0, ErrPerturbationExhausted
}

// Variant is the rendered netlist text of one successful trial.
type Variant struct {
	Index  int
	Values netlist.Overrides
	Text   string
}

// Render serializes every successful trial against doc. Failed trials are
// skipped.
func (e *Engine) Render(doc *netlist.Document, trials []Trial) ([]Variant, error) {
	variants := make([]Variant, 0, len(trials))
	for _, t := range trials {
		if t.Err != nil {
			continue
		}
		text, err := doc.Serialize(t.Values)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", t.Index, err)
		}
		variants = append(variants, Variant{Index: t.Index, Values: t.Values, Text: text})
	}
	return variants, nil
}
