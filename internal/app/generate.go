package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/edp1096/mcspice/internal/ctxlog"
	"github.com/edp1096/mcspice/pkg/perturb"
	"github.com/edp1096/mcspice/pkg/store"
)

// GenerateResult describes the variants written for one batch.
type GenerateResult struct {
	Dir      string
	Manifest *store.Manifest
	Paths    []string
	Failed   []perturb.Trial
	Removed  int // stale variant files deleted from Dir
}

// Generate parses the template netlist, draws perturbation.count trials and
// writes one variant netlist per successful trial plus a manifest into
// output.dir.
func (a *App) Generate(ctx context.Context, netlistPath string) (*GenerateResult, error) {
	report, err := a.Parse(ctx, netlistPath)
	if err != nil {
		return nil, err
	}
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)

	pc := a.cfg.Perturb
	events := make(chan perturb.Event)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			logger.Debug("trial finished", "stage", ev.Stage, "trial", ev.Index, "total", ev.Total)
		}
	}()

	engine := perturb.New(perturb.Config{
		Seed:       pc.Seed,
		Workers:    pc.Workers,
		MaxRetries: pc.MaxRetries,
		Events:     events,
	})
	trials, err := engine.Generate(ctx, report.Doc, pc.Count, report.Plan)
	close(events)
	<-drained
	if err != nil {
		return nil, fmt.Errorf("generating trials: %w", err)
	}

	variants, err := engine.Render(report.Doc, trials)
	if err != nil {
		return nil, fmt.Errorf("rendering variants: %w", err)
	}

	out := a.cfg.Output
	removed, err := store.PrepareDir(out.Dir, out.Prefix)
	if err != nil {
		return nil, err
	}
	paths, err := store.WriteVariants(out.Dir, out.Prefix, variants)
	if err != nil {
		return nil, err
	}

	res := &GenerateResult{Dir: out.Dir, Paths: paths, Removed: removed}
	for _, t := range trials {
		if t.Err != nil {
			res.Failed = append(res.Failed, t)
		}
	}

	res.Manifest = &store.Manifest{
		BatchID:   a.newID(),
		CreatedAt: a.now().UTC(),
		Source:    netlistPath,
		Prefix:    out.Prefix,
		Seed:      pc.Seed,
		Trials:    pc.Count,
		Failed:    len(res.Failed),
		Variants:  make([]store.ManifestVariant, len(variants)),
	}
	for i, v := range variants {
		values := make(map[string]float64, len(v.Values))
		for line, value := range v.Values {
			if comp, ok := report.Doc.Component(line); ok {
				values[comp.Name] = value
			}
		}
		res.Manifest.Variants[i] = store.ManifestVariant{
			Index:  v.Index,
			File:   filepath.Base(paths[i]),
			Values: values,
		}
	}
	if err := store.WriteManifest(out.Dir, res.Manifest); err != nil {
		return nil, err
	}

	logger.Info("variants written",
		"dir", out.Dir, "batch", res.Manifest.BatchID, "written", len(paths),
		"failed", len(res.Failed), "removed", removed)
	return res, nil
}
