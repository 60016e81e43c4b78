package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/edp1096/mcspice/internal/ctxlog"
	"github.com/edp1096/mcspice/pkg/aggregate"
	"github.com/edp1096/mcspice/pkg/report"
	"github.com/edp1096/mcspice/pkg/store"
)

// Files written by Analyze next to the archive.
const (
	TraceBase  = "trace"
	DensityPNG = "density.png"
	BandPNG    = "band.png"
	RunsPNG    = "runs.png"
	BandHTML   = "band.html"
)

// AnalyzeResult holds the aggregate of one channel across a batch.
type AnalyzeResult struct {
	Channel   string
	Aligned   *aggregate.Aligned
	Excluded  []aggregate.Exclusion
	Trace     aggregate.Trace
	Envelope  *aggregate.Envelope
	Histogram *aggregate.Histogram2D
	Files     []string
}

// Analyze loads the archived series in dir, aligns the selected channel on
// a common grid, fits a distribution per timestep and writes the trace and
// the plots.
func (a *App) Analyze(ctx context.Context, dir string) (*AnalyzeResult, error) {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx).With("dir", dir)

	archive, err := store.ReadArchive(filepath.Join(dir, store.ArchiveName))
	if err != nil {
		return nil, err
	}
	ok := archive.Succeeded()
	runs := make([]aggregate.Run, len(ok))
	for i, r := range ok {
		runs[i] = aggregate.Run{Name: r.Name, Series: r.Series}
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("batch %s: %w", archive.BatchID, aggregate.ErrNoRuns)
	}

	ac := a.cfg.Analyze
	channel := a.cfg.Simulate.Channel
	if channel == "" {
		channel = defaultChannel(runs)
		logger.Info("no channel configured, using default", "channel", channel, "available", runs[0].Series.Channels())
	}

	method, err := aggregate.ParseInterpolation(ac.Interpolation)
	if err != nil {
		return nil, err
	}
	family, err := aggregate.ParseFamily(ac.Family)
	if err != nil {
		return nil, err
	}

	aligned, excluded, err := aggregate.Align(runs, channel, ac.Timesteps, method)
	for _, ex := range excluded {
		logger.Warn("run excluded", "run", ex.Run, "error", ex.Err)
	}
	if err != nil {
		return nil, fmt.Errorf("aligning %s: %w", channel, err)
	}

	res := &AnalyzeResult{Channel: channel, Aligned: aligned, Excluded: excluded}
	if res.Trace, err = aggregate.Fit(aligned, family); err != nil {
		return nil, err
	}
	if res.Envelope, err = aggregate.Band(res.Trace, ac.BandLower, ac.BandUpper); err != nil {
		return nil, err
	}
	if res.Histogram, err = aggregate.Density(aligned, ac.Bins); err != nil {
		return nil, err
	}

	if err := a.writeOutputs(dir, runs, res); err != nil {
		return nil, err
	}

	logger.Info("batch analyzed",
		"batch", archive.BatchID, "channel", channel, "runs", len(aligned.Runs),
		"excluded", len(excluded), "files", len(res.Files))
	return res, nil
}

func (a *App) writeOutputs(dir string, runs []aggregate.Run, res *AnalyzeResult) error {
	out := a.cfg.Output
	format, err := report.ParseTraceFormat(out.TraceFormat)
	if err != nil {
		return err
	}

	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		if err := store.WriteFile(path, fn); err != nil {
			return err
		}
		res.Files = append(res.Files, path)
		return nil
	}

	if err := write(TraceBase+"."+format.Ext(), func(w io.Writer) error {
		return report.WriteTrace(w, res.Trace, format)
	}); err != nil {
		return err
	}

	title := fmt.Sprintf("%s (%d runs)", res.Channel, len(res.Aligned.Runs))
	if out.Plots {
		opts := report.PlotOptions{Title: title, LogFloor: a.cfg.Analyze.LogFloor}
		if err := write(DensityPNG, func(w io.Writer) error {
			return report.DensityPlot(w, res.Histogram, opts)
		}); err != nil {
			return err
		}
		if err := write(BandPNG, func(w io.Writer) error {
			return report.BandPlot(w, res.Aligned, res.Envelope, opts)
		}); err != nil {
			return err
		}
		if err := write(RunsPNG, func(w io.Writer) error {
			return report.SeriesPlot(w, runs, res.Channel, opts)
		}); err != nil {
			return err
		}
	}
	if out.HTML {
		if err := write(BandHTML, func(w io.Writer) error {
			return report.BandChart(w, title, res.Envelope)
		}); err != nil {
			return err
		}
	}
	return nil
}

// defaultChannel picks the first node voltage of the first run, or its first
// channel when it has no node voltage.
func defaultChannel(runs []aggregate.Run) string {
	channels := runs[0].Series.Channels()
	for _, name := range channels {
		if strings.HasPrefix(strings.ToUpper(name), "V(") {
			return name
		}
	}
	if len(channels) > 0 {
		return channels[0]
	}
	return ""
}
