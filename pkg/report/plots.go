// Package report renders aggregated Monte Carlo results as charts and tables.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/edp1096/mcspice/pkg/aggregate"
)

var ErrEmptyPlot = errors.New("nothing to plot")

// DefaultLogFloor replaces empty density cells before taking log10.
const DefaultLogFloor = 1e-6

type PlotOptions struct {
	Title    string
	Width    vg.Length // defaults to 16cm
	Height   vg.Length // defaults to 10cm
	Format   string    // png, svg, pdf... defaults to png
	LogFloor float64   // density plots only
}

func (o PlotOptions) withDefaults() PlotOptions {
	if o.Width == 0 {
		o.Width = 16 * vg.Centimeter
	}
	if o.Height == 0 {
		o.Height = 10 * vg.Centimeter
	}
	if o.Format == "" {
		o.Format = "png"
	}
	if o.LogFloor == 0 {
		o.LogFloor = DefaultLogFloor
	}
	return o
}

func save(p *plot.Plot, w io.Writer, o PlotOptions) error {
	wt, err := p.WriterTo(o.Width, o.Height, o.Format)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", o.Format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// densityGrid exposes a histogram as a heat map grid. Columns are time
// bins and rows are value bins.
type densityGrid struct {
	z          *mat.Dense
	timeEdges  []float64
	valueEdges []float64
}

func (g densityGrid) Dims() (int, int)   { return g.z.Dims() }
func (g densityGrid) Z(c, r int) float64 { return g.z.At(c, r) }
func (g densityGrid) X(c int) float64    { return (g.timeEdges[c] + g.timeEdges[c+1]) / 2 }
func (g densityGrid) Y(r int) float64    { return (g.valueEdges[r] + g.valueEdges[r+1]) / 2 }

// DensityPlot draws the log10 density of h as a heat map.
func DensityPlot(w io.Writer, h *aggregate.Histogram2D, o PlotOptions) error {
	o = o.withDefaults()
	if h == nil || h.Samples == 0 {
		return ErrEmptyPlot
	}

	logd, err := h.LogDensity(o.LogFloor)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = o.Title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "value"

	grid := densityGrid{z: logd, timeEdges: h.TimeEdges, valueEdges: h.ValueEdges}
	hm := plotter.NewHeatMap(grid, palette.Heat(64, 1))
	if hm.Min == hm.Max {
		hm.Min, hm.Max = hm.Min-1, hm.Max+1
	}
	p.Add(hm)

	return save(p, w, o)
}

// BandPlot draws every aligned run as a faint line with the quantile band
// on top.
func BandPlot(w io.Writer, aligned *aggregate.Aligned, env *aggregate.Envelope, o PlotOptions) error {
	o = o.withDefaults()
	if env == nil || len(env.Time) == 0 {
		return ErrEmptyPlot
	}

	p := plot.New()
	p.Title.Text = o.Title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = aligned.Channel

	runColor := color.RGBA{R: 120, G: 120, B: 120, A: 60}
	for i := range aligned.Runs {
		line, err := plotter.NewLine(xys(aligned.Grid, aligned.Row(i)))
		if err != nil {
			return err
		}
		line.Color = runColor
		line.Width = vg.Points(0.5)
		p.Add(line)
	}

	for i, band := range []struct {
		name   string
		values []float64
	}{
		{"lower", env.Lower},
		{"median", env.Median},
		{"upper", env.Upper},
	} {
		line, err := plotter.NewLine(xys(env.Time, band.values))
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(band.name, line)
	}

	return save(p, w, o)
}

// SeriesPlot draws channel of every run on its own time axis.
func SeriesPlot(w io.Writer, runs []aggregate.Run, channel string, o PlotOptions) error {
	o = o.withDefaults()

	p := plot.New()
	p.Title.Text = o.Title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = channel

	drawn := 0
	for i, run := range runs {
		if run.Series == nil {
			continue
		}
		values, ok := run.Series.Channel(channel)
		if !ok {
			continue
		}
		line, err := plotter.NewLine(xys(run.Series.Time, values))
		if err != nil {
			return fmt.Errorf("run %s: %w", run.Name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		drawn++
	}
	if drawn == 0 {
		return fmt.Errorf("%w: no run has channel %s", ErrEmptyPlot, channel)
	}

	return save(p, w, o)
}

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X, pts[i].Y = x[i], y[i]
	}
	return pts
}
