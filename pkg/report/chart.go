package report

import (
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/edp1096/mcspice/pkg/aggregate"
)

// BandChart writes an interactive HTML page with the quantile band of env.
func BandChart(w io.Writer, title string, env *aggregate.Envelope) error {
	if env == nil || len(env.Time) == 0 {
		return ErrEmptyPlot
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Theme:     types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: title,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show:  opts.Bool(true),
			Right: "10",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:  "inside",
			Start: 0,
			End:   100,
		}),
	)

	axis := make([]string, len(env.Time))
	for i, t := range env.Time {
		axis[i] = strconv.FormatFloat(t, 'g', 6, 64)
	}
	line.SetXAxis(axis)

	for _, s := range []struct {
		name   string
		values []float64
	}{
		{"lower", env.Lower},
		{"median", env.Median},
		{"upper", env.Upper},
	} {
		line.AddSeries(s.name, lineData(s.values),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	return line.Render(w)
}

func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	return data
}
