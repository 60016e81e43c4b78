package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Family names a distribution fitted to each grid column.
type Family string

const (
	FamilyNormal  Family = "normal"
	FamilyUniform Family = "uniform"
)

// ParseFamily maps a family name to a Family. Empty means normal.
func ParseFamily(name string) (Family, error) {
	switch f := Family(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FamilyNormal, nil
	case FamilyNormal, FamilyUniform:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFamily, name)
}

// Distribution is the part of a gonum distuv distribution the summaries use.
type Distribution interface {
	Mean() float64
	StdDev() float64
	Quantile(p float64) float64
}

// Fitted is the distribution of one grid column.
// Params holds mu/sigma for normal and min/max for uniform.
type Fitted struct {
	Time   float64            `json:"time" yaml:"time"`
	Family Family             `json:"family" yaml:"family"`
	Params map[string]float64 `json:"params" yaml:"params"`
}

// Dist returns the fitted distribution as a distuv value.
func (f Fitted) Dist() Distribution {
	if f.Family == FamilyUniform {
		return distuv.Uniform{Min: f.Params["min"], Max: f.Params["max"]}
	}
	return distuv.Normal{Mu: f.Params["mu"], Sigma: f.Params["sigma"]}
}

// Trace is the ordered sequence of fitted distributions along the grid.
type Trace struct {
	Channel string   `json:"channel" yaml:"channel"`
	Family  Family   `json:"family" yaml:"family"`
	Points  []Fitted `json:"points" yaml:"points"`
}

// At returns the point whose grid time is closest to t.
func (tr Trace) At(t float64) (Fitted, bool) {
	n := len(tr.Points)
	if n == 0 {
		return Fitted{}, false
	}
	i := sort.Search(n, func(i int) bool { return tr.Points[i].Time >= t })
	switch {
	case i == 0:
		return tr.Points[0], true
	case i == n:
		return tr.Points[n-1], true
	case t-tr.Points[i-1].Time <= tr.Points[i].Time-t:
		return tr.Points[i-1], true
	}
	return tr.Points[i], true
}

// Fit estimates one distribution per grid column by maximum likelihood:
// mean and population standard deviation for normal, sample extremes for
// uniform.
func Fit(aligned *Aligned, family Family) (Trace, error) {
	if family == "" {
		family = FamilyNormal
	}
	if family != FamilyNormal && family != FamilyUniform {
		return Trace{}, fmt.Errorf("%w: %q", ErrUnsupportedFamily, family)
	}
	if aligned == nil || len(aligned.Runs) == 0 {
		return Trace{}, ErrNoRuns
	}

	trace := Trace{Channel: aligned.Channel, Family: family, Points: make([]Fitted, len(aligned.Grid))}
	for j, t := range aligned.Grid {
		col := aligned.Column(j)

		var params map[string]float64
		switch family {
		case FamilyNormal:
			mu, sigma := stat.PopMeanStdDev(col, nil)
			if math.IsNaN(sigma) {
				sigma = 0
			}
			params = map[string]float64{"mu": mu, "sigma": sigma}
		case FamilyUniform:
			params = map[string]float64{"min": floats.Min(col), "max": floats.Max(col)}
		}
		trace.Points[j] = Fitted{Time: t, Family: family, Params: params}
	}
	return trace, nil
}

// Envelope is a per-timestep quantile band of a trace.
type Envelope struct {
	Time   []float64
	Lower  []float64
	Median []float64
	Upper  []float64
}

// Band computes the lo and hi quantiles of every point of trace, together
// with the median. A degenerate distribution collapses the band.
func Band(trace Trace, lo, hi float64) (*Envelope, error) {
	if !(lo >= 0 && lo < hi && hi <= 1) {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrInvalidQuantile, lo, hi)
	}

	n := len(trace.Points)
	b := &Envelope{
		Time:   make([]float64, n),
		Lower:  make([]float64, n),
		Median: make([]float64, n),
		Upper:  make([]float64, n),
	}
	for i, p := range trace.Points {
		d := p.Dist()
		b.Time[i] = p.Time
		if d.StdDev() == 0 {
			m := d.Mean()
			b.Lower[i], b.Median[i], b.Upper[i] = m, m, m
			continue
		}
		b.Lower[i] = d.Quantile(lo)
		b.Median[i] = d.Quantile(0.5)
		b.Upper[i] = d.Quantile(hi)
	}
	return b, nil
}
