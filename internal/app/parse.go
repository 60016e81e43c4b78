package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/edp1096/mcspice/internal/ctxlog"
	"github.com/edp1096/mcspice/pkg/netlist"
	"github.com/edp1096/mcspice/pkg/perturb"
	"github.com/edp1096/mcspice/pkg/store"
	"github.com/edp1096/mcspice/pkg/util"
)

// ParseReport is a parsed template netlist and the perturbation plan the
// configuration derives for it.
type ParseReport struct {
	Source string
	Doc    *netlist.Document
	Plan   perturb.Plan
}

// Parse reads the template netlist at path.
func (a *App) Parse(ctx context.Context, path string) (*ParseReport, error) {
	ctx = a.withLogger(ctx)

	text, err := store.ReadSource(path)
	if err != nil {
		return nil, err
	}
	doc := netlist.Parse(text, netlist.WithMarker(a.cfg.Input.Marker))

	logger := ctxlog.FromContext(ctx).With("netlist", path)
	if doc.MarkerLine() == 0 && a.cfg.Input.Marker != "" {
		logger.Warn("marker directive not found, no components recognized", "marker", a.cfg.Input.Marker)
	}
	for _, note := range doc.Skipped {
		logger.Debug("line skipped", "line", note.Line, "reason", note.Err)
	}
	logger.Info("netlist parsed", "components", len(doc.Components()), "skipped", len(doc.Skipped))

	plan := a.plan(doc)
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("perturbation plan for %s: %w", path, err)
	}
	return &ParseReport{Source: path, Doc: doc, Plan: plan}, nil
}

func (a *App) plan(doc *netlist.Document) perturb.Plan {
	pc := a.cfg.Perturb
	defaults := perturb.Params{
		Distribution: netlist.Distribution(strings.ToLower(pc.DefaultDistribution)),
		Scale:        pc.DefaultScale,
	}
	byName := make(map[string]perturb.Override, len(pc.Components))
	for name, c := range pc.Components {
		byName[name] = perturb.Override{
			Distribution: netlist.Distribution(strings.ToLower(c.Distribution)),
			Scale:        c.Scale,
		}
	}
	return perturb.PlanFor(doc, defaults, byName)
}

var unitOf = map[netlist.Kind]string{
	netlist.KindResistor:  "Ohm",
	netlist.KindInductor:  "H",
	netlist.KindCapacitor: "F",
}

// WriteTo prints the component table and the skipped lines.
func (r *ParseReport) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "LINE\tNAME\tKIND\tVALUE\tIC\tDIST\tSCALE")
	for _, c := range r.Doc.Components() {
		p := r.Plan[c.Line]
		ic := "-"
		if c.HasInitialCondition() {
			ic = c.InitialCondition
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%g\n",
			c.Line, c.Name, c.Kind, util.FormatValueFactor(c.Value, unitOf[c.Kind]), ic, p.Distribution, p.Scale)
	}
	if err := tw.Flush(); err != nil {
		return cw.n, err
	}

	for _, note := range r.Doc.Skipped {
		fmt.Fprintf(cw, "skipped %s\n", note)
	}
	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
