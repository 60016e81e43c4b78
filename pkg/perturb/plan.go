package perturb

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/edp1096/mcspice/pkg/netlist"
)

// Params selects how one component is perturbed.
type Params struct {
	Distribution netlist.Distribution
	Scale        float64
}

// Override replaces the parameters of one named component. An empty
// Distribution or a nil Scale keeps the value it would otherwise get.
type Override struct {
	Distribution netlist.Distribution
	Scale        *float64
}

// Plan maps component lines to their perturbation parameters. Lines absent
// from the plan keep their value.
type Plan map[int]Params

// PlanFor builds a plan from the document. Annotated components keep their
// "*DIST:" parameters, others take defaults; the fields a byName entry sets
// win over both.
// Names match case-insensitively, as SPICE does.
func PlanFor(doc *netlist.Document, defaults Params, byName map[string]Override) Plan {
	plan := make(Plan)
	for _, comp := range doc.Components() {
		p := defaults
		if comp.Annotated {
			p = Params{Distribution: comp.Distribution, Scale: comp.Scale}
		}
		if override, ok := lookupName(byName, comp.Name); ok {
			if override.Distribution != "" {
				p.Distribution = override.Distribution
			}
			if override.Scale != nil {
				p.Scale = *override.Scale
			}
		}
		if p.Distribution == "" {
			p.Distribution = netlist.Uniform
		}
		plan[comp.Line] = p
	}
	return plan
}

func lookupName(byName map[string]Override, name string) (Override, bool) {
	if p, ok := byName[name]; ok {
		return p, true
	}
	for key, p := range byName {
		if strings.EqualFold(key, name) {
			return p, true
		}
	}
	return Override{}, false
}

// Validate rejects negative or non-finite scales, and unknown distributions on
// entries that will actually be sampled.
func (p Plan) Validate() error {
	lines := make([]int, 0, len(p))
	for line := range p {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	for _, line := range lines {
		params := p[line]
		if params.Scale < 0 || math.IsNaN(params.Scale) || math.IsInf(params.Scale, 0) {
			return fmt.Errorf("line %d: %w: %v", line, ErrInvalidScale, params.Scale)
		}
		if params.Scale > 0 && !params.Distribution.Known() {
			return fmt.Errorf("line %d: %w: %q", line, ErrUnsupportedDistribution, params.Distribution)
		}
	}
	return nil
}
