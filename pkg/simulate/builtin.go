package simulate

import (
	"context"
	"fmt"

	"github.com/edp1096/mcspice/pkg/analysis"
	"github.com/edp1096/mcspice/pkg/circuit"
	"github.com/edp1096/mcspice/pkg/netlist"
	"github.com/edp1096/mcspice/pkg/waveform"
)

// Builtin is the in-process linear MNA solver. It runs the deck's .TRAN
// analysis over R, L, C and independent sources.
type Builtin struct {
	// Method is "gear" (Backward Euler start, Gear-2 after) or "euler".
	Method    string
	MaxPoints int
}

var _ Solver = Builtin{}

func (b Builtin) Simulate(ctx context.Context, name, text string) (*waveform.Series, error) {
	deck, err := netlist.Elaborate(text)
	if err != nil {
		return nil, fmt.Errorf("elaborating %s: %w", name, err)
	}
	if !deck.HasTran {
		return nil, fmt.Errorf("%s: no .TRAN analysis", name)
	}

	ckt := circuit.New(deck.Title)
	defer ckt.Destroy()
	ckt.SetTemperature(deck.Temp)

	if err := ckt.AssignNodeBranchMaps(deck.Elements); err != nil {
		return nil, err
	}
	if err := ckt.CreateMatrix(); err != nil {
		return nil, err
	}
	if err := ckt.SetupDevices(deck.Elements); err != nil {
		return nil, err
	}

	p := deck.TranParam
	tran := analysis.NewTransient(p.TStart, p.TStop, p.TStep, p.TMax, p.UIC)
	switch b.Method {
	case "", "gear":
	case "euler":
		tran.SetMaxOrder(1)
	default:
		return nil, fmt.Errorf("unknown integration method %q", b.Method)
	}
	tran.SetMaxPoints(b.MaxPoints)

	if err := tran.Setup(ckt); err != nil {
		return nil, err
	}
	if err := tran.Execute(ctx); err != nil {
		return nil, err
	}

	return waveform.FromColumns(tran.GetResults(), analysis.TimeKey)
}
