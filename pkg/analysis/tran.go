package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/edp1096/mcspice/pkg/circuit"
	"github.com/edp1096/mcspice/pkg/device"
	"github.com/edp1096/mcspice/pkg/util"
)

// DefaultMaxPoints bounds the number of time points of one run.
const DefaultMaxPoints = 1_000_000

// Transient integrates at a fixed step. The first step is Backward Euler,
// later equal-length steps use Gear-2.
type Transient struct {
	BaseAnalysis
	op        *OperatingPoint
	startTime float64
	stopTime  float64
	timeStep  float64
	useUIC    bool
	maxOrder  int
	maxPoints int
}

func NewTransient(tStart, tStop, tStep, tMax float64, uic bool) *Transient {
	if tMax > 0 && tMax < tStep {
		tStep = tMax
	}

	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		op:           NewOP(),
		startTime:    tStart,
		stopTime:     tStop,
		timeStep:     tStep,
		useUIC:       uic,
		maxOrder:     util.MaxBDFOrder,
		maxPoints:    DefaultMaxPoints,
	}
}

// SetMaxOrder limits the integration order: 1 keeps Backward Euler throughout.
func (tr *Transient) SetMaxOrder(order int) {
	tr.maxOrder = max(1, min(order, util.MaxBDFOrder))
}

func (tr *Transient) SetMaxPoints(n int) {
	if n > 0 {
		tr.maxPoints = n
	}
}

func (tr *Transient) Setup(ckt *circuit.Circuit) error {
	if tr.timeStep <= 0 || tr.stopTime <= 0 {
		return fmt.Errorf("invalid transient parameters: tstep=%g tstop=%g", tr.timeStep, tr.stopTime)
	}
	if tr.startTime < 0 || tr.startTime >= tr.stopTime {
		return fmt.Errorf("invalid transient start %g for stop %g", tr.startTime, tr.stopTime)
	}
	tr.Circuit = ckt
	return tr.op.Setup(ckt)
}

func (tr *Transient) steps() (int, error) {
	n := int(math.Round(tr.stopTime / tr.timeStep))
	if float64(n)*tr.timeStep < tr.stopTime*(1-1e-9) {
		n++
	}
	if n > tr.maxPoints {
		return 0, fmt.Errorf("transient needs %d points, limit is %d", n, tr.maxPoints)
	}
	return max(n, 1), nil
}

func (tr *Transient) Execute(ctx context.Context) error {
	if tr.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}

	n, err := tr.steps()
	if err != nil {
		return err
	}

	if tr.useUIC {
		tr.Circuit.ApplyInitialConditions()
	} else {
		if err := tr.op.Execute(ctx); err != nil {
			return fmt.Errorf("operating point analysis error: %w", err)
		}
		if tr.startTime <= 0 {
			tr.StoreTimeResult(0, tr.Circuit.GetSolution())
		}
	}

	time, prevStep := 0.0, 0.0
	for k := 1; k <= n; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := math.Min(float64(k)*tr.timeStep, tr.stopTime)
		if k == n {
			next = tr.stopTime
		}
		dt := next - time

		order := 1
		if tr.maxOrder >= 2 && k > 1 && math.Abs(dt-prevStep) <= 1e-9*dt {
			order = 2
		}

		status := &device.CircuitStatus{
			Time:     next,
			TimeStep: dt,
			Mode:     device.TransientAnalysis,
			Order:    order,
		}
		if err := tr.Circuit.Solve(status); err != nil {
			return fmt.Errorf("t=%g: %w", next, err)
		}
		tr.Circuit.Accept(status)

		if next >= tr.startTime {
			tr.StoreTimeResult(next, tr.Circuit.GetSolution())
		}
		time, prevStep = next, dt
	}

	return nil
}
