package analysis

import (
	"context"
	"fmt"

	"github.com/edp1096/mcspice/pkg/circuit"
	"github.com/edp1096/mcspice/pkg/device"
)

// OperatingPoint solves the DC state: capacitors open, inductors shorted,
// sources at their t=0 value.
type OperatingPoint struct{ BaseAnalysis }

func NewOP() *OperatingPoint {
	return &OperatingPoint{
		BaseAnalysis: *NewBaseAnalysis(),
	}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	op.Circuit = ckt
	return nil
}

func (op *OperatingPoint) Execute(ctx context.Context) error {
	if op.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	status := &device.CircuitStatus{Time: 0, Mode: device.OperatingPointAnalysis}
	if err := op.Circuit.Solve(status); err != nil {
		return fmt.Errorf("operating point: %w", err)
	}
	op.Circuit.Accept(status)

	for key, value := range op.Circuit.GetSolution() {
		op.results[key] = []float64{value}
	}
	return nil
}
