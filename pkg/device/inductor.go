package device

import (
	"github.com/edp1096/mcspice/pkg/matrix"
	"github.com/edp1096/mcspice/pkg/util"
)

type Inductor struct {
	BaseDevice
	IC        float64
	current   [2]float64 // accepted branch currents, newest first
	branchIdx int        // Branch index
}

var (
	_ TimeDependent = (*Inductor)(nil)
	_ BranchDevice  = (*Inductor)(nil)
)

func NewInductor(name string, nodeNames []string, value float64) *Inductor {
	return &Inductor{BaseDevice: newBaseDevice(name, nodeNames, value)}
}

func (l *Inductor) GetType() string { return "L" }

func (l *Inductor) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := l.Nodes[0], l.Nodes[1]
	bIdx := l.branchIdx

	// Branch current leaves n1 and enters n2; branch row is v1 - v2 = L di/dt
	if n1 != 0 {
		matrix.AddElement(n1, bIdx, 1)
		matrix.AddElement(bIdx, n1, 1)
	}
	if n2 != 0 {
		matrix.AddElement(n2, bIdx, -1)
		matrix.AddElement(bIdx, n2, -1)
	}

	if status.Mode != TransientAnalysis {
		// Short circuit at the operating point
		return nil
	}

	coeffs := util.GetBDFcoeffs(status.Order, status.TimeStep)
	matrix.AddElement(bIdx, bIdx, -l.Value*coeffs[0])

	hist := 0.0
	for k := 1; k < len(coeffs); k++ {
		hist += coeffs[k] * l.current[k-1]
	}
	matrix.AddRHS(bIdx, l.Value*hist)

	return nil
}

func (l *Inductor) UpdateState(solution []float64, status *CircuitStatus) {
	i := solution[l.branchIdx]
	if status.Mode == OperatingPointAnalysis {
		l.current = [2]float64{i, i}
		return
	}
	l.current[1] = l.current[0]
	l.current[0] = i
}

func (l *Inductor) SetInitialCondition() {
	l.current = [2]float64{l.IC, l.IC}
}

func (l *Inductor) GetCurrent() float64 {
	return l.current[0]
}

func (l *Inductor) BranchIndex() int {
	return l.branchIdx
}

func (l *Inductor) SetBranchIndex(idx int) {
	l.branchIdx = idx
}
