package device

import (
	"github.com/edp1096/mcspice/pkg/matrix"
)

type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error
	GetValue() float64
	SetNodes(nodes []int)
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	Value     float64
	NodeNames []string
}

// TimeDependent devices keep history between accepted time points.
type TimeDependent interface {
	// UpdateState stores the accepted solution as the newest history point.
	UpdateState(solution []float64, status *CircuitStatus)
	// SetInitialCondition seeds history from IC= when the OP is skipped.
	SetInitialCondition()
}

// BranchDevice owns an extra MNA row for its current.
type BranchDevice interface {
	Device
	BranchIndex() int
	SetBranchIndex(idx int)
}

type AnalysisMode int

const (
	OperatingPointAnalysis AnalysisMode = iota
	TransientAnalysis
)

type CircuitStatus struct {
	Time     float64
	TimeStep float64
	Gmin     float64
	Mode     AnalysisMode
	Temp     float64 // Kelvin
	Order    int     // BDF order of this step
}

func (d *BaseDevice) GetName() string {
	return d.Name
}

func (d *BaseDevice) GetNodes() []int {
	return d.Nodes
}

func (d *BaseDevice) GetNodeNames() []string {
	return d.NodeNames
}

func (d *BaseDevice) GetValue() float64 {
	return d.Value
}

func (d *BaseDevice) SetNodes(nodes []int) {
	d.Nodes = nodes
}

func newBaseDevice(name string, nodeNames []string, value float64) BaseDevice {
	return BaseDevice{
		Name:      name,
		Nodes:     make([]int, len(nodeNames)),
		NodeNames: nodeNames,
		Value:     value,
	}
}

// voltageAcross returns v(n1) - v(n2) from a 1-based solution vector.
func voltageAcross(solution []float64, n1, n2 int) float64 {
	v1, v2 := 0.0, 0.0
	if n1 != 0 {
		v1 = solution[n1]
	}
	if n2 != 0 {
		v2 = solution[n2]
	}
	return v1 - v2
}

// stampConductance loads g between n1 and n2.
func stampConductance(m matrix.DeviceMatrix, n1, n2 int, g float64) {
	if n1 != 0 {
		m.AddElement(n1, n1, g)
		if n2 != 0 {
			m.AddElement(n1, n2, -g)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			m.AddElement(n2, n1, -g)
		}
		m.AddElement(n2, n2, g)
	}
}

// stampCurrent loads a current i flowing from n1 to n2 through the device.
func stampCurrent(m matrix.DeviceMatrix, n1, n2 int, i float64) {
	if n1 != 0 {
		m.AddRHS(n1, -i)
	}
	if n2 != 0 {
		m.AddRHS(n2, i)
	}
}
