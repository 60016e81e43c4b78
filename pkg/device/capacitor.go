package device

import (
	"github.com/edp1096/mcspice/pkg/matrix"
	"github.com/edp1096/mcspice/pkg/util"
)

type Capacitor struct {
	BaseDevice
	IC      float64
	voltage [2]float64 // accepted voltages, newest first
}

var _ TimeDependent = (*Capacitor)(nil)

func NewCapacitor(name string, nodeNames []string, value float64) *Capacitor {
	return &Capacitor{BaseDevice: newBaseDevice(name, nodeNames, value)}
}

func (c *Capacitor) GetType() string { return "C" }

func (c *Capacitor) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := c.Nodes[0], c.Nodes[1]

	switch status.Mode {
	case OperatingPointAnalysis:
		// Open circuit
		stampConductance(matrix, n1, n2, status.Gmin)

	case TransientAnalysis:
		// i = C * dv/dt, dv/dt = c0*v + c1*v[n-1] + c2*v[n-2]
		coeffs := util.GetBDFcoeffs(status.Order, status.TimeStep)
		geq := c.Value * coeffs[0]
		ieq := 0.0
		for k := 1; k < len(coeffs); k++ {
			ieq += c.Value * coeffs[k] * c.voltage[k-1]
		}

		stampConductance(matrix, n1, n2, geq)
		stampCurrent(matrix, n1, n2, ieq)
	}

	return nil
}

func (c *Capacitor) UpdateState(solution []float64, status *CircuitStatus) {
	vd := voltageAcross(solution, c.Nodes[0], c.Nodes[1])
	if status.Mode == OperatingPointAnalysis {
		c.voltage = [2]float64{vd, vd}
		return
	}
	c.voltage[1] = c.voltage[0]
	c.voltage[0] = vd
}

func (c *Capacitor) SetInitialCondition() {
	c.voltage = [2]float64{c.IC, c.IC}
}

func (c *Capacitor) Voltage() float64 { return c.voltage[0] }
