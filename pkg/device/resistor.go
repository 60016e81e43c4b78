package device

import (
	"fmt"

	"github.com/edp1096/mcspice/internal/consts"
	"github.com/edp1096/mcspice/pkg/matrix"
)

type Resistor struct {
	BaseDevice
	Tc1  float64
	Tc2  float64
	Tnom float64 // Kelvin
}

func NewResistor(name string, nodeNames []string, value float64) *Resistor {
	return &Resistor{
		BaseDevice: newBaseDevice(name, nodeNames, value),
		Tnom:       consts.TNOM + consts.KELVIN,
	}
}

func (r *Resistor) GetType() string { return "R" }

func (r *Resistor) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	if len(r.Nodes) != 2 {
		return fmt.Errorf("resistor %s: requires exactly 2 nodes", r.Name)
	}

	value := r.TemperatureAdjustedValue(status.Temp)
	if value <= 0 {
		return fmt.Errorf("resistor %s: non-positive resistance %g", r.Name, value)
	}

	stampConductance(matrix, r.Nodes[0], r.Nodes[1], 1.0/value) // G = 1/R
	return nil
}

// TemperatureAdjustedValue applies tc1/tc2 against the nominal temperature.
// A zero temp means nominal.
func (r *Resistor) TemperatureAdjustedValue(temp float64) float64 {
	if temp == 0 {
		return r.Value
	}
	dt := temp - r.Tnom
	factor := 1.0 + r.Tc1*dt + r.Tc2*dt*dt
	return r.Value * factor
}

// Current is the current from the first node to the second.
func (r *Resistor) Current(solution []float64, temp float64) float64 {
	return voltageAcross(solution, r.Nodes[0], r.Nodes[1]) / r.TemperatureAdjustedValue(temp)
}
