package device

import (
	"github.com/edp1096/mcspice/pkg/matrix"
)

type VoltageSource struct {
	BaseDevice
	Wave      Waveform
	branchIdx int // Branch index for MNA
}

var _ BranchDevice = (*VoltageSource)(nil)

func NewVoltageSource(name string, nodeNames []string, wave Waveform) *VoltageSource {
	return &VoltageSource{
		BaseDevice: newBaseDevice(name, nodeNames, wave.At(0)),
		Wave:       wave,
	}
}

func (v *VoltageSource) GetType() string { return "V" }

func (v *VoltageSource) GetVoltage(t float64) float64 { return v.Wave.At(t) }

func (v *VoltageSource) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := v.Nodes[0], v.Nodes[1]
	bIdx := v.branchIdx

	// v1 - v2 = V
	if n1 != 0 {
		matrix.AddElement(bIdx, n1, 1) // v1 coefficient
		matrix.AddElement(n1, bIdx, 1) // n1 current
	}
	if n2 != 0 {
		matrix.AddElement(bIdx, n2, -1) // -v2 coefficient
		matrix.AddElement(n2, bIdx, -1) // n2 current
	}

	matrix.AddRHS(bIdx, v.GetVoltage(status.Time))
	return nil
}

func (v *VoltageSource) BranchIndex() int {
	return v.branchIdx
}

func (v *VoltageSource) SetBranchIndex(idx int) {
	v.branchIdx = idx
}
