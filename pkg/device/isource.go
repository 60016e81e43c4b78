package device

import (
	"github.com/edp1096/mcspice/pkg/matrix"
)

// CurrentSource drives its value from the first node through the source to
// the second.
type CurrentSource struct {
	BaseDevice
	Wave Waveform
}

func NewCurrentSource(name string, nodeNames []string, wave Waveform) *CurrentSource {
	return &CurrentSource{
		BaseDevice: newBaseDevice(name, nodeNames, wave.At(0)),
		Wave:       wave,
	}
}

func (i *CurrentSource) GetType() string { return "I" }

func (i *CurrentSource) GetCurrent(t float64) float64 { return i.Wave.At(t) }

func (i *CurrentSource) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	stampCurrent(matrix, i.Nodes[0], i.Nodes[1], i.GetCurrent(status.Time))
	return nil
}
