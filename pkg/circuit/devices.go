package circuit

import (
	"fmt"

	"github.com/edp1096/mcspice/pkg/device"
	"github.com/edp1096/mcspice/pkg/netlist"
	"github.com/edp1096/mcspice/pkg/unit"
)

var sourceTypes = map[netlist.SourceKind]device.SourceType{
	netlist.SourceDC:    device.DC,
	netlist.SourceSin:   device.SIN,
	netlist.SourcePulse: device.PULSE,
	netlist.SourcePWL:   device.PWL,
}

func CreateDevice(elem netlist.Element) (device.Device, error) {
	switch elem.Type {
	case "R":
		r := device.NewResistor(elem.Name, elem.Nodes, elem.Value)
		var err error
		if r.Tc1, err = floatParam(elem, "tc1"); err != nil {
			return nil, err
		}
		if r.Tc2, err = floatParam(elem, "tc2"); err != nil {
			return nil, err
		}
		return r, nil

	case "L":
		l := device.NewInductor(elem.Name, elem.Nodes, elem.Value)
		ic, err := floatParam(elem, "ic")
		if err != nil {
			return nil, err
		}
		l.IC = ic
		return l, nil

	case "C":
		c := device.NewCapacitor(elem.Name, elem.Nodes, elem.Value)
		ic, err := floatParam(elem, "ic")
		if err != nil {
			return nil, err
		}
		c.IC = ic
		return c, nil

	case "V", "I":
		wave, err := waveformOf(elem)
		if err != nil {
			return nil, err
		}
		if elem.Type == "V" {
			return device.NewVoltageSource(elem.Name, elem.Nodes, wave), nil
		}
		return device.NewCurrentSource(elem.Name, elem.Nodes, wave), nil
	}
	return nil, fmt.Errorf("unsupported device type: %s", elem.Type)
}

func waveformOf(elem netlist.Element) (device.Waveform, error) {
	if elem.Source == nil {
		return device.Waveform{Type: device.DC, DC: elem.Value}, nil
	}

	typ, ok := sourceTypes[elem.Source.Kind]
	if !ok {
		return device.Waveform{}, fmt.Errorf("unsupported source type: %s", elem.Source.Kind)
	}
	wave := device.Waveform{Type: typ, DC: elem.Source.DC, Args: elem.Source.Args}
	if err := wave.Validate(); err != nil {
		return device.Waveform{}, err
	}
	return wave, nil
}

func floatParam(elem netlist.Element, key string) (float64, error) {
	text, ok := elem.Params[key]
	if !ok {
		return 0, nil
	}
	v, err := unit.Decode(text)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid %s: %w", elem.Name, key, err)
	}
	return v, nil
}
