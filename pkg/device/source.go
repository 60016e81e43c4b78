package device

import (
	"fmt"
	"math"
)

type SourceType int

const (
	DC SourceType = iota
	SIN
	PULSE
	PWL
)

// Waveform is the time function of an independent source.
//
//	SIN:   offset amplitude freq [delay damping phase(deg)]
//	PULSE: v1 v2 delay rise fall width period
//	PWL:   t1 v1 t2 v2 ...
type Waveform struct {
	Type SourceType
	DC   float64
	Args []float64
}

func (w Waveform) Validate() error {
	switch w.Type {
	case DC:
		return nil
	case SIN:
		if len(w.Args) < 3 || len(w.Args) > 6 {
			return fmt.Errorf("SIN needs 3 to 6 parameters, got %d", len(w.Args))
		}
	case PULSE:
		if len(w.Args) != 7 {
			return fmt.Errorf("PULSE needs 7 parameters, got %d", len(w.Args))
		}
	case PWL:
		if len(w.Args) < 2 || len(w.Args)%2 != 0 {
			return fmt.Errorf("PWL needs time-value pairs")
		}
	default:
		return fmt.Errorf("unknown source type %d", w.Type)
	}
	return nil
}

// At evaluates the waveform at time t.
func (w Waveform) At(t float64) float64 {
	switch w.Type {
	case SIN:
		return w.sinAt(t)
	case PULSE:
		return w.pulseAt(t)
	case PWL:
		return w.pwlAt(t)
	default:
		return w.DC
	}
}

func (w Waveform) arg(i int) float64 {
	if i < len(w.Args) {
		return w.Args[i]
	}
	return 0
}

func (w Waveform) sinAt(t float64) float64 {
	offset, amplitude, freq := w.arg(0), w.arg(1), w.arg(2)
	delay, damping := w.arg(3), w.arg(4)
	phaseRad := w.arg(5) * math.Pi / 180.0

	if t < delay {
		return offset + amplitude*math.Sin(phaseRad)
	}
	t -= delay
	return offset + amplitude*math.Exp(-t*damping)*math.Sin(2.0*math.Pi*freq*t+phaseRad)
}

func (w Waveform) pulseAt(t float64) float64 {
	v1, v2 := w.arg(0), w.arg(1)
	delay, rise, fall, pWidth, period := w.arg(2), w.arg(3), w.arg(4), w.arg(5), w.arg(6)

	if t < delay {
		return v1
	}

	t = t - delay
	if period > 0 {
		t = math.Mod(t, period)
	}

	if t < rise {
		return v1 + (v2-v1)*t/rise
	}

	if t < rise+pWidth {
		return v2
	}

	fallStart := rise + pWidth
	if t < fallStart+fall {
		return v2 - (v2-v1)*(t-fallStart)/fall
	}

	return v1
}

func (w Waveform) pwlAt(t float64) float64 {
	n := len(w.Args) / 2
	time := func(i int) float64 { return w.Args[2*i] }
	value := func(i int) float64 { return w.Args[2*i+1] }

	if t <= time(0) {
		return value(0)
	}
	if t >= time(n-1) {
		return value(n - 1)
	}

	for i := 1; i < n; i++ {
		if t <= time(i) {
			t1, t2 := time(i-1), time(i)
			v1, v2 := value(i-1), value(i)
			return v1 + (v2-v1)*(t-t1)/(t2-t1)
		}
	}
	return value(n - 1)
}
