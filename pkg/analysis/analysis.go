package analysis

import (
	"context"

	"github.com/edp1096/mcspice/pkg/circuit"
)

// TimeKey is the result column holding the time axis.
const TimeKey = "TIME"

type Analysis interface {
	Setup(ckt *circuit.Circuit) error
	Execute(ctx context.Context) error
	GetResults() map[string][]float64
}

type BaseAnalysis struct {
	Circuit *circuit.Circuit
	results map[string][]float64 // key: variable name, value: result by time
}

func NewBaseAnalysis() *BaseAnalysis {
	return &BaseAnalysis{results: make(map[string][]float64)}
}

func (a *BaseAnalysis) StoreTimeResult(time float64, solution map[string]float64) {
	// Ignore same time
	if times := a.results[TimeKey]; len(times) > 0 && time <= times[len(times)-1] {
		return
	}

	a.results[TimeKey] = append(a.results[TimeKey], time)
	for name, value := range solution {
		a.results[name] = append(a.results[name], value)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}
