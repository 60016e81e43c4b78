// Package waveform holds solver output: a time axis and named output channels.
package waveform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var ErrInvalidSeries = errors.New("invalid series")

// Series is one simulation result. Time is strictly increasing, every
// output has the same length as Time and all values are finite.
type Series struct {
	Time    []float64            `json:"time"`
	Outputs map[string][]float64 `json:"outputs"`
}

// Validate checks the series invariants.
func (s *Series) Validate() error {
	if s == nil || len(s.Time) == 0 {
		return fmt.Errorf("%w: empty time axis", ErrInvalidSeries)
	}
	for i, t := range s.Time {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: time[%d] is not finite", ErrInvalidSeries, i)
		}
		if i > 0 && t <= s.Time[i-1] {
			return fmt.Errorf("%w: time not strictly increasing at %d", ErrInvalidSeries, i)
		}
	}
	for _, name := range s.Channels() {
		values := s.Outputs[name]
		if len(values) != len(s.Time) {
			return fmt.Errorf("%w: channel %s has %d points, time has %d", ErrInvalidSeries, name, len(values), len(s.Time))
		}
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s[%d] is not finite", ErrInvalidSeries, name, i)
			}
		}
	}
	return nil
}

// Channels lists output names in sorted order.
func (s *Series) Channels() []string {
	names := make([]string, 0, len(s.Outputs))
	for name := range s.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Channel looks up an output by exact name, then case-insensitively.
// SPICE output names differ in case between solvers (V(out) vs v(out)).
func (s *Series) Channel(name string) ([]float64, bool) {
	if values, ok := s.Outputs[name]; ok {
		return values, true
	}
	for key, values := range s.Outputs {
		if strings.EqualFold(key, name) {
			return values, true
		}
	}
	return nil, false
}

// Span returns the first and last time.
func (s *Series) Span() (float64, float64) {
	return s.Time[0], s.Time[len(s.Time)-1]
}

// FromColumns builds a series from a column map where timeKey names the time
// column (matched case-insensitively). The time column is not kept as an output.
func FromColumns(columns map[string][]float64, timeKey string) (*Series, error) {
	s := &Series{Outputs: make(map[string][]float64, len(columns))}
	for name, values := range columns {
		if strings.EqualFold(name, timeKey) {
			s.Time = append([]float64(nil), values...)
			continue
		}
		s.Outputs[name] = append([]float64(nil), values...)
	}
	if s.Time == nil {
		return nil, fmt.Errorf("%w: no %s column", ErrInvalidSeries, timeKey)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
