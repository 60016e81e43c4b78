package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edp1096/mcspice/pkg/aggregate"
)

var ErrUnsupportedFormat = errors.New("unsupported trace format")

// TraceFormat selects how WriteTrace encodes a trace.
type TraceFormat string

const (
	FormatCSV  TraceFormat = "csv"
	FormatYAML TraceFormat = "yaml"
)

func ParseTraceFormat(name string) (TraceFormat, error) {
	switch f := TraceFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Ext is the file extension for the format, without the dot.
func (f TraceFormat) Ext() string { return string(f) }

func WriteTrace(w io.Writer, trace aggregate.Trace, format TraceFormat) error {
	switch format {
	case FormatCSV, "":
		return writeTraceCSV(w, trace)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(trace); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func paramNames(family aggregate.Family) []string {
	if family == aggregate.FamilyUniform {
		return []string{"min", "max"}
	}
	return []string{"mu", "sigma"}
}

// writeTraceCSV writes one row per grid point: time, the family's
// parameters, then the mean and standard deviation.
func writeTraceCSV(w io.Writer, trace aggregate.Trace) error {
	cw := csv.NewWriter(w)
	names := paramNames(trace.Family)

	header := append([]string{"time"}, names...)
	header = append(header, "mean", "stddev")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, p := range trace.Points {
		d := p.Dist()
		row := []string{formatFloat(p.Time)}
		for _, name := range names {
			row = append(row, formatFloat(p.Params[name]))
		}
		row = append(row, formatFloat(d.Mean()), formatFloat(d.StdDev()))
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
