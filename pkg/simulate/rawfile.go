package simulate

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrRawFormat = errors.New("malformed rawfile")

// RawVariable is one column declared in a rawfile header.
type RawVariable struct {
	Name string
	Type string
}

// RawPlot is one analysis section of a SPICE rawfile. Data holds one slice
// per variable; complex values keep their real part.
type RawPlot struct {
	Title     string
	Name      string
	Flags     string
	Variables []RawVariable
	Points    int
	Data      [][]float64
}

func (p *RawPlot) Complex() bool { return strings.Contains(strings.ToLower(p.Flags), "complex") }

// Columns maps variable names to their data.
func (p *RawPlot) Columns() map[string][]float64 {
	cols := make(map[string][]float64, len(p.Variables))
	for i, v := range p.Variables {
		cols[v.Name] = p.Data[i]
	}
	return cols
}

// ReadRaw parses every plot of an ASCII or binary rawfile.
func ReadRaw(r io.Reader) ([]RawPlot, error) {
	br := bufio.NewReader(r)

	var plots []RawPlot
	for {
		plot, err := readPlot(br)
		if errors.Is(err, io.EOF) {
			if len(plots) == 0 {
				return nil, fmt.Errorf("%w: no plots", ErrRawFormat)
			}
			return plots, nil
		}
		if err != nil {
			return nil, err
		}
		plots = append(plots, *plot)
	}
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readPlot(br *bufio.Reader) (*RawPlot, error) {
	plot := &RawPlot{}
	numVars := -1
	sawHeader := false

	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) && sawHeader {
				return nil, fmt.Errorf("%w: unexpected end of header", ErrRawFormat)
			}
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		sawHeader = true

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: unexpected line %q", ErrRawFormat, line)
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "title":
			plot.Title = value
		case "plotname":
			plot.Name = value
		case "flags":
			plot.Flags = value
		case "no. variables":
			if numVars, err = strconv.Atoi(value); err != nil || numVars <= 0 {
				return nil, fmt.Errorf("%w: variable count %q", ErrRawFormat, value)
			}
		case "no. points":
			if plot.Points, err = strconv.Atoi(value); err != nil || plot.Points < 0 {
				return nil, fmt.Errorf("%w: point count %q", ErrRawFormat, value)
			}
		case "variables":
			if numVars < 0 {
				return nil, fmt.Errorf("%w: variables before count", ErrRawFormat)
			}
			if err := readVariables(br, plot, numVars); err != nil {
				return nil, err
			}
		case "values":
			return plot, readASCIIValues(br, plot)
		case "binary":
			return plot, readBinaryValues(br, plot)
		}
	}
}

func readVariables(br *bufio.Reader, plot *RawPlot, n int) error {
	for i := range n {
		line, err := readLine(br)
		if err != nil {
			return fmt.Errorf("%w: variable %d: %v", ErrRawFormat, i, err)
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return fmt.Errorf("%w: variable line %q", ErrRawFormat, line)
		}
		plot.Variables = append(plot.Variables, RawVariable{Name: fields[1], Type: fields[2]})
	}
	return nil
}

func (p *RawPlot) allocate() {
	p.Data = make([][]float64, len(p.Variables))
	for i := range p.Data {
		p.Data[i] = make([]float64, p.Points)
	}
}

func readASCIIValues(br *bufio.Reader, plot *RawPlot) error {
	if plot.Variables == nil {
		return fmt.Errorf("%w: values before variables", ErrRawFormat)
	}
	plot.allocate()

	var pending []string
	next := func() (string, error) {
		for len(pending) == 0 {
			line, err := readLine(br)
			if err != nil {
				return "", fmt.Errorf("%w: values truncated: %v", ErrRawFormat, err)
			}
			pending = strings.Fields(line)
		}
		tok := pending[0]
		pending = pending[1:]
		return tok, nil
	}

	for p := range plot.Points {
		if _, err := next(); err != nil { // point index
			return err
		}
		for v := range plot.Variables {
			tok, err := next()
			if err != nil {
				return err
			}
			re, _, _ := strings.Cut(tok, ",")
			x, err := strconv.ParseFloat(re, 64)
			if err != nil {
				return fmt.Errorf("%w: value %q", ErrRawFormat, tok)
			}
			plot.Data[v][p] = x
		}
	}
	return nil
}

func readBinaryValues(br *bufio.Reader, plot *RawPlot) error {
	if plot.Variables == nil {
		return fmt.Errorf("%w: values before variables", ErrRawFormat)
	}
	plot.allocate()

	width := 1
	if plot.Complex() {
		width = 2
	}
	row := make([]float64, len(plot.Variables)*width)

	for p := range plot.Points {
		if err := binary.Read(br, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("%w: point %d: %v", ErrRawFormat, p, err)
		}
		for v := range plot.Variables {
			plot.Data[v][p] = row[v*width]
		}
	}
	return nil
}
