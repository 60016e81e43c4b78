package netlist

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/edp1096/mcspice/pkg/unit"
)

// NominalTemp is the default circuit temperature in Celsius.
const NominalTemp = 27.0

var ErrUnsupportedElement = errors.New("unsupported element")

// Deck is the elaborated circuit of a netlist, as consumed by the reference solver.
type Deck struct {
	Title     string
	Elements  []Element
	Nodes     map[string]int // node name -> order of first appearance
	HasTran   bool
	TranParam struct {
		TStep  float64 // timestep
		TStop  float64 // stop time
		TStart float64 // start time
		TMax   float64 // max timestep
		UIC    bool    // Use Initial Conditions
	}
	Temp float64 // Celsius
}

type Element struct {
	Type   string            // R, L, C, V, I
	Name   string            // Part name
	Nodes  []string          // Node names
	Value  float64           // Part value
	Params map[string]string // key=value parameters, lower-case keys
	Source *Source           // V and I only
}

type SourceKind string

const (
	SourceDC    SourceKind = "dc"
	SourceSin   SourceKind = "sin"
	SourcePulse SourceKind = "pulse"
	SourcePWL   SourceKind = "pwl"
)

// Source is an independent source waveform. Args hold the waveform's
// positional parameters in SPICE order.
type Source struct {
	Kind SourceKind
	DC   float64
	Args []float64
}

// Elaborate reads a complete deck: title line, '*' and ';' comments, '+'
// continuations, dot commands and R/L/C/V/I elements. Subcircuit definitions
// are skipped.
func Elaborate(input string) (*Deck, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	deck := &Deck{
		Nodes: make(map[string]int),
		Temp:  NominalTemp,
	}

	// Title
	if scanner.Scan() {
		deck.Title = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "*"))
	}

	var pending []string
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		fields := pending
		pending = nil
		return parseDeckLine(deck, fields)
	}

	subckt := 0
	for scanner.Scan() {
		toks, err := tokenize(scanner.Text())
		if err != nil {
			return nil, err
		}
		fields := toks.texts()

		if len(fields) == 0 || strings.HasPrefix(fields[0], "*") {
			continue
		}

		if rest, ok := strings.CutPrefix(fields[0], "+"); ok {
			if len(pending) > 0 {
				if rest != "" {
					pending = append(pending, rest)
				}
				pending = append(pending, fields[1:]...)
			}
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}

		first := strings.ToLower(fields[0])
		switch {
		case first == ".subckt":
			subckt++
			continue
		case first == ".ends":
			if subckt > 0 {
				subckt--
			}
			continue
		case subckt > 0:
			continue
		case first == ".end":
			return deck, nil
		}
		pending = fields
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading deck: %w", err)
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return deck, nil
}

func parseDeckLine(deck *Deck, fields []string) error {
	if strings.HasPrefix(fields[0], ".") {
		return parseDotOperator(deck, fields)
	}

	element, err := parseElement(fields)
	if err != nil {
		return err
	}

	deck.Elements = append(deck.Elements, *element)
	for _, node := range element.Nodes {
		if _, exists := deck.Nodes[node]; !exists {
			deck.Nodes[node] = len(deck.Nodes)
		}
	}
	return nil
}

// Parse .tran, .temp; other dot commands do not affect a transient run.
func parseDotOperator(deck *Deck, fields []string) error {
	var err error

	switch strings.ToLower(fields[0]) {
	case ".tran":
		deck.HasTran = true
		tran := &deck.TranParam
		if len(fields) < 3 {
			return fmt.Errorf("insufficient tran parameters, need at least tstep and tstop")
		}
		if tran.TStep, err = unit.Decode(fields[1]); err != nil {
			return fmt.Errorf("invalid tstep: %w", err)
		}
		if tran.TStop, err = unit.Decode(fields[2]); err != nil {
			return fmt.Errorf("invalid tstop: %w", err)
		}

		positional := 0
		for _, field := range fields[3:] {
			if strings.EqualFold(field, "uic") {
				tran.UIC = true
				continue
			}
			v, err := unit.Decode(field)
			if err != nil {
				return fmt.Errorf("invalid tran parameter %q: %w", field, err)
			}
			switch positional {
			case 0:
				tran.TStart = v
			case 1:
				tran.TMax = v
			}
			positional++
		}
		if tran.TStep <= 0 || tran.TStop <= 0 {
			return fmt.Errorf("tstep and tstop must be positive")
		}
		if tran.TMax == 0 || tran.TMax > tran.TStep {
			tran.TMax = tran.TStep
		}

	case ".temp":
		if len(fields) < 2 {
			return fmt.Errorf("missing .temp value")
		}
		if deck.Temp, err = unit.Decode(fields[1]); err != nil {
			return fmt.Errorf("invalid temperature: %w", err)
		}
	}

	return nil
}

// Parse circuit element
func parseElement(fields []string) (*Element, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid element format: %s", strings.Join(fields, " "))
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(fields[0][:1]),
		Nodes:  fields[1:3],
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "R", "L", "C":
		hasValue := false
		for _, field := range fields[3:] {
			if key, value, ok := strings.Cut(field, "="); ok {
				elem.Params[strings.ToLower(key)] = value
				continue
			}
			if hasValue {
				return nil, fmt.Errorf("%s: unexpected token %q", elem.Name, field)
			}
			value, err := unit.Decode(field)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", elem.Name, err)
			}
			elem.Value = value
			hasValue = true
		}
		if !hasValue {
			return nil, fmt.Errorf("%s: missing value", elem.Name)
		}
		return elem, nil

	case "V", "I":
		src, err := parseSource(fields[3:])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", elem.Name, err)
		}
		elem.Source = src
		elem.Value = src.DC
		return elem, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedElement, elem.Name)
	}
}

var sourceArity = map[SourceKind][2]int{
	SourceSin:   {3, 6}, // offset amplitude freq [delay damping phase]
	SourcePulse: {7, 7}, // v1 v2 delay rise fall width period
	SourcePWL:   {4, -1},
}

// parseSource reads "[DC] v [AC mag [phase]] [PULSE|SIN|PWL (args)]".
// The transient waveform wins over the DC value.
func parseSource(fields []string) (*Source, error) {
	remaining := strings.Join(fields, " ")
	remaining = strings.ReplaceAll(remaining, "(", " ( ") // Append whitespace around parentheses
	remaining = strings.ReplaceAll(remaining, ")", " ) ")
	words := strings.Fields(remaining)
	if len(words) == 0 {
		return nil, fmt.Errorf("missing source value")
	}

	src := &Source{Kind: SourceDC}
	for i := 0; i < len(words); i++ {
		word := strings.ToLower(words[i])
		switch word {
		case "dc":
			if i+1 >= len(words) {
				return nil, fmt.Errorf("missing DC value")
			}
			v, err := unit.Decode(words[i+1])
			if err != nil {
				return nil, fmt.Errorf("invalid DC value: %w", err)
			}
			src.DC = v
			i++

		case "ac":
			// Magnitude and optional phase only matter for small-signal analysis
			for n := 0; n < 2 && i+1 < len(words); n++ {
				if _, err := unit.Decode(words[i+1]); err != nil {
					break
				}
				i++
			}

		case "sin", "pulse", "pwl":
			args, next, err := sourceArgs(words, i+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", word, err)
			}
			kind := SourceKind(word)
			arity := sourceArity[kind]
			if len(args) < arity[0] || (arity[1] > 0 && len(args) > arity[1]) {
				return nil, fmt.Errorf("%s: unexpected parameter count %d", word, len(args))
			}
			if kind == SourcePWL {
				if err := checkPWL(args); err != nil {
					return nil, err
				}
			}
			src.Kind, src.Args = kind, args
			i = next - 1

		default:
			v, err := unit.Decode(words[i])
			if err != nil || i != 0 {
				return nil, fmt.Errorf("unsupported source parameter %q", words[i])
			}
			src.DC = v
		}
	}

	return src, nil
}

// sourceArgs collects numeric arguments starting at words[i], either wrapped in
// parentheses or bare up to the next keyword.
func sourceArgs(words []string, i int) ([]float64, int, error) {
	paren := i < len(words) && words[i] == "("
	if paren {
		i++
	}

	var args []float64
	for ; i < len(words); i++ {
		if words[i] == ")" {
			if !paren {
				return nil, i, fmt.Errorf("unbalanced parenthesis")
			}
			return args, i + 1, nil
		}
		v, err := unit.Decode(words[i])
		if err != nil {
			if paren {
				return nil, i, err
			}
			return args, i, nil
		}
		args = append(args, v)
	}
	if paren {
		return nil, i, fmt.Errorf("missing closing parenthesis")
	}
	return args, i, nil
}

func checkPWL(args []float64) error {
	if len(args)%2 != 0 {
		return fmt.Errorf("pwl: need pairs of time-value")
	}
	for i := 2; i < len(args); i += 2 {
		if args[i] <= args[i-2] {
			return fmt.Errorf("pwl: time points must be strictly increasing")
		}
	}
	return nil
}
