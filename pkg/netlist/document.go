package netlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/edp1096/mcspice/pkg/unit"
)

// MarkerDirective is the directive after which component lines are recognized.
const MarkerDirective = ".TEMP"

const distTag = "*DIST:"

var (
	ErrUnknownLine     = errors.New("override names a line that is not a component")
	ErrNegativeValue   = errors.New("negative component value")
	ErrBadAnnotation   = errors.New("malformed distribution annotation")
	errNotAComponent   = errors.New("not a component line")
	errTokenizerFailed = errors.New("line could not be tokenized")
)

type Kind byte

const (
	KindResistor  Kind = 'R'
	KindInductor  Kind = 'L'
	KindCapacitor Kind = 'C'
)

func (k Kind) String() string {
	switch k {
	case KindResistor:
		return "resistor"
	case KindInductor:
		return "inductor"
	case KindCapacitor:
		return "capacitor"
	}
	return fmt.Sprintf("kind(%c)", byte(k))
}

// KindOf reports the component kind named by the first letter of name.
// Only upper case prefixes count.
func KindOf(name string) (Kind, bool) {
	if name == "" {
		return 0, false
	}
	switch k := Kind(name[0]); k {
	case KindResistor, KindInductor, KindCapacitor:
		return k, true
	}
	return 0, false
}

// Distribution names a perturbation family. Unknown names are kept as written
// and rejected when a perturbation plan is validated.
type Distribution string

const (
	Uniform Distribution = "uniform"
	Normal  Distribution = "normal"
)

func (d Distribution) Known() bool { return d == Uniform || d == Normal }

// Component is one perturbable R, L or C line.
type Component struct {
	Line             int
	Name             string
	Kind             Kind
	Nodes            [2]string
	Value            float64
	ValueText        string
	InitialCondition string
	Distribution     Distribution
	Scale            float64
	Annotated        bool // Distribution and Scale came from a *DIST: comment
	Comment          string

	hasIC bool
}

// HasInitialCondition reports whether the line carries an IC= token.
func (c *Component) HasInitialCondition() bool { return c.hasIC }

// Overrides maps a component line to its replacement value.
type Overrides map[int]float64

// SkipNote records a line that looked like a component but was not accepted,
// or an annotation that was ignored.
type SkipNote struct {
	Line int
	Err  error
}

func (n SkipNote) String() string { return fmt.Sprintf("line %d: %v", n.Line, n.Err) }

// Document is a parsed netlist. Raw lines are retained so that unmodified
// lines serialize byte for byte.
type Document struct {
	lines      []string
	components map[int]*Component
	markerLine int

	Skipped []SkipNote
}

type parseConfig struct {
	marker string
}

type ParseOption func(*parseConfig)

// WithMarker changes the directive that opens the component section.
// An empty marker makes every line eligible.
func WithMarker(marker string) ParseOption {
	return func(c *parseConfig) { c.marker = marker }
}

// Parse reads netlist text. It never fails as a whole: lines it cannot
// interpret stay opaque and are reproduced verbatim.
func Parse(text string, opts ...ParseOption) *Document {
	cfg := parseConfig{marker: MarkerDirective}
	for _, opt := range opts {
		opt(&cfg)
	}

	doc := &Document{
		lines:      strings.Split(text, "\n"),
		components: make(map[int]*Component),
	}

	active := cfg.marker == ""
	for i, raw := range doc.lines {
		lineNo := i + 1

		toks, err := tokenize(raw)
		if err != nil {
			continue
		}

		if !active {
			if len(toks.words) > 0 && strings.EqualFold(toks.words[0].text, cfg.marker) {
				active = true
				doc.markerLine = lineNo
			}
			continue
		}

		comp, err := parseComponent(lineNo, toks)
		if err != nil {
			if !errors.Is(err, errNotAComponent) {
				doc.Skipped = append(doc.Skipped, SkipNote{Line: lineNo, Err: err})
			}
			continue
		}

		if toks.comment != nil {
			if err := annotate(comp, toks.comment.text); err != nil {
				doc.Skipped = append(doc.Skipped, SkipNote{Line: lineNo, Err: err})
			}
		}
		doc.components[lineNo] = comp
	}

	return doc
}

func parseComponent(lineNo int, toks lineTokens) (*Component, error) {
	words := toks.words
	if len(words) < 4 {
		return nil, errNotAComponent
	}

	kind, ok := KindOf(words[0].text)
	if !ok {
		return nil, errNotAComponent
	}

	comp := &Component{
		Line:         lineNo,
		Name:         words[0].text,
		Kind:         kind,
		Nodes:        [2]string{words[1].text, words[2].text},
		Distribution: Uniform,
	}

	rest := words[3:]
	switch {
	case len(rest) == 1:
		comp.ValueText = rest[0].text
	case len(rest) == 2 && isICToken(rest[1].text):
		comp.ValueText = rest[0].text
		comp.InitialCondition = rest[1].text[len("IC="):]
		comp.hasIC = true
	default:
		// Unsupported trailing parameters make the whole tail the value, which
		// then fails to decode.
		tail := make([]string, len(rest))
		for i, w := range rest {
			tail[i] = w.text
		}
		comp.ValueText = strings.Join(tail, " ")
	}

	value, err := unit.Decode(comp.ValueText)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", comp.Name, err)
	}
	if value < 0 {
		return nil, fmt.Errorf("%s: %w: %s", comp.Name, ErrNegativeValue, comp.ValueText)
	}
	comp.Value = value

	return comp, nil
}

func isICToken(word string) bool {
	key, _, ok := strings.Cut(word, "=")
	return ok && strings.EqualFold(key, "IC")
}

// annotate applies a "; *DIST: <type> <scale>" comment.
func annotate(comp *Component, comment string) error {
	comp.Comment = comment

	body := strings.TrimSpace(strings.TrimPrefix(comment, ";"))
	idx := indexFold(body, distTag)
	if idx < 0 {
		return nil
	}

	fields := strings.Fields(body[idx+len(distTag):])
	if len(fields) < 2 {
		return fmt.Errorf("%s: %w: %q", comp.Name, ErrBadAnnotation, comment)
	}

	scale, err := unit.Decode(fields[1])
	if err != nil {
		return fmt.Errorf("%s: %w: %w", comp.Name, ErrBadAnnotation, err)
	}
	if scale < 0 {
		return fmt.Errorf("%s: %w: negative scale %s", comp.Name, ErrBadAnnotation, fields[1])
	}

	comp.Distribution = Distribution(strings.ToLower(fields[0]))
	comp.Scale = scale
	comp.Annotated = true
	return nil
}

// indexFold is strings.Index with ASCII case folding. Offsets refer to s
// itself, so folding never shifts them.
func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func (d *Document) Len() int { return len(d.lines) }

// MarkerLine is the 1-based line of the marker directive, 0 when never seen.
func (d *Document) MarkerLine() int { return d.markerLine }

func (d *Document) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Components returns copies of all components in ascending line order.
func (d *Document) Components() []*Component {
	lines := make([]int, 0, len(d.components))
	for line := range d.components {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	out := make([]*Component, len(lines))
	for i, line := range lines {
		c := *d.components[line]
		out[i] = &c
	}
	return out
}

func (d *Document) Component(line int) (*Component, bool) {
	comp, ok := d.components[line]
	if !ok {
		return nil, false
	}
	c := *comp
	return &c, true
}

// Lookup returns the first component with the given name.
func (d *Document) Lookup(name string) (*Component, bool) {
	for _, comp := range d.Components() {
		if comp.Name == name {
			return comp, true
		}
	}
	return nil, false
}

// Serialize renders the document with overrides applied.
func (d *Document) Serialize(overrides Overrides) (string, error) {
	var b strings.Builder
	if err := d.Render(&b, overrides); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text returns the document exactly as parsed.
func (d *Document) Text() string { return strings.Join(d.lines, "\n") }

func (d *Document) Render(w io.Writer, overrides Overrides) error {
	rewritten := make(map[int]string, len(overrides))
	for line, value := range overrides {
		if _, ok := d.components[line]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownLine, line)
		}
		text, err := d.rewrite(line, value)
		if err != nil {
			return err
		}
		rewritten[line] = text
	}

	bw := bufio.NewWriter(w)
	for i, raw := range d.lines {
		if i > 0 {
			bw.WriteByte('\n')
		}
		if text, ok := rewritten[i+1]; ok {
			raw = text
		}
		bw.WriteString(raw)
	}
	return bw.Flush()
}

func (d *Document) rewrite(line int, value float64) (string, error) {
	comp := d.components[line]

	encoded, err := unit.Encode(value)
	if err != nil {
		return "", fmt.Errorf("line %d (%s): %w", line, comp.Name, err)
	}

	raw := d.lines[line-1]
	toks, err := tokenize(raw)
	if err != nil {
		return "", fmt.Errorf("line %d: %w: %w", line, errTokenizerFailed, err)
	}

	words := toks.texts()
	idx := len(words) - 1
	if comp.hasIC {
		idx--
	}
	words[idx] = encoded

	return strings.Join(words, " ") + raw[toks.tail():], nil
}
