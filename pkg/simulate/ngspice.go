package simulate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/edp1096/mcspice/internal/ctxlog"
	"github.com/edp1096/mcspice/pkg/waveform"
)

// Ngspice runs the external ngspice binary in batch mode and reads the
// transient plot of its rawfile.
type Ngspice struct {
	Binary  string // defaults to "ngspice" on PATH
	WorkDir string // parent of per-run scratch directories, defaults to os.TempDir
	ASCII   bool   // ask for an ASCII rawfile instead of binary
}

var _ Solver = (*Ngspice)(nil)

func (n *Ngspice) Simulate(ctx context.Context, name, netlist string) (*waveform.Series, error) {
	bin := n.Binary
	if bin == "" {
		bin = "ngspice"
	}

	dir, err := os.MkdirTemp(n.WorkDir, "mcspice-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cirPath := filepath.Join(dir, "deck.cir")
	rawPath := filepath.Join(dir, "deck.raw")
	if err := os.WriteFile(cirPath, []byte(netlist), 0o644); err != nil {
		return nil, fmt.Errorf("writing deck: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, "-b", "-r", rawPath, cirPath)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	if n.ASCII {
		cmd.Env = append(cmd.Env, "SPICE_ASCIIRAWFILE=1")
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	ctxlog.FromContext(ctx).Debug("starting ngspice", "run", name, "binary", bin)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ngspice: %w: %s", err, lastLines(output.String(), 5))
	}

	f, err := os.Open(rawPath)
	if err != nil {
		return nil, fmt.Errorf("ngspice wrote no rawfile: %w", err)
	}
	defer f.Close()

	plots, err := ReadRaw(f)
	if err != nil {
		return nil, err
	}
	return transientSeries(plots)
}

// transientSeries picks the last plot whose first variable is time.
func transientSeries(plots []RawPlot) (*waveform.Series, error) {
	for i := len(plots) - 1; i >= 0; i-- {
		p := plots[i]
		if len(p.Variables) > 0 && strings.EqualFold(p.Variables[0].Name, "time") {
			return waveform.FromColumns(p.Columns(), p.Variables[0].Name)
		}
	}
	return nil, fmt.Errorf("%w: no transient plot", ErrRawFormat)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
