package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/mcspice/internal/config"
	"github.com/edp1096/mcspice/pkg/aggregate"
	"github.com/edp1096/mcspice/pkg/netlist"
	"github.com/edp1096/mcspice/pkg/simulate"
	"github.com/edp1096/mcspice/pkg/store"
	"github.com/edp1096/mcspice/pkg/waveform"
)

const rcStep = `rc step
.TEMP 27
.TRAN 1U 60U
V1 in 0 PULSE(0 5 10U 0 0 1 2)
R1 in out 1K ; *DIST: uniform 0.05
C1 out 0 10N
.END
`

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// rampSolver returns V(out) = R1 * t. Run mc_1 fails and run mc_2 only
// reports another channel.
func rampSolver() simulate.Solver {
	return simulate.SolverFunc(func(ctx context.Context, name, text string) (*waveform.Series, error) {
		switch name {
		case "mc_1":
			return nil, errors.New("timestep too small")
		case "mc_2":
			return &waveform.Series{
				Time:    []float64{0, 1, 2},
				Outputs: map[string][]float64{"V(other)": {0, 0, 0}},
			}, nil
		}
		r1, ok := netlist.Parse(text).Lookup("R1")
		if !ok {
			return nil, errors.New("no R1")
		}
		return &waveform.Series{
			Time:    []float64{0, 1, 2},
			Outputs: map[string][]float64{"V(out)": {0, r1.Value, 2 * r1.Value}},
		}, nil
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Plots = false
	cfg.Perturb.Count = 4
	cfg.Perturb.Seed = 7
	cfg.Analyze.Timesteps = 5
	cfg.Analyze.Bins = 4
	cfg.Simulate.Channel = "V(out)"
	return cfg
}

func testApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(cfg, io.Discard, logger, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
	a.newID = func() string { return "batch-1" }
	return a
}

func writeNetlist(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rc.cir")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestParseAppliesConfiguredPlan(t *testing.T) {
	cfg := testConfig(t)
	cfg.Perturb.DefaultScale = 0.1
	scale := 0.2
	cfg.Perturb.Components = map[string]config.ComponentConfig{
		"c1": {Distribution: "Normal", Scale: &scale},
		"r1": {Distribution: "normal"},
	}

	report, err := testApp(t, cfg).Parse(context.Background(), writeNetlist(t, rcStep))
	require.NoError(t, err)

	r1, ok := report.Doc.Lookup("R1")
	require.True(t, ok)
	c1, ok := report.Doc.Lookup("C1")
	require.True(t, ok)

	assert.Equal(t, netlist.Normal, report.Plan[r1.Line].Distribution)
	assert.Equal(t, 0.05, report.Plan[r1.Line].Scale, "a distribution-only entry keeps the annotated scale")
	assert.Equal(t, netlist.Normal, report.Plan[c1.Line].Distribution)
	assert.Equal(t, 0.2, report.Plan[c1.Line].Scale)

	var buf bytes.Buffer
	_, err = report.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "1.000 kOhm")
	assert.Contains(t, out, "10.000 nF")
	assert.Contains(t, out, "capacitor")
}

func TestParseRejectsBadPlan(t *testing.T) {
	cfg := testConfig(t)
	cfg.Perturb.DefaultDistribution = "cauchy"
	cfg.Perturb.DefaultScale = 0.1

	_, err := testApp(t, cfg).Parse(context.Background(), "testdata-missing.cir")
	require.ErrorIs(t, err, store.ErrIO)

	// C1 has no annotation so it takes the unknown default.
	_, err = testApp(t, cfg).Parse(context.Background(), writeNetlist(t, rcStep))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cauchy")
}

func TestGenerateWritesVariantsAndManifest(t *testing.T) {
	cfg := testConfig(t)
	stale := filepath.Join(cfg.Output.Dir, "mc_99.cir")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	res, err := testApp(t, cfg).Generate(context.Background(), writeNetlist(t, rcStep))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Removed)
	assert.NoFileExists(t, stale)
	require.Len(t, res.Paths, 4)
	assert.Empty(t, res.Failed)

	m, err := store.ReadManifest(cfg.Output.Dir)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", m.BatchID)
	assert.Equal(t, fixedNow, m.CreatedAt)
	assert.Equal(t, uint64(7), m.Seed)
	require.Len(t, m.Variants, 4)
	for i, v := range m.Variants {
		assert.Equal(t, i, v.Index)
		assert.Equal(t, store.VariantName("mc", i), v.File)
		r1 := v.Values["R1"]
		assert.GreaterOrEqual(t, r1, 950.0)
		assert.LessOrEqual(t, r1, 1050.0)
		assert.NotContains(t, v.Values, "C1", "zero scale keeps the value")
	}

	text, err := os.ReadFile(res.Paths[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "rc step\n.TEMP 27\n"))
}

func TestSimulateRecordsFailuresWithoutStopping(t *testing.T) {
	cfg := testConfig(t)
	a := testApp(t, cfg, WithSolver(rampSolver()))
	ctx := context.Background()

	_, err := a.Generate(ctx, writeNetlist(t, rcStep))
	require.NoError(t, err)

	res, err := a.Simulate(ctx, cfg.Output.Dir)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", res.BatchID)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.ErrorIs(t, res.Results[1].Err, simulate.ErrSolverFailure)

	archive, err := store.ReadArchive(res.Archive)
	require.NoError(t, err)
	require.Len(t, archive.Runs, 4)
	assert.Contains(t, archive.Runs[1].Error, "timestep too small")
	assert.Len(t, archive.Succeeded(), 3)

	ledger, err := store.OpenLedger(ctx, filepath.Join(cfg.Output.Dir, store.LedgerName))
	require.NoError(t, err)
	defer ledger.Close()

	batch, err := ledger.Batch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Trials)
	assert.Equal(t, "builtin", batch.Solver)

	ok, failed, err := ledger.Counts(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)
}

func TestSimulateWithoutManifestOrVariants(t *testing.T) {
	cfg := testConfig(t)
	a := testApp(t, cfg, WithSolver(rampSolver()))

	_, err := a.Simulate(context.Background(), cfg.Output.Dir)
	require.ErrorIs(t, err, ErrNoVariants)

	// Variants written by hand still simulate under a fresh batch id.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Output.Dir, "mc_0.cir"), []byte(rcStep), 0o644))
	res, err := a.Simulate(context.Background(), cfg.Output.Dir)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", res.BatchID)
	assert.Equal(t, 1, res.Succeeded)
}

func TestAnalyzeExcludesRunsWithoutChannel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.TraceFormat = "yaml"
	a := testApp(t, cfg, WithSolver(rampSolver()))
	ctx := context.Background()

	_, err := a.Generate(ctx, writeNetlist(t, rcStep))
	require.NoError(t, err)
	_, err = a.Simulate(ctx, cfg.Output.Dir)
	require.NoError(t, err)

	res, err := a.Analyze(ctx, cfg.Output.Dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"mc_0", "mc_3"}, res.Aligned.Runs)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "mc_2", res.Excluded[0].Run)
	require.ErrorIs(t, res.Excluded[0], aggregate.ErrChannelMismatch)

	assert.Len(t, res.Trace.Points, 5)
	assert.Equal(t, []string{filepath.Join(cfg.Output.Dir, "trace.yaml")}, res.Files)
	assert.FileExists(t, res.Files[0])

	// At t=0 every ramp starts at zero.
	assert.Equal(t, 0.0, res.Trace.Points[0].Params["mu"])
}

func TestAnalyzeWithoutArchive(t *testing.T) {
	cfg := testConfig(t)
	_, err := testApp(t, cfg).Analyze(context.Background(), cfg.Output.Dir)
	require.ErrorIs(t, err, store.ErrIO)
}

func TestRunBuiltinPipeline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Perturb.Count = 6
	cfg.Analyze.Timesteps = 26
	cfg.Analyze.Bins = 8
	cfg.Output.Plots = true
	cfg.Output.HTML = true

	res, err := testApp(t, cfg).Run(context.Background(), writeNetlist(t, rcStep))
	require.NoError(t, err)

	assert.Equal(t, 6, res.Simulate.Succeeded)
	assert.Zero(t, res.Simulate.Failed)
	assert.Empty(t, res.Analyze.Excluded)

	for _, name := range []string{"trace.csv", DensityPNG, BandPNG, RunsPNG, BandHTML, store.ArchiveName, store.LedgerName, store.ManifestName} {
		assert.FileExists(t, filepath.Join(cfg.Output.Dir, name))
	}

	// The capacitor sits at 0 V until the step at 10us, then charges toward
	// 5 V with a time constant near 10us.
	env := res.Analyze.Envelope
	last := len(env.Median) - 1
	assert.InDelta(t, 5.0, env.Median[last], 0.15)
	assert.InDelta(t, 0.0, env.Median[0], 1e-6)
	for i := range env.Time {
		assert.LessOrEqual(t, env.Lower[i], env.Upper[i])
	}
}

func TestRunStopsWithoutVariants(t *testing.T) {
	cfg := testConfig(t)
	cfg.Perturb.Count = 0

	_, err := testApp(t, cfg, WithSolver(rampSolver())).Run(context.Background(), writeNetlist(t, rcStep))
	require.ErrorIs(t, err, ErrNoVariants)
}
