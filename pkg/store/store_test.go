package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/mcspice/pkg/netlist"
	"github.com/edp1096/mcspice/pkg/perturb"
	"github.com/edp1096/mcspice/pkg/waveform"
)

func TestPrepareDirRemovesOnlyVariants(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"var_0.cir", "var_12.cir", "var_x.cir", "other_1.cir", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	removed, err := PrepareDir(dir, "var")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, []string{"var_x.cir", "other_1.cir", "notes.txt"}, left)

	nested := filepath.Join(dir, "a", "b")
	removed, err = PrepareDir(nested, "var")
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.DirExists(t, nested)
}

func TestPrepareDirOverFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := PrepareDir(file, "var")
	require.ErrorIs(t, err, ErrIO)

	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, file, ioe.Path)
}

func TestWriteAndReadVariants(t *testing.T) {
	dir := t.TempDir()
	variants := []perturb.Variant{
		{Index: 10, Text: "ten\n"},
		{Index: 2, Text: "two\n"},
		{Index: 0, Text: "zero\n"},
	}

	paths, err := WriteVariants(dir, "mc", variants)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mc_10.cir"), paths[0])

	got, err := ReadNetlists(dir, "mc")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 2, 10}, []int{got[0].Index, got[1].Index, got[2].Index})
	assert.Equal(t, "mc_2", got[1].Name)
	assert.Equal(t, "two\n", got[1].Text)

	_, err = ReadNetlists(filepath.Join(dir, "missing"), "mc")
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ArchiveName)
	want := &Archive{
		BatchID: "b1",
		Runs: []ArchivedRun{
			{Name: "mc_0", Series: &waveform.Series{
				Time:    []float64{0, 1e-6, 2e-6},
				Outputs: map[string][]float64{"V(out)": {0, 0.5, 0.75}},
			}},
			{Name: "mc_1", Error: "solver failure: singular matrix"},
		},
	}

	require.NoError(t, WriteArchive(path, want))
	got, err := ReadArchive(path)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}
	ok := got.Succeeded()
	require.Len(t, ok, 1)
	assert.Equal(t, "mc_0", ok[0].Name)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4], "zstd frame magic")
}

func TestReadArchiveRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), ArchiveName)
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := ReadArchive(path)
	require.ErrorIs(t, err, ErrIO)
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := &Manifest{
		BatchID:   "4b3f",
		CreatedAt: time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
		Source:    "rc.cir",
		Prefix:    "mc",
		Seed:      42,
		Trials:    2,
		Failed:    1,
		Variants: []ManifestVariant{
			{Index: 0, File: "mc_0.cir", Values: map[string]float64{"R1": 1012.5, "C1": 1.1e-6}},
		},
	}

	require.NoError(t, WriteManifest(dir, want))
	got, err := ReadManifest(dir)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadManifest(t.TempDir())
	require.ErrorIs(t, err, ErrIO)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), LedgerName)

	l, err := OpenLedger(ctx, path)
	require.NoError(t, err)
	defer l.Close()

	batch := Batch{ID: "b1", CreatedAt: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), Source: "rc.cir", Solver: "builtin", Seed: 1 << 63, Trials: 3}
	require.NoError(t, l.RecordBatch(ctx, batch))
	require.NoError(t, l.RecordRuns(ctx, "b1", []RunRecord{
		{Name: "mc_1", OK: false, Error: "timeout", Elapsed: 2 * time.Second},
		{Name: "mc_0", OK: true, Points: 501, Elapsed: 15 * time.Millisecond},
	}))
	// A rerun overwrites the earlier outcome.
	require.NoError(t, l.RecordRuns(ctx, "b1", []RunRecord{{Name: "mc_1", OK: true, Points: 501}}))

	got, err := l.Batch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, batch, *got)

	runs, err := l.Runs(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunRecord{Name: "mc_0", OK: true, Points: 501, Elapsed: 15 * time.Millisecond}, runs[0])
	assert.True(t, runs[1].OK)
	assert.Empty(t, runs[1].Error)

	ok, failed, err := l.Counts(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, ok)
	assert.Zero(t, failed)

	_, err = l.Batch(ctx, "nope")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.ErrorIs(t, err, ErrIO)

	// Runs must reference a known batch.
	err = l.RecordRuns(ctx, "ghost", []RunRecord{{Name: "x"}})
	require.ErrorIs(t, err, ErrIO)
}

func TestLedgerReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), LedgerName)

	l, err := OpenLedger(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.RecordBatch(ctx, Batch{ID: "b", CreatedAt: time.Now()}))
	require.NoError(t, l.Close())

	l, err = OpenLedger(ctx, path)
	require.NoError(t, err)
	defer l.Close()
	_, err = l.Batch(ctx, "b")
	require.NoError(t, err)
}

// Variants rendered from a real document land on disk byte for byte.
func TestWriteRenderedVariants(t *testing.T) {
	doc := netlist.Parse("t\n.TEMP 27\nR1 a 0 1K ; *DIST: normal 0.1\n")
	trials, err := perturb.New(perturb.Config{Seed: 5}).Generate(context.Background(), doc, 2, nil)
	require.NoError(t, err)
	variants, err := perturb.New(perturb.Config{}).Render(doc, trials)
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = WriteVariants(dir, "mc", variants)
	require.NoError(t, err)

	got, err := ReadNetlists(dir, "mc")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range got {
		assert.Equal(t, variants[i].Text, got[i].Text)
	}
}

func TestWriteFileAndReadSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rc.cir")
	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "rc\n.END\n")
		return err
	}))

	text, err := ReadSource(path)
	require.NoError(t, err)
	assert.Equal(t, "rc\n.END\n", text)

	boom := errors.New("boom")
	err = WriteFile(path, func(io.Writer) error { return boom })
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, ErrIO)

	_, err = ReadSource(filepath.Join(t.TempDir(), "absent.cir"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
