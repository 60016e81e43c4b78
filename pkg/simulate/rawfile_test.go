package simulate

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const asciiRaw = `Title: rc
Date: Mon Oct 19 10:00:00  2026
Plotname: Operating Point
Flags: real
No. Variables: 2
No. Points: 1
Variables:
	0	v(in)	voltage
	1	v(out)	voltage
Values:
 0	1.000000000000000e+00
	5.000000000000000e-01

Title: rc
Date: Mon Oct 19 10:00:00  2026
Plotname: Transient Analysis
Flags: real
No. Variables: 3
No. Points: 3
Variables:
	0	time	time
	1	v(in)	voltage
	2	v(out)	voltage
Values:
 0	0.000000000000000e+00
	1.000000000000000e+00
	0.000000000000000e+00

 1	1.000000000000000e-06
	1.000000000000000e+00
	6.321205588285577e-01

 2	2.000000000000000e-06
	1.000000000000000e+00
	8.646647167633873e-01
`

func TestReadRawASCII(t *testing.T) {
	plots, err := ReadRaw(strings.NewReader(asciiRaw))
	require.NoError(t, err)
	require.Len(t, plots, 2)

	op := plots[0]
	assert.Equal(t, "Operating Point", op.Name)
	assert.Equal(t, []float64{0.5}, op.Data[1])

	tran := plots[1]
	assert.Equal(t, "rc", tran.Title)
	assert.False(t, tran.Complex())
	assert.Equal(t, 3, tran.Points)
	assert.Equal(t, []float64{0, 1e-6, 2e-6}, tran.Columns()["time"])

	series, err := transientSeries(plots)
	require.NoError(t, err)
	assert.Equal(t, []string{"v(in)", "v(out)"}, series.Channels())
	out, ok := series.Channel("V(OUT)")
	require.True(t, ok)
	assert.InDelta(t, 0.8646647, out[2], 1e-6)
}

func TestReadRawComplexTakesRealPart(t *testing.T) {
	raw := `Title: ac
Plotname: AC Analysis
Flags: complex
No. Variables: 2
No. Points: 2
Variables:
	0	frequency	frequency
	1	v(out)	voltage
Values:
 0	1.0e+03,0.0e+00
	5.0e-01,-2.5e-01
 1	2.0e+03,0.0e+00
	2.5e-01,-1.0e-01
`
	plots, err := ReadRaw(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, plots, 1)
	assert.True(t, plots[0].Complex())
	assert.Equal(t, []float64{0.5, 0.25}, plots[0].Data[1])

	_, err = transientSeries(plots)
	require.ErrorIs(t, err, ErrRawFormat)
}

func binaryRaw(t *testing.T, flags string, rows [][]float64) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("Title: bin\nPlotname: Transient Analysis\nFlags: " + flags + "\n")
	buf.WriteString("No. Variables: 2\nNo. Points: 2\nVariables:\n\t0\ttime\ttime\n\t1\tv(a)\tvoltage\nBinary:\n")
	for _, row := range rows {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, row))
	}
	return buf.Bytes()
}

func TestReadRawBinary(t *testing.T) {
	data := binaryRaw(t, "real", [][]float64{{0, 1.5}, {1e-3, 2.5}})

	plots, err := ReadRaw(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, plots, 1)
	assert.Equal(t, []float64{0, 1e-3}, plots[0].Data[0])
	assert.Equal(t, []float64{1.5, 2.5}, plots[0].Data[1])

	data = binaryRaw(t, "complex", [][]float64{{0, 0, 1.5, 9}, {1e-3, 0, 2.5, 9}})
	plots, err = ReadRaw(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, plots[0].Data[1])
}

func TestReadRawMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"no colon":         "Title: x\ngarbage\n",
		"bad count":        "No. Variables: zero\n",
		"vars before size": "Variables:\n\t0\ttime\ttime\n",
		"truncated values": "No. Variables: 1\nNo. Points: 2\nVariables:\n\t0\ttime\ttime\nValues:\n 0\t0.0\n",
		"bad value":        "No. Variables: 1\nNo. Points: 1\nVariables:\n\t0\ttime\ttime\nValues:\n 0\tnope\n",
		"short binary":     "No. Variables: 1\nNo. Points: 1\nVariables:\n\t0\ttime\ttime\nBinary:\n\x00\x00",
		"header only":      "Title: x\nPlotname: y\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadRaw(strings.NewReader(raw))
			require.ErrorIs(t, err, ErrRawFormat)
		})
	}
}

// fakeNgspice writes a shell script that mimics "ngspice -b -r raw deck".
func fakeNgspice(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ngspice")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestNgspiceReadsRawfile(t *testing.T) {
	rawSrc := filepath.Join(t.TempDir(), "fixture.raw")
	require.NoError(t, os.WriteFile(rawSrc, []byte(asciiRaw), 0o644))

	bin := fakeNgspice(t, `test "$1" = "-b" || exit 3
test "$2" = "-r" || exit 3
test -f "$4" || exit 4
test "$SPICE_ASCIIRAWFILE" = "1" || exit 5
cp "`+rawSrc+`" "$3"
`)

	ng := &Ngspice{Binary: bin, WorkDir: t.TempDir(), ASCII: true}
	series, err := ng.Simulate(context.Background(), "run_0", "rc\nR1 in out 1k\n.end\n")
	require.NoError(t, err)
	assert.Len(t, series.Time, 3)

	entries, err := os.ReadDir(ng.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must be removed")
}

func TestNgspiceFailureCarriesOutput(t *testing.T) {
	bin := fakeNgspice(t, "echo 'Error: unknown subckt x1' >&2\nexit 1\n")

	_, err := (&Ngspice{Binary: bin, WorkDir: t.TempDir()}).Simulate(context.Background(), "run_0", "x\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown subckt x1")
}

func TestNgspiceWithoutRawfile(t *testing.T) {
	bin := fakeNgspice(t, "exit 0\n")

	_, err := (&Ngspice{Binary: bin, WorkDir: t.TempDir()}).Simulate(context.Background(), "run_0", "x\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rawfile")
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c | d", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", lastLines("a", 5))
}
