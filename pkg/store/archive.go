package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/edp1096/mcspice/pkg/waveform"
)

// ArchiveName is the series archive inside an output directory.
const ArchiveName = "series.json.zst"

// ArchivedRun is one solver result. Failed runs keep their error text and
// no series.
type ArchivedRun struct {
	Name   string           `json:"name"`
	Series *waveform.Series `json:"series,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type Archive struct {
	BatchID string        `json:"batch_id"`
	Runs    []ArchivedRun `json:"runs"`
}

// Succeeded returns the runs that carry a series.
func (a *Archive) Succeeded() []ArchivedRun {
	out := make([]ArchivedRun, 0, len(a.Runs))
	for _, r := range a.Runs {
		if r.Series != nil && r.Error == "" {
			out = append(out, r)
		}
	}
	return out
}

// WriteArchive stores a as zstd-compressed JSON.
func WriteArchive(path string, a *Archive) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return ioErr("create", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = ioErr("close", path, cerr)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return ioErr("compress", path, err)
	}
	if err := json.NewEncoder(enc).Encode(a); err != nil {
		enc.Close()
		return ioErr("encode", path, err)
	}
	return ioErr("compress", path, enc.Close())
}

// ReadArchive loads an archive written by WriteArchive.
func ReadArchive(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, ioErr("decompress", path, err)
	}
	defer dec.Close()

	var a Archive
	if err := json.NewDecoder(dec).Decode(&a); err != nil {
		return nil, ioErr("decode", path, err)
	}
	for i, r := range a.Runs {
		if r.Series == nil {
			continue
		}
		if err := r.Series.Validate(); err != nil {
			return nil, fmt.Errorf("archive %s run %s: %w", path, a.Runs[i].Name, err)
		}
	}
	return &a, nil
}
