package store

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ManifestName is the batch manifest inside an output directory.
const ManifestName = "manifest.toml"

// Manifest describes how a batch of variants was generated.
type Manifest struct {
	BatchID   string            `toml:"batch_id"`
	CreatedAt time.Time         `toml:"created_at"`
	Source    string            `toml:"source"`
	Prefix    string            `toml:"prefix"`
	Seed      uint64            `toml:"seed"`
	Trials    int               `toml:"trials"`
	Failed    int               `toml:"failed"`
	Variants  []ManifestVariant `toml:"variants"`
}

// ManifestVariant lists the perturbed values of one written variant,
// keyed by component name.
type ManifestVariant struct {
	Index  int                `toml:"index"`
	File   string             `toml:"file"`
	Values map[string]float64 `toml:"values"`
}

func WriteManifest(dir string, m *Manifest) error {
	path := filepath.Join(dir, ManifestName)
	data, err := toml.Marshal(m)
	if err != nil {
		return ioErr("encode", path, err)
	}
	return ioErr("write", path, os.WriteFile(path, data, 0o644))
}

func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr("read", path, err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, ioErr("decode", path, err)
	}
	return &m, nil
}
