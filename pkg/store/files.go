package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/edp1096/mcspice/pkg/perturb"
)

// NetlistExt is the extension of every generated variant.
const NetlistExt = ".cir"

// VariantName is the file name of variant i: <prefix>_<i>.cir.
func VariantName(prefix string, i int) string {
	return fmt.Sprintf("%s_%d%s", prefix, i, NetlistExt)
}

// variantIndex parses the index out of a generated file name.
func variantIndex(prefix, name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, NetlistExt)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// PrepareDir creates dir, or empties it of variants generated by a previous
// run with the same prefix. Other files are left alone. It returns the
// number of files removed.
func PrepareDir(dir, prefix string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, ioErr("mkdir", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, ioErr("readdir", dir, err)
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := variantIndex(prefix, e.Name()); !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			return removed, ioErr("remove", path, err)
		}
		removed++
	}
	return removed, nil
}

// WriteVariants writes every variant to <dir>/<prefix>_<index>.cir and
// returns the paths in variant order.
func WriteVariants(dir, prefix string, variants []perturb.Variant) ([]string, error) {
	paths := make([]string, 0, len(variants))
	for _, v := range variants {
		path := filepath.Join(dir, VariantName(prefix, v.Index))
		if err := os.WriteFile(path, []byte(v.Text), 0o644); err != nil {
			return paths, ioErr("write", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Netlist is one variant read back from disk.
type Netlist struct {
	Index int
	Name  string // file name without extension
	Path  string
	Text  string
}

// ReadNetlists loads every <prefix>_<i>.cir in dir ordered by index.
func ReadNetlists(dir, prefix string) ([]Netlist, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ioErr("readdir", dir, err)
	}

	var out []Netlist
	for _, e := range entries {
		idx, ok := variantIndex(prefix, e.Name())
		if !ok || !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ioErr("read", path, err)
		}
		out = append(out, Netlist{
			Index: idx,
			Name:  strings.TrimSuffix(e.Name(), NetlistExt),
			Path:  path,
			Text:  string(data),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// ReadSource loads the template netlist a batch is generated from.
func ReadSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ioErr("read", path, err)
	}
	return string(data), nil
}

// WriteFile creates path and hands it to write. The file is closed before
// WriteFile returns.
func WriteFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return ioErr("create", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = ioErr("close", path, cerr)
		}
	}()

	if err := write(f); err != nil {
		return ioErr("write", path, err)
	}
	return nil
}
