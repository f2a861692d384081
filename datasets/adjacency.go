package datasets

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"gonum.org/v1/gonum/mat"
)

// Adjacency files map the raw line index of a record's first line to a
// square adjacency matrix over the sentence's words. Two encodings are
// supported: Python pickle files produced by the upstream dependency parser
// (a dict of int -> list of rows, each row a list of numbers) and a gob
// sidecar format written by Go tooling.

// adjacencyVersion is incremented when the gob sidecar format changes.
const adjacencyVersion = 1

// adjacencyFile is the gob sidecar representation.
type adjacencyFile struct {
	Version  int
	Matrices map[int]adjacencyMatrix
}

// adjacencyMatrix stores a square N x N matrix in row-major order.
type adjacencyMatrix struct {
	N    int
	Data []float64
}

// LoadAdjacency loads an index-to-matrix mapping from path. Files with a
// .gob extension use the sidecar format; everything else is parsed as a
// Python pickle.
func LoadAdjacency(path string) (map[int]*mat.Dense, error) {
	if filepath.Ext(path) == ".gob" {
		return loadAdjacencyGob(path)
	}
	return loadAdjacencyPickle(path)
}

// SaveAdjacency writes matrices to path in the gob sidecar format, with an
// atomic temp-file-and-rename write.
func SaveAdjacency(path string, matrices map[int]*mat.Dense) error {
	if path == "" {
		return fmt.Errorf("empty adjacency path")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	af := adjacencyFile{
		Version:  adjacencyVersion,
		Matrices: make(map[int]adjacencyMatrix, len(matrices)),
	}
	for idx, m := range matrices {
		r, c := m.Dims()
		if r != c {
			return fmt.Errorf("adjacency matrix %d is %dx%d, want square", idx, r, c)
		}
		af.Matrices[idx] = adjacencyMatrix{N: r, Data: m.RawMatrix().Data}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp adjacency file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	if err := gob.NewEncoder(tmpFile).Encode(&af); err != nil {
		return fmt.Errorf("encode adjacency to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp adjacency file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp adjacency file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp adjacency to target: %w", err)
	}
	return nil
}

func loadAdjacencyGob(path string) (map[int]*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open adjacency file %s: %w", path, err)
	}
	defer f.Close()

	var af adjacencyFile
	if err := gob.NewDecoder(f).Decode(&af); err != nil {
		return nil, fmt.Errorf("decode adjacency %s: %w", path, err)
	}
	if af.Version != adjacencyVersion {
		return nil, fmt.Errorf("adjacency version mismatch: file=%d expected=%d", af.Version, adjacencyVersion)
	}

	out := make(map[int]*mat.Dense, len(af.Matrices))
	for idx, m := range af.Matrices {
		if m.N <= 0 || len(m.Data) != m.N*m.N {
			return nil, fmt.Errorf("adjacency %s index %d: %d values for side %d", path, idx, len(m.Data), m.N)
		}
		out[idx] = mat.NewDense(m.N, m.N, m.Data)
	}
	return out, nil
}

func loadAdjacencyPickle(path string) (map[int]*mat.Dense, error) {
	raw, err := pickle.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unpickle adjacency %s: %w", path, err)
	}

	dict, ok := raw.(*types.Dict)
	if !ok {
		return nil, fmt.Errorf("adjacency %s: pickled %T, want a dict", path, raw)
	}
	out := make(map[int]*mat.Dense, dict.Len())
	for _, entry := range *dict {
		if err := addPickleEntry(out, entry.Key, entry.Value); err != nil {
			return nil, fmt.Errorf("adjacency %s: %w", path, err)
		}
	}
	return out, nil
}

// addPickleEntry converts one pickled dict entry into a dense matrix.
func addPickleEntry(out map[int]*mat.Dense, key, value any) error {
	idx, err := pickleInt(key)
	if err != nil {
		return fmt.Errorf("dict key %v: %w", key, err)
	}
	rows, ok := value.(*types.List)
	if !ok {
		return fmt.Errorf("index %d: value is %T, want a list of rows", idx, value)
	}
	n := rows.Len()
	if n == 0 {
		return fmt.Errorf("index %d: empty matrix", idx)
	}
	data := make([]float64, 0, n*n)
	for r := 0; r < n; r++ {
		row, ok := rows.Get(r).(*types.List)
		if !ok {
			return fmt.Errorf("index %d row %d: %T, want a list", idx, r, rows.Get(r))
		}
		if row.Len() != n {
			return fmt.Errorf("index %d row %d: %d values for side %d, want square", idx, r, row.Len(), n)
		}
		for c := 0; c < n; c++ {
			v, err := pickleFloat(row.Get(c))
			if err != nil {
				return fmt.Errorf("index %d row %d col %d: %w", idx, r, c, err)
			}
			data = append(data, v)
		}
	}
	out[idx] = mat.NewDense(n, n, data)
	return nil
}

func pickleInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%T is not an integer", v)
	}
}

func pickleFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}
