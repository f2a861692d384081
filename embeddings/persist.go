package embeddings

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
)

// matrixVersion is incremented when the on-disk matrix format changes.
const matrixVersion = 1

// matrixFile is the on-disk representation of a built embedding matrix. It
// carries metadata to validate reuse across runs.
type matrixFile struct {
	Version   int
	Rows      int
	Cols      int
	CreatedAt int64
	Data      []float64
}

// Save writes the matrix to path using encoding/gob. It performs an atomic
// write (temp file in the target directory, then rename) and creates missing
// parent directories. Directory-creation failures propagate.
func Save(m *mat.Dense, path string) error {
	if path == "" {
		return fmt.Errorf("empty matrix path")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp matrix file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	rows, cols := m.Dims()
	raw := m.RawMatrix()
	mf := matrixFile{
		Version:   matrixVersion,
		Rows:      rows,
		Cols:      cols,
		CreatedAt: time.Now().Unix(),
		Data:      raw.Data,
	}
	if err := gob.NewEncoder(tmpFile).Encode(&mf); err != nil {
		return fmt.Errorf("encode matrix to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp matrix file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp matrix file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp matrix to target: %w", err)
	}
	return nil
}

// Load reads a matrix previously written by Save, validating the format
// version and the dimension metadata before adopting the buffer.
func Load(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matrix file %s: %w", path, err)
	}
	defer f.Close()

	var mf matrixFile
	if err := gob.NewDecoder(f).Decode(&mf); err != nil {
		return nil, fmt.Errorf("decode matrix %s: %w", path, err)
	}
	if mf.Version != matrixVersion {
		return nil, fmt.Errorf("matrix version mismatch: file=%d expected=%d", mf.Version, matrixVersion)
	}
	if mf.Rows <= 0 || mf.Cols <= 0 {
		return nil, fmt.Errorf("matrix %s has invalid dims %dx%d", path, mf.Rows, mf.Cols)
	}
	if len(mf.Data) != mf.Rows*mf.Cols {
		return nil, fmt.Errorf("matrix %s data length mismatch: %d values for %dx%d", path, len(mf.Data), mf.Rows, mf.Cols)
	}
	return mat.NewDense(mf.Rows, mf.Cols, mf.Data), nil
}
