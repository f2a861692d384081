package embeddings

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// writeVecFile writes a plain-text vector file to path.
func writeVecFile(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create vector file %s: %v", path, err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			t.Fatalf("write vector line: %v", err)
		}
	}
}

func testVocab() map[string]int {
	return map[string]int{
		"<pad>":    0,
		"<unk>":    1,
		"great":    2,
		"pizza":    3,
		"new york": 4,
		"missing":  5,
	}
}

func TestLoadWordVectors(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "vectors.txt")
	writeVecFile(t, path, []string{
		"great 0.1 0.2 0.3",
		"pizza 0.4 0.5 0.6",
		"new york 0.7 0.8 0.9",
		"unrelated 1.0 1.1 1.2",
	})

	vecs, err := LoadWordVectors(path, testVocab(), 3)
	if err != nil {
		t.Fatalf("LoadWordVectors: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("retained %d vectors, want 3 (only vocab words)", len(vecs))
	}
	// Multi-word entries keep their internal space.
	ny, ok := vecs["new york"]
	if !ok {
		t.Fatalf("expected multi-word entry 'new york'")
	}
	if ny[0] != 0.7 || ny[1] != 0.8 || ny[2] != 0.9 {
		t.Fatalf("'new york' vector = %v", ny)
	}
	if _, ok := vecs["unrelated"]; ok {
		t.Fatalf("non-vocab word must not be retained")
	}
}

func TestLoadWordVectors_ShortLine(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "vectors.txt")
	writeVecFile(t, path, []string{"great 0.1 0.2"})

	if _, err := LoadWordVectors(path, testVocab(), 3); err == nil {
		t.Fatalf("expected error for line with too few vector components")
	}
}

func TestLoadWordVectors_MissingFile(t *testing.T) {
	if _, err := LoadWordVectors(filepath.Join(t.TempDir(), "nope.txt"), testVocab(), 3); err == nil {
		t.Fatalf("expected error for missing vector file")
	}
}

func TestBuildMatrix(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "vectors.txt")
	writeVecFile(t, path, []string{
		"great 0.1 0.2 0.3",
		"pizza 0.4 0.5 0.6",
	})

	vocab := testVocab()
	m, err := BuildMatrix(path, vocab, 3, WithRand(rand.New(rand.NewSource(1))))
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}

	rows, cols := m.Dims()
	if rows != len(vocab) || cols != 3 {
		t.Fatalf("matrix dims = %dx%d, want %dx3", rows, cols, len(vocab))
	}

	// Row 0 (padding) stays zero.
	for c := 0; c < cols; c++ {
		if m.At(0, c) != 0 {
			t.Fatalf("padding row not zero at col %d: %f", c, m.At(0, c))
		}
	}

	// Row 1 (unknown) is uniform in [-1/sqrt(d), 1/sqrt(d)] and non-zero
	// with overwhelming probability.
	bound := 1.0 / math.Sqrt(3)
	nonZero := false
	for c := 0; c < cols; c++ {
		v := m.At(1, c)
		if v < -bound || v > bound {
			t.Fatalf("unknown row value %f outside [%f, %f]", v, -bound, bound)
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Fatalf("unknown row is all zero")
	}

	// Known words carry the file's vectors.
	wantGreat := []float64{0.1, 0.2, 0.3}
	for c, want := range wantGreat {
		if got := m.At(vocab["great"], c); got != want {
			t.Fatalf("row for 'great' col %d = %f, want %f", c, got, want)
		}
	}

	// Words absent from the vector file keep a zero row.
	for c := 0; c < cols; c++ {
		if m.At(vocab["missing"], c) != 0 {
			t.Fatalf("row for absent word not zero at col %d", c)
		}
	}
}

func TestBuildMatrix_Deterministic(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "vectors.txt")
	writeVecFile(t, path, []string{"great 0.1 0.2 0.3"})

	vocab := testVocab()
	m1, err := BuildMatrix(path, vocab, 3, WithRand(rand.New(rand.NewSource(7))))
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}
	m2, err := BuildMatrix(path, vocab, 3, WithRand(rand.New(rand.NewSource(7))))
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}
	for c := 0; c < 3; c++ {
		if m1.At(1, c) != m2.At(1, c) {
			t.Fatalf("same seed produced different unknown rows at col %d", c)
		}
	}
}

func TestBuildMatrix_SaveAndLoad(t *testing.T) {
	tmp := t.TempDir()
	vecPath := filepath.Join(tmp, "vectors.txt")
	writeVecFile(t, vecPath, []string{"great 0.1 0.2 0.3"})

	// Save path with a missing parent directory: Save must create it.
	savePath := filepath.Join(tmp, "cache", "embed.gob")
	vocab := testVocab()
	m, err := BuildMatrix(vecPath, vocab, 3,
		WithRand(rand.New(rand.NewSource(1))),
		WithSavePath(savePath))
	if err != nil {
		t.Fatalf("BuildMatrix with save: %v", err)
	}

	loaded, err := Load(savePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rows, cols := loaded.Dims()
	if wr, wc := m.Dims(); rows != wr || cols != wc {
		t.Fatalf("loaded dims %dx%d, want %dx%d", rows, cols, wr, wc)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if loaded.At(r, c) != m.At(r, c) {
				t.Fatalf("loaded matrix differs at (%d,%d)", r, c)
			}
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.gob")); err == nil {
		t.Fatalf("expected error for missing matrix file")
	}
}

func TestBuildMatrix_MissingVectorFile(t *testing.T) {
	_, err := BuildMatrix(filepath.Join(t.TempDir(), "nope.txt"), testVocab(), 3)
	if err == nil {
		t.Fatalf("expected error for missing vector file")
	}
}
