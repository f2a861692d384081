// Package embeddings builds dense word-embedding matrices from pretrained
// vector files (e.g. GloVe) for a fixed vocabulary.
//
// Matrix layout: row 0 is all zero (padding token), row 1 is drawn uniformly
// from [-1/sqrt(d), 1/sqrt(d)] (unknown token), every other row is copied
// from the vector file when the vocabulary word appears there and stays zero
// otherwise.
package embeddings

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aspectlab/absaprep/tokenizer"
)

// Option configures BuildMatrix.
type Option func(*config)

type config struct {
	rng      *rand.Rand
	savePath string
}

// WithRand sets the random generator used to initialize the unknown-token
// row. Passing an explicit generator makes matrix construction reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(c *config) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// WithSavePath persists the built matrix to the given file path. Parent
// directories are created as needed; failures propagate.
func WithSavePath(path string) Option {
	return func(c *config) {
		c.savePath = path
	}
}

// LoadWordVectors reads a vector file and returns vectors for the words that
// appear in vocab. Each line holds whitespace-separated tokens: the trailing
// embedDim tokens are the vector and everything before them, joined by
// spaces, is the word. This keeps multi-word entries such as "new york"
// intact.
func LoadWordVectors(path string, vocab map[string]int, embedDim int) (map[string][]float64, error) {
	if embedDim <= 0 {
		return nil, fmt.Errorf("embed dim must be positive, got %d", embedDim)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector file: %w", err)
	}
	defer f.Close()

	wordVec := make(map[string][]float64)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < embedDim+1 {
			return nil, fmt.Errorf("vector file %s line %d: %d tokens, need a word plus %d vector components",
				path, lineNo, len(fields), embedDim)
		}
		word := strings.Join(fields[:len(fields)-embedDim], " ")
		if _, ok := vocab[word]; !ok {
			continue
		}
		vec := make([]float64, embedDim)
		for i, tok := range fields[len(fields)-embedDim:] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("vector file %s line %d: parse component %d: %w", path, lineNo, i, err)
			}
			vec[i] = v
		}
		wordVec[word] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan vector file %s: %w", path, err)
	}
	return wordVec, nil
}

// BuildMatrix builds a (len(vocab), embedDim) embedding matrix from the
// vector file at vecPath. Missing vocabulary words keep a zero row; a missing
// word is not an error.
func BuildMatrix(vecPath string, vocab map[string]int, embedDim int, opts ...Option) (*mat.Dense, error) {
	cfg := config{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}

	m := mat.NewDense(len(vocab), embedDim, nil)

	// Unknown-token row, uniform in [-1/sqrt(d), 1/sqrt(d)].
	if len(vocab) > tokenizer.UnkIndex {
		bound := 1.0 / math.Sqrt(float64(embedDim))
		row := make([]float64, embedDim)
		for i := range row {
			row[i] = -bound + cfg.rng.Float64()*2*bound
		}
		m.SetRow(tokenizer.UnkIndex, row)
	}

	wordVec, err := LoadWordVectors(vecPath, vocab, embedDim)
	if err != nil {
		return nil, err
	}
	for word, idx := range vocab {
		if idx < 0 || idx >= len(vocab) {
			return nil, fmt.Errorf("vocabulary index %d for %q out of range [0, %d)", idx, word, len(vocab))
		}
		if vec, ok := wordVec[word]; ok {
			m.SetRow(idx, vec)
		}
	}

	if cfg.savePath != "" {
		if err := Save(m, cfg.savePath); err != nil {
			return nil, fmt.Errorf("save embedding matrix: %w", err)
		}
	}
	return m, nil
}
