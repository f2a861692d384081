// Package datasets reads raw ABSA training data, fuses it with precomputed
// dependency-graph and dependency-tree adjacency matrices, and groups the
// resulting examples into length-sorted padded batches.
//
// The data flow is: raw text + adjacency files + a tokenizer go into
// ReadDataset, which produces an immutable Dataset; a BucketIterator borrows
// the Dataset read-only and yields one padded Batch sequence per epoch.
// Batches expose flat float32 buffers with shape metadata plus a conversion
// into gomlx tensors for training code.
package datasets

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/aspectlab/absaprep/tokenizer"
)

// ErrIndexOutOfRange reports a dataset access outside [0, Len).
var ErrIndexOutOfRange = errors.New("dataset index out of range")

// Tokenizer is the capability the reader needs from a tokenizer: text in,
// id sequences out. tokenizer.WordTokenizer satisfies it; so does any
// subword tokenizer producing the same encoding triple.
type Tokenizer interface {
	Tokenize(text string) tokenizer.Encoding
}

// Example is a single ABSA training instance. The four encodings come from
// the same sentence: full text (left + aspect + right), context (left +
// right, aspect removed), the aspect span alone and the left context alone.
// The adjacency matrices are square with side equal to the raw word count of
// the sentence, as produced by the upstream dependency parser.
type Example struct {
	TextIndices    tokenizer.Encoding
	ContextIndices tokenizer.Encoding
	AspectIndices  tokenizer.Encoding
	LeftIndices    tokenizer.Encoding

	// Polarity is the raw label shifted by +1, so {-1, 0, 1} becomes
	// {0, 1, 2}. This is the model's class-index convention.
	Polarity int

	DependencyGraph *mat.Dense
	DependencyTree  *mat.Dense
}

// Dataset is an immutable, order-preserving collection of examples. It is
// created once by ReadDataset and never mutated afterward, so it is safe to
// share between iterators.
type Dataset struct {
	examples []Example
}

// NewDataset wraps examples in a Dataset. The caller hands over ownership of
// the slice.
func NewDataset(examples []Example) *Dataset {
	return &Dataset{examples: examples}
}

// Len returns the number of examples.
func (d *Dataset) Len() int { return len(d.examples) }

// Example returns the example at position i.
func (d *Dataset) Example(i int) (Example, error) {
	if i < 0 || i >= len(d.examples) {
		return Example{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(d.examples))
	}
	return d.examples[i], nil
}
