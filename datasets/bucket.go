package datasets

import (
	"fmt"
	"iter"
	"math/rand"
	"sort"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/mat"

	"github.com/aspectlab/absaprep/tokenizer"
)

// SortKey selects which encoding's length the iterator sorts examples by.
type SortKey int

const (
	SortByText SortKey = iota
	SortByContext
	SortByAspect
	SortByLeft
)

// encoding returns the field of ex that k selects.
func (k SortKey) encoding(ex Example) tokenizer.Encoding {
	switch k {
	case SortByContext:
		return ex.ContextIndices
	case SortByAspect:
		return ex.AspectIndices
	case SortByLeft:
		return ex.LeftIndices
	default:
		return ex.TextIndices
	}
}

// Option configures a BucketIterator.
type Option func(*iterConfig)

type iterConfig struct {
	sortKey SortKey
	sort    bool
	shuffle bool
	rng     *rand.Rand
}

// WithSortKey sets the encoding whose length drives sorting (default: full
// text).
func WithSortKey(k SortKey) Option {
	return func(c *iterConfig) {
		c.sortKey = k
	}
}

// WithSort enables or disables length-sorting before chunking (default:
// enabled). Sorting minimizes per-batch padding waste at the cost of losing
// the original example order.
func WithSort(sort bool) Option {
	return func(c *iterConfig) {
		c.sort = sort
	}
}

// WithShuffle enables or disables shuffling the batch order on every epoch
// (default: enabled). Batch contents are never reshuffled, only their
// sequence order.
func WithShuffle(shuffle bool) Option {
	return func(c *iterConfig) {
		c.shuffle = shuffle
	}
}

// WithRand sets the random generator used for epoch shuffling, so traversal
// order is reproducible in tests.
func WithRand(rng *rand.Rand) Option {
	return func(c *iterConfig) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// BucketIterator groups a dataset into padded batches. All batches are built
// once at construction; each call to Epoch yields every batch exactly once,
// reshuffling the batch order first when shuffling is enabled.
type BucketIterator struct {
	batches []*Batch
	shuffle bool
	rng     *rand.Rand
}

// NewBucketIterator sorts (optionally), chunks and pads data into batches of
// batchSize. The last batch may be smaller. The dataset is borrowed
// read-only.
func NewBucketIterator(data *Dataset, batchSize int, opts ...Option) (*BucketIterator, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	cfg := iterConfig{
		sortKey: SortByText,
		sort:    true,
		shuffle: true,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := data.Len()
	ordered := make([]Example, n)
	for i := 0; i < n; i++ {
		ex, err := data.Example(i)
		if err != nil {
			return nil, err
		}
		ordered[i] = ex
	}
	if cfg.sort {
		// Stable so equal-length examples keep their original order.
		sort.SliceStable(ordered, func(i, j int) bool {
			return cfg.sortKey.encoding(ordered[i]).Len() < cfg.sortKey.encoding(ordered[j]).Len()
		})
	}

	numBatches := (n + batchSize - 1) / batchSize
	batches := make([]*Batch, 0, numBatches)
	for i := 0; i < numBatches; i++ {
		lo := i * batchSize
		hi := lo + batchSize
		if hi > n {
			hi = n
		}
		batch, err := padBatch(ordered[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("pad batch %d: %w", i, err)
		}
		batches = append(batches, batch)
	}

	return &BucketIterator{
		batches: batches,
		shuffle: cfg.shuffle,
		rng:     cfg.rng,
	}, nil
}

// NumBatches returns the number of batches per epoch.
func (it *BucketIterator) NumBatches() int { return len(it.batches) }

// Epoch returns a single traversal over the batches. When shuffling is
// enabled the batch order is permuted once per traversal; a new traversal
// reshuffles again.
func (it *BucketIterator) Epoch() iter.Seq[*Batch] {
	return func(yield func(*Batch) bool) {
		if it.shuffle {
			it.rng.Shuffle(len(it.batches), func(i, j int) {
				it.batches[i], it.batches[j] = it.batches[j], it.batches[i]
			})
		}
		for _, b := range it.batches {
			if !yield(b) {
				return
			}
		}
	}
}

// Batch is one padded group of examples. Every id sequence is right-padded
// to MaxLen; adjacency matrices are zero-padded on both trailing dimensions
// to MaxLen x MaxLen and stored flat in row-major order, Size matrices per
// buffer.
type Batch struct {
	TextIndices    []tokenizer.Encoding
	ContextIndices []tokenizer.Encoding
	AspectIndices  []tokenizer.Encoding
	LeftIndices    []tokenizer.Encoding

	// Polarities holds one class index per example; labels are scalar and
	// never padded.
	Polarities []int32

	DependencyGraph []float32
	DependencyTree  []float32

	Size   int
	MaxLen int
}

// padBatch pads every example in items to the longest full-text length in
// the chunk and assembles the batch buffers.
func padBatch(items []Example) (*Batch, error) {
	maxLen := 0
	for _, ex := range items {
		if l := ex.TextIndices.Len(); l > maxLen {
			maxLen = l
		}
	}

	b := &Batch{
		TextIndices:     make([]tokenizer.Encoding, 0, len(items)),
		ContextIndices:  make([]tokenizer.Encoding, 0, len(items)),
		AspectIndices:   make([]tokenizer.Encoding, 0, len(items)),
		LeftIndices:     make([]tokenizer.Encoding, 0, len(items)),
		Polarities:      make([]int32, 0, len(items)),
		DependencyGraph: make([]float32, len(items)*maxLen*maxLen),
		DependencyTree:  make([]float32, len(items)*maxLen*maxLen),
		Size:            len(items),
		MaxLen:          maxLen,
	}

	for i, ex := range items {
		b.TextIndices = append(b.TextIndices, padEncoding(ex.TextIndices, maxLen))
		b.ContextIndices = append(b.ContextIndices, padEncoding(ex.ContextIndices, maxLen))
		b.AspectIndices = append(b.AspectIndices, padEncoding(ex.AspectIndices, maxLen))
		b.LeftIndices = append(b.LeftIndices, padEncoding(ex.LeftIndices, maxLen))
		b.Polarities = append(b.Polarities, int32(ex.Polarity))

		if err := copyPadded(b.DependencyGraph[i*maxLen*maxLen:(i+1)*maxLen*maxLen], ex.DependencyGraph, maxLen); err != nil {
			return nil, fmt.Errorf("item %d dependency graph: %w", i, err)
		}
		if err := copyPadded(b.DependencyTree[i*maxLen*maxLen:(i+1)*maxLen*maxLen], ex.DependencyTree, maxLen); err != nil {
			return nil, fmt.Errorf("item %d dependency tree: %w", i, err)
		}
	}
	return b, nil
}

// padEncoding right-pads every sequence of e with zeros to maxLen. The
// attention mask is padded with 0 as well: padding positions must read as
// "do not attend".
func padEncoding(e tokenizer.Encoding, maxLen int) tokenizer.Encoding {
	out := tokenizer.Encoding{
		InputIDs:      make([]int32, maxLen),
		TokenTypeIDs:  make([]int32, maxLen),
		AttentionMask: make([]int32, maxLen),
	}
	copy(out.InputIDs, e.InputIDs)
	copy(out.TokenTypeIDs, e.TokenTypeIDs)
	copy(out.AttentionMask, e.AttentionMask)
	return out
}

// copyPadded writes the n x n matrix m into dst interpreted as maxLen x
// maxLen row-major, leaving the trailing rows and columns zero.
func copyPadded(dst []float32, m *mat.Dense, maxLen int) error {
	n, _ := m.Dims()
	if n > maxLen {
		return fmt.Errorf("matrix side %d exceeds padded length %d", n, maxLen)
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			dst[r*maxLen+c] = float32(m.At(r, c))
		}
	}
	return nil
}

// Tensors converts the batch into gomlx tensors keyed by model input name:
// text_indices, context_indices, aspect_indices and left_indices hold input
// ids of shape (Size, MaxLen); polarity holds class indices of shape (Size);
// dependency_graph and dependency_tree hold float32 matrices of shape
// (Size, MaxLen, MaxLen).
func (b *Batch) Tensors() (map[string]*tensors.Tensor, error) {
	out := map[string]*tensors.Tensor{
		"text_indices":     tensors.FromAnyValue(encodingIDs(b.TextIndices)),
		"context_indices":  tensors.FromAnyValue(encodingIDs(b.ContextIndices)),
		"aspect_indices":   tensors.FromAnyValue(encodingIDs(b.AspectIndices)),
		"left_indices":     tensors.FromAnyValue(encodingIDs(b.LeftIndices)),
		"polarity":         tensors.FromAnyValue(b.Polarities),
		"dependency_graph": tensors.FromAnyValue(reshapeMatrices(b.DependencyGraph, b.Size, b.MaxLen)),
		"dependency_tree":  tensors.FromAnyValue(reshapeMatrices(b.DependencyTree, b.Size, b.MaxLen)),
	}
	for name, t := range out {
		if t == nil {
			return nil, fmt.Errorf("tensor conversion produced nil for %s", name)
		}
	}
	return out, nil
}

// encodingIDs collects the padded input-id rows into a 2D slice.
func encodingIDs(encs []tokenizer.Encoding) [][]int32 {
	ids := make([][]int32, len(encs))
	for i, e := range encs {
		ids[i] = e.InputIDs
	}
	return ids
}

// reshapeMatrices views a flat size*n*n buffer as a 3D slice without
// copying.
func reshapeMatrices(flat []float32, size, n int) [][][]float32 {
	out := make([][][]float32, size)
	idx := 0
	for i := 0; i < size; i++ {
		out[i] = make([][]float32, n)
		for r := 0; r < n; r++ {
			out[i][r] = flat[idx : idx+n]
			idx += n
		}
	}
	return out
}
