// Package tokenizer provides the vocabulary and word-level tokenization used
// to index ABSA training text.
//
// The rest of the module only depends on the Encoding value produced here, so
// a subword tokenizer can be dropped in as long as it emits the same
// {input_ids, token_type_ids, attention_mask} triple.
package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Reserved vocabulary indices. Index 0 is the padding token and index 1 the
// unknown token; the embedding matrix builder relies on this layout.
const (
	PadIndex = 0
	UnkIndex = 1
)

// AspectMarker is the literal substring that marks the aspect position in a
// raw ABSA sentence. Vocabulary building skips it so the marker never becomes
// a token.
const AspectMarker = "$T$"

// Encoding is the tokenized form of a piece of text.
type Encoding struct {
	InputIDs      []int32
	TokenTypeIDs  []int32
	AttentionMask []int32
}

// Len returns the number of tokens in the encoding.
func (e Encoding) Len() int { return len(e.InputIDs) }

// Vocab maps lower-cased words to unique non-negative indices.
type Vocab struct {
	indices map[string]int
	words   []string
}

// NewVocab creates a vocabulary seeded with the reserved padding and unknown
// entries.
func NewVocab() *Vocab {
	return &Vocab{
		indices: map[string]int{"<pad>": PadIndex, "<unk>": UnkIndex},
		words:   []string{"<pad>", "<unk>"},
	}
}

// Add inserts a word and returns its index. Adding an existing word returns
// the index it already has.
func (v *Vocab) Add(word string) int {
	if idx, ok := v.indices[word]; ok {
		return idx
	}
	idx := len(v.words)
	v.indices[word] = idx
	v.words = append(v.words, word)
	return idx
}

// Index returns the index of word and whether it is in the vocabulary.
func (v *Vocab) Index(word string) (int, bool) {
	idx, ok := v.indices[word]
	return idx, ok
}

// IndexOrUnk returns the index of word, falling back to the unknown index.
func (v *Vocab) IndexOrUnk(word string) int {
	if idx, ok := v.indices[word]; ok {
		return idx
	}
	return UnkIndex
}

// Size returns the number of entries, reserved tokens included.
func (v *Vocab) Size() int { return len(v.words) }

// WordIndices exposes the word-to-index mapping. The returned map is the
// vocabulary's backing store and must not be modified.
func (v *Vocab) WordIndices() map[string]int { return v.indices }

// AddText lower-cases text, splits it on whitespace and adds every token to
// the vocabulary. The aspect marker is skipped.
func (v *Vocab) AddText(text string) {
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if word == strings.ToLower(AspectMarker) {
			continue
		}
		v.Add(word)
	}
}

// FromFiles builds a vocabulary from raw dataset files. Every line
// contributes its whitespace-separated tokens; the aspect marker is ignored
// so it never claims a vocabulary slot.
func FromFiles(paths ...string) (*Vocab, error) {
	v := NewVocab()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open vocab source %s: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			v.AddText(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("scan vocab source %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("close vocab source %s: %w", path, err)
		}
	}
	return v, nil
}

// WordTokenizer is a whitespace word tokenizer backed by a Vocab. Unknown
// words map to the reserved unknown index.
type WordTokenizer struct {
	vocab *Vocab
}

// NewWordTokenizer creates a tokenizer over the given vocabulary.
func NewWordTokenizer(v *Vocab) *WordTokenizer {
	return &WordTokenizer{vocab: v}
}

// Tokenize lower-cases text, splits it on whitespace and maps each word to
// its vocabulary index. The attention mask is 1 for every real token and the
// token-type ids are all 0 (single-segment input).
func (t *WordTokenizer) Tokenize(text string) Encoding {
	words := strings.Fields(strings.ToLower(text))
	enc := Encoding{
		InputIDs:      make([]int32, len(words)),
		TokenTypeIDs:  make([]int32, len(words)),
		AttentionMask: make([]int32, len(words)),
	}
	for i, word := range words {
		enc.InputIDs[i] = int32(t.vocab.IndexOrUnk(word))
		enc.AttentionMask[i] = 1
	}
	return enc
}
