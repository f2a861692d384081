package datasets

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/aspectlab/absaprep/tokenizer"
)

// Raw dataset file format: each example spans exactly 3 consecutive lines.
//
//	line 0: sentence with the aspect position marked by the literal $T$
//	line 1: the aspect text
//	line 2: the polarity label as a signed integer ("-1", "0" or "1")
//
// The dependency graph and tree for a record are keyed by the raw line index
// of the record's first line, i.e. the same enumeration the upstream parser
// used when it wrote the adjacency files.

// ReadDataset reads the raw file at rawPath together with the adjacency
// files at graphPath and treePath and returns a Dataset of tokenized
// examples. Any read, parse or decode failure is fatal; there is no
// partial-dataset recovery.
func ReadDataset(rawPath, graphPath, treePath string, tok Tokenizer) (*Dataset, error) {
	lines, err := readLines(rawPath)
	if err != nil {
		return nil, err
	}
	if len(lines)%3 != 0 {
		return nil, fmt.Errorf("raw file %s: %d lines is not a multiple of 3; trailing partial record", rawPath, len(lines))
	}

	graphs, err := LoadAdjacency(graphPath)
	if err != nil {
		return nil, fmt.Errorf("load dependency graphs: %w", err)
	}
	trees, err := LoadAdjacency(treePath)
	if err != nil {
		return nil, fmt.Errorf("load dependency trees: %w", err)
	}

	examples := make([]Example, 0, len(lines)/3)
	for i := 0; i < len(lines); i += 3 {
		ex, err := buildExample(lines, i, graphs, trees, tok)
		if err != nil {
			return nil, fmt.Errorf("raw file %s: %w", rawPath, err)
		}
		examples = append(examples, ex)
	}
	return NewDataset(examples), nil
}

// buildExample assembles the record whose first line is at raw index i.
func buildExample(lines []string, i int, graphs, trees map[int]*mat.Dense, tok Tokenizer) (Example, error) {
	left, right, found := strings.Cut(lines[i], tokenizer.AspectMarker)
	if !found {
		return Example{}, fmt.Errorf("record at line %d: sentence has no %s marker", i, tokenizer.AspectMarker)
	}
	left = strings.TrimSpace(strings.ToLower(left))
	right = strings.TrimSpace(strings.ToLower(right))
	aspect := strings.TrimSpace(strings.ToLower(lines[i+1]))

	rawPolarity, err := strconv.Atoi(strings.TrimSpace(lines[i+2]))
	if err != nil {
		return Example{}, fmt.Errorf("record at line %d: parse polarity: %w", i, err)
	}

	graph, ok := graphs[i]
	if !ok {
		return Example{}, fmt.Errorf("record at line %d: no dependency graph for index %d", i, i)
	}
	tree, ok := trees[i]
	if !ok {
		return Example{}, fmt.Errorf("record at line %d: no dependency tree for index %d", i, i)
	}
	gr, gc := graph.Dims()
	tr, tc := tree.Dims()
	if gr != gc {
		return Example{}, fmt.Errorf("record at line %d: dependency graph is %dx%d, want square", i, gr, gc)
	}
	if tr != gr || tc != gc {
		return Example{}, fmt.Errorf("record at line %d: dependency tree is %dx%d but graph is %dx%d", i, tr, tc, gr, gc)
	}

	return Example{
		TextIndices:     tok.Tokenize(fmt.Sprintf("%s %s %s", left, aspect, right)),
		ContextIndices:  tok.Tokenize(fmt.Sprintf("%s %s", left, right)),
		AspectIndices:   tok.Tokenize(aspect),
		LeftIndices:     tok.Tokenize(left),
		Polarity:        rawPolarity + 1,
		DependencyGraph: graph,
		DependencyTree:  tree,
	}, nil
}

// readLines reads a whole text file into memory, one entry per line with the
// line terminator stripped.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan raw file %s: %w", path, err)
	}
	return lines, nil
}
