// Command absaprep prepares ABSA training data: it builds the vocabulary and
// embedding matrix, reads the train/test datasets with their dependency
// graph and tree files, batches one epoch through a bucket iterator and
// writes length/polarity distribution plots.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/aspectlab/absaprep/datasets"
	"github.com/aspectlab/absaprep/embeddings"
	"github.com/aspectlab/absaprep/tokenizer"
)

// fileConfig mirrors the optional JSON config file. Values fill in flags the
// user left at their defaults; explicit CLI flags always win.
type fileConfig struct {
	WordVecPath   string `json:"word_vec_file_path"`
	EmbedDim      *int   `json:"embed_dim"`
	SaveEmbedPath string `json:"saved_embedding_matrix_file_path"`
	BatchSize     *int   `json:"batch_size"`
	Train         *struct {
		Raw   string `json:"raw"`
		Graph string `json:"graph"`
		Tree  string `json:"tree"`
	} `json:"dataset_train"`
	Test *struct {
		Raw   string `json:"raw"`
		Graph string `json:"graph"`
		Tree  string `json:"tree"`
	} `json:"dataset_test"`
}

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional); CLI flags override its values")
	trainRaw := flag.String("train", "", "path to raw train file")
	trainGraph := flag.String("train-graph", "", "path to train dependency graph file (pickle or gob)")
	trainTree := flag.String("train-tree", "", "path to train dependency tree file (pickle or gob)")
	testRaw := flag.String("test", "", "path to raw test file (optional)")
	testGraph := flag.String("test-graph", "", "path to test dependency graph file")
	testTree := flag.String("test-tree", "", "path to test dependency tree file")
	wordVec := flag.String("word-vec", "", "path to pretrained word vector file (e.g. GloVe)")
	embedDim := flag.Int("embed-dim", 300, "embedding dimension")
	saveEmbed := flag.String("save-embed", "", "if set, persist the built embedding matrix to this path")
	batchSize := flag.Int("batch-size", 32, "bucket iterator batch size")
	noSort := flag.Bool("no-sort", false, "disable length-sorting before batching")
	noShuffle := flag.Bool("no-shuffle", false, "disable per-epoch batch shuffling")
	plotDir := flag.String("plots", "", "if set, write length/polarity distribution plots to this directory")
	seed := flag.Int64("seed", 776, "random seed for embedding init and batch shuffling")
	flag.Parse()

	if *configPath != "" {
		if err := mergeConfig(*configPath, trainRaw, trainGraph, trainTree, testRaw, testGraph, testTree,
			wordVec, embedDim, saveEmbed, batchSize); err != nil {
			log.Fatalf("load config %s: %v", *configPath, err)
		}
	}
	if *trainRaw == "" || *trainGraph == "" || *trainTree == "" {
		log.Fatalf("missing required paths: -train, -train-graph and -train-tree (or a -config providing them)")
	}
	if *wordVec == "" {
		log.Fatalf("missing required path: -word-vec (or a -config providing it)")
	}

	rng := rand.New(rand.NewSource(*seed))

	// Vocabulary comes from the raw dataset text, reserved pad/unk first.
	vocabSources := []string{*trainRaw}
	if *testRaw != "" {
		vocabSources = append(vocabSources, *testRaw)
	}
	vocab, err := tokenizer.FromFiles(vocabSources...)
	if err != nil {
		log.Fatalf("build vocabulary: %v", err)
	}
	log.Printf("Vocabulary built: %d words", vocab.Size())

	var embedOpts []embeddings.Option
	embedOpts = append(embedOpts, embeddings.WithRand(rng))
	if *saveEmbed != "" {
		embedOpts = append(embedOpts, embeddings.WithSavePath(*saveEmbed))
	}
	matrix, err := embeddings.BuildMatrix(*wordVec, vocab.WordIndices(), *embedDim, embedOpts...)
	if err != nil {
		log.Fatalf("build embedding matrix: %v", err)
	}
	rows, cols := matrix.Dims()
	log.Printf("Embedding matrix built: %dx%d", rows, cols)
	if *saveEmbed != "" {
		log.Printf("Embedding matrix saved to %s", *saveEmbed)
	}

	tok := tokenizer.NewWordTokenizer(vocab)
	trainDS, err := datasets.ReadDataset(*trainRaw, *trainGraph, *trainTree, tok)
	if err != nil {
		log.Fatalf("read train dataset: %v", err)
	}
	log.Printf("Train dataset loaded: %d examples", trainDS.Len())

	var testDS *datasets.Dataset
	if *testRaw != "" {
		if *testGraph == "" || *testTree == "" {
			log.Fatalf("-test requires -test-graph and -test-tree")
		}
		testDS, err = datasets.ReadDataset(*testRaw, *testGraph, *testTree, tok)
		if err != nil {
			log.Fatalf("read test dataset: %v", err)
		}
		log.Printf("Test dataset loaded: %d examples", testDS.Len())
	}

	iterOpts := []datasets.Option{
		datasets.WithRand(rng),
		datasets.WithSort(!*noSort),
		datasets.WithShuffle(!*noShuffle),
	}
	it, err := datasets.NewBucketIterator(trainDS, *batchSize, iterOpts...)
	if err != nil {
		log.Fatalf("build bucket iterator: %v", err)
	}

	examples := 0
	for batch := range it.Epoch() {
		examples += batch.Size
	}
	log.Printf("Bucket iterator ready: %d batches, %d examples per epoch", it.NumBatches(), examples)

	stats := datasets.Summarize(trainDS)
	log.Printf("Train lengths: min=%d max=%d mean=%.1f", stats.MinLen, stats.MaxLen, stats.MeanLen)
	for pol, count := range stats.PolarityCounts {
		log.Printf("  polarity class %d: %d examples", pol, count)
	}

	if *plotDir != "" {
		if err := writePlots(*plotDir, stats); err != nil {
			log.Fatalf("write plots: %v", err)
		}
		log.Printf("Distribution plots written to %s", *plotDir)
	}
}

// mergeConfig loads the JSON config and applies its values to flags still at
// their default.
func mergeConfig(path string, trainRaw, trainGraph, trainTree, testRaw, testGraph, testTree,
	wordVec *string, embedDim *int, saveEmbed *string, batchSize *int) error {

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if cfg.WordVecPath != "" && *wordVec == "" {
		*wordVec = cfg.WordVecPath
	}
	if cfg.EmbedDim != nil && *embedDim == 300 {
		*embedDim = *cfg.EmbedDim
	}
	if cfg.SaveEmbedPath != "" && *saveEmbed == "" {
		*saveEmbed = cfg.SaveEmbedPath
	}
	if cfg.BatchSize != nil && *batchSize == 32 {
		*batchSize = *cfg.BatchSize
	}
	if cfg.Train != nil {
		if cfg.Train.Raw != "" && *trainRaw == "" {
			*trainRaw = cfg.Train.Raw
		}
		if cfg.Train.Graph != "" && *trainGraph == "" {
			*trainGraph = cfg.Train.Graph
		}
		if cfg.Train.Tree != "" && *trainTree == "" {
			*trainTree = cfg.Train.Tree
		}
	}
	if cfg.Test != nil {
		if cfg.Test.Raw != "" && *testRaw == "" {
			*testRaw = cfg.Test.Raw
		}
		if cfg.Test.Graph != "" && *testGraph == "" {
			*testGraph = cfg.Test.Graph
		}
		if cfg.Test.Tree != "" && *testTree == "" {
			*testTree = cfg.Test.Tree
		}
	}
	return nil
}

// writePlots renders a tokenized-length histogram and a polarity bar chart
// into dir.
func writePlots(dir string, stats datasets.Stats) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// Length histogram.
	lengths := make(plotter.Values, len(stats.Lengths))
	for i, l := range stats.Lengths {
		lengths[i] = float64(l)
	}
	p := plot.New()
	p.Title.Text = "Tokenized sequence lengths"
	p.X.Label.Text = "tokens"
	p.Y.Label.Text = "examples"
	hist, err := plotter.NewHist(lengths, 16)
	if err != nil {
		return fmt.Errorf("length histogram: %w", err)
	}
	p.Add(hist)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, filepath.Join(dir, "lengths.png")); err != nil {
		return fmt.Errorf("save length histogram: %w", err)
	}

	// Polarity distribution. Class indices are small and contiguous, so a
	// bar per class keeps the order stable.
	maxClass := 0
	for pol := range stats.PolarityCounts {
		if pol > maxClass {
			maxClass = pol
		}
	}
	counts := make(plotter.Values, maxClass+1)
	names := make([]string, maxClass+1)
	for pol := 0; pol <= maxClass; pol++ {
		counts[pol] = float64(stats.PolarityCounts[pol])
		names[pol] = fmt.Sprintf("%d", pol)
	}
	pb := plot.New()
	pb.Title.Text = "Polarity distribution"
	pb.Y.Label.Text = "examples"
	bars, err := plotter.NewBarChart(counts, vg.Points(30))
	if err != nil {
		return fmt.Errorf("polarity chart: %w", err)
	}
	pb.Add(bars)
	pb.NominalX(names...)
	if err := pb.Save(6*vg.Inch, 4*vg.Inch, filepath.Join(dir, "polarity.png")); err != nil {
		return fmt.Errorf("save polarity chart: %w", err)
	}
	return nil
}
