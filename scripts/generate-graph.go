//go:build ignore

// Package main generates a synthetic knowledge graph for benchmarking.
// Usage: go run scripts/generate-graph.go -concepts 100000 -degree 8 -output testdata/bench
//
// Edges follow preferential attachment so degrees are heavy-tailed like real
// concept graphs. A fraction of labels has no edges, and a few edge lines are
// malformed, to exercise the skip-and-warn paths.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numConcepts = flag.Int("concepts", 10000, "Number of concepts")
	degree      = flag.Int("degree", 6, "Edges added per new concept")
	orphans     = flag.Float64("orphans", 0.02, "Fraction of extra labelled ids without edges")
	malformed   = flag.Int("malformed", 3, "Number of malformed edge lines")
	outputDir   = flag.String("output", "testdata/bench", "Output directory")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var words = []string{
	"graph", "walk", "random", "markov", "chain", "spectral", "eigen", "vector",
	"matrix", "sparse", "kernel", "network", "centrality", "flow", "cut", "tree",
	"cluster", "community", "diffusion", "restart", "stationary", "ergodic",
	"bipartite", "laplacian", "hub", "authority", "rank", "path", "cycle", "clique",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fail(err)
	}

	// External ids are sparse and unordered.
	ids := make([]int64, *numConcepts)
	for i := range ids {
		ids[i] = int64(i)*7919 + 1000 + rng.Int63n(7000)
	}

	if err := writeEdges(rng, ids); err != nil {
		fail(err)
	}
	if err := writeLabels(rng, ids); err != nil {
		fail(err)
	}
	fmt.Printf("Generated %d concepts in %s\n", len(ids), *outputDir)
}

func writeEdges(rng *rand.Rand, ids []int64) error {
	f, err := os.Create(filepath.Join(*outputDir, "edges.tsv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	// targets holds one entry per edge endpoint, so sampling from it is
	// proportional to degree.
	targets := make([]int, 0, len(ids)**degree*2)
	edges := 0
	for i := 1; i < len(ids); i++ {
		for k := 0; k < *degree && k < i; k++ {
			var j int
			if len(targets) == 0 || rng.Float64() < 0.2 {
				j = rng.Intn(i)
			} else {
				j = targets[rng.Intn(len(targets))]
			}
			fmt.Fprintf(w, "%d\t%d\n", ids[i], ids[j])
			targets = append(targets, i, j)
			edges++
		}
		if *malformed > 0 && rng.Intn(len(ids)) < *malformed {
			fmt.Fprintf(w, "%d\tnot-a-number\n", ids[i])
		}
	}
	fmt.Printf("  edges.tsv: %d edges\n", edges)
	return w.Flush()
}

func writeLabels(rng *rand.Rand, ids []int64) error {
	f, err := os.Create(filepath.Join(*outputDir, "labels.tsv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	label := func() string {
		return fmt.Sprintf("%s %s", words[rng.Intn(len(words))], words[rng.Intn(len(words))])
	}
	for _, id := range ids {
		fmt.Fprintf(w, "%d\tconcept\t%s\n", id, label())
	}
	extra := int(float64(len(ids)) * *orphans)
	for i := 0; i < extra; i++ {
		fmt.Fprintf(w, "%d\tconcept\t%s\n", int64(len(ids))*7919+10000+int64(i), label())
	}
	fmt.Printf("  labels.tsv: %d labels (%d without edges)\n", len(ids)+extra, extra)
	return w.Flush()
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
