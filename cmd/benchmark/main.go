package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/MeKo-Tech/birdseye/internal/pipeline"
	"github.com/MeKo-Tech/birdseye/internal/testutil"
)

var sizes = map[string]testutil.ImageSize{
	"small":  testutil.SmallSize,
	"medium": testutil.MediumSize,
	"large":  testutil.LargeSize,
}

func main() {
	var (
		sequences  = flag.Int("sequences", 4, "Number of synthetic camera sequences")
		frames     = flag.Int("frames", 25, "Frames per sequence")
		workers    = flag.Int("workers", 4, "Sequences processed in parallel")
		backend    = flag.String("backend", "go", "Image processing backend (go, opencv)")
		size       = flag.String("size", "medium", "Frame size (small, medium, large)")
		warp       = flag.Bool("warp", false, "Render rectified images")
		outputFile = flag.String("output", "", "Output file for results (optional)")
	)
	flag.Parse()

	frameSize, ok := sizes[*size]
	if !ok {
		log.Fatalf("Unknown frame size: %s", *size)
	}

	fmt.Println("birdseye Pipeline Benchmark")
	fmt.Println("===========================")

	pl, err := pipeline.NewBuilder().
		WithBackend(pipeline.Backend(*backend)).
		WithWarp(*warp).
		Build()
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer func() { _ = pl.Close() }()

	seqs := syntheticSequences(*sequences, *frames, frameSize)
	fmt.Printf("Processing %d sequences x %d frames (%dx%d, backend %s, %d workers)...\n\n",
		*sequences, *frames, frameSize.Width, frameSize.Height, *backend, *workers)

	start := time.Now()
	if _, err := pl.ProcessSequences(context.Background(), seqs, pipeline.ParallelConfig{MaxWorkers: *workers}); err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}
	elapsed := time.Since(start)

	snapshot := pl.Profiler().Snapshot()
	snapshot["wall_ms"] = elapsed.Milliseconds()
	if n := *sequences * *frames; n > 0 {
		snapshot["fps"] = float64(n) / elapsed.Seconds()
	}
	printSnapshot(snapshot)

	if *outputFile != "" {
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode results: %v", err)
		}
		if err := os.WriteFile(*outputFile, data, 0o600); err != nil {
			log.Fatalf("Failed to write results: %v", err)
		}
		fmt.Printf("\nResults saved to: %s\n", *outputFile)
	}
}

// syntheticSequences renders drifting road footage, one camera per sequence.
func syntheticSequences(n, frames int, size testutil.ImageSize) []pipeline.Sequence {
	cfg := scaledRoad(size)
	seqs := make([]pipeline.Sequence, 0, n)
	for i := range n {
		imgs := testutil.RoadSequence(testutil.ShiftRoad(cfg, i*3), frames, 1)
		loaders := make([]pipeline.FrameLoader, 0, len(imgs))
		for _, img := range imgs {
			loaders = append(loaders, pipeline.StaticFrame(pipeline.Frame{Image: img}))
		}
		seqs = append(seqs, pipeline.Sequence{Name: fmt.Sprintf("cam%d", i), Frames: loaders})
	}
	return seqs
}

// scaledRoad stretches the default road geometry to the frame size.
func scaledRoad(size testutil.ImageSize) testutil.RoadConfig {
	cfg := testutil.DefaultRoadConfig()
	base := cfg.Size
	sx := float64(size.Width) / float64(base.Width)
	sy := float64(size.Height) / float64(base.Height)
	for i := range 2 {
		cfg.Left[i].X = int(float64(cfg.Left[i].X) * sx)
		cfg.Left[i].Y = int(float64(cfg.Left[i].Y) * sy)
		cfg.Right[i].X = int(float64(cfg.Right[i].X) * sx)
		cfg.Right[i].Y = int(float64(cfg.Right[i].Y) * sy)
	}
	cfg.LineWidth *= sx
	cfg.Size = size
	return cfg
}

func printSnapshot(s map[string]any) {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := s[k].(type) {
		case float64:
			fmt.Printf("  %-24s %10.2f\n", k, v)
		default:
			fmt.Printf("  %-24s %10v\n", k, v)
		}
	}
}
