package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/birdseye/internal/frames"
	"github.com/MeKo-Tech/birdseye/internal/testutil"
)

// sequenceFixture describes one generated camera sequence and the outcome
// the pipeline should report for its frames.
type sequenceFixture struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Dir            string `json:"dir"`
	Frames         int    `json:"frames"`
	Drift          int    `json:"drift"`
	ExpectedStatus string `json:"expected_status"`
}

type sequenceDef struct {
	fixture sequenceFixture
	road    testutil.RoadConfig
	blank   bool
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		generateImages   = flag.Bool("images", true, "Generate synthetic road sequences")
		generateFixtures = flag.Bool("fixtures", true, "Generate sequence fixtures")
		frameCount       = flag.Int("frames", 10, "Frames per sequence")
		verbose          = flag.Bool("v", false, "Verbose output")
		help             = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic road footage for birdseye testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                 # Generate all test data\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -fixtures=false # Generate only frames\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -frames 50      # Longer sequences\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	root, err := testutil.GetProjectRoot()
	if err != nil {
		slog.Error("Failed to find project root", "error", err)
		os.Exit(1)
	}
	if err := os.Chdir(root); err != nil {
		slog.Error("Failed to change to project root", "error", err)
		os.Exit(1)
	}
	if *verbose {
		slog.Info("Options", "root", root, "images", *generateImages, "fixtures", *generateFixtures, "frames", *frameCount)
	}

	defs := sequenceDefs(*frameCount)

	if *generateImages {
		for _, s := range defs {
			if err := writeSequence(s); err != nil {
				slog.Error("Failed to generate sequence", "sequence", s.fixture.Name, "error", err)
				os.Exit(1)
			}
			slog.Info("Generated sequence", "sequence", s.fixture.Name, "frames", s.fixture.Frames)
		}
	}

	if *generateFixtures {
		if err := writeFixtures(defs, "testdata/fixtures"); err != nil {
			slog.Error("Failed to generate fixtures", "error", err)
			os.Exit(1)
		}
		slog.Info("Generated fixtures", "count", len(defs))
	}

	slog.Info("Test data generation completed")
}

func sequenceDefs(n int) []sequenceDef {
	road := testutil.DefaultRoadConfig()

	dusk := road
	dusk.Background = color.RGBA{60, 60, 70, 255}
	dusk.Marking = color.RGBA{200, 200, 190, 255}

	def := func(name, desc string, cfg testutil.RoadConfig, drift int, status string) sequenceDef {
		cfg.Label = name
		return sequenceDef{
			fixture: sequenceFixture{
				Name:           name,
				Description:    desc,
				Dir:            filepath.Join("testdata", "sequences", name),
				Frames:         n,
				Drift:          drift,
				ExpectedStatus: status,
			},
			road: cfg,
		}
	}

	blank := def("blank", "Empty road surface without markings", road, 0, "no_lane")
	blank.blank = true

	return []sequenceDef{
		def("straight", "Centred lane, static camera", road, 0, "rectified"),
		def("drifting", "Markings drift one pixel per frame", road, 1, "rectified"),
		def("dusk", "Low contrast markings", dusk, 0, "rectified"),
		blank,
	}
}

func writeSequence(s sequenceDef) error {
	if err := testutil.EnsureDir(s.fixture.Dir); err != nil {
		return fmt.Errorf("failed to create sequence directory: %w", err)
	}

	var imgs []*image.RGBA
	if s.blank {
		for range s.fixture.Frames {
			imgs = append(imgs, testutil.BlankFrame(s.road.Size, s.road.Background))
		}
	} else {
		imgs = testutil.RoadSequence(s.road, s.fixture.Frames, s.fixture.Drift)
	}

	for i, img := range imgs {
		path := filepath.Join(s.fixture.Dir, fmt.Sprintf("frame_%d.png", i+1))
		if err := frames.Save(img, path); err != nil {
			return err
		}
	}
	return nil
}

func writeFixtures(defs []sequenceDef, dir string) error {
	if err := testutil.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create fixtures directory: %w", err)
	}

	for _, s := range defs {
		data, err := json.MarshalIndent(s.fixture, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, s.fixture.Name+".json"), data, 0o600); err != nil {
			return fmt.Errorf("failed to save fixture '%s': %w", s.fixture.Name, err)
		}
	}
	return nil
}
