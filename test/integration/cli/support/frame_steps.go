package support

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/birdseye/internal/frames"
	"github.com/MeKo-Tech/birdseye/internal/testutil"
)

// aCameraWithRoadFrames writes n synthetic road frames to {tmp}/<camera>.
func (testCtx *TestContext) aCameraWithRoadFrames(camera string, n int) error {
	dir := filepath.Join(testCtx.TempDir, camera)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create camera directory: %w", err)
	}
	for i, img := range testutil.RoadSequence(testutil.DefaultRoadConfig(), n, 0) {
		p := filepath.Join(dir, fmt.Sprintf("frame_%d.png", i+1))
		if err := frames.Save(img, p); err != nil {
			return err
		}
	}
	return nil
}

// aRoadFrame writes a single synthetic road frame.
func (testCtx *TestContext) aRoadFrame(name string) error {
	return frames.Save(testutil.GenerateRoadFrame(testutil.DefaultRoadConfig()), testCtx.path(name))
}

// aBlankFrame writes a frame without any lane markings.
func (testCtx *TestContext) aBlankFrame(name string) error {
	img := testutil.BlankFrame(testutil.MediumSize, testutil.DefaultRoadConfig().Background)
	return frames.Save(img, testCtx.path(name))
}

// RegisterFrameSteps registers the synthetic frame fixtures.
func (testCtx *TestContext) RegisterFrameSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a camera "([^"]*)" with (\d+) road frames$`, testCtx.aCameraWithRoadFrames)
	sc.Step(`^a road frame "([^"]*)"$`, testCtx.aRoadFrame)
	sc.Step(`^a blank frame "([^"]*)"$`, testCtx.aBlankFrame)
}
