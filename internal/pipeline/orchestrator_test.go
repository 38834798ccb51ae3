// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scan-pipeline/pkg/model"
	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// writeScan writes a 16×16×8 slice stack with a bright block spanning
// x,y ∈ [4,11] on slices 2..5.
func writeScan(t *testing.T, dataDir, scanID string) {
	t.Helper()
	dir := ScanDir(dataDir, scanID)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for z := 0; z < 8; z++ {
		img := image.NewGray16(image.Rect(0, 0, 16, 16))
		if z >= 2 && z <= 5 {
			for y := 4; y <= 11; y++ {
				for x := 4; x <= 11; x++ {
					img.SetGray16(x, y, color.Gray16{Y: 60000})
				}
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("slice_%d.png", z)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
}

func testConfig(dataDir string) types.PipelineConfig {
	cfg := types.DefaultConfig()
	cfg.Storage.DataDir = dataDir
	cfg.Segmentation.PatchSize = [3]int{8, 8, 8}
	cfg.Segmentation.Workers = 2
	return cfg
}

// countingDetector and countingSegmenter wrap the builtin models to
// observe whether a stage re-executed on resume.
type countingDetector struct {
	inner model.Detector
	calls int
}

func (c *countingDetector) Detect(ctx context.Context, img *types.Image) ([]types.Detection, error) {
	c.calls++
	return c.inner.Detect(ctx, img)
}

type countingSegmenter struct {
	inner model.Segmenter
	calls int
	err   error
}

func (c *countingSegmenter) Segment(ctx context.Context, patch *types.Volume) (*types.Probs, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Segment(ctx, patch)
}

// testOrchestrator wires counting models directly, bypassing New's
// builtin wiring.
func testOrchestrator(cfg types.PipelineConfig, store *Store, det *countingDetector, seg *countingSegmenter) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		detector:  det,
		segmenter: seg,
		out:       &bytes.Buffer{},
	}
}

func newCountingModels(cfg types.PipelineConfig) (*countingDetector, *countingSegmenter) {
	return &countingDetector{inner: &model.ThresholdDetector{Threshold: cfg.Models.Threshold}},
		&countingSegmenter{inner: &model.ThresholdSegmenter{Classes: cfg.Models.Classes}}
}

func TestOrchestratorEndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	writeScan(t, dataDir, "scan-1")
	cfg := testConfig(dataDir)

	store := must(NewStore(dataDir))(t)
	orch, err := New(cfg, store, "", &bytes.Buffer{})
	require.NoError(t, err)

	run, err := orch.Run(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, run.Status)

	resultDir := ResultDir(dataDir, "scan-1")
	for _, name := range []string{detectionsFile, roiFile, normalizedFile, labelsFile, metricsFile} {
		_, err := os.Stat(filepath.Join(resultDir, name))
		assert.NoError(t, err, "artifact %s should exist", name)
	}

	// Padding 2 around the bright block, clamped in z.
	gotROI, err := readROI(filepath.Join(resultDir, roiFile))
	require.NoError(t, err)
	assert.Equal(t, types.ROI{XMin: 2, YMin: 2, ZMin: 0, XMax: 13, YMax: 13, ZMax: 7}, gotROI)

	data, err := os.ReadFile(filepath.Join(resultDir, metricsFile))
	require.NoError(t, err)
	var doc metricsDoc
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "scan-1", doc.ScanID)
	require.Len(t, doc.Organs, 1)
	organ := doc.Organs[0]
	assert.Equal(t, int32(1), organ.ClassLabel)
	assert.Equal(t, "digestive_tract", organ.OrganName)
	assert.NotEmpty(t, organ.ID)
	assert.Equal(t, cfg.Models.SegmenterVersion, organ.ModelVersion)
	// The bright block is 8×8×4 voxels at unit spacing.
	assert.Equal(t, 256, organ.NumVoxels)
	assert.InDelta(t, 256, organ.VolumeMM3, 1e-9)
}

func TestOrchestratorResumeIsNoOp(t *testing.T) {
	dataDir := t.TempDir()
	writeScan(t, dataDir, "scan-1")
	cfg := testConfig(dataDir)

	store := must(NewStore(dataDir))(t)
	det, seg := newCountingModels(cfg)
	orch := testOrchestrator(cfg, store, det, seg)

	ctx := context.Background()
	_, err := orch.Run(ctx, "scan-1")
	require.NoError(t, err)
	require.Greater(t, det.calls, 0)
	require.Greater(t, seg.calls, 0)

	det.calls, seg.calls = 0, 0
	run, err := orch.Run(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, run.Status)
	assert.Zero(t, det.calls, "detector must not re-run on a completed scan")
	assert.Zero(t, seg.calls, "segmenter must not re-run on a completed scan")
}

func TestOrchestratorConfigChangeInvalidates(t *testing.T) {
	dataDir := t.TempDir()
	writeScan(t, dataDir, "scan-1")
	cfg := testConfig(dataDir)

	store := must(NewStore(dataDir))(t)
	det, seg := newCountingModels(cfg)
	_, err := testOrchestrator(cfg, store, det, seg).Run(context.Background(), "scan-1")
	require.NoError(t, err)

	// A threshold change must discard every artifact and start over.
	cfg.Detection.MinConfidence = 0.4
	det.calls, seg.calls = 0, 0
	run, err := testOrchestrator(cfg, store, det, seg).Run(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, run.Status)
	assert.Greater(t, det.calls, 0, "detection must re-run after a config change")
	assert.Greater(t, seg.calls, 0, "segmentation must re-run after a config change")

	newHash, err := cfg.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, newHash, run.ConfigHash)
}

func TestOrchestratorFailureAndResume(t *testing.T) {
	dataDir := t.TempDir()
	writeScan(t, dataDir, "scan-1")
	cfg := testConfig(dataDir)

	store := must(NewStore(dataDir))(t)
	det, seg := newCountingModels(cfg)
	seg.err = &types.InferenceError{Op: "segment", Err: errors.New("weights not loaded")}

	ctx := context.Background()
	run, err := testOrchestrator(cfg, store, det, seg).Run(ctx, "scan-1")
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, types.StatusStageFailed, run.Status)
	assert.Equal(t, types.StageSegmenting, run.FailedStage)
	assert.Contains(t, run.Error, "weights not loaded")

	// The failed state is persisted.
	stored, err := store.GetRun(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStageFailed, stored.Status)

	// Resume with a healthy segmenter: the earlier stages' artifacts
	// are kept, only segmentation onward re-executes.
	seg.err = nil
	detCallsBefore := det.calls
	run, err = testOrchestrator(cfg, store, det, seg).Run(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, run.Status)
	assert.Equal(t, detCallsBefore, det.calls, "detection must not re-run on resume")
	assert.Greater(t, seg.calls, 0)
}

func TestOrchestratorMissingScan(t *testing.T) {
	dataDir := t.TempDir()
	cfg := testConfig(dataDir)
	store := must(NewStore(dataDir))(t)

	orch, err := New(cfg, store, "", &bytes.Buffer{})
	require.NoError(t, err)

	run, err := orch.Run(context.Background(), "no-such-scan")
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, types.StatusStageFailed, run.Status)
	assert.Equal(t, types.StageDetecting, run.FailedStage)
}

func TestNewRejectsRemoteWithoutBaseURL(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Models.Kind = types.ModelRemote
	store := must(NewStore(cfg.Storage.DataDir))(t)

	_, err := New(cfg, store, "", &bytes.Buffer{})
	var inv *types.InvalidInputError
	assert.ErrorAs(t, err, &inv)
}

// must adapts a (value, error) constructor for terse test setup.
func must(s *Store, err error) func(t *testing.T) *Store {
	return func(t *testing.T) *Store {
		t.Helper()
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}
}
