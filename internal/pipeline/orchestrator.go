// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/scan-pipeline/internal/detect"
	"github.com/pdiddy/scan-pipeline/internal/ingest"
	"github.com/pdiddy/scan-pipeline/internal/normalize"
	"github.com/pdiddy/scan-pipeline/internal/nrrd"
	"github.com/pdiddy/scan-pipeline/internal/quantify"
	"github.com/pdiddy/scan-pipeline/internal/roi"
	"github.com/pdiddy/scan-pipeline/internal/segment"
	"github.com/pdiddy/scan-pipeline/pkg/model"
	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Orchestrator drives one scan through the stage sequence, persisting
// every transition and stage artifact so an interrupted run resumes at
// the first stage whose artifact is missing. Completed stages are never
// re-executed within a run.
type Orchestrator struct {
	cfg       types.PipelineConfig
	store     *Store
	detector  model.Detector
	segmenter model.Segmenter
	out       io.Writer
}

// New wires the configured models into an orchestrator. The token is
// the optional bearer token for the remote model server.
func New(cfg types.PipelineConfig, store *Store, token string, w io.Writer) (*Orchestrator, error) {
	o := &Orchestrator{cfg: cfg, store: store, out: w}

	switch cfg.Models.Kind {
	case types.ModelBuiltin, "":
		o.detector = &model.ThresholdDetector{Threshold: cfg.Models.Threshold}
		o.segmenter = &model.ThresholdSegmenter{Classes: cfg.Models.Classes}
	case types.ModelRemote:
		if cfg.Models.BaseURL == "" {
			return nil, &types.InvalidInputError{Reason: "models.base_url is required for remote models"}
		}
		rc := model.NewRemoteClient(cfg.Models, token)
		o.detector = rc
		o.segmenter = rc
	default:
		return nil, &types.InvalidInputError{Reason: fmt.Sprintf("unknown model kind %q", cfg.Models.Kind)}
	}
	return o, nil
}

// runState carries the in-memory stage inputs across the stage loop.
// Each field is loaded lazily, either computed by the producing stage
// or reloaded from that stage's persisted artifact on resume.
type runState struct {
	raw        *types.Volume
	dets       []types.Detection
	haveDets   bool
	roi        types.ROI
	haveROI    bool
	normalized *types.Volume
	labels     *types.LabelVolume
}

// Run executes the pipeline for one scan. Re-invoking on a completed
// run with an unchanged configuration is a no-op; a changed
// configuration fingerprint invalidates all persisted artifacts and
// restarts from the first stage. A failed run re-invoked with the same
// configuration resumes at the failed stage, keeping the artifacts of
// the stages that succeeded.
func (o *Orchestrator) Run(ctx context.Context, scanID string) (*types.PipelineRun, error) {
	hash, err := o.cfg.Fingerprint()
	if err != nil {
		return nil, err
	}

	run, err := o.store.GetRun(ctx, scanID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if run == nil {
		run = &types.PipelineRun{
			ScanID:     scanID,
			Status:     types.StatusPending,
			ConfigHash: hash,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := o.store.SaveRun(ctx, run); err != nil {
			return nil, err
		}
	}

	if run.ConfigHash != hash {
		fmt.Fprintf(o.out, "configuration changed, discarding artifacts for %s\n", scanID)
		if err := o.invalidate(ctx, run, hash); err != nil {
			return nil, err
		}
	}

	switch run.Status {
	case types.StatusCompleted:
		fmt.Fprintf(o.out, "%s already completed\n", scanID)
		return run, nil
	case types.StatusStageFailed:
		fmt.Fprintf(o.out, "retrying %s (previous failure at %s: %s)\n", scanID, run.FailedStage, run.Error)
		run.Status = types.StatusPending
		run.FailedStage = ""
		run.Error = ""
	}

	resultDir := ResultDir(o.cfg.Storage.DataDir, scanID)
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating result directory: %w", err)
	}

	// The stage cursor is rebuilt while walking; starting clean keeps
	// the transition guard valid even when an early artifact vanished
	// behind a later recorded stage.
	run.Stage = ""

	state := &runState{}
	for _, stage := range types.Stages() {
		done, err := o.stageDone(ctx, scanID, stage)
		if err != nil {
			return nil, err
		}
		if done {
			fmt.Fprintf(o.out, "%s: %s already done\n", scanID, stage)
			run.Stage = stage
			continue
		}

		if err := run.Advance(stage); err != nil {
			return nil, err
		}
		run.UpdatedAt = time.Now().UTC()
		if err := o.store.SaveRun(ctx, run); err != nil {
			return nil, err
		}

		fmt.Fprintf(o.out, "%s: %s\n", scanID, stage)
		if err := o.execute(ctx, scanID, stage, state); err != nil {
			stageErr := fmt.Errorf("stage %s: %w", stage, err)
			if failErr := run.Fail(stage, stageErr); failErr != nil {
				return nil, failErr
			}
			run.UpdatedAt = time.Now().UTC()
			if saveErr := o.store.SaveRun(ctx, run); saveErr != nil {
				return nil, saveErr
			}
			return run, stageErr
		}

		path := filepath.Join(resultDir, artifactFile(stage))
		if err := o.store.SaveArtifact(ctx, scanID, stage, path); err != nil {
			return nil, err
		}
	}

	if err := run.Complete(); err != nil {
		return nil, err
	}
	run.UpdatedAt = time.Now().UTC()
	if err := o.store.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	fmt.Fprintf(o.out, "%s: completed\n", scanID)
	return run, nil
}

// invalidate drops all artifact records and files for the scan and
// resets the run to a fresh pending state under the new fingerprint.
func (o *Orchestrator) invalidate(ctx context.Context, run *types.PipelineRun, hash string) error {
	if err := o.store.DeleteArtifacts(ctx, run.ScanID); err != nil {
		return err
	}
	resultDir := ResultDir(o.cfg.Storage.DataDir, run.ScanID)
	if err := os.RemoveAll(resultDir); err != nil {
		return fmt.Errorf("removing result directory: %w", err)
	}

	run.Status = types.StatusPending
	run.Stage = ""
	run.FailedStage = ""
	run.Error = ""
	run.ConfigHash = hash
	run.UpdatedAt = time.Now().UTC()
	return o.store.SaveRun(ctx, run)
}

// stageDone reports whether a stage's artifact exists in both the
// database and on disk. A recorded artifact whose file is gone counts
// as not done, so the stage re-executes.
func (o *Orchestrator) stageDone(ctx context.Context, scanID string, stage types.Stage) (bool, error) {
	path, err := o.store.ArtifactPath(ctx, scanID, stage)
	if err != nil {
		return false, err
	}
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking artifact %s: %w", path, err)
	}
	return true, nil
}

// execute runs one stage, reading its inputs from state (reloading
// persisted artifacts of earlier stages when resuming) and writing its
// artifact on success.
func (o *Orchestrator) execute(ctx context.Context, scanID string, stage types.Stage, state *runState) error {
	resultDir := ResultDir(o.cfg.Storage.DataDir, scanID)
	path := filepath.Join(resultDir, artifactFile(stage))

	switch stage {
	case types.StageDetecting:
		if err := o.loadRaw(scanID, state); err != nil {
			return err
		}
		adapter := &detect.Adapter{Model: o.detector, MinConfidence: o.cfg.Detection.MinConfidence}
		dets, err := detect.DetectVolume(ctx, state.raw, adapter, o.out)
		if err != nil {
			return err
		}
		state.dets = dets
		state.haveDets = true
		return writeDetections(path, scanID, o.cfg.Models.DetectorVersion, dets)

	case types.StageAggregating:
		if err := o.loadRaw(scanID, state); err != nil {
			return err
		}
		if !state.haveDets {
			dets, err := readDetections(filepath.Join(resultDir, detectionsFile))
			if err != nil {
				return err
			}
			state.dets = dets
			state.haveDets = true
		}
		r := roi.Aggregate(state.dets, state.raw.Width, state.raw.Height, state.raw.Depth, o.cfg.Aggregation.Padding)
		fmt.Fprintf(o.out, "region of interest: %s\n", r)
		state.roi = r
		state.haveROI = true
		return writeROI(path, scanID, r, state.raw.Width, state.raw.Height, state.raw.Depth)

	case types.StageNormalizing:
		if err := o.loadRaw(scanID, state); err != nil {
			return err
		}
		if err := o.loadROI(resultDir, state); err != nil {
			return err
		}
		norm, err := normalize.Apply(state.raw, state.roi, o.cfg.Normalization)
		if err != nil {
			return err
		}
		fmt.Fprintf(o.out, "normalized crop: %dx%dx%d\n", norm.Width, norm.Height, norm.Depth)
		state.normalized = norm
		return nrrd.WriteVolume(path, norm)

	case types.StageSegmenting:
		if state.normalized == nil {
			norm, err := nrrd.ReadVolume(filepath.Join(resultDir, normalizedFile))
			if err != nil {
				return err
			}
			state.normalized = norm
		}
		engine := &segment.Engine{Segmenter: o.segmenter, Config: o.cfg.Segmentation}
		labels, err := engine.Run(ctx, state.normalized, o.out)
		if err != nil {
			return err
		}
		if o.cfg.Segmentation.CleanupLargestComponent {
			cleared := segment.KeepLargestComponents(labels)
			fmt.Fprintf(o.out, "component cleanup cleared %d voxels\n", cleared)
		}
		state.labels = labels
		return nrrd.WriteLabels(path, labels)

	case types.StageQuantifying:
		if state.labels == nil {
			labels, err := nrrd.ReadLabels(filepath.Join(resultDir, labelsFile))
			if err != nil {
				return err
			}
			state.labels = labels
		}
		if err := o.loadROI(resultDir, state); err != nil {
			return err
		}
		res, err := quantify.Compute(state.labels, state.roi, o.cfg.Quantification, o.out)
		if err != nil {
			return err
		}
		if o.cfg.Quantification.ExportMeshes {
			if err := o.exportMeshes(resultDir, res); err != nil {
				return err
			}
		}
		return writeMetrics(path, scanID, o.cfg.Models.SegmenterVersion, res.Metrics, res.Failures)
	}
	return fmt.Errorf("unknown stage %q", stage)
}

// loadRaw ingests the scan's slice stack once per invocation.
func (o *Orchestrator) loadRaw(scanID string, state *runState) error {
	if state.raw != nil {
		return nil
	}
	vol, err := ingest.LoadScan(ScanDir(o.cfg.Storage.DataDir, scanID), o.out)
	if err != nil {
		return err
	}
	state.raw = vol
	return nil
}

// loadROI reloads the aggregation artifact when resuming past it.
func (o *Orchestrator) loadROI(resultDir string, state *runState) error {
	if state.haveROI {
		return nil
	}
	r, err := readROI(filepath.Join(resultDir, roiFile))
	if err != nil {
		return err
	}
	state.roi = r
	state.haveROI = true
	return nil
}

// exportMeshes writes one binary STL per measured organ next to the
// metrics document.
func (o *Orchestrator) exportMeshes(resultDir string, res *quantify.Result) error {
	for _, m := range res.Metrics {
		mesh, ok := res.Meshes[m.ClassLabel]
		if !ok {
			continue
		}
		path := filepath.Join(resultDir, fmt.Sprintf("%s.stl", m.OrganName))
		if err := quantify.WriteSTL(path, mesh); err != nil {
			return fmt.Errorf("exporting mesh for %s: %w", m.OrganName, err)
		}
		fmt.Fprintf(o.out, "wrote %s (%d triangles)\n", path, len(mesh))
	}
	return nil
}
