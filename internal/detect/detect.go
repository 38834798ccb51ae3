// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package detect runs the wrapped 2D detector over every slice of a
// volume, filters results by confidence, and orders them for the ROI
// aggregator.
package detect

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/pdiddy/scan-pipeline/pkg/model"
	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Adapter wraps a detection model with the pipeline's filtering and
// ordering semantics. The adapter itself is stateless; it never
// mutates the images it is given.
type Adapter struct {
	Model model.Detector

	// MinConfidence drops detections below this confidence.
	MinConfidence float64
}

// DetectSlice returns the detections for one slice, filtered to
// MinConfidence and sorted by confidence descending, with SliceIndex
// stamped on every detection. A slice where nothing passes the
// threshold yields an empty sequence, not an error.
func (a *Adapter) DetectSlice(ctx context.Context, img *types.Image, sliceIndex int) ([]types.Detection, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	raw, err := a.Model.Detect(ctx, img)
	if err != nil {
		return nil, err
	}

	dets := make([]types.Detection, 0, len(raw))
	for _, d := range raw {
		if d.Confidence < a.MinConfidence {
			continue
		}
		d.SliceIndex = sliceIndex
		dets = append(dets, d)
	}

	// Stable sort keeps the model's own ordering among equal
	// confidences, so the output is deterministic for a fixed input.
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
	return dets, nil
}

// DetectVolume runs the adapter over every slice of v in order and
// returns the combined detection sequence, ordered by slice index.
// Per-slice progress is written to w.
func DetectVolume(ctx context.Context, v *types.Volume, a *Adapter, w io.Writer) ([]types.Detection, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	var all []types.Detection
	slicesWithHits := 0
	for z := 0; z < v.Depth; z++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		dets, err := a.DetectSlice(ctx, v.Slice(z), z)
		if err != nil {
			return nil, fmt.Errorf("detecting slice %d: %w", z, err)
		}
		if len(dets) > 0 {
			fmt.Fprintf(w, "slice %d: %d detections\n", z, len(dets))
			slicesWithHits++
		}
		all = append(all, dets...)
	}

	fmt.Fprintf(w, "\ndetections: %d across %d of %d slices\n", len(all), slicesWithHits, v.Depth)
	return all, nil
}
