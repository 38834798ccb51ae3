// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package model

import (
	"context"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// ThresholdDetector is the builtin reference detector: it reports the
// bounding box of all pixels at or above Threshold × the slice's
// maximum intensity as a single class-1 detection. Deterministic and
// stateless; used for offline runs and as the test stand-in for a
// trained 2D detector.
type ThresholdDetector struct {
	// Threshold is the intensity cut as a fraction of the slice
	// maximum, in (0, 1].
	Threshold float64
}

// Detect implements Detector. A slice with no pixel above the cut
// yields an empty sequence, not an error.
func (d *ThresholdDetector) Detect(_ context.Context, img *types.Image) ([]types.Detection, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	max := 0.0
	for _, v := range img.Pix {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return nil, nil
	}

	cut := d.Threshold * max
	xMin, yMin := img.Width, img.Height
	xMax, yMax := -1, -1
	var sum float64
	var n int
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			v := img.At(x, y)
			if v < cut {
				continue
			}
			if x < xMin {
				xMin = x
			}
			if y < yMin {
				yMin = y
			}
			if x > xMax {
				xMax = x
			}
			if y > yMax {
				yMax = y
			}
			sum += v / max
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}

	return []types.Detection{{
		Box: types.Rect{
			XMin: float64(xMin),
			YMin: float64(yMin),
			XMax: float64(xMax),
			YMax: float64(yMax),
		},
		Confidence: sum / float64(n),
		ClassLabel: 1,
	}}, nil
}

// ThresholdSegmenter is the builtin reference segmenter: class 1
// probability equals the clipped voxel intensity, background the
// complement, remaining classes zero. Probability depends only on the
// voxel value, so independent tiles of the same data produce identical
// outputs.
type ThresholdSegmenter struct {
	// Classes is the output class count including background (≥ 2).
	Classes int
}

// Segment implements Segmenter.
func (s *ThresholdSegmenter) Segment(_ context.Context, patch *types.Volume) (*types.Probs, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	classes := s.Classes
	if classes < 2 {
		classes = 2
	}

	probs := types.NewProbs(classes, patch.Width, patch.Height, patch.Depth)
	n := patch.Width * patch.Height * patch.Depth
	for i, v := range patch.Data {
		p := v
		if p < 0 {
			p = 0
		} else if p > 1 {
			p = 1
		}
		// Class-major layout: class 0 occupies the first n entries,
		// class 1 the next n.
		probs.Data[i] = 1 - p
		probs.Data[n+i] = p
	}
	return probs, nil
}
