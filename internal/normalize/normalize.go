// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize crops the source volume to a region of interest
// and rescales intensities into [0, 1].
package normalize

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Apply copies the ROI subregion of src into a new volume and applies
// the affine transform normalized = clip((raw-lower)/(upper-lower),
// 0, 1). It fails with InvalidROIError for a degenerate ROI and never
// mutates src.
func Apply(src *types.Volume, roi types.ROI, cfg types.NormalizationConfig) (*types.Volume, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := roi.Validate(src.Width, src.Height, src.Depth); err != nil {
		return nil, err
	}
	if roi.Dx() <= 0 || roi.Dy() <= 0 || roi.Dz() <= 0 {
		return nil, &types.InvalidROIError{ROI: roi, Reason: "zero extent after clamping"}
	}

	out := types.NewVolume(roi.Dx(), roi.Dy(), roi.Dz(), src.Spacing)
	for z := 0; z < out.Depth; z++ {
		for y := 0; y < out.Height; y++ {
			srcRow := src.Idx(roi.XMin, roi.YMin+y, roi.ZMin+z)
			dstRow := out.Idx(0, y, z)
			copy(out.Data[dstRow:dstRow+out.Width], src.Data[srcRow:srcRow+out.Width])
		}
	}

	lower, upper, err := bounds(out.Data, cfg)
	if err != nil {
		return nil, err
	}

	scale := 1 / (upper - lower)
	for i, v := range out.Data {
		n := (v - lower) * scale
		if n < 0 {
			n = 0
		} else if n > 1 {
			n = 1
		}
		out.Data[i] = n
	}
	return out, nil
}

// bounds returns the affine lower/upper window. With AutoPercentile
// set, the window is the [p, 1-p] quantile range of the cropped
// intensities; otherwise the configured fixed bounds.
func bounds(data []float64, cfg types.NormalizationConfig) (float64, float64, error) {
	lower, upper := cfg.Lower, cfg.Upper
	if p := cfg.AutoPercentile; p > 0 {
		if p >= 0.5 {
			return 0, 0, &types.InvalidInputError{Reason: "auto_percentile must be below 0.5"}
		}
		sorted := make([]float64, len(data))
		copy(sorted, data)
		sort.Float64s(sorted)
		lower = stat.Quantile(p, stat.Empirical, sorted, nil)
		upper = stat.Quantile(1-p, stat.Empirical, sorted, nil)
	}
	if upper <= lower {
		return 0, 0, &types.InvalidInputError{Reason: "normalization window is empty (upper <= lower)"}
	}
	return lower, upper, nil
}
