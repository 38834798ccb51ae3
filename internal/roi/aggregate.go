// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package roi merges per-slice 2D detections into a single 3D region
// of interest.
package roi

import (
	"math"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Aggregate computes the axis-aligned union of all detection boxes
// across slices: x/y extents are the exact min/max over all boxes,
// the z extent is [min, max] of slice indices containing at least one
// detection. A symmetric padding margin (voxels) is applied on every
// axis, then the box is clamped to [0, extent-1].
//
// An empty detection sequence yields the full volume extent on all
// axes — no crop, by policy, not an error. The result is deterministic
// for a given detection sequence; only min/max arithmetic is involved,
// so iteration order cannot matter.
func Aggregate(dets []types.Detection, width, height, depth, padding int) types.ROI {
	if len(dets) == 0 {
		return types.FullROI(width, height, depth)
	}

	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	zMin, zMax := dets[0].SliceIndex, dets[0].SliceIndex

	for _, d := range dets {
		xMin = math.Min(xMin, d.Box.XMin)
		yMin = math.Min(yMin, d.Box.YMin)
		xMax = math.Max(xMax, d.Box.XMax)
		yMax = math.Max(yMax, d.Box.YMax)
		if d.SliceIndex < zMin {
			zMin = d.SliceIndex
		}
		if d.SliceIndex > zMax {
			zMax = d.SliceIndex
		}
	}

	r := types.ROI{
		XMin: int(math.Floor(xMin)) - padding,
		YMin: int(math.Floor(yMin)) - padding,
		ZMin: zMin - padding,
		XMax: int(math.Ceil(xMax)) + padding,
		YMax: int(math.Ceil(yMax)) + padding,
		ZMax: zMax + padding,
	}
	return clamp(r, width, height, depth)
}

// clamp bounds r to [0, extent-1] per axis.
func clamp(r types.ROI, width, height, depth int) types.ROI {
	r.XMin = clampInt(r.XMin, 0, width-1)
	r.YMin = clampInt(r.YMin, 0, height-1)
	r.ZMin = clampInt(r.ZMin, 0, depth-1)
	r.XMax = clampInt(r.XMax, 0, width-1)
	r.YMax = clampInt(r.YMax, 0, height-1)
	r.ZMax = clampInt(r.ZMax, 0, depth-1)
	return r
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
