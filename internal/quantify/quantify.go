// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quantify computes per-organ geometric measurements from a
// multi-class label volume.
package quantify

import (
	"fmt"
	"io"
	"sort"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Result holds the metrics of one quantification run. Labels whose
// surface extraction failed appear in Failures and are omitted from
// Metrics; the run as a whole still succeeds.
type Result struct {
	Metrics []types.OrganMetrics

	// Meshes holds the per-label surface triangulation, retained for
	// STL export so the exported mesh and the measured area always
	// come from the same surface.
	Meshes map[int32][]Triangle

	Failures map[int32]error
}

// labelStats accumulates one label's voxel statistics in a single
// pass over the volume.
type labelStats struct {
	count            int
	sumX, sumY, sumZ float64
	minX, minY, minZ int
	maxX, maxY, maxZ int
}

// Compute measures every non-background label present in lv. The ROI
// places centroids into the coordinate frame of the original pre-crop
// volume. Metrics are emitted in ascending label order, independent of
// voxel iteration order; labels with zero voxels are omitted entirely.
func Compute(lv *types.LabelVolume, roi types.ROI, cfg types.QuantificationConfig, w io.Writer) (*Result, error) {
	if !lv.Spacing.Valid() {
		return nil, &types.InvalidInputError{
			Reason: fmt.Sprintf("non-positive spacing (%g, %g, %g)", lv.Spacing.X, lv.Spacing.Y, lv.Spacing.Z),
		}
	}

	stats := make(map[int32]*labelStats)
	for z := 0; z < lv.Depth; z++ {
		for y := 0; y < lv.Height; y++ {
			for x := 0; x < lv.Width; x++ {
				label := lv.At(x, y, z)
				if label == 0 {
					continue
				}
				s, ok := stats[label]
				if !ok {
					s = &labelStats{minX: x, minY: y, minZ: z, maxX: x, maxY: y, maxZ: z}
					stats[label] = s
				}
				s.count++
				s.sumX += float64(x)
				s.sumY += float64(y)
				s.sumZ += float64(z)
				if x < s.minX {
					s.minX = x
				}
				if y < s.minY {
					s.minY = y
				}
				if z < s.minZ {
					s.minZ = z
				}
				if x > s.maxX {
					s.maxX = x
				}
				if y > s.maxY {
					s.maxY = y
				}
				if z > s.maxZ {
					s.maxZ = z
				}
			}
		}
	}

	labels := make([]int32, 0, len(stats))
	for label := range stats {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	res := &Result{
		Meshes:   make(map[int32][]Triangle),
		Failures: make(map[int32]error),
	}
	sp := lv.Spacing
	for _, label := range labels {
		s := stats[label]
		fmt.Fprintf(w, "quantifying %s (label %d, %d voxels)\n", organName(cfg, label), label, s.count)

		mesh, err := Surface(lv, label, cfg.SurfaceMethod)
		if err != nil {
			fmt.Fprintf(w, "  warning: %v; label omitted\n", err)
			res.Failures[label] = err
			continue
		}
		res.Meshes[label] = mesh

		n := float64(s.count)
		m := types.OrganMetrics{
			ClassLabel:     label,
			OrganName:      organName(cfg, label),
			NumVoxels:      s.count,
			VolumeMM3:      n * sp.VoxelVolume(),
			SurfaceAreaMM2: Area(mesh),
			Centroid: [3]float64{
				(s.sumX/n + float64(roi.XMin)) * sp.X,
				(s.sumY/n + float64(roi.YMin)) * sp.Y,
				(s.sumZ/n + float64(roi.ZMin)) * sp.Z,
			},
			BoundingBox: [2][3]int{
				{s.minX, s.minY, s.minZ},
				{s.maxX, s.maxY, s.maxZ},
			},
		}
		res.Metrics = append(res.Metrics, m)

		fmt.Fprintf(w, "  volume: %.2f mm³, surface: %.2f mm²\n", m.VolumeMM3, m.SurfaceAreaMM2)
	}
	return res, nil
}

// organName maps a label to its configured organ name, with the
// documented organ_<label> fallback.
func organName(cfg types.QuantificationConfig, label int32) string {
	if name, ok := cfg.OrganNames[label]; ok {
		return name
	}
	return fmt.Sprintf("organ_%d", label)
}
