// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package segment

import (
	"fmt"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Tile is one patch placement: origin voxel plus extents. Every tile
// lies fully inside the volume.
type Tile struct {
	X, Y, Z int
	W, H, D int
}

// Tiles computes the deterministic tiling of a volume extent into
// overlapping patches with stride patchSize × (1 − overlap). The last
// patch along each axis is shifted inward, never padded, so all
// patches are inside the volume. A patch larger than the volume on an
// axis is clamped to the volume extent on that axis.
func Tiles(width, height, depth int, patchSize [3]int, overlap float64) ([]Tile, error) {
	if overlap < 0 || overlap >= 1 {
		return nil, fmt.Errorf("overlap fraction %g outside [0, 1)", overlap)
	}
	for i, p := range patchSize {
		if p <= 0 {
			return nil, fmt.Errorf("non-positive patch size %d on axis %d", p, i)
		}
	}

	pw := minInt(patchSize[0], width)
	ph := minInt(patchSize[1], height)
	pd := minInt(patchSize[2], depth)

	xs := tileAxis(width, pw, stride(pw, overlap))
	ys := tileAxis(height, ph, stride(ph, overlap))
	zs := tileAxis(depth, pd, stride(pd, overlap))

	tiles := make([]Tile, 0, len(xs)*len(ys)*len(zs))
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				tiles = append(tiles, Tile{X: x, Y: y, Z: z, W: pw, H: ph, D: pd})
			}
		}
	}
	return tiles, nil
}

// stride returns the tiling step for one axis, at least one voxel.
func stride(patch int, overlap float64) int {
	s := int(float64(patch) * (1 - overlap))
	if s < 1 {
		s = 1
	}
	return s
}

// tileAxis returns the patch offsets along one axis: multiples of the
// stride, with the final offset pulled back to extent-patch so the
// last patch stays inside.
func tileAxis(extent, patch, step int) []int {
	if patch >= extent {
		return []int{0}
	}
	var offs []int
	for o := 0; ; o += step {
		if o+patch >= extent {
			offs = append(offs, extent-patch)
			return offs
		}
		offs = append(offs, o)
	}
}

// extract copies the tile subregion of vol into a new patch volume.
// The source is never aliased, so concurrent workers cannot observe
// each other's reads as writes.
func extract(vol *types.Volume, t Tile) *types.Volume {
	patch := types.NewVolume(t.W, t.H, t.D, vol.Spacing)
	for z := 0; z < t.D; z++ {
		for y := 0; y < t.H; y++ {
			src := vol.Idx(t.X, t.Y+y, t.Z+z)
			dst := patch.Idx(0, y, z)
			copy(patch.Data[dst:dst+t.W], vol.Data[src:src+t.W])
		}
	}
	return patch
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
