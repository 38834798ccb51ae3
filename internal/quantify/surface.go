// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quantify

import (
	"fmt"
	"math"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Triangle is one isosurface triangle with vertices in physical
// millimeter coordinates, counter-clockwise when seen from outside the
// labeled region.
type Triangle struct {
	V [3][3]float64
}

// Surface triangulates the isosurface separating one label's voxels
// from all other labels and background. The voxel-face policy emits
// two triangles per exposed face, a face whose 6-neighbor carries a
// different label or lies outside the array (the array boundary counts
// as exposed). Vertices are voxel corners scaled by the voxel spacing,
// so a single labeled voxel yields its full exposed surface: six faces
// of two triangles each.
func Surface(lv *types.LabelVolume, label int32, method types.SurfaceMethod) ([]Triangle, error) {
	if method != types.SurfaceVoxelFace {
		return nil, &types.QuantificationError{
			Label:  label,
			Reason: fmt.Sprintf("unknown surface method %q", method),
		}
	}

	sx, sy, sz := lv.Spacing.X, lv.Spacing.Y, lv.Spacing.Z
	var tris []Triangle
	for z := 0; z < lv.Depth; z++ {
		for y := 0; y < lv.Height; y++ {
			for x := 0; x < lv.Width; x++ {
				if lv.At(x, y, z) != label {
					continue
				}
				// Voxel (x,y,z) occupies [x,x+1]×[y,y+1]×[z,z+1] in
				// index space before spacing scale.
				x0, x1 := float64(x)*sx, float64(x+1)*sx
				y0, y1 := float64(y)*sy, float64(y+1)*sy
				z0, z1 := float64(z)*sz, float64(z+1)*sz

				if exposed(lv, label, x-1, y, z) {
					tris = appendQuad(tris,
						[3]float64{x0, y0, z0}, [3]float64{x0, y0, z1},
						[3]float64{x0, y1, z1}, [3]float64{x0, y1, z0})
				}
				if exposed(lv, label, x+1, y, z) {
					tris = appendQuad(tris,
						[3]float64{x1, y0, z0}, [3]float64{x1, y1, z0},
						[3]float64{x1, y1, z1}, [3]float64{x1, y0, z1})
				}
				if exposed(lv, label, x, y-1, z) {
					tris = appendQuad(tris,
						[3]float64{x0, y0, z0}, [3]float64{x1, y0, z0},
						[3]float64{x1, y0, z1}, [3]float64{x0, y0, z1})
				}
				if exposed(lv, label, x, y+1, z) {
					tris = appendQuad(tris,
						[3]float64{x0, y1, z0}, [3]float64{x0, y1, z1},
						[3]float64{x1, y1, z1}, [3]float64{x1, y1, z0})
				}
				if exposed(lv, label, x, y, z-1) {
					tris = appendQuad(tris,
						[3]float64{x0, y0, z0}, [3]float64{x0, y1, z0},
						[3]float64{x1, y1, z0}, [3]float64{x1, y0, z0})
				}
				if exposed(lv, label, x, y, z+1) {
					tris = appendQuad(tris,
						[3]float64{x0, y0, z1}, [3]float64{x1, y0, z1},
						[3]float64{x1, y1, z1}, [3]float64{x0, y1, z1})
				}
			}
		}
	}

	if len(tris) == 0 {
		return nil, &types.QuantificationError{Label: label, Reason: "no surface extracted"}
	}
	return tris, nil
}

// exposed reports whether the neighbor voxel (x,y,z) does not carry
// label, treating out-of-bounds as exposed.
func exposed(lv *types.LabelVolume, label int32, x, y, z int) bool {
	if x < 0 || y < 0 || z < 0 || x >= lv.Width || y >= lv.Height || z >= lv.Depth {
		return true
	}
	return lv.At(x, y, z) != label
}

// appendQuad splits the quad a-b-c-d into two triangles.
func appendQuad(tris []Triangle, a, b, c, d [3]float64) []Triangle {
	return append(tris,
		Triangle{V: [3][3]float64{a, b, c}},
		Triangle{V: [3][3]float64{a, c, d}},
	)
}

// Area sums the triangle areas in mm² via the cross product.
func Area(tris []Triangle) float64 {
	total := 0.0
	for _, t := range tris {
		ux := t.V[1][0] - t.V[0][0]
		uy := t.V[1][1] - t.V[0][1]
		uz := t.V[1][2] - t.V[0][2]
		vx := t.V[2][0] - t.V[0][0]
		vy := t.V[2][1] - t.V[0][1]
		vz := t.V[2][2] - t.V[0][2]

		cx := uy*vz - uz*vy
		cy := uz*vx - ux*vz
		cz := ux*vy - uy*vx
		total += 0.5 * math.Sqrt(cx*cx+cy*cy+cz*cz)
	}
	return total
}
