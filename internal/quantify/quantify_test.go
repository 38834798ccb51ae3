// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quantify

import (
	"bytes"
	"math"
	"testing"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

func testConfig() types.QuantificationConfig {
	return types.QuantificationConfig{
		SurfaceMethod: types.SurfaceVoxelFace,
		OrganNames: map[int32]string{
			1: "digestive_tract",
			2: "reproductive_organs",
		},
	}
}

func TestComputeCuboid(t *testing.T) {
	// A 4×4×4 block of label 1 inside an 8×8×8 volume at unit spacing:
	// volume 64 mm³, surface 6×16 = 96 mm², centroid at the block
	// center.
	lv := types.NewLabelVolume(8, 8, 8, types.DefaultSpacing())
	for z := 2; z < 6; z++ {
		for y := 2; y < 6; y++ {
			for x := 2; x < 6; x++ {
				lv.Set(x, y, z, 1)
			}
		}
	}

	var out bytes.Buffer
	res, err := Compute(lv, types.FullROI(8, 8, 8), testConfig(), &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Metrics) != 1 {
		t.Fatalf("got %d metrics, want 1", len(res.Metrics))
	}

	m := res.Metrics[0]
	if m.ClassLabel != 1 || m.OrganName != "digestive_tract" {
		t.Errorf("label/name = %d/%s, want 1/digestive_tract", m.ClassLabel, m.OrganName)
	}
	if m.NumVoxels != 64 {
		t.Errorf("voxels = %d, want 64", m.NumVoxels)
	}
	if math.Abs(m.VolumeMM3-64) > 1e-9 {
		t.Errorf("volume = %g mm³, want 64", m.VolumeMM3)
	}
	if math.Abs(m.SurfaceAreaMM2-96) > 1e-9 {
		t.Errorf("surface = %g mm², want 96", m.SurfaceAreaMM2)
	}
	for axis, c := range m.Centroid {
		if math.Abs(c-3.5) > 1e-9 {
			t.Errorf("centroid[%d] = %g, want 3.5", axis, c)
		}
	}
	if m.BoundingBox != [2][3]int{{2, 2, 2}, {5, 5, 5}} {
		t.Errorf("bounding box = %v", m.BoundingBox)
	}
}

func TestComputeSingleVoxel(t *testing.T) {
	// One voxel of label 2 at anisotropic spacing: volume is the
	// spacing product and the surface is the voxel's six faces. This is
	// a measurement, never an error.
	sp := types.Spacing{X: 1, Y: 2, Z: 3}
	lv := types.NewLabelVolume(4, 4, 4, sp)
	lv.Set(1, 2, 3, 2)

	var out bytes.Buffer
	res, err := Compute(lv, types.FullROI(4, 4, 4), testConfig(), &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Metrics) != 1 {
		t.Fatalf("got %d metrics, want 1", len(res.Metrics))
	}

	m := res.Metrics[0]
	if math.Abs(m.VolumeMM3-6) > 1e-9 {
		t.Errorf("volume = %g mm³, want spacing product 6", m.VolumeMM3)
	}
	// Faces: 2×(sy·sz) + 2×(sx·sz) + 2×(sx·sy) = 12 + 6 + 4 = 22.
	if math.Abs(m.SurfaceAreaMM2-22) > 1e-9 {
		t.Errorf("surface = %g mm², want 22", m.SurfaceAreaMM2)
	}
	if len(res.Meshes[2]) != 12 {
		t.Errorf("mesh has %d triangles, want 12 (six faces, two each)", len(res.Meshes[2]))
	}
}

func TestComputeCentroidInPreCropFrame(t *testing.T) {
	sp := types.Spacing{X: 1, Y: 1, Z: 2}
	lv := types.NewLabelVolume(4, 4, 4, sp)
	lv.Set(0, 0, 0, 1)

	roi := types.ROI{XMin: 8, YMin: 8, ZMin: 2, XMax: 11, YMax: 11, ZMax: 5}
	var out bytes.Buffer
	res, err := Compute(lv, roi, testConfig(), &out)
	if err != nil {
		t.Fatal(err)
	}

	// Crop-local (0,0,0) offset by the ROI minimum, scaled by spacing.
	want := [3]float64{8, 8, 4}
	if res.Metrics[0].Centroid != want {
		t.Errorf("centroid = %v, want %v", res.Metrics[0].Centroid, want)
	}
}

func TestComputeLabelsSortedAndNamed(t *testing.T) {
	lv := types.NewLabelVolume(4, 4, 1, types.DefaultSpacing())
	lv.Set(3, 3, 0, 7) // unmapped label
	lv.Set(0, 0, 0, 2)
	lv.Set(1, 0, 0, 1)

	var out bytes.Buffer
	res, err := Compute(lv, types.FullROI(4, 4, 1), testConfig(), &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Metrics) != 3 {
		t.Fatalf("got %d metrics, want 3", len(res.Metrics))
	}
	wantLabels := []int32{1, 2, 7}
	wantNames := []string{"digestive_tract", "reproductive_organs", "organ_7"}
	for i := range wantLabels {
		if res.Metrics[i].ClassLabel != wantLabels[i] {
			t.Errorf("metrics[%d].ClassLabel = %d, want %d (ascending order)", i, res.Metrics[i].ClassLabel, wantLabels[i])
		}
		if res.Metrics[i].OrganName != wantNames[i] {
			t.Errorf("metrics[%d].OrganName = %s, want %s", i, res.Metrics[i].OrganName, wantNames[i])
		}
	}
}

func TestComputeSurfaceFailureOmitsLabelOnly(t *testing.T) {
	lv := types.NewLabelVolume(4, 4, 1, types.DefaultSpacing())
	lv.Set(0, 0, 0, 1)
	lv.Set(2, 2, 0, 2)

	cfg := testConfig()
	cfg.SurfaceMethod = "marching-tetrahedra" // not implemented

	var out bytes.Buffer
	res, err := Compute(lv, types.FullROI(4, 4, 1), cfg, &out)
	if err != nil {
		t.Fatalf("per-label failures must not fail the run: %v", err)
	}
	if len(res.Metrics) != 0 {
		t.Errorf("got %d metrics, want 0 (all labels failed)", len(res.Metrics))
	}
	if len(res.Failures) != 2 {
		t.Errorf("got %d failures, want 2", len(res.Failures))
	}
}

func TestComputeEmptyVolume(t *testing.T) {
	lv := types.NewLabelVolume(4, 4, 4, types.DefaultSpacing())
	var out bytes.Buffer
	res, err := Compute(lv, types.FullROI(4, 4, 4), testConfig(), &out)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Metrics) != 0 {
		t.Errorf("background-only volume should yield no metrics, got %d", len(res.Metrics))
	}
}

func TestSurfaceInteriorFacesHidden(t *testing.T) {
	// Two adjacent voxels of the same label share a face; only 10 of
	// the 12 faces are exposed.
	lv := types.NewLabelVolume(4, 4, 4, types.DefaultSpacing())
	lv.Set(1, 1, 1, 1)
	lv.Set(2, 1, 1, 1)

	mesh, err := Surface(lv, 1, types.SurfaceVoxelFace)
	if err != nil {
		t.Fatal(err)
	}
	if len(mesh) != 20 {
		t.Errorf("got %d triangles, want 20 (10 exposed faces)", len(mesh))
	}
	if got := Area(mesh); math.Abs(got-10) > 1e-9 {
		t.Errorf("area = %g, want 10", got)
	}
}

func TestSurfaceBoundaryVoxelFullyExposed(t *testing.T) {
	// A voxel in the array corner: the array boundary counts as
	// exposed, so all six faces appear.
	lv := types.NewLabelVolume(2, 2, 2, types.DefaultSpacing())
	lv.Set(0, 0, 0, 1)

	mesh, err := Surface(lv, 1, types.SurfaceVoxelFace)
	if err != nil {
		t.Fatal(err)
	}
	if len(mesh) != 12 {
		t.Errorf("got %d triangles, want 12", len(mesh))
	}
}
