// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// OrganMetrics holds the geometric measurements for one non-background
// class label of a label volume. Computed once by the quantification
// engine; immutable. Labels with zero voxels are never emitted.
type OrganMetrics struct {
	// ID is the document id assigned when the record is persisted.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	ClassLabel int32  `json:"class_label" yaml:"class_label"`
	OrganName  string `json:"organ_name" yaml:"organ_name"`

	// NumVoxels is the voxel count of the label.
	NumVoxels int `json:"num_voxels" yaml:"num_voxels"`

	// VolumeMM3 is NumVoxels × sx·sy·sz.
	VolumeMM3 float64 `json:"volume_mm3" yaml:"volume_mm3"`

	// SurfaceAreaMM2 is the area of the isosurface separating the
	// label's voxels from all other labels and background.
	SurfaceAreaMM2 float64 `json:"surface_area_mm2" yaml:"surface_area_mm2"`

	// Centroid is the mean voxel coordinate in physical units (mm),
	// offset into the coordinate frame of the original pre-crop volume.
	Centroid [3]float64 `json:"centroid" yaml:"centroid,flow"`

	// BoundingBox is [[x_min,y_min,z_min],[x_max,y_max,z_max]] in
	// ROI-local voxel indices.
	BoundingBox [2][3]int `json:"bounding_box" yaml:"bounding_box,flow"`

	// ModelVersion records the segmenter reference that produced the
	// label volume these metrics were measured on.
	ModelVersion string `json:"model_version,omitempty" yaml:"model_version,omitempty"`
}
