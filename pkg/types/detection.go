// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Rect is an axis-aligned 2D bounding box in pixel coordinates of one
// slice, min-corner inclusive, max-corner exclusive on neither end:
// the detector reports fractional pixel extents as-is.
type Rect struct {
	XMin float64 `json:"x_min" yaml:"x_min"`
	YMin float64 `json:"y_min" yaml:"y_min"`
	XMax float64 `json:"x_max" yaml:"x_max"`
	YMax float64 `json:"y_max" yaml:"y_max"`
}

// Detection is one candidate object region on a single slice.
// Immutable once created; duplicates per slice are allowed.
type Detection struct {
	SliceIndex int     `json:"slice_index" yaml:"slice_index"`
	Box        Rect    `json:"bounding_box" yaml:"bounding_box"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	ClassLabel int     `json:"class_label" yaml:"class_label"`
}

// ROI is an axis-aligned 3D box in voxel coordinates of the full
// volume, inclusive on both ends per axis.
type ROI struct {
	XMin int `json:"x_min" yaml:"x_min"`
	YMin int `json:"y_min" yaml:"y_min"`
	ZMin int `json:"z_min" yaml:"z_min"`
	XMax int `json:"x_max" yaml:"x_max"`
	YMax int `json:"y_max" yaml:"y_max"`
	ZMax int `json:"z_max" yaml:"z_max"`
}

// FullROI returns the ROI spanning an entire volume of the given
// extents.
func FullROI(width, height, depth int) ROI {
	return ROI{XMax: width - 1, YMax: height - 1, ZMax: depth - 1}
}

// Dx returns the ROI extent along x in voxels.
func (r ROI) Dx() int { return r.XMax - r.XMin + 1 }

// Dy returns the ROI extent along y in voxels.
func (r ROI) Dy() int { return r.YMax - r.YMin + 1 }

// Dz returns the ROI extent along z in voxels.
func (r ROI) Dz() int { return r.ZMax - r.ZMin + 1 }

// Validate checks min ≤ max per axis and containment in the given
// volume extents. A degenerate or out-of-bounds ROI is reported as
// InvalidROIError.
func (r ROI) Validate(width, height, depth int) error {
	if r.XMin > r.XMax || r.YMin > r.YMax || r.ZMin > r.ZMax {
		return &InvalidROIError{ROI: r, Reason: "min exceeds max"}
	}
	if r.XMin < 0 || r.YMin < 0 || r.ZMin < 0 ||
		r.XMax >= width || r.YMax >= height || r.ZMax >= depth {
		return &InvalidROIError{
			ROI:    r,
			Reason: fmt.Sprintf("outside volume extents %dx%dx%d", width, height, depth),
		}
	}
	return nil
}

func (r ROI) String() string {
	return fmt.Sprintf("x[%d,%d] y[%d,%d] z[%d,%d]", r.XMin, r.XMax, r.YMin, r.YMax, r.ZMin, r.ZMax)
}
