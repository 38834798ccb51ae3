// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data model shared by the pipeline stages:
// volumes, detections, regions of interest, label volumes, metrics,
// run records, configuration, and the error taxonomy.
package types

import "fmt"

// Spacing is the physical voxel spacing in millimeters per axis.
// All components must be strictly positive.
type Spacing struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// DefaultSpacing is the documented fallback of (1, 1, 1) mm used when a
// scan source carries no spacing metadata. The fallback is explicit:
// ingestion records whether it was applied, it is never silently
// inferred from the data.
func DefaultSpacing() Spacing {
	return Spacing{X: 1, Y: 1, Z: 1}
}

// Valid reports whether every spacing component is strictly positive.
func (s Spacing) Valid() bool {
	return s.X > 0 && s.Y > 0 && s.Z > 0
}

// VoxelVolume returns the physical volume of one voxel in mm³.
func (s Spacing) VoxelVolume() float64 {
	return s.X * s.Y * s.Z
}

// Image is a single 2D cross-sectional slice, row-major, indexed
// y*Width + x.
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// NewImage allocates a zero-filled image of the given dimensions.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// At returns the intensity at (x, y).
func (im *Image) At(x, y int) float64 {
	return im.Pix[y*im.Width+x]
}

// Set stores an intensity at (x, y).
func (im *Image) Set(x, y int, v float64) {
	im.Pix[y*im.Width+x] = v
}

// Validate checks that dimensions are positive and match the pixel
// buffer length.
func (im *Image) Validate() error {
	if im == nil {
		return &InvalidInputError{Reason: "nil image"}
	}
	if im.Width <= 0 || im.Height <= 0 {
		return &InvalidInputError{Reason: fmt.Sprintf("non-positive image dimensions %dx%d", im.Width, im.Height)}
	}
	if len(im.Pix) != im.Width*im.Height {
		return &InvalidInputError{
			Reason: fmt.Sprintf("pixel buffer length %d does not match %dx%d", len(im.Pix), im.Width, im.Height),
		}
	}
	return nil
}

// Volume is an ordered 3D array of scalar intensities plus physical
// voxel spacing. Data is indexed (z*Height+y)*Width + x. Dimensions
// are fixed at creation and never resized in place.
type Volume struct {
	Width   int
	Height  int
	Depth   int
	Spacing Spacing
	Data    []float64
}

// NewVolume allocates a zero-filled volume of the given extents.
func NewVolume(width, height, depth int, spacing Spacing) *Volume {
	return &Volume{
		Width:   width,
		Height:  height,
		Depth:   depth,
		Spacing: spacing,
		Data:    make([]float64, width*height*depth),
	}
}

// Idx returns the flat index of voxel (x, y, z).
func (v *Volume) Idx(x, y, z int) int {
	return (z*v.Height+y)*v.Width + x
}

// At returns the intensity at voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Idx(x, y, z)]
}

// Set stores an intensity at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[v.Idx(x, y, z)] = val
}

// Slice copies slice z into a new Image.
func (v *Volume) Slice(z int) *Image {
	im := NewImage(v.Width, v.Height)
	copy(im.Pix, v.Data[z*v.Width*v.Height:(z+1)*v.Width*v.Height])
	return im
}

// Validate checks dimensions, spacing, and buffer length.
func (v *Volume) Validate() error {
	if v == nil {
		return &InvalidInputError{Reason: "nil volume"}
	}
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return &InvalidInputError{
			Reason: fmt.Sprintf("non-positive volume dimensions %dx%dx%d", v.Width, v.Height, v.Depth),
		}
	}
	if !v.Spacing.Valid() {
		return &InvalidInputError{
			Reason: fmt.Sprintf("non-positive spacing (%g, %g, %g)", v.Spacing.X, v.Spacing.Y, v.Spacing.Z),
		}
	}
	if len(v.Data) != v.Width*v.Height*v.Depth {
		return &InvalidInputError{
			Reason: fmt.Sprintf("data length %d does not match %dx%dx%d", len(v.Data), v.Width, v.Height, v.Depth),
		}
	}
	return nil
}

// LabelVolume is a 3D array of non-negative integer class labels
// (0 = background) with the same spacing as its source volume. It is
// produced once by the segmentation engine and read-only thereafter.
type LabelVolume struct {
	Width   int
	Height  int
	Depth   int
	Spacing Spacing
	Labels  []int32
}

// NewLabelVolume allocates a background-filled label volume.
func NewLabelVolume(width, height, depth int, spacing Spacing) *LabelVolume {
	return &LabelVolume{
		Width:   width,
		Height:  height,
		Depth:   depth,
		Spacing: spacing,
		Labels:  make([]int32, width*height*depth),
	}
}

// Idx returns the flat index of voxel (x, y, z).
func (lv *LabelVolume) Idx(x, y, z int) int {
	return (z*lv.Height+y)*lv.Width + x
}

// At returns the label at voxel (x, y, z).
func (lv *LabelVolume) At(x, y, z int) int32 {
	return lv.Labels[lv.Idx(x, y, z)]
}

// Set stores a label at voxel (x, y, z).
func (lv *LabelVolume) Set(x, y, z int, label int32) {
	lv.Labels[lv.Idx(x, y, z)] = label
}

// Probs holds per-class probabilities for a 3D block, indexed
// ((c*Depth+z)*Height+y)*Width + x. The segmenter contract requires
// the spatial extents to equal those of the input patch.
type Probs struct {
	Classes int
	Width   int
	Height  int
	Depth   int
	Data    []float64
}

// NewProbs allocates a zero-filled probability block.
func NewProbs(classes, width, height, depth int) *Probs {
	return &Probs{
		Classes: classes,
		Width:   width,
		Height:  height,
		Depth:   depth,
		Data:    make([]float64, classes*width*height*depth),
	}
}

// Idx returns the flat index of class c at voxel (x, y, z).
func (p *Probs) Idx(c, x, y, z int) int {
	return ((c*p.Depth+z)*p.Height+y)*p.Width + x
}

// At returns the probability of class c at voxel (x, y, z).
func (p *Probs) At(c, x, y, z int) float64 {
	return p.Data[p.Idx(c, x, y, z)]
}

// Set stores the probability of class c at voxel (x, y, z).
func (p *Probs) Set(c, x, y, z int, v float64) {
	p.Data[p.Idx(c, x, y, z)] = v
}
