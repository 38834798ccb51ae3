// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.yaml.in/yaml/v3"
)

// DetectionConfig holds settings for the slice detection stage.
type DetectionConfig struct {
	// MinConfidence filters detections below this confidence (default 0.25).
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
}

// AggregationConfig holds settings for ROI aggregation.
type AggregationConfig struct {
	// Padding is the symmetric margin in voxels applied on every axis
	// before clamping to the volume extents (default 2).
	Padding int `json:"padding" yaml:"padding"`
}

// NormalizationConfig holds settings for intensity normalization of the
// cropped volume: normalized = clip((raw-lower)/(upper-lower), 0, 1).
type NormalizationConfig struct {
	// Lower and Upper are the fixed affine bounds (defaults 0 and
	// 65535, the full 16-bit intensity range of TIFF scans).
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`

	// AutoPercentile, when positive, replaces the fixed bounds with the
	// p and 1-p quantiles of the cropped volume's intensities
	// (e.g. 0.01 for a 1%/99% window). Zero disables it.
	AutoPercentile float64 `json:"auto_percentile,omitempty" yaml:"auto_percentile,omitempty"`
}

// SegmentationConfig holds settings for patch-wise 3D segmentation.
type SegmentationConfig struct {
	// PatchSize is the patch extent in voxels per axis (default 64³).
	PatchSize [3]int `json:"patch_size" yaml:"patch_size,flow"`

	// OverlapFraction is the fraction of a patch shared with its
	// neighbor along each axis (default 0.5). Stride is
	// patch_size × (1 − overlap_fraction).
	OverlapFraction float64 `json:"overlap_fraction" yaml:"overlap_fraction"`

	// BlendSigma is the Gaussian blending width as a fraction of the
	// patch extent (default 0.125). Larger values flatten the weight
	// profile toward uniform.
	BlendSigma float64 `json:"blend_sigma" yaml:"blend_sigma"`

	// Workers bounds concurrent patch inferences (default 1).
	Workers int `json:"workers" yaml:"workers"`

	// CleanupLargestComponent keeps, per non-background label, only the
	// largest 6-connected component of the stitched label volume.
	CleanupLargestComponent bool `json:"cleanup_largest_component" yaml:"cleanup_largest_component"`
}

// SurfaceMethod selects the isosurface policy for surface-area
// measurement.
type SurfaceMethod string

// SurfaceVoxelFace triangulates two triangles per exposed voxel face;
// voxels on the array boundary count as exposed. This is the only
// implemented policy and makes the single-voxel contract (six faces ×
// face area) exact.
const SurfaceVoxelFace SurfaceMethod = "voxel-face"

// QuantificationConfig holds settings for the quantification stage.
type QuantificationConfig struct {
	// SurfaceMethod selects the isosurface policy (default voxel-face).
	SurfaceMethod SurfaceMethod `json:"surface_method" yaml:"surface_method"`

	// ExportMeshes writes a binary STL surface mesh per label next to
	// the metrics document.
	ExportMeshes bool `json:"export_meshes" yaml:"export_meshes"`

	// OrganNames maps class labels to organ names in the metrics
	// document; unmapped labels fall back to "organ_<label>".
	OrganNames map[int32]string `json:"organ_names" yaml:"organ_names"`
}

// ModelKind selects the detector/segmenter implementation.
type ModelKind string

const (
	// ModelBuiltin uses the deterministic intensity-threshold reference
	// models, suitable for offline runs and tests.
	ModelBuiltin ModelKind = "builtin"

	// ModelRemote calls an external model server over HTTP.
	ModelRemote ModelKind = "remote"
)

// ModelsConfig holds references to the wrapped detector and segmenter.
type ModelsConfig struct {
	Kind ModelKind `json:"kind" yaml:"kind"`

	// BaseURL is the remote model server endpoint (remote kind only).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Timeout is the per-call HTTP timeout (default 5m; inference may
	// run for bounded-but-long wall-clock time).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the HTTP transport retry count for transient
	// connection failures (default 3). Inference errors themselves are
	// never retried.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// DetectorVersion and SegmenterVersion identify the model weights;
	// they participate in the configuration fingerprint so that a model
	// change invalidates downstream artifacts.
	DetectorVersion  string `json:"detector_version" yaml:"detector_version"`
	SegmenterVersion string `json:"segmenter_version" yaml:"segmenter_version"`

	// Classes is the segmenter's output class count including
	// background (default 4).
	Classes int `json:"classes" yaml:"classes"`

	// Threshold drives the builtin models' intensity cut (default 0.5
	// on normalized intensities).
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// StorageConfig holds the data directory layout. Scans live under
// <data_dir>/scans/<scan_id>/, results under
// <data_dir>/results/<scan_id>/, and the run database under
// <data_dir>/index/pipeline.db.
type StorageConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// PipelineConfig groups all stage configurations. It is the single
// configuration record of the pipeline; its fingerprint decides
// whether persisted stage artifacts remain valid on resume.
type PipelineConfig struct {
	Detection      DetectionConfig      `json:"detection" yaml:"detection"`
	Aggregation    AggregationConfig    `json:"aggregation" yaml:"aggregation"`
	Normalization  NormalizationConfig  `json:"normalization" yaml:"normalization"`
	Segmentation   SegmentationConfig   `json:"segmentation" yaml:"segmentation"`
	Quantification QuantificationConfig `json:"quantification" yaml:"quantification"`
	Models         ModelsConfig         `json:"models" yaml:"models"`
	Storage        StorageConfig        `json:"storage" yaml:"storage"`
}

// DefaultConfig returns the documented defaults for every stage.
func DefaultConfig() PipelineConfig {
	return PipelineConfig{
		Detection:   DetectionConfig{MinConfidence: 0.25},
		Aggregation: AggregationConfig{Padding: 2},
		Normalization: NormalizationConfig{
			Lower: 0,
			Upper: 65535,
		},
		Segmentation: SegmentationConfig{
			PatchSize:       [3]int{64, 64, 64},
			OverlapFraction: 0.5,
			BlendSigma:      0.125,
			Workers:         1,
		},
		Quantification: QuantificationConfig{
			SurfaceMethod: SurfaceVoxelFace,
			OrganNames: map[int32]string{
				1: "digestive_tract",
				2: "reproductive_organs",
				3: "neural_tissue",
			},
		},
		Models: ModelsConfig{
			Kind:             ModelBuiltin,
			Timeout:          5 * time.Minute,
			MaxRetries:       3,
			DetectorVersion:  "builtin-threshold-v1",
			SegmenterVersion: "builtin-threshold-v1",
			Classes:          4,
			Threshold:        0.5,
		},
		Storage: StorageConfig{DataDir: "data"},
	}
}

// Fingerprint returns the SHA-256 hex digest of the YAML serialization
// of the configuration. Any change to thresholds, patch geometry,
// normalization bounds, or model references changes the fingerprint
// and forces a restart from the first stage.
func (c PipelineConfig) Fingerprint() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshaling config for fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
