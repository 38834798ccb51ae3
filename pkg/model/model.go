// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package model defines the contracts for the wrapped detection and
// segmentation models, a deterministic builtin implementation, and an
// HTTP client for a remote model server.
//
// The two interfaces are interchangeable polymorphic capabilities: any
// model satisfying the shape contract can be substituted without
// touching the pipeline.
package model

import (
	"context"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Detector wraps a 2D object detection model. Implementations must be
// pure (no hidden state across calls), must not mutate the input
// image, and must not fail for well-formed input; malformed input
// fails with types.InvalidInputError.
type Detector interface {
	Detect(ctx context.Context, img *types.Image) ([]types.Detection, error)
}

// Segmenter wraps a 3D volumetric multi-class segmentation model.
// Segment returns per-class probabilities with the same spatial shape
// as the input patch. The same purity requirements as Detector apply.
type Segmenter interface {
	Segment(ctx context.Context, patch *types.Volume) (*types.Probs, error)
}
