// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// InvalidInputError reports a malformed volume or image (wrong shape,
// empty buffer, bad spacing). Not retriable: the caller must fix the
// input.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// InvalidROIError reports a degenerate region of interest after
// aggregation and clamping. Not retriable without changing thresholds
// or padding.
type InvalidROIError struct {
	ROI    ROI
	Reason string
}

func (e *InvalidROIError) Error() string {
	return fmt.Sprintf("invalid ROI %s: %s", e.ROI, e.Reason)
}

// InferenceError reports a failed detector or segmenter call. The core
// never retries it; the orchestrator records the failing stage.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// InsufficientMemoryError reports that a single patch could not be
// processed by the segmenter because the underlying inference ran out
// of memory. Reported, never retried internally.
type InsufficientMemoryError struct {
	Err error
}

func (e *InsufficientMemoryError) Error() string {
	return fmt.Sprintf("insufficient memory for inference: %v", e.Err)
}

func (e *InsufficientMemoryError) Unwrap() error { return e.Err }

// QuantificationError reports a per-label metric failure (for example
// isosurface extraction on a degenerate region). It is recorded for
// that label only; the rest of the run proceeds.
type QuantificationError struct {
	Label  int32
	Reason string
}

func (e *QuantificationError) Error() string {
	return fmt.Sprintf("quantification of label %d: %s", e.Label, e.Reason)
}
