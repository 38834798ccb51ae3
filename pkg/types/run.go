// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// Stage identifies one pipeline stage. Stages execute strictly in the
// order returned by Stages; there is no skipping and no re-entry once
// a stage's artifact exists within a run.
type Stage string

const (
	StageDetecting   Stage = "detecting"
	StageAggregating Stage = "aggregating"
	StageNormalizing Stage = "normalizing"
	StageSegmenting  Stage = "segmenting"
	StageQuantifying Stage = "quantifying"
)

// Stages returns all pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageDetecting,
		StageAggregating,
		StageNormalizing,
		StageSegmenting,
		StageQuantifying,
	}
}

// Index returns the position of s in the stage order, or -1 for an
// unknown stage.
func (s Stage) Index() int {
	for i, st := range Stages() {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage following s, or false when s is the last
// stage or unknown. Transitions other than s → s.Next() are illegal.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	all := Stages()
	if i < 0 || i+1 >= len(all) {
		return "", false
	}
	return all[i+1], true
}

// RunStatus is the lifecycle state of a PipelineRun.
type RunStatus string

const (
	StatusPending     RunStatus = "pending"
	StatusRunning     RunStatus = "running"
	StatusStageFailed RunStatus = "stage_failed"
	StatusCompleted   RunStatus = "completed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusStageFailed
}

// PipelineRun is the persisted record of one scan's progress through
// the pipeline. It is mutated only by the orchestrator advancing
// stages.
type PipelineRun struct {
	ScanID string `json:"scan_id" yaml:"scan_id"`

	// Status is the run lifecycle state.
	Status RunStatus `json:"status" yaml:"status"`

	// Stage is the stage currently running, or the last stage that ran.
	Stage Stage `json:"current_stage,omitempty" yaml:"current_stage,omitempty"`

	// FailedStage and Error describe the absorbing stage_failed state.
	// They are the complete diagnostic surface of a failed run.
	FailedStage Stage  `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`

	// ConfigHash fingerprints the configuration the run's artifacts
	// were produced under. A differing fingerprint on re-invocation
	// invalidates all artifacts and restarts from the first stage.
	ConfigHash string `json:"config_hash" yaml:"config_hash"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Fail moves the run into the absorbing stage_failed state. It returns
// an error when called on a terminal run.
func (r *PipelineRun) Fail(stage Stage, cause error) error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is terminal (%s), cannot fail stage %s", r.ScanID, r.Status, stage)
	}
	r.Status = StatusStageFailed
	r.FailedStage = stage
	r.Error = cause.Error()
	return nil
}

// Advance marks stage as the currently running stage. Only the stage
// immediately after the previous one is legal; the first call must
// pass the first stage.
func (r *PipelineRun) Advance(stage Stage) error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is terminal (%s), cannot advance to %s", r.ScanID, r.Status, stage)
	}
	if stage.Index() < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if r.Stage != "" && stage.Index() < r.Stage.Index() {
		return fmt.Errorf("illegal transition %s → %s", r.Stage, stage)
	}
	r.Status = StatusRunning
	r.Stage = stage
	return nil
}

// Complete moves the run into the terminal completed state. Legal only
// after the final stage ran.
func (r *PipelineRun) Complete() error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is already terminal (%s)", r.ScanID, r.Status)
	}
	last := Stages()[len(Stages())-1]
	if r.Stage != last {
		return fmt.Errorf("cannot complete run %s from stage %q", r.ScanID, r.Stage)
	}
	r.Status = StatusCompleted
	return nil
}
