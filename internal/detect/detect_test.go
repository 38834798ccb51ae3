// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package detect

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// stubDetector returns a canned result per call, ignoring the image.
type stubDetector struct {
	dets []types.Detection
	err  error
	n    int
}

func (s *stubDetector) Detect(context.Context, *types.Image) ([]types.Detection, error) {
	s.n++
	return s.dets, s.err
}

func TestDetectSliceFiltersAndSorts(t *testing.T) {
	stub := &stubDetector{dets: []types.Detection{
		{Box: types.Rect{XMax: 1, YMax: 1}, Confidence: 0.3, ClassLabel: 1},
		{Box: types.Rect{XMax: 2, YMax: 2}, Confidence: 0.9, ClassLabel: 2},
		{Box: types.Rect{XMax: 3, YMax: 3}, Confidence: 0.1, ClassLabel: 1},
		{Box: types.Rect{XMax: 4, YMax: 4}, Confidence: 0.6, ClassLabel: 3},
	}}
	a := &Adapter{Model: stub, MinConfidence: 0.25}

	dets, err := a.DetectSlice(context.Background(), types.NewImage(4, 4), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 3 {
		t.Fatalf("got %d detections, want 3 (0.1 filtered out)", len(dets))
	}
	wantConf := []float64{0.9, 0.6, 0.3}
	for i, d := range dets {
		if d.Confidence != wantConf[i] {
			t.Errorf("dets[%d].Confidence = %g, want %g (descending)", i, d.Confidence, wantConf[i])
		}
		if d.SliceIndex != 7 {
			t.Errorf("dets[%d].SliceIndex = %d, want 7", i, d.SliceIndex)
		}
	}
}

func TestDetectSliceEmptyIsNotError(t *testing.T) {
	a := &Adapter{Model: &stubDetector{}, MinConfidence: 0.25}
	dets, err := a.DetectSlice(context.Background(), types.NewImage(4, 4), 0)
	if err != nil {
		t.Fatalf("empty result must not be an error: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("got %d detections, want 0", len(dets))
	}
}

func TestDetectVolumeVisitsEverySlice(t *testing.T) {
	stub := &stubDetector{dets: []types.Detection{
		{Box: types.Rect{XMax: 1, YMax: 1}, Confidence: 0.8, ClassLabel: 1},
	}}
	a := &Adapter{Model: stub, MinConfidence: 0.25}

	vol := types.NewVolume(4, 4, 5, types.DefaultSpacing())
	var out bytes.Buffer
	dets, err := DetectVolume(context.Background(), vol, a, &out)
	if err != nil {
		t.Fatal(err)
	}
	if stub.n != 5 {
		t.Errorf("detector called %d times, want 5", stub.n)
	}
	if len(dets) != 5 {
		t.Fatalf("got %d detections, want 5", len(dets))
	}
	for i, d := range dets {
		if d.SliceIndex != i {
			t.Errorf("dets[%d].SliceIndex = %d, want %d (slice order)", i, d.SliceIndex, i)
		}
	}
}

func TestDetectVolumePropagatesModelError(t *testing.T) {
	stub := &stubDetector{err: &types.InferenceError{Op: "detect", Err: errors.New("weights missing")}}
	a := &Adapter{Model: stub, MinConfidence: 0.25}

	var out bytes.Buffer
	_, err := DetectVolume(context.Background(), types.NewVolume(4, 4, 2, types.DefaultSpacing()), a, &out)
	if err == nil {
		t.Fatal("expected error")
	}
	var infErr *types.InferenceError
	if !errors.As(err, &infErr) {
		t.Errorf("error type = %T, want *InferenceError preserved through wrapping", err)
	}
}

func TestDetectVolumeHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &Adapter{Model: &stubDetector{}, MinConfidence: 0.25}
	var out bytes.Buffer
	_, err := DetectVolume(ctx, types.NewVolume(4, 4, 2, types.DefaultSpacing()), a, &out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
