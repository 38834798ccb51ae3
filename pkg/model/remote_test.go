// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

func testClient(t *testing.T, handler http.Handler) *RemoteClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewRemoteClient(types.ModelsConfig{
		BaseURL:    ts.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	}, "test-token")
}

func TestRemoteDetect(t *testing.T) {
	rc := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/detect", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req detectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 4, req.Width)
		assert.Equal(t, 4, req.Height)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(detectResponse{Detections: []remoteDetection{
			{Box: [4]float64{1, 2, 3, 3.5}, Confidence: 0.9, Class: 2},
		}})
	}))

	dets, err := rc.Detect(context.Background(), types.NewImage(4, 4))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, types.Rect{XMin: 1, YMin: 2, XMax: 3, YMax: 3.5}, dets[0].Box)
	assert.Equal(t, 0.9, dets[0].Confidence)
	assert.Equal(t, 2, dets[0].ClassLabel)
}

func TestRemoteSegment(t *testing.T) {
	rc := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/segment", r.URL.Path)

		var req segmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		n := req.Size[0] * req.Size[1] * req.Size[2]
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(segmentResponse{
			Classes: 2,
			Size:    req.Size,
			Data:    make([]float64, 2*n),
		})
	}))

	probs, err := rc.Segment(context.Background(), types.NewVolume(2, 3, 4, types.DefaultSpacing()))
	require.NoError(t, err)
	assert.Equal(t, 2, probs.Classes)
	assert.Equal(t, 2, probs.Width)
	assert.Equal(t, 3, probs.Height)
	assert.Equal(t, 4, probs.Depth)
	assert.Len(t, probs.Data, 48)
}

func TestRemoteSegmentShapeMismatch(t *testing.T) {
	rc := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(segmentResponse{
			Classes: 2,
			Size:    [3]int{1, 1, 1},
			Data:    make([]float64, 2),
		})
	}))

	_, err := rc.Segment(context.Background(), types.NewVolume(2, 2, 2, types.DefaultSpacing()))
	require.Error(t, err)
	var infErr *types.InferenceError
	assert.ErrorAs(t, err, &infErr)
}

func TestRemoteErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "507 maps to insufficient memory",
			status: http.StatusInsufficientStorage,
			check: func(t *testing.T, err error) {
				var oom *types.InsufficientMemoryError
				assert.ErrorAs(t, err, &oom)
			},
		},
		{
			name:   "400 maps to invalid input",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				var inv *types.InvalidInputError
				assert.ErrorAs(t, err, &inv)
			},
		},
		{
			name:   "500 maps to inference error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var inf *types.InferenceError
				assert.ErrorAs(t, err, &inf)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(errorResponse{Error: "nope"})
			}))

			_, err := rc.Segment(context.Background(), types.NewVolume(2, 2, 2, types.DefaultSpacing()))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}
