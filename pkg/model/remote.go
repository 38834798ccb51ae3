// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package model

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pdiddy/scan-pipeline/pkg/types"
)

const retryWait = 500 * time.Millisecond

// RemoteClient calls an external model server exposing the detector
// and segmenter contracts over HTTP. It satisfies both Detector and
// Segmenter. Retries apply to transport-level failures only; an
// inference error response is surfaced immediately.
type RemoteClient struct {
	client *resty.Client
}

// NewRemoteClient returns a client for the server at cfg.BaseURL.
// token, when non-empty, is sent as a bearer token (loaded from
// .secrets/model-server-token).
func NewRemoteClient(cfg types.ModelsConfig, token string) *RemoteClient {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(retryWait)
	if token != "" {
		c.SetAuthToken(token)
	}
	return &RemoteClient{client: c}
}

type detectRequest struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Pixels []float64 `json:"pixels"`
}

type remoteDetection struct {
	Box        [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Class      int        `json:"class"`
}

type detectResponse struct {
	Detections []remoteDetection `json:"detections"`
}

type segmentRequest struct {
	Size [3]int    `json:"size"`
	Data []float64 `json:"data"`
}

type segmentResponse struct {
	Classes int       `json:"classes"`
	Size    [3]int    `json:"size"`
	Data    []float64 `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Detect implements Detector via POST /v1/detect.
func (rc *RemoteClient) Detect(ctx context.Context, img *types.Image) ([]types.Detection, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	var out detectResponse
	var apiErr errorResponse
	resp, err := rc.client.R().
		SetContext(ctx).
		SetBody(detectRequest{Width: img.Width, Height: img.Height, Pixels: img.Pix}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/detect")
	if err != nil {
		return nil, &types.InferenceError{Op: "detect", Err: err}
	}
	if resp.IsError() {
		return nil, mapStatus("detect", resp.StatusCode(), apiErr.Error)
	}

	dets := make([]types.Detection, 0, len(out.Detections))
	for _, d := range out.Detections {
		dets = append(dets, types.Detection{
			Box: types.Rect{
				XMin: d.Box[0],
				YMin: d.Box[1],
				XMax: d.Box[2],
				YMax: d.Box[3],
			},
			Confidence: d.Confidence,
			ClassLabel: d.Class,
		})
	}
	return dets, nil
}

// Segment implements Segmenter via POST /v1/segment.
func (rc *RemoteClient) Segment(ctx context.Context, patch *types.Volume) (*types.Probs, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var out segmentResponse
	var apiErr errorResponse
	resp, err := rc.client.R().
		SetContext(ctx).
		SetBody(segmentRequest{
			Size: [3]int{patch.Width, patch.Height, patch.Depth},
			Data: patch.Data,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/segment")
	if err != nil {
		return nil, &types.InferenceError{Op: "segment", Err: err}
	}
	if resp.IsError() {
		return nil, mapStatus("segment", resp.StatusCode(), apiErr.Error)
	}

	if out.Size != [3]int{patch.Width, patch.Height, patch.Depth} {
		return nil, &types.InferenceError{
			Op:  "segment",
			Err: fmt.Errorf("server returned shape %v for %dx%dx%d patch", out.Size, patch.Width, patch.Height, patch.Depth),
		}
	}
	if out.Classes <= 0 || len(out.Data) != out.Classes*patch.Width*patch.Height*patch.Depth {
		return nil, &types.InferenceError{
			Op:  "segment",
			Err: fmt.Errorf("server returned %d values for %d classes", len(out.Data), out.Classes),
		}
	}

	return &types.Probs{
		Classes: out.Classes,
		Width:   patch.Width,
		Height:  patch.Height,
		Depth:   patch.Depth,
		Data:    out.Data,
	}, nil
}

// mapStatus maps an HTTP error status onto the pipeline error
// taxonomy: 507 → InsufficientMemoryError, other 4xx →
// InvalidInputError, everything else → InferenceError.
func mapStatus(op string, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusInsufficientStorage:
		return &types.InsufficientMemoryError{Err: fmt.Errorf("%s: HTTP %d: %s", op, status, msg)}
	case status >= 400 && status < 500:
		return &types.InvalidInputError{Reason: fmt.Sprintf("%s rejected by model server: HTTP %d: %s", op, status, msg)}
	default:
		return &types.InferenceError{Op: op, Err: fmt.Errorf("HTTP %d: %s", status, msg)}
	}
}
