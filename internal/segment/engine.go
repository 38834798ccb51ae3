// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package segment tiles a normalized volume into overlapping patches,
// runs the wrapped 3D segmenter on each patch, and blends the results
// into one full-resolution label volume.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdiddy/scan-pipeline/pkg/model"
	"github.com/pdiddy/scan-pipeline/pkg/types"
)

// Engine stitches patch-wise segmenter output into a label volume.
type Engine struct {
	Segmenter model.Segmenter
	Config    types.SegmentationConfig
}

// patchResult carries one patch's probabilities back to the
// accumulator. Exactly one of probs and err is set.
type patchResult struct {
	tile  Tile
	probs *types.Probs
	err   error
}

// Run segments vol and returns the stitched label volume. Patch
// inferences are independent and run on up to Config.Workers
// goroutines; all accumulation happens on the caller's goroutine, the
// single writer of the shared accumulators. Progress is written to w.
//
// With overlap fraction 0 the blending weights are uniform, so a
// volume whose extent is an exact multiple of the patch size produces
// output bit-identical to independent per-tile inference.
func (e *Engine) Run(ctx context.Context, vol *types.Volume, w io.Writer) (*types.LabelVolume, error) {
	if err := vol.Validate(); err != nil {
		return nil, err
	}

	tiles, err := Tiles(vol.Width, vol.Height, vol.Depth, e.Config.PatchSize, e.Config.OverlapFraction)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "segmenting %dx%dx%d volume in %d patches\n", vol.Width, vol.Height, vol.Depth, len(tiles))

	workers := e.Config.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(tiles) {
		workers = len(tiles)
	}

	// Blending favors patch centers only when patches overlap; with
	// overlap 0 the accumulation must reduce to plain assignment.
	sigma := e.Config.BlendSigma
	if e.Config.OverlapFraction == 0 {
		sigma = 0
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan Tile)
	results := make(chan patchResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tile := range jobs {
				probs, err := e.inferPatch(ctx, vol, tile)
				select {
				case results <- patchResult{tile: tile, probs: probs, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, tile := range tiles {
			select {
			case jobs <- tile:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single-writer merge: this goroutine owns the accumulators and is
	// the only one that touches them.
	n := vol.Width * vol.Height * vol.Depth
	var acc []float64 // classes × n, allocated on the first result
	wsum := make([]float64, n)
	classes := 0
	done := 0
	var runErr error

	for res := range results {
		if runErr != nil {
			continue // drain after failure
		}
		if res.err != nil {
			runErr = res.err
			cancel()
			continue
		}
		if acc == nil {
			classes = res.probs.Classes
			acc = make([]float64, classes*n)
		} else if res.probs.Classes != classes {
			runErr = &types.InferenceError{
				Op:  "segment",
				Err: fmt.Errorf("patch at (%d,%d,%d) returned %d classes, expected %d", res.tile.X, res.tile.Y, res.tile.Z, res.probs.Classes, classes),
			}
			cancel()
			continue
		}
		e.accumulate(vol, acc, wsum, classes, res.tile, res.probs, sigma)
		done++
		if done%16 == 0 || done == len(tiles) {
			fmt.Fprintf(w, "  %d/%d patches\n", done, len(tiles))
		}
	}

	if runErr != nil {
		return nil, runErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return argmax(vol, acc, wsum, classes), nil
}

// inferPatch runs the segmenter on one tile and validates the shape
// contract. Failures are mapped into the pipeline taxonomy; an
// InsufficientMemoryError from the model passes through unchanged —
// it is reported, never retried here.
func (e *Engine) inferPatch(ctx context.Context, vol *types.Volume, t Tile) (*types.Probs, error) {
	patch := extract(vol, t)
	probs, err := e.Segmenter.Segment(ctx, patch)
	if err != nil {
		var oom *types.InsufficientMemoryError
		var inf *types.InferenceError
		if errors.As(err, &oom) || errors.As(err, &inf) {
			return nil, err
		}
		return nil, &types.InferenceError{Op: "segment", Err: err}
	}
	if probs.Width != t.W || probs.Height != t.H || probs.Depth != t.D {
		return nil, &types.InferenceError{
			Op:  "segment",
			Err: fmt.Errorf("patch at (%d,%d,%d): output %dx%dx%d does not match input %dx%dx%d", t.X, t.Y, t.Z, probs.Width, probs.Height, probs.Depth, t.W, t.H, t.D),
		}
	}
	if probs.Classes <= 0 || len(probs.Data) != probs.Classes*t.W*t.H*t.D {
		return nil, &types.InferenceError{
			Op:  "segment",
			Err: fmt.Errorf("patch at (%d,%d,%d): malformed probability block", t.X, t.Y, t.Z),
		}
	}
	return probs, nil
}

// accumulate adds one patch's center-weighted probabilities into the
// full-extent accumulator and the weight-sum accumulator.
func (e *Engine) accumulate(vol *types.Volume, acc, wsum []float64, classes int, t Tile, probs *types.Probs, sigma float64) {
	wx := blendProfile(t.W, sigma)
	wy := blendProfile(t.H, sigma)
	wz := blendProfile(t.D, sigma)

	n := vol.Width * vol.Height * vol.Depth
	for z := 0; z < t.D; z++ {
		for y := 0; y < t.H; y++ {
			wzy := wz[z] * wy[y]
			row := vol.Idx(t.X, t.Y+y, t.Z+z)
			for x := 0; x < t.W; x++ {
				wt := wzy * wx[x]
				g := row + x
				wsum[g] += wt
				for c := 0; c < classes; c++ {
					acc[c*n+g] += wt * probs.At(c, x, y, z)
				}
			}
		}
	}
}

// argmax normalizes the accumulated probabilities by the weight sum
// and takes the per-voxel argmax across classes. Ties resolve to the
// lowest class index.
func argmax(vol *types.Volume, acc, wsum []float64, classes int) *types.LabelVolume {
	out := types.NewLabelVolume(vol.Width, vol.Height, vol.Depth, vol.Spacing)
	n := vol.Width * vol.Height * vol.Depth
	for i := 0; i < n; i++ {
		best, bestVal := int32(0), acc[i]/wsum[i]
		for c := 1; c < classes; c++ {
			if v := acc[c*n+i] / wsum[i]; v > bestVal {
				best, bestVal = int32(c), v
			}
		}
		out.Labels[i] = best
	}
	return out
}
