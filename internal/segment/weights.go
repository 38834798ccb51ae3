// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package segment

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// blendProfile returns the per-position blending weights along one
// axis of a patch: a Gaussian centered on the patch midpoint with
// sigma = sigmaFrac × size, scaled to peak 1. Overlapping regions
// therefore favor patch centers over edges. A non-positive sigmaFrac
// yields uniform weights.
func blendProfile(size int, sigmaFrac float64) []float64 {
	w := make([]float64, size)
	if size <= 1 || sigmaFrac <= 0 {
		for i := range w {
			w[i] = 1
		}
		return w
	}

	n := distuv.Normal{
		Mu:    float64(size-1) / 2,
		Sigma: sigmaFrac * float64(size),
	}
	for i := range w {
		w[i] = n.Prob(float64(i))
	}
	floats.Scale(1/floats.Max(w), w)
	return w
}
