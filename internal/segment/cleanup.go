// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package segment

import "github.com/pdiddy/scan-pipeline/pkg/types"

// KeepLargestComponents rewrites lv so that each non-background label
// keeps only its largest 6-connected component; smaller components
// become background. Ties resolve to the component encountered first
// in scan order, so the result is deterministic. Returns the number of
// voxels cleared.
func KeepLargestComponents(lv *types.LabelVolume) int {
	n := len(lv.Labels)
	comp := make([]int32, n) // 0 = unvisited, else component id
	var sizes []int          // sizes[id-1] = voxel count
	var labels []int32       // labels[id-1] = class label

	next := int32(1)
	var queue []int
	for start := 0; start < n; start++ {
		if lv.Labels[start] == 0 || comp[start] != 0 {
			continue
		}
		label := lv.Labels[start]
		id := next
		next++
		size := 0

		queue = append(queue[:0], start)
		comp[start] = id
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++

			x := i % lv.Width
			y := (i / lv.Width) % lv.Height
			z := i / (lv.Width * lv.Height)
			for _, d := range [6][3]int{{-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}, {0, 0, -1}, {0, 0, 1}} {
				nx, ny, nz := x+d[0], y+d[1], z+d[2]
				if nx < 0 || ny < 0 || nz < 0 || nx >= lv.Width || ny >= lv.Height || nz >= lv.Depth {
					continue
				}
				j := lv.Idx(nx, ny, nz)
				if comp[j] == 0 && lv.Labels[j] == label {
					comp[j] = id
					queue = append(queue, j)
				}
			}
		}
		sizes = append(sizes, size)
		labels = append(labels, label)
	}

	// Pick the largest component per label; earlier ids win ties.
	largest := make(map[int32]int32)
	for id := int32(1); id < next; id++ {
		label := labels[id-1]
		cur, ok := largest[label]
		if !ok || sizes[id-1] > sizes[cur-1] {
			largest[label] = id
		}
	}

	cleared := 0
	for i := 0; i < n; i++ {
		if lv.Labels[i] == 0 {
			continue
		}
		if comp[i] != largest[lv.Labels[i]] {
			lv.Labels[i] = 0
			cleared++
		}
	}
	return cleared
}
