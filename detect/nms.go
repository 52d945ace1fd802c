package detect

import (
	"sort"

	"github.com/annolab/annotation-inference/models"
)

// Suppress runs greedy non-maximum suppression and returns the indices of the
// surviving detections, ordered by descending score. Suppression is
// class-agnostic: a high-scoring box removes overlapping boxes of every
// class. O(n^2) in the candidate count.
func Suppress(detections []models.Detection, iouThreshold float32) []int {
	order := make([]int, len(detections))
	for i := range order {
		order[i] = i
	}
	// Stable so equal scores keep emission order.
	sort.SliceStable(order, func(a, b int) bool {
		return detections[order[a]].Score > detections[order[b]].Score
	})

	suppressed := make([]bool, len(detections))
	selected := make([]int, 0, len(detections))
	for i, idx := range order {
		if suppressed[idx] {
			continue
		}
		selected = append(selected, idx)
		for _, other := range order[i+1:] {
			if suppressed[other] {
				continue
			}
			if IoU(detections[idx], detections[other]) > iouThreshold {
				suppressed[other] = true
			}
		}
	}
	return selected
}

// Select materializes the detections at the given indices, in index order.
func Select(detections []models.Detection, indices []int) []models.Detection {
	out := make([]models.Detection, 0, len(indices))
	for _, i := range indices {
		out = append(out, detections[i])
	}
	return out
}

// IoU is the intersection area over union area of two axis-aligned boxes,
// 0 when they do not overlap.
func IoU(a, b models.Detection) float32 {
	x1 := maxf(a.Box[0], b.Box[0])
	y1 := maxf(a.Box[1], b.Box[1])
	x2 := minf(a.Box[2], b.Box[2])
	y2 := minf(a.Box[3], b.Box[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
