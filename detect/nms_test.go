package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annolab/annotation-inference/models"
)

func det(x1, y1, x2, y2, score float32, class int) models.Detection {
	return models.Detection{Box: [4]float32{x1, y1, x2, y2}, Score: score, ClassID: class}
}

func TestIoU(t *testing.T) {
	a := det(0, 0, 10, 10, 1, 0)
	b := det(5, 5, 15, 15, 1, 0)
	// Intersection 25, union 175.
	assert.InDelta(t, 25.0/175.0, IoU(a, b), 1e-6)

	assert.InDelta(t, 1.0, IoU(a, a), 1e-6)

	// Disjoint and touching boxes have IoU 0.
	assert.Zero(t, IoU(a, det(20, 20, 30, 30, 1, 0)))
	assert.Zero(t, IoU(a, det(10, 0, 20, 10, 1, 0)))
}

func TestSuppressDropsLowerScoringOverlap(t *testing.T) {
	dets := []models.Detection{
		det(0, 0, 10, 10, 0.6, 0),
		det(1, 1, 11, 11, 0.9, 0),
		det(100, 100, 110, 110, 0.5, 0),
	}
	selected := Suppress(dets, 0.45)

	// The higher-scoring of the overlapping pair survives; never both,
	// never neither.
	require.Len(t, selected, 2)
	assert.Equal(t, 1, selected[0])
	assert.Contains(t, selected, 2)
	assert.NotContains(t, selected, 0)
}

func TestSuppressIsClassAgnostic(t *testing.T) {
	dets := []models.Detection{
		det(0, 0, 10, 10, 0.9, 3),
		det(0, 0, 10, 10, 0.8, 7),
	}
	selected := Suppress(dets, 0.5)
	require.Len(t, selected, 1)
	assert.Equal(t, 0, selected[0])
}

func TestSuppressIdempotent(t *testing.T) {
	dets := []models.Detection{
		det(0, 0, 10, 10, 0.9, 0),
		det(2, 2, 12, 12, 0.8, 1),
		det(50, 50, 60, 60, 0.7, 0),
		det(51, 51, 61, 61, 0.6, 2),
		det(200, 0, 210, 10, 0.5, 0),
	}
	first := Suppress(dets, 0.4)
	survivors := Select(dets, first)
	second := Suppress(survivors, 0.4)

	require.Len(t, second, len(first))
	assert.Equal(t, survivors, Select(survivors, second))
}

func TestSuppressPairwiseInvariant(t *testing.T) {
	dets := []models.Detection{
		det(0, 0, 10, 10, 0.9, 0),
		det(1, 0, 11, 10, 0.85, 0),
		det(2, 0, 12, 10, 0.8, 0),
		det(30, 30, 44, 44, 0.7, 0),
		det(32, 32, 46, 46, 0.65, 0),
		det(0, 40, 8, 52, 0.6, 0),
	}
	threshold := float32(0.3)
	selected := Suppress(dets, threshold)

	for i := 0; i < len(selected); i++ {
		for j := i + 1; j < len(selected); j++ {
			iou := IoU(dets[selected[i]], dets[selected[j]])
			assert.LessOrEqual(t, iou, threshold,
				"selected pair %d/%d", selected[i], selected[j])
		}
	}
}

func TestSuppressEmptyInput(t *testing.T) {
	assert.Empty(t, Suppress(nil, 0.5))
	assert.Empty(t, Select(nil, nil))
}

func TestSuppressOrderedByScore(t *testing.T) {
	dets := []models.Detection{
		det(0, 0, 10, 10, 0.2, 0),
		det(100, 0, 110, 10, 0.9, 0),
		det(200, 0, 210, 10, 0.5, 0),
	}
	selected := Suppress(dets, 0.5)
	require.Equal(t, []int{1, 2, 0}, selected)
}
