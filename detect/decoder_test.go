package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annolab/annotation-inference/models"
	"github.com/annolab/annotation-inference/tensor"
)

func TestDecodePerDetection(t *testing.T) {
	// One record at input size 100x100, original 200x200: cx,cy,w,h in
	// input pixels, objectness 0.9, class scores 0.1/0.8/0.1.
	data := []float32{50, 50, 20, 20, 0.9, 0.1, 0.8, 0.1}
	out, err := tensor.New("output0", []int64{1, 1, 8}, data)
	require.NoError(t, err)

	dets, err := Decode(out, LayoutPerDetection,
		models.ResizeRatio{X: 2, Y: 2},
		Params{ScoreThreshold: 0.25, ConfidenceThreshold: 0.3})
	require.NoError(t, err)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.Equal(t, 1, d.ClassID)
	assert.InDelta(t, 0.72, d.Score, 1e-5)
	assert.InDelta(t, 80, d.Box[0], 1e-3)
	assert.InDelta(t, 80, d.Box[1], 1e-3)
	assert.InDelta(t, 120, d.Box[2], 1e-3)
	assert.InDelta(t, 120, d.Box[3], 1e-3)
}

func TestDecodePerDetectionObjectnessGate(t *testing.T) {
	// Objectness below the confidence threshold rejects the record before
	// any class score is considered.
	data := []float32{50, 50, 20, 20, 0.2, 0.99, 0.99, 0.99}
	out, err := tensor.New("output0", []int64{1, 1, 8}, data)
	require.NoError(t, err)

	dets, err := Decode(out, LayoutPerDetection,
		models.ResizeRatio{X: 1, Y: 1},
		Params{ScoreThreshold: 0.1, ConfidenceThreshold: 0.3})
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDecodePerAnchor(t *testing.T) {
	// Shape [1,6,1]: cx=50, cy=50, w=20, h=20, class0=0.1, class1=0.6.
	data := []float32{50, 50, 20, 20, 0.1, 0.6}
	out, err := tensor.New("output0", []int64{1, 6, 1}, data)
	require.NoError(t, err)

	dets, err := Decode(out, LayoutPerAnchor,
		models.ResizeRatio{X: 2, Y: 2},
		Params{ScoreThreshold: 0.25})
	require.NoError(t, err)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.Equal(t, 1, d.ClassID)
	assert.InDelta(t, 0.6, d.Score, 1e-5)
	assert.InDelta(t, 80, d.Box[0], 1e-3)
	assert.InDelta(t, 120, d.Box[2], 1e-3)
}

func TestDecodePerAnchorStridedFields(t *testing.T) {
	// Two anchors: fields are strided, not contiguous per record.
	data := []float32{
		10, 30, // cx
		10, 30, // cy
		4, 8, // w
		4, 8, // h
		0.9, 0.1, // class0
		0.2, 0.8, // class1
	}
	out, err := tensor.New("output0", []int64{1, 6, 2}, data)
	require.NoError(t, err)

	dets, err := Decode(out, LayoutPerAnchor,
		models.ResizeRatio{X: 1, Y: 1},
		Params{ScoreThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, 0, dets[0].ClassID)
	assert.InDelta(t, 0.9, dets[0].Score, 1e-5)
	assert.InDelta(t, 8, dets[0].Box[0], 1e-3)
	assert.InDelta(t, 12, dets[0].Box[2], 1e-3)

	assert.Equal(t, 1, dets[1].ClassID)
	assert.InDelta(t, 0.8, dets[1].Score, 1e-5)
	assert.InDelta(t, 26, dets[1].Box[0], 1e-3)
	assert.InDelta(t, 34, dets[1].Box[2], 1e-3)
}

func TestDecodeScoreThreshold(t *testing.T) {
	data := []float32{50, 50, 20, 20, 0.9, 0.1, 0.2, 0.1}
	out, err := tensor.New("output0", []int64{1, 1, 8}, data)
	require.NoError(t, err)

	dets, err := Decode(out, LayoutPerDetection,
		models.ResizeRatio{X: 1, Y: 1},
		Params{ScoreThreshold: 0.5, ConfidenceThreshold: 0.3})
	require.NoError(t, err)
	assert.Empty(t, dets) // 0.9*0.2 = 0.18 < 0.5
}

func TestDecodeRenormalizesPercentageScores(t *testing.T) {
	// Class scores above 1.0 are treated as percentages and divided by
	// 100, not rejected. Known permissive behavior.
	data := []float32{50, 50, 20, 20, 80, 60}
	out, err := tensor.New("output0", []int64{1, 6, 1}, data)
	require.NoError(t, err)

	dets, err := Decode(out, LayoutPerAnchor,
		models.ResizeRatio{X: 1, Y: 1},
		Params{ScoreThreshold: 0.25})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.8, dets[0].Score, 1e-5)
	assert.Equal(t, 0, dets[0].ClassID)
}

func TestDecodeClampsMalformedCoordinates(t *testing.T) {
	data := []float32{-500, 50, 20, 20, 0.9, 0.9}
	out, err := tensor.New("output0", []int64{1, 1, 6}, data)
	require.NoError(t, err)

	dets, err := Decode(out, LayoutPerDetection,
		models.ResizeRatio{X: 1, Y: 1},
		Params{ScoreThreshold: 0.1, ConfidenceThreshold: 0.1})
	require.NoError(t, err)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.GreaterOrEqual(t, d.Box[0], float32(0))
	assert.LessOrEqual(t, d.Box[0], d.Box[2])
	assert.LessOrEqual(t, d.Box[1], d.Box[3])
}

func TestDecodeShapeMismatch(t *testing.T) {
	var shapeErr *tensor.ShapeMismatchError

	flat, err := tensor.New("output0", []int64{8}, make([]float32, 8))
	require.NoError(t, err)
	_, err = Decode(flat, LayoutPerDetection, models.ResizeRatio{X: 1, Y: 1}, Params{})
	require.ErrorAs(t, err, &shapeErr)

	// Per-detection needs at least 6 fields (5 + one class).
	narrow, err := tensor.New("output0", []int64{1, 4, 5}, make([]float32, 20))
	require.NoError(t, err)
	_, err = Decode(narrow, LayoutPerDetection, models.ResizeRatio{X: 1, Y: 1}, Params{})
	require.ErrorAs(t, err, &shapeErr)

	// Per-anchor needs at least 5 field rows.
	short, err := tensor.New("output0", []int64{1, 4, 5}, make([]float32, 20))
	require.NoError(t, err)
	_, err = Decode(short, LayoutPerAnchor, models.ResizeRatio{X: 1, Y: 1}, Params{})
	require.ErrorAs(t, err, &shapeErr)
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("per-detection")
	require.NoError(t, err)
	assert.Equal(t, LayoutPerDetection, l)

	l, err = ParseLayout("per-anchor")
	require.NoError(t, err)
	assert.Equal(t, LayoutPerAnchor, l)

	_, err = ParseLayout("nhwc")
	assert.Error(t, err)
}
