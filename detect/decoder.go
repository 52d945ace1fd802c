// Package detect converts raw detection-model output tensors into box, score
// and class records in original-image pixel space, and suppresses duplicates.
package detect

import (
	"fmt"
	"math"

	"github.com/annolab/annotation-inference/models"
	"github.com/annolab/annotation-inference/tensor"
)

// Layout tags the two supported output tensor layouts. The caller selects the
// layout from the model family; it is never inferred from the shape, which is
// ambiguous for small N/C.
type Layout int

const (
	// LayoutPerDetection is [1, N, 5+C]: one contiguous record per
	// candidate, fields cx,cy,w,h,objectness,class0..classC-1. The final
	// score is objectness times the best class score.
	LayoutPerDetection Layout = iota
	// LayoutPerAnchor is [1, 4+C, A]: dimension 1 indexes the field,
	// dimension 2 the anchor. There is no separate objectness; the score
	// is the best class score alone.
	LayoutPerAnchor
)

func (l Layout) String() string {
	switch l {
	case LayoutPerDetection:
		return "per-detection"
	case LayoutPerAnchor:
		return "per-anchor"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout maps a profile string to a Layout tag.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "per-detection":
		return LayoutPerDetection, nil
	case "per-anchor":
		return LayoutPerAnchor, nil
	default:
		return 0, fmt.Errorf("unknown output layout %q", s)
	}
}

// Params are the per-call decode thresholds.
type Params struct {
	// ScoreThreshold rejects candidates whose final combined score falls
	// below it.
	ScoreThreshold float32
	// ConfidenceThreshold rejects per-detection candidates whose
	// objectness falls below it, before the class score is considered.
	// Ignored by LayoutPerAnchor.
	ConfidenceThreshold float32
}

// maxCoord bounds decoded coordinates. Malformed model outputs (NaN, huge
// values) are clamped rather than propagated.
const maxCoord = float32(1 << 20)

// candidate is the per-layout view of one decode unit.
type candidate struct {
	cx, cy, w, h float32
	score        float32
	classID      int
	keep         bool
}

// Decode converts the raw output tensor into unsuppressed detections in
// original-image pixel space, in emission order. The tensor must be rank 3
// with the field count the layout implies; anything else is a
// ShapeMismatchError rather than an out-of-bounds read.
func Decode(t *tensor.Tensor, layout Layout, ratio models.ResizeRatio, p Params) ([]models.Detection, error) {
	if err := t.EnsureRank(3); err != nil {
		return nil, err
	}
	if err := t.EnsureDim(0, 1); err != nil {
		return nil, err
	}

	var units int64
	var read func(i int) candidate

	switch layout {
	case LayoutPerDetection:
		if t.Dim(2) < 6 {
			return nil, &tensor.ShapeMismatchError{
				Name: t.Name(), Want: "[1, N, 5+C] with C >= 1", Got: t.Shape(),
			}
		}
		units = t.Dim(1)
		classes := int(t.Dim(2)) - 5
		read = func(i int) candidate {
			obj := t.At(0, i, 4)
			if obj < p.ConfidenceThreshold {
				return candidate{}
			}
			classID, best := 0, float32(0)
			for c := 0; c < classes; c++ {
				if v := t.At(0, i, 5+c); v > best {
					best = v
					classID = c
				}
			}
			return candidate{
				cx: t.At(0, i, 0), cy: t.At(0, i, 1),
				w: t.At(0, i, 2), h: t.At(0, i, 3),
				score:   obj * renormalizeScore(best),
				classID: classID,
				keep:    true,
			}
		}
	case LayoutPerAnchor:
		if t.Dim(1) < 5 {
			return nil, &tensor.ShapeMismatchError{
				Name: t.Name(), Want: "[1, 4+C, A] with C >= 1", Got: t.Shape(),
			}
		}
		units = t.Dim(2)
		classes := int(t.Dim(1)) - 4
		read = func(i int) candidate {
			classID, best := 0, float32(0)
			for c := 0; c < classes; c++ {
				if v := t.At(0, 4+c, i); v > best {
					best = v
					classID = c
				}
			}
			return candidate{
				cx: t.At(0, 0, i), cy: t.At(0, 1, i),
				w: t.At(0, 2, i), h: t.At(0, 3, i),
				score:   renormalizeScore(best),
				classID: classID,
				keep:    true,
			}
		}
	default:
		return nil, fmt.Errorf("unknown layout %v", layout)
	}

	detections := make([]models.Detection, 0, 64)
	for i := 0; i < int(units); i++ {
		c := read(i)
		if !c.keep || c.score < p.ScoreThreshold {
			continue
		}
		detections = append(detections, cornerBox(c, ratio))
	}
	return detections, nil
}

// renormalizeScore rescales class scores above 1.0 by dividing by 100. Some
// model exports report percentages instead of likelihoods; the contract is to
// renormalize rather than reject. Pinned by a test.
func renormalizeScore(s float32) float32 {
	if s > 1.0 {
		return s / 100.0
	}
	return s
}

// cornerBox converts a center-xywh candidate into clamped corner coordinates
// in original-image pixel space.
func cornerBox(c candidate, ratio models.ResizeRatio) models.Detection {
	x1 := (c.cx - c.w/2) * ratio.X
	y1 := (c.cy - c.h/2) * ratio.Y
	x2 := (c.cx + c.w/2) * ratio.X
	y2 := (c.cy + c.h/2) * ratio.Y

	x1, x2 = ordered(clampCoord(x1), clampCoord(x2))
	y1, y2 = ordered(clampCoord(y1), clampCoord(y2))

	return models.Detection{
		Box:     [4]float32{x1, y1, x2, y2},
		Score:   c.score,
		ClassID: c.classID,
	}
}

func clampCoord(v float32) float32 {
	if math.IsNaN(float64(v)) || v < 0 {
		return 0
	}
	if v > maxCoord {
		return maxCoord
	}
	return v
}

func ordered(a, b float32) (float32, float32) {
	if a > b {
		return b, a
	}
	return a, b
}
