// Package models holds the value types the pipeline stages exchange. Every
// value is owned by the stage that produced it; stages consume and emit new
// values rather than mutating shared state.
package models

import "time"

// Detection is one decoded box in original-image pixel space. Box holds the
// corner coordinates x1,y1,x2,y2 with x1<=x2 and y1<=y2. Score is the final
// combined confidence: objectness times class likelihood where the model
// supplies objectness separately, the class likelihood alone where it does
// not.
type Detection struct {
	Box     [4]float32 `json:"box"`
	Score   float32    `json:"score"`
	ClassID int        `json:"class_id"`
}

// Width returns the box width in pixels.
func (d Detection) Width() float32 { return d.Box[2] - d.Box[0] }

// Height returns the box height in pixels.
func (d Detection) Height() float32 { return d.Box[3] - d.Box[1] }

// Area returns the box area in square pixels.
func (d Detection) Area() float32 { return d.Width() * d.Height() }

// ResizeRatio maps model-input pixel coordinates back to original-image
// pixels: original dimension divided by model input dimension, per axis.
// It is created once per image by the preprocessor and consumed by the
// decoder.
type ResizeRatio struct {
	X float32
	Y float32
}

// PromptPoint is a user-supplied point prompt for the mask decoder, in
// original-image pixel coordinates. Label 1 marks foreground, 0 background.
type PromptPoint struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Label int     `json:"label"`
}

// StageTimings records per-stage durations of one pipeline invocation for
// debug logging.
type StageTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Decode      time.Duration
	Suppress    time.Duration
	Total       time.Duration
}
