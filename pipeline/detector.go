package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/annolab/annotation-inference/config"
	"github.com/annolab/annotation-inference/detect"
	"github.com/annolab/annotation-inference/models"
	"github.com/annolab/annotation-inference/preprocess"
)

// Detector runs the full detection pipeline for one model profile:
// preprocess, engine invocation, decode, suppression. Each call operates on
// its own buffers apart from the engine session tensors; run concurrent
// invocations through a DetectorPool.
type Detector struct {
	session *DetectorSession
	profile config.DetectionProfile
	layout  detect.Layout
	pre     *preprocess.Preprocessor
}

// NewDetector validates the profile and creates the engine session.
func NewDetector(profile config.DetectionProfile) (*Detector, error) {
	layout, err := detect.ParseLayout(profile.Layout)
	if err != nil {
		return nil, err
	}
	session, err := newDetectorSession(profile)
	if err != nil {
		return nil, err
	}
	return &Detector{
		session: session,
		profile: profile,
		layout:  layout,
		pre: &preprocess.Preprocessor{
			Width:  profile.InputWidth,
			Height: profile.InputHeight,
			Mode:   preprocess.ModeStretch,
		},
	}, nil
}

// Profile returns the detector's configuration.
func (d *Detector) Profile() config.DetectionProfile { return d.profile }

// Detect runs one image through the pipeline and returns the suppressed
// detections in original-image pixel space. The context is observed between
// stages; the numeric stages themselves are pure and bounded. Engine failures
// are returned as EngineInvocationError and never retried.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]models.Detection, *models.StageTimings, error) {
	start := time.Now()
	timings := &models.StageTimings{}

	if err := ctx.Err(); err != nil {
		return nil, timings, err
	}

	prepStart := time.Now()
	chw, ratio, err := d.pre.Process(img)
	timings.Preprocess = time.Since(prepStart)
	if err != nil {
		return nil, timings, err
	}

	if err := ctx.Err(); err != nil {
		return nil, timings, err
	}

	inferStart := time.Now()
	output, err := d.session.run(chw)
	timings.Inference = time.Since(inferStart)
	if err != nil {
		return nil, timings, err
	}

	decodeStart := time.Now()
	decoded, err := detect.Decode(output, d.layout, ratio, detect.Params{
		ScoreThreshold:      d.profile.ScoreThreshold,
		ConfidenceThreshold: d.profile.ConfidenceThreshold,
	})
	timings.Decode = time.Since(decodeStart)
	if err != nil {
		return nil, timings, err
	}

	suppressStart := time.Now()
	selected := detect.Suppress(decoded, d.profile.IoUThreshold)
	final := detect.Select(decoded, selected)
	timings.Suppress = time.Since(suppressStart)

	timings.Total = time.Since(start)
	return final, timings, nil
}

// Destroy releases the engine session.
func (d *Detector) Destroy() {
	d.session.Destroy()
}
