package pipeline

import (
	"context"
	"image"

	"github.com/annolab/annotation-inference/config"
	"github.com/annolab/annotation-inference/models"
	"github.com/annolab/annotation-inference/preprocess"
	"github.com/annolab/annotation-inference/segment"
	"github.com/annolab/annotation-inference/tensor"
)

// Segmenter runs the promptable segmentation pipeline: the encoder computes
// an image embedding once, the decoder turns embedding plus point prompt into
// a binary mask at original resolution. Embeddings are plain tensors the
// caller may hold and reuse across prompts for the same image.
type Segmenter struct {
	encoder *EncoderSession
	decoder *DecoderSession
	profile config.SegmentationProfile
	pre     *preprocess.Preprocessor
}

// NewSegmenter creates both engine sessions.
func NewSegmenter(profile config.SegmentationProfile) (*Segmenter, error) {
	encoder, err := newEncoderSession(profile.EncoderPath, profile.InputSize)
	if err != nil {
		return nil, err
	}
	decoder, err := newDecoderSession(profile.DecoderPath, profile.Multimask)
	if err != nil {
		encoder.Destroy()
		return nil, err
	}
	return &Segmenter{
		encoder: encoder,
		decoder: decoder,
		profile: profile,
		pre: &preprocess.Preprocessor{
			Width:  profile.InputSize,
			Height: profile.InputSize,
			Mode:   preprocess.ModePadSquare,
			Norm: preprocess.Normalization{
				Mean: profile.Mean,
				Std:  profile.Std,
			},
		},
	}, nil
}

// Embed preprocesses the image in pad-square mode and runs the encoder.
func (s *Segmenter) Embed(ctx context.Context, img image.Image) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chw, _, err := s.pre.Process(img)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.encoder.run(chw)
}

// ratio recomputes the pad-square resize ratio for an original size; the same
// value the preprocessor produced when the embedding was computed.
func (s *Segmenter) ratio(origWidth, origHeight int) models.ResizeRatio {
	side := origWidth
	if origHeight > side {
		side = origHeight
	}
	r := float32(side) / float32(s.profile.InputSize)
	return models.ResizeRatio{X: r, Y: r}
}

// DecodeMask assembles the decoder inputs for one prompt point, invokes the
// decoder and upsamples the first candidate mask to the original size.
func (s *Segmenter) DecodeMask(ctx context.Context, embedding *tensor.Tensor, point models.PromptPoint, origWidth, origHeight int) (*segment.Mask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputs, err := segment.BuildDecoderInputs(embedding, point,
		s.ratio(origWidth, origHeight), origWidth, origHeight)
	if err != nil {
		return nil, err
	}
	masks, err := s.decoder.run(inputs)
	if err != nil {
		return nil, err
	}
	return segment.DecodeMask(masks, 0, origWidth, origHeight)
}

// Segment is the single-shot path: embed the image and decode one prompt.
func (s *Segmenter) Segment(ctx context.Context, img image.Image, point models.PromptPoint) (*segment.Mask, error) {
	embedding, err := s.Embed(ctx, img)
	if err != nil {
		return nil, err
	}
	return s.DecodeMask(ctx, embedding, point, img.Bounds().Dx(), img.Bounds().Dy())
}

// Destroy releases both engine sessions.
func (s *Segmenter) Destroy() {
	if s.encoder != nil {
		s.encoder.Destroy()
	}
	if s.decoder != nil {
		s.decoder.Destroy()
	}
}
