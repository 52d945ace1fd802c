package segment

import (
	"fmt"

	"github.com/annolab/annotation-inference/models"
	"github.com/annolab/annotation-inference/tensor"
)

// Decoder-stage tensor contract. Names and shapes are fixed by the model
// family and must match exactly.
const (
	InputImageEmbeddings = "image_embeddings"
	InputPointCoords     = "point_coords"
	InputPointLabels     = "point_labels"
	InputMaskInput       = "mask_input"
	InputHasMaskInput    = "has_mask_input"
	InputOrigImageSize   = "orig_im_size"
	InputMultimaskOutput = "multimask_output"

	OutputMasks          = "masks"
	OutputIoUPredictions = "iou_predictions"
	OutputLowResMasks    = "low_res_masks"

	embeddingChannels = 256
	embeddingSize     = 64
	priorMaskSize     = 256
)

// DecoderInputs are the assembled input tensors for one mask-decode call.
type DecoderInputs struct {
	ImageEmbeddings *tensor.Tensor
	PointCoords     *tensor.Tensor
	PointLabels     *tensor.Tensor
	MaskInput       *tensor.Tensor
	HasMaskInput    *tensor.Tensor
	OrigImageSize   *tensor.Tensor
	MultimaskOutput *tensor.Tensor
}

// BuildDecoderInputs assembles the decoder-stage tensors from a precomputed
// image embedding and one prompt point. The point arrives in original-image
// pixels and is mapped into model-input space by the pad-square resize ratio.
// No prior mask is supplied: mask_input is zeros and has_mask_input is 0.
func BuildDecoderInputs(embedding *tensor.Tensor, point models.PromptPoint, ratio models.ResizeRatio, origWidth, origHeight int) (*DecoderInputs, error) {
	if err := embedding.EnsureRank(4); err != nil {
		return nil, err
	}
	if err := embedding.EnsureDim(1, embeddingChannels); err != nil {
		return nil, err
	}
	if err := embedding.EnsureDim(2, embeddingSize); err != nil {
		return nil, err
	}
	if err := embedding.EnsureDim(3, embeddingSize); err != nil {
		return nil, err
	}
	if ratio.X <= 0 || ratio.Y <= 0 {
		return nil, fmt.Errorf("invalid resize ratio %+v", ratio)
	}
	if point.Label != 0 && point.Label != 1 {
		return nil, fmt.Errorf("prompt label must be 0 or 1, got %d", point.Label)
	}

	coords, err := tensor.New(InputPointCoords, []int64{1, 1, 2},
		[]float32{point.X / ratio.X, point.Y / ratio.Y})
	if err != nil {
		return nil, err
	}
	labels, err := tensor.New(InputPointLabels, []int64{1, 1},
		[]float32{float32(point.Label)})
	if err != nil {
		return nil, err
	}
	maskInput, err := tensor.New(InputMaskInput,
		[]int64{1, 1, priorMaskSize, priorMaskSize},
		make([]float32, priorMaskSize*priorMaskSize))
	if err != nil {
		return nil, err
	}
	hasMask, err := tensor.New(InputHasMaskInput, []int64{1}, []float32{0})
	if err != nil {
		return nil, err
	}
	origSize, err := tensor.New(InputOrigImageSize, []int64{2},
		[]float32{float32(origHeight), float32(origWidth)})
	if err != nil {
		return nil, err
	}
	multimask, err := tensor.New(InputMultimaskOutput, []int64{1}, []float32{0})
	if err != nil {
		return nil, err
	}

	return &DecoderInputs{
		ImageEmbeddings: embedding,
		PointCoords:     coords,
		PointLabels:     labels,
		MaskInput:       maskInput,
		HasMaskInput:    hasMask,
		OrigImageSize:   origSize,
		MultimaskOutput: multimask,
	}, nil
}
