package pipeline

import (
	"fmt"
	"os"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/annolab/annotation-inference/config"
	"github.com/annolab/annotation-inference/float16"
	"github.com/annolab/annotation-inference/segment"
	"github.com/annolab/annotation-inference/tensor"
)

func statModel(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &ModelNotFoundError{Path: path}
	}
	return nil
}

func newSessionOptions() (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if err := options.SetIntraOpNumThreads(runtime.NumCPU()); err != nil {
		options.Destroy()
		return nil, err
	}
	if err := options.SetInterOpNumThreads(runtime.NumCPU()); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

// DetectorSession owns one engine session for a detection model, with its
// preallocated input and output tensors. Not safe for concurrent use; run
// concurrent invocations through a pool.
type DetectorSession struct {
	session   *ort.AdvancedSession
	profile   config.DetectionProfile
	inputF32  *ort.Tensor[float32]
	outputF32 *ort.Tensor[float32]
	inputF16  *ort.CustomDataTensor
	outputF16 *ort.CustomDataTensor
}

func newDetectorSession(profile config.DetectionProfile) (*DetectorSession, error) {
	if err := statModel(profile.ModelPath); err != nil {
		return nil, err
	}
	options, err := newSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	inputShape := ort.NewShape(1, 3, int64(profile.InputHeight), int64(profile.InputWidth))
	outputShape := ort.NewShape(profile.OutputShape...)

	s := &DetectorSession{profile: profile}
	var in, out ort.ArbitraryTensor
	if profile.Half {
		s.inputF16, err = ort.NewCustomDataTensor(inputShape,
			make([]byte, 2*inputShape.FlattenedSize()), ort.TensorElementDataTypeFloat16)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		s.outputF16, err = ort.NewCustomDataTensor(outputShape,
			make([]byte, 2*outputShape.FlattenedSize()), ort.TensorElementDataTypeFloat16)
		if err != nil {
			s.inputF16.Destroy()
			return nil, fmt.Errorf("create output tensor: %w", err)
		}
		in, out = s.inputF16, s.outputF16
	} else {
		s.inputF32, err = ort.NewEmptyTensor[float32](inputShape)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		s.outputF32, err = ort.NewEmptyTensor[float32](outputShape)
		if err != nil {
			s.inputF32.Destroy()
			return nil, fmt.Errorf("create output tensor: %w", err)
		}
		in, out = s.inputF32, s.outputF32
	}

	s.session, err = ort.NewAdvancedSession(
		profile.ModelPath,
		[]string{profile.InputName},
		[]string{profile.OutputName},
		[]ort.ArbitraryTensor{in},
		[]ort.ArbitraryTensor{out},
		options,
	)
	if err != nil {
		s.destroyTensors()
		return nil, fmt.Errorf("create session for %s: %w", profile.ModelPath, err)
	}
	return s, nil
}

// run feeds one CHW buffer through the engine and returns a copy of the raw
// output wrapped in a shape-carrying tensor. Half precision models bridge
// both directions through the float16 codec.
func (s *DetectorSession) run(chw []float32) (*tensor.Tensor, error) {
	if s.profile.Half {
		float16.PutBytes(s.inputF16.GetData(), float16.EncodeSlice(chw))
	} else {
		copy(s.inputF32.GetData(), chw)
	}

	if err := s.session.Run(); err != nil {
		return nil, &EngineInvocationError{Model: s.profile.Name, Cause: err}
	}

	if s.profile.Half {
		return tensor.NewHalf(s.profile.OutputName, s.profile.OutputShape,
			float16.FromBytes(s.outputF16.GetData()))
	}
	data := append([]float32(nil), s.outputF32.GetData()...)
	return tensor.New(s.profile.OutputName, s.profile.OutputShape, data)
}

func (s *DetectorSession) destroyTensors() {
	for _, t := range []ort.ArbitraryTensor{s.inputF32, s.outputF32, s.inputF16, s.outputF16} {
		if t != nil {
			t.Destroy()
		}
	}
}

// Destroy releases the session and its tensors.
func (s *DetectorSession) Destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	s.destroyTensors()
}

// EncoderSession owns the segmentation encoder: input_image [1,3,S,S] to
// image_embeddings [1,256,64,64].
type EncoderSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	path    string
}

const (
	encoderInputName  = "input_image"
	encoderOutputName = "image_embeddings"
)

var embeddingShape = []int64{1, 256, 64, 64}

func newEncoderSession(modelPath string, inputSize int) (*EncoderSession, error) {
	if err := statModel(modelPath); err != nil {
		return nil, err
	}
	options, err := newSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	s := &EncoderSession{path: modelPath}
	s.input, err = ort.NewEmptyTensor[float32](
		ort.NewShape(1, 3, int64(inputSize), int64(inputSize)))
	if err != nil {
		return nil, fmt.Errorf("create encoder input: %w", err)
	}
	s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(embeddingShape...))
	if err != nil {
		s.input.Destroy()
		return nil, fmt.Errorf("create encoder output: %w", err)
	}

	s.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{encoderInputName},
		[]string{encoderOutputName},
		[]ort.ArbitraryTensor{s.input},
		[]ort.ArbitraryTensor{s.output},
		options,
	)
	if err != nil {
		s.input.Destroy()
		s.output.Destroy()
		return nil, fmt.Errorf("create encoder session for %s: %w", modelPath, err)
	}
	return s, nil
}

func (s *EncoderSession) run(chw []float32) (*tensor.Tensor, error) {
	copy(s.input.GetData(), chw)
	if err := s.session.Run(); err != nil {
		return nil, &EngineInvocationError{Model: s.path, Cause: err}
	}
	data := append([]float32(nil), s.output.GetData()...)
	return tensor.New(encoderOutputName, embeddingShape, data)
}

// Destroy releases the session and its tensors.
func (s *EncoderSession) Destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

// DecoderSession owns the segmentation decoder. Its mask output shape depends
// on orig_im_size, so the session is dynamic and the engine allocates the
// outputs per call.
type DecoderSession struct {
	session   *ort.DynamicAdvancedSession
	path      string
	multimask bool
}

func newDecoderSession(modelPath string, multimask bool) (*DecoderSession, error) {
	if err := statModel(modelPath); err != nil {
		return nil, err
	}
	options, err := newSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	inputNames := []string{
		segment.InputImageEmbeddings,
		segment.InputPointCoords,
		segment.InputPointLabels,
		segment.InputMaskInput,
		segment.InputHasMaskInput,
		segment.InputOrigImageSize,
	}
	if multimask {
		inputNames = append(inputNames, segment.InputMultimaskOutput)
	}
	outputNames := []string{
		segment.OutputMasks,
		segment.OutputIoUPredictions,
		segment.OutputLowResMasks,
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("create decoder session for %s: %w", modelPath, err)
	}
	return &DecoderSession{session: session, path: modelPath, multimask: multimask}, nil
}

// run invokes the decoder and returns the masks output as a shape-carrying
// tensor.
func (s *DecoderSession) run(in *segment.DecoderInputs) (*tensor.Tensor, error) {
	ordered := []*tensor.Tensor{
		in.ImageEmbeddings,
		in.PointCoords,
		in.PointLabels,
		in.MaskInput,
		in.HasMaskInput,
		in.OrigImageSize,
	}
	if s.multimask {
		ordered = append(ordered, in.MultimaskOutput)
	}

	inputs := make([]ort.ArbitraryTensor, 0, len(ordered))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, t := range ordered {
		v, err := ort.NewTensor(ort.NewShape(t.Shape()...), t.Floats())
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", t.Name(), err)
		}
		inputs = append(inputs, v)
	}

	// nil outputs are allocated by the engine.
	outputs := make([]ort.ArbitraryTensor, 3)
	if err := s.session.Run(inputs, outputs); err != nil {
		return nil, &EngineInvocationError{Model: s.path, Cause: err}
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	masks, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, &EngineInvocationError{
			Model: s.path,
			Cause: fmt.Errorf("unexpected %s output type %T", segment.OutputMasks, outputs[0]),
		}
	}
	data := append([]float32(nil), masks.GetData()...)
	return tensor.New(segment.OutputMasks, masks.GetShape(), data)
}

// Destroy releases the session.
func (s *DecoderSession) Destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
}
