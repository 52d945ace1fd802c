// Package tensor provides the shape-carrying value type the pipeline stages
// exchange. All multi-dimensional indexing goes through the stride accessor;
// stages never reinterpret flat buffers with ad hoc offset arithmetic.
package tensor

import (
	"fmt"

	"github.com/annolab/annotation-inference/float16"
)

// DType is the element type of a Tensor.
type DType int

const (
	Float32 DType = iota
	Float16
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// ShapeMismatchError reports an engine output whose shape does not match the
// model contract. It is raised before any indexing happens.
type ShapeMismatchError struct {
	Name string
	Want string
	Got  []int64
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("tensor %q: want shape %s, got %v", e.Name, e.Want, e.Got)
}

// Tensor is an immutable named numeric buffer with an explicit shape.
type Tensor struct {
	name    string
	shape   []int64
	dtype   DType
	strides []int64
	f32     []float32
	f16     []uint16
}

func numElements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

func computeStrides(shape []int64) []int64 {
	strides := make([]int64, len(shape))
	stride := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func validate(name string, shape []int64, length int) error {
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("tensor %q: invalid dimension %d in shape %v", name, d, shape)
		}
	}
	if want := numElements(shape); want != int64(length) {
		return fmt.Errorf("tensor %q: shape %v wants %d elements, buffer has %d",
			name, shape, want, length)
	}
	return nil
}

// New wraps a float32 buffer. The buffer length must equal the product of the
// shape dimensions.
func New(name string, shape []int64, data []float32) (*Tensor, error) {
	if err := validate(name, shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{
		name:    name,
		shape:   append([]int64(nil), shape...),
		dtype:   Float32,
		strides: computeStrides(shape),
		f32:     data,
	}, nil
}

// NewHalf wraps a half precision buffer of raw uint16 bit patterns.
func NewHalf(name string, shape []int64, data []uint16) (*Tensor, error) {
	if err := validate(name, shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{
		name:    name,
		shape:   append([]int64(nil), shape...),
		dtype:   Float16,
		strides: computeStrides(shape),
		f16:     data,
	}, nil
}

func (t *Tensor) Name() string  { return t.name }
func (t *Tensor) DType() DType  { return t.dtype }
func (t *Tensor) Rank() int     { return len(t.shape) }
func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int64 { return t.shape[i] }

// NumElements returns the total element count.
func (t *Tensor) NumElements() int64 { return numElements(t.shape) }

// At reads one element through the stride-computed accessor. The number of
// indices must equal the tensor rank.
func (t *Tensor) At(indices ...int) float32 {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("tensor %q: %d indices for rank %d", t.name, len(indices), len(t.shape)))
	}
	off := int64(0)
	for i, idx := range indices {
		if idx < 0 || int64(idx) >= t.shape[i] {
			panic(fmt.Sprintf("tensor %q: index %d out of range for dimension %d (size %d)",
				t.name, idx, i, t.shape[i]))
		}
		off += int64(idx) * t.strides[i]
	}
	if t.dtype == Float16 {
		return float16.Decode(t.f16[off])
	}
	return t.f32[off]
}

// Floats returns the element data as float32, decoding half precision buffers
// through the codec. The returned slice is the tensor's view of its data and
// must not be mutated for Float32 tensors.
func (t *Tensor) Floats() []float32 {
	if t.dtype == Float16 {
		return float16.DecodeSlice(t.f16)
	}
	return t.f32
}

// Halves returns the raw half precision bit patterns, encoding float32
// buffers through the codec.
func (t *Tensor) Halves() []uint16 {
	if t.dtype == Float32 {
		return float16.EncodeSlice(t.f32)
	}
	return t.f16
}

// EnsureRank returns a ShapeMismatchError unless the tensor has rank n.
func (t *Tensor) EnsureRank(n int) error {
	if len(t.shape) != n {
		return &ShapeMismatchError{
			Name: t.name,
			Want: fmt.Sprintf("rank %d", n),
			Got:  t.Shape(),
		}
	}
	return nil
}

// EnsureDim returns a ShapeMismatchError unless dimension i has size want.
func (t *Tensor) EnsureDim(i int, want int64) error {
	if i >= len(t.shape) || t.shape[i] != want {
		return &ShapeMismatchError{
			Name: t.name,
			Want: fmt.Sprintf("dimension %d of size %d", i, want),
			Got:  t.Shape(),
		}
	}
	return nil
}
