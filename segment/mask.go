// Package segment decodes promptable-segmentation model outputs into binary
// masks at original resolution, and assembles the decoder-stage input tensors
// per the engine contract.
package segment

import (
	"fmt"
	"image"

	"github.com/annolab/annotation-inference/tensor"
)

// Mask is a 2D boolean grid at a declared size. Created per decode call and
// consumed immediately by the result sink.
type Mask struct {
	Width  int
	Height int
	bits   []bool
}

// At reports whether pixel (x, y) is foreground. Out-of-bounds coordinates
// are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.bits[y*m.Width+x]
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// DecodeMask upscales one candidate mask of a [1, K, maskH, maskW] output
// tensor to targetWidth x targetHeight. Upsampling is nearest-neighbour:
// target pixel (x, y) samples source (x*maskW/targetW, y*maskH/targetH).
// A sampled value above zero is foreground; there is no configurable
// threshold.
func DecodeMask(t *tensor.Tensor, index, targetWidth, targetHeight int) (*Mask, error) {
	if err := t.EnsureRank(4); err != nil {
		return nil, err
	}
	if err := t.EnsureDim(0, 1); err != nil {
		return nil, err
	}
	if index < 0 || int64(index) >= t.Dim(1) {
		return nil, fmt.Errorf("mask index %d out of range for %d candidates", index, t.Dim(1))
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, fmt.Errorf("invalid mask target size %dx%d", targetWidth, targetHeight)
	}

	maskH := int(t.Dim(2))
	maskW := int(t.Dim(3))
	m := &Mask{
		Width:  targetWidth,
		Height: targetHeight,
		bits:   make([]bool, targetWidth*targetHeight),
	}
	for y := 0; y < targetHeight; y++ {
		srcY := y * maskH / targetHeight
		for x := 0; x < targetWidth; x++ {
			srcX := x * maskW / targetWidth
			m.bits[y*targetWidth+x] = t.At(0, index, srcY, srcX) > 0
		}
	}
	return m, nil
}

// dimFactor scales the color channels of background pixels in Highlight.
const dimFactor = 0.3

// Highlight renders the mask over the image: background pixels have each
// color channel dimmed by a fixed factor, foreground pixels pass through
// unchanged. Visualization aid only.
func Highlight(img image.Image, mask *Mask) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := out.PixOffset(x, y)
			if mask.At(x, y) {
				out.Pix[i] = uint8(r >> 8)
				out.Pix[i+1] = uint8(g >> 8)
				out.Pix[i+2] = uint8(b >> 8)
			} else {
				out.Pix[i] = uint8(float64(r>>8) * dimFactor)
				out.Pix[i+1] = uint8(float64(g>>8) * dimFactor)
				out.Pix[i+2] = uint8(float64(b>>8) * dimFactor)
			}
			out.Pix[i+3] = uint8(a >> 8)
		}
	}
	return out
}
