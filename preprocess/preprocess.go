// Package preprocess turns a decoded raster image into a model-ready CHW
// float buffer plus the resize ratio the decoder needs to map coordinates
// back to original-image pixels.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/annolab/annotation-inference/models"
)

// Mode selects the geometry and normalization of the transform.
type Mode int

const (
	// ModeStretch resizes directly to the target size, ignoring aspect
	// ratio, and scales raw channel values into [0,1]. Used by detection
	// models.
	ModeStretch Mode = iota
	// ModePadSquare pads the image into a square canvas of max(w,h)
	// anchored at the origin (zero background), resizes the square to the
	// target size, and applies per-channel mean/std normalization on the
	// raw 0-255 values. Used by promptable segmentation encoders.
	ModePadSquare
)

// Normalization holds per-channel constants applied to raw 0-255 values in
// ModePadSquare. ModeStretch ignores it.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

// Preprocessor converts images for one model profile. It is stateless apart
// from its configuration and safe for concurrent use.
type Preprocessor struct {
	Width  int
	Height int
	Mode   Mode
	Norm   Normalization
}

// Process resizes, pads and normalizes img into a channel-first buffer of
// length 3*Width*Height, returning the per-axis original/model-input ratio.
func (p *Preprocessor) Process(img image.Image) ([]float32, models.ResizeRatio, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, models.ResizeRatio{}, fmt.Errorf("invalid target size %dx%d", p.Width, p.Height)
	}
	origW := img.Bounds().Dx()
	origH := img.Bounds().Dy()
	if origW == 0 || origH == 0 {
		return nil, models.ResizeRatio{}, fmt.Errorf("empty source image")
	}

	var resized *image.NRGBA
	var ratio models.ResizeRatio

	switch p.Mode {
	case ModeStretch:
		resized = imaging.Resize(img, p.Width, p.Height, imaging.Linear)
		ratio = models.ResizeRatio{
			X: float32(origW) / float32(p.Width),
			Y: float32(origH) / float32(p.Height),
		}
	case ModePadSquare:
		side := origW
		if origH > side {
			side = origH
		}
		canvas := imaging.New(side, side, color.Black)
		canvas = imaging.Paste(canvas, img, image.Pt(0, 0))
		resized = imaging.Resize(canvas, p.Width, p.Height, imaging.Linear)
		r := float32(side) / float32(p.Width)
		ratio = models.ResizeRatio{X: r, Y: r}
	default:
		return nil, models.ResizeRatio{}, fmt.Errorf("unknown preprocess mode %d", p.Mode)
	}

	buffer := make([]float32, 3*p.Width*p.Height)
	p.fillCHW(resized, buffer)
	return buffer, ratio, nil
}

// fillCHW writes the channel-first normalized buffer, splitting rows across
// workers.
func (p *Preprocessor) fillCHW(img *image.NRGBA, buffer []float32) {
	channelSize := p.Width * p.Height
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > p.Height {
		numWorkers = p.Height
	}
	rowsPerWorker := p.Height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if w == numWorkers-1 {
			endY = p.Height
		}
		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				row := y * img.Stride
				offset := y * p.Width
				for x := 0; x < p.Width; x++ {
					i := offset + x
					pix := img.Pix[row+x*4:]
					r := float32(pix[0])
					g := float32(pix[1])
					b := float32(pix[2])
					if p.Mode == ModePadSquare {
						buffer[i] = (r - p.Norm.Mean[0]) / p.Norm.Std[0]
						buffer[channelSize+i] = (g - p.Norm.Mean[1]) / p.Norm.Std[1]
						buffer[channelSize*2+i] = (b - p.Norm.Mean[2]) / p.Norm.Std[2]
					} else {
						buffer[i] = r / 255.0
						buffer[channelSize+i] = g / 255.0
						buffer[channelSize*2+i] = b / 255.0
					}
				}
			}
		}(startY, endY)
	}
	wg.Wait()
}
