package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.NRGBA) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestStretchRatioAndScaling(t *testing.T) {
	p := &Preprocessor{Width: 100, Height: 100, Mode: ModeStretch}
	img := solidImage(200, 200, color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	buf, ratio, err := p.Process(img)
	require.NoError(t, err)
	require.Len(t, buf, 3*100*100)

	assert.Equal(t, float32(2), ratio.X)
	assert.Equal(t, float32(2), ratio.Y)

	// CHW: red channel first, all 1.0; green and blue zero.
	channelSize := 100 * 100
	assert.InDelta(t, 1.0, buf[0], 1e-6)
	assert.InDelta(t, 1.0, buf[channelSize-1], 1e-6)
	assert.InDelta(t, 0.0, buf[channelSize], 1e-6)
	assert.InDelta(t, 0.0, buf[2*channelSize], 1e-6)
}

func TestStretchIgnoresAspectRatio(t *testing.T) {
	p := &Preprocessor{Width: 64, Height: 32, Mode: ModeStretch}
	img := solidImage(100, 400, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	buf, ratio, err := p.Process(img)
	require.NoError(t, err)
	require.Len(t, buf, 3*64*32)
	assert.InDelta(t, 100.0/64.0, ratio.X, 1e-6)
	assert.InDelta(t, 400.0/32.0, ratio.Y, 1e-6)
}

func TestPadSquareAddsZeroRowsBelowSource(t *testing.T) {
	// A 100x50 image must be embedded into a 100x100 canvas anchored at
	// the origin, with the added 50 rows zero before normalization.
	p := &Preprocessor{
		Width: 100, Height: 100,
		Mode: ModePadSquare,
		Norm: Normalization{Mean: [3]float32{0, 0, 0}, Std: [3]float32{1, 1, 1}},
	}
	img := solidImage(100, 50, color.NRGBA{R: 200, G: 150, B: 100, A: 255})

	buf, ratio, err := p.Process(img)
	require.NoError(t, err)

	assert.Equal(t, float32(1), ratio.X)
	assert.Equal(t, float32(1), ratio.Y)

	channelSize := 100 * 100
	for c := 0; c < 3; c++ {
		// Source region.
		assert.NotZero(t, buf[c*channelSize+25*100+50], "channel %d source row", c)
		// Padded region, rows 50..99.
		for y := 50; y < 100; y++ {
			assert.Zero(t, buf[c*channelSize+y*100+7], "channel %d padded row %d", c, y)
		}
	}
}

func TestPadSquareMeanStdNormalization(t *testing.T) {
	p := &Preprocessor{
		Width: 8, Height: 8,
		Mode: ModePadSquare,
		Norm: Normalization{
			Mean: [3]float32{100, 50, 25},
			Std:  [3]float32{2, 5, 10},
		},
	}
	img := solidImage(8, 8, color.NRGBA{R: 200, G: 150, B: 125, A: 255})

	buf, _, err := p.Process(img)
	require.NoError(t, err)

	channelSize := 8 * 8
	assert.InDelta(t, (200.0-100.0)/2.0, buf[0], 1e-4)
	assert.InDelta(t, (150.0-50.0)/5.0, buf[channelSize], 1e-4)
	assert.InDelta(t, (125.0-25.0)/10.0, buf[2*channelSize], 1e-4)
}

func TestPadSquareRatioUsesLongSide(t *testing.T) {
	p := &Preprocessor{
		Width: 1024, Height: 1024,
		Mode: ModePadSquare,
		Norm: Normalization{Std: [3]float32{1, 1, 1}},
	}
	img := solidImage(512, 256, color.NRGBA{R: 1, A: 255})

	_, ratio, err := p.Process(img)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ratio.X, 1e-6)
	assert.InDelta(t, 0.5, ratio.Y, 1e-6)
}

func TestInvalidTargetSize(t *testing.T) {
	p := &Preprocessor{Width: 0, Height: 10, Mode: ModeStretch}
	_, _, err := p.Process(solidImage(4, 4, color.NRGBA{A: 255}))
	assert.Error(t, err)
}
