// Package render draws decoded detections and masks onto an image buffer for
// inspection, and writes the overlay alongside the source file. A thin
// boundary component; nothing downstream consumes its output.
package render

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/annolab/annotation-inference/models"
	"github.com/annolab/annotation-inference/segment"
)

// OverlaySuffix is appended to the source file name for rendered overlays.
const OverlaySuffix = "_overlay.png"

const boxThickness = 2

// palette cycles per class id.
var palette = []color.NRGBA{
	{R: 230, G: 57, B: 70, A: 255},
	{R: 29, G: 161, B: 242, A: 255},
	{R: 46, G: 204, B: 113, A: 255},
	{R: 241, G: 196, B: 15, A: 255},
	{R: 155, G: 89, B: 182, A: 255},
	{R: 255, G: 127, B: 0, A: 255},
}

func classColor(classID int) color.NRGBA {
	if classID < 0 {
		classID = 0
	}
	return palette[classID%len(palette)]
}

// DrawDetections renders box outlines and captions over a copy of img.
// Labels supplies class names; class ids beyond it fall back to the numeric
// id. Boxes are clipped to the canvas.
func DrawDetections(img image.Image, detections []models.Detection, labels []string) *image.NRGBA {
	out := imaging.Clone(img)
	for _, d := range detections {
		c := classColor(d.ClassID)
		drawRect(out, d.Box, c)
		drawCaption(out, d, labels, c)
	}
	return out
}

// DrawMask renders the mask highlight over img.
func DrawMask(img image.Image, mask *segment.Mask) *image.NRGBA {
	return segment.Highlight(img, mask)
}

// OverlayPath returns the overlay file path for a source image path: the
// extension is dropped and the fixed suffix appended, in the same directory.
func OverlayPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + OverlaySuffix
}

// SaveOverlay writes the overlay next to the source image and returns the
// path written.
func SaveOverlay(imagePath string, overlay image.Image) (string, error) {
	outPath := OverlayPath(imagePath)
	if err := imaging.Save(overlay, outPath); err != nil {
		return "", fmt.Errorf("save overlay: %w", err)
	}
	return outPath, nil
}

func drawRect(img *image.NRGBA, box [4]float32, c color.NRGBA) {
	x1, y1, x2, y2 := int(box[0]), int(box[1]), int(box[2]), int(box[3])
	for t := 0; t < boxThickness; t++ {
		drawHLine(img, x1, x2, y1+t, c)
		drawHLine(img, x1, x2, y2-t, c)
		drawVLine(img, x1+t, y1, y2, c)
		drawVLine(img, x2-t, y1, y2, c)
	}
}

func drawHLine(img *image.NRGBA, x1, x2, y int, c color.NRGBA) {
	bounds := img.Bounds()
	if y < bounds.Min.Y || y >= bounds.Max.Y {
		return
	}
	for x := maxInt(x1, bounds.Min.X); x <= minInt(x2, bounds.Max.X-1); x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y1, y2 int, c color.NRGBA) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X {
		return
	}
	for y := maxInt(y1, bounds.Min.Y); y <= minInt(y2, bounds.Max.Y-1); y++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawCaption(img *image.NRGBA, d models.Detection, labels []string, c color.NRGBA) {
	name := fmt.Sprintf("#%d", d.ClassID)
	if d.ClassID >= 0 && d.ClassID < len(labels) {
		name = labels[d.ClassID]
	}
	text := fmt.Sprintf("%s %.2f", name, d.Score)

	x := int(d.Box[0]) + boxThickness + 1
	y := int(d.Box[1]) - 4
	if y < basicfont.Face7x13.Ascent {
		y = int(d.Box[1]) + basicfont.Face7x13.Ascent + boxThickness + 1
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
