package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomyUnwraps(t *testing.T) {
	cause := errors.New("boom")

	var imgErr *ImageDecodeError
	wrapped := fmt.Errorf("handling request: %w", &ImageDecodeError{Path: "a.jpg", Cause: cause})
	require.ErrorAs(t, wrapped, &imgErr)
	assert.Equal(t, "a.jpg", imgErr.Path)
	assert.ErrorIs(t, wrapped, cause)

	var engErr *EngineInvocationError
	wrapped = fmt.Errorf("detect: %w", &EngineInvocationError{Model: "yolo", Cause: cause})
	require.ErrorAs(t, wrapped, &engErr)
	assert.ErrorIs(t, wrapped, cause)

	var modelErr *ModelNotFoundError
	wrapped = fmt.Errorf("startup: %w", &ModelNotFoundError{Path: "/m.onnx"})
	require.ErrorAs(t, wrapped, &modelErr)
	assert.Contains(t, modelErr.Error(), "/m.onnx")
}

func TestLoadImageMissingFile(t *testing.T) {
	_, err := LoadImage("/nonexistent/image.png")
	var imgErr *ImageDecodeError
	require.ErrorAs(t, err, &imgErr)
	assert.Equal(t, "/nonexistent/image.png", imgErr.Path)
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage("garbage.bin", []byte{0xde, 0xad, 0xbe, 0xef})
	var imgErr *ImageDecodeError
	require.ErrorAs(t, err, &imgErr)
}

func TestLoadImageDecodesPNG(t *testing.T) {
	// Smallest valid 1x1 transparent PNG.
	png := []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
		0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
		0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
	path := filepath.Join(t.TempDir(), "one.png")
	require.NoError(t, os.WriteFile(path, png, 0o644))

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Bounds().Dx())
	assert.Equal(t, 1, img.Bounds().Dy())
}

func TestStatModel(t *testing.T) {
	var modelErr *ModelNotFoundError
	require.ErrorAs(t, statModel("/no/such/model.onnx"), &modelErr)

	dir := t.TempDir()
	require.ErrorAs(t, statModel(dir), &modelErr)

	path := filepath.Join(dir, "m.onnx")
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))
	assert.NoError(t, statModel(path))
}
