package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime initializes the ONNX Runtime environment, locating the shared
// library from the explicit path, the ONNXRUNTIME_SHARED_LIBRARY_PATH
// environment variable, or per-OS default locations. Idempotent.
func InitRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = locateRuntimeLib()
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// DestroyRuntime tears the environment down.
func DestroyRuntime() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

func locateRuntimeLib() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}

	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{"third_party/onnxruntime.dll"}
	case "darwin":
		candidates = []string{
			"third_party/libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	default:
		if runtime.GOARCH == "arm64" {
			candidates = []string{"third_party/onnxruntime_arm64.so"}
		}
		candidates = append(candidates,
			"third_party/onnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
		)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// LoadImage reads and decodes a raster image from disk. Failures surface as
// ImageDecodeError; a failed image is skippable without affecting any other
// image.
func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImageDecodeError{Path: path, Cause: err}
	}
	return DecodeImage(path, data)
}

// DecodeImage decodes raw image bytes. The path is used for error reporting
// only and may be empty.
func DecodeImage(path string, data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageDecodeError{Path: path, Cause: err}
	}
	return img, nil
}
