package pipeline

import "fmt"

// ModelNotFoundError reports a model path that does not resolve to a readable
// file. Fatal; never retried.
type ModelNotFoundError struct {
	Path string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.Path)
}

// ImageDecodeError reports source bytes that are not a decodable raster
// image. Fatal for that image only; the caller may skip to the next image.
type ImageDecodeError struct {
	Path  string
	Cause error
}

func (e *ImageDecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decode image %s: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("decode image: %v", e.Cause)
}

func (e *ImageDecodeError) Unwrap() error { return e.Cause }

// EngineInvocationError reports a failed inference call. Propagated unchanged
// to the caller; the pipeline does not retry.
type EngineInvocationError struct {
	Model string
	Cause error
}

func (e *EngineInvocationError) Error() string {
	return fmt.Sprintf("inference failed for %s: %v", e.Model, e.Cause)
}

func (e *EngineInvocationError) Unwrap() error { return e.Cause }
