package segmentation

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrModelUnavailable is returned by Model.Segment before a successful load.
	ErrModelUnavailable = errors.New("segmentation: model unavailable")

	// ErrNotLoaded is returned by an engine used before Load.
	ErrNotLoaded = errors.New("segmentation: engine not loaded")

	// ErrEmptyImage is returned when the input image has no pixels.
	ErrEmptyImage = errors.New("segmentation: empty image")

	// ErrUnexpectedOutput is returned when the network output has an unknown shape.
	ErrUnexpectedOutput = errors.New("segmentation: unexpected model output")
)

// ModelLoadError reports a failed model load. Segmentation stays disabled
// for the lifetime of the Model that produced it.
type ModelLoadError struct {
	// Source is the URL or path the model was loaded from.
	Source string
	Err    error
}

// Error implements the error interface.
func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("segmentation: load model from %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *ModelLoadError) Unwrap() error {
	return e.Err
}
