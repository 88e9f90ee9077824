package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrSessionActive is returned when a capture is triggered while another
	// session is in progress. The trigger has no other effect.
	ErrSessionActive = errors.New("capture: session already active")

	// ErrClosed is returned after the controller has been closed.
	ErrClosed = errors.New("capture: controller closed")

	// ErrInvalidRating is returned for ratings outside [MinRating, MaxRating].
	ErrInvalidRating = errors.New("capture: rating out of range")
)

// DeviceAccessError reports that the camera could not be opened or never
// delivered a frame. The controller returns to idle.
type DeviceAccessError struct {
	Err error
}

// Error implements the error interface.
func (e *DeviceAccessError) Error() string {
	return fmt.Sprintf("capture: camera access: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceAccessError) Unwrap() error {
	return e.Err
}

// Stage names the step of a frame grab that failed.
type Stage string

const (
	StageCanvas Stage = "canvas"
	StageFrame  Stage = "frame"
	StageEncode Stage = "encode"
)

// CaptureError aborts a session without publishing.
type CaptureError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// SegmentationError reports a failed overlay attempt. It is logged and
// never returned to capture callers.
type SegmentationError struct {
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *SegmentationError) Error() string {
	return fmt.Sprintf("capture: segmentation for session %s: %v", e.SessionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *SegmentationError) Unwrap() error {
	return e.Err
}
