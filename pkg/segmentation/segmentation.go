// Package segmentation provides human body-part segmentation.
//
// An Engine wraps a pretrained part-segmentation network. A Model owns one
// Engine for the life of the process: it is loaded once, in the background,
// and shared read-only by every capture session. When the load fails the
// Model stays unavailable and callers skip segmentation.
//
// Example usage:
//
//	model := segmentation.NewModel(segmentation.NewBodyPix(cfg, logger), logger)
//	model.LoadAsync(ctx)
//	...
//	parts, err := model.Segment(ctx, frame)
//	if err != nil {
//	    // no overlay for this frame
//	}
package segmentation

import (
	"context"
	"image"
)

// Engine is a body-part segmentation backend.
type Engine interface {
	// Load fetches and initializes the model. It is called at most once.
	Load(ctx context.Context) error

	// Segment classifies the pixels of img into body parts.
	// The returned map has the same size as img.
	Segment(ctx context.Context, img image.Image) (*PartMap, error)

	// Close releases resources.
	Close() error
}
