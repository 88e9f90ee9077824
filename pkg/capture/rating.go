package capture

import (
	"fmt"
	"sync/atomic"
)

// Rating bounds.
const (
	MinRating     = 1
	MaxRating     = 10
	DefaultRating = 5
)

// RatingSource supplies the rating at the moment of capture.
type RatingSource interface {
	Value() int
}

// Rating is the user-adjustable pain rating. Safe for concurrent use.
// The zero value reads as DefaultRating.
type Rating struct {
	v atomic.Int32
}

// NewRating returns a rating set to DefaultRating.
func NewRating() *Rating {
	r := &Rating{}
	r.v.Store(DefaultRating)
	return r
}

// Value returns the current rating.
func (r *Rating) Value() int {
	if v := int(r.v.Load()); v != 0 {
		return v
	}
	return DefaultRating
}

// Set changes the rating.
func (r *Rating) Set(v int) error {
	if v < MinRating || v > MaxRating {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidRating, v, MinRating, MaxRating)
	}
	r.v.Store(int32(v))
	return nil
}
