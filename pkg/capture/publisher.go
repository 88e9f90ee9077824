package capture

import "time"

// Captured image file attributes.
const (
	ImageFileName    = "image.png"
	ImageContentType = "image/png"
)

// File is an encoded image handed to a Publisher.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// CapturedFrame is the result of one successful session.
type CapturedFrame struct {
	SessionID  string
	PNG        []byte
	Width      int
	Height     int
	Rating     int
	CapturedAt time.Time
}

// File returns the frame as a publishable file.
func (f *CapturedFrame) File() File {
	return File{Name: ImageFileName, ContentType: ImageContentType, Data: f.PNG}
}

// Publisher receives each captured image exactly once, synchronously.
type Publisher interface {
	Publish(image File, rating int)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(image File, rating int)

// Publish calls f.
func (f PublisherFunc) Publish(image File, rating int) {
	f(image, rating)
}
