// Package media detects, classifies and transforms uploaded binary content.
package media

import "errors"

// Kind classifies the media handled by a registry variant.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
)

// OutputImageMime is the single format every resized image is re-encoded to.
const OutputImageMime = "image/jpeg"

var (
	// ErrUnsupportedMediaType is returned when content has no recognized
	// signature or no handler accepts its type.
	ErrUnsupportedMediaType = errors.New("file type not supported")
	// ErrUndecodable is returned when content carries a supported signature
	// but cannot be decoded.
	ErrUndecodable = errors.New("cannot decode media")
)

// Artifact is an in-memory payload together with its detected MIME type.
// It is owned by the pipeline stage holding it and never shared.
type Artifact struct {
	Data []byte
	Mime string
}

// Size returns the payload length in bytes.
func (a Artifact) Size() int64 {
	return int64(len(a.Data))
}
