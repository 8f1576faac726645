package media

import (
	"fmt"
	"slices"

	"github.com/memohai/assetd/internal/errs"
)

// TransformFunc produces a derived artifact. size is the maximum dimension
// for images and the target width for screenshots.
type TransformFunc func(data []byte, size int) (Artifact, error)

// Handler is one media kind together with the MIME types it accepts and the
// transform it applies.
type Handler struct {
	Kind      Kind
	Mimes     []string
	Transform TransformFunc
}

// Supports is a pure membership test against the handler's MIME list.
func (h Handler) Supports(mime string) bool {
	return slices.Contains(h.Mimes, NormalizeMime(mime))
}

var (
	ImageMimes = []string{
		"image/png",
		"image/jpeg",
		"image/gif",
		"image/bmp",
		"image/tiff",
		"image/webp",
	}
	DocumentMimes = []string{
		"application/pdf",
		"text/plain",
	}
	VideoMimes = []string{
		"video/mp4",
		"video/webm",
		"video/quicktime",
	}
)

// ImageHandler resizes and re-encodes images.
func ImageHandler() Handler {
	return Handler{Kind: KindImage, Mimes: ImageMimes, Transform: Resize}
}

// DocumentHandler accepts documents; previews are not rendered yet.
func DocumentHandler() Handler {
	return Handler{Kind: KindDocument, Mimes: DocumentMimes, Transform: screenshotUnavailable(KindDocument)}
}

// VideoHandler accepts videos; frame extraction is not rendered yet.
func VideoHandler() Handler {
	return Handler{Kind: KindVideo, Mimes: VideoMimes, Transform: screenshotUnavailable(KindVideo)}
}

func screenshotUnavailable(kind Kind) TransformFunc {
	return func(_ []byte, _ int) (Artifact, error) {
		return Artifact{}, errs.NotImplemented(fmt.Sprintf("%s screenshot is not implemented", kind))
	}
}

// Registry dispatches artifacts to the first handler that supports their
// MIME type. It is immutable after construction and safe for concurrent use.
type Registry struct {
	handlers []Handler
}

// NewRegistry builds a registry from handlers in priority order.
func NewRegistry(handlers ...Handler) *Registry {
	return &Registry{handlers: slices.Clone(handlers)}
}

// DefaultRegistry registers image, document and video handlers.
func DefaultRegistry() *Registry {
	return NewRegistry(ImageHandler(), DocumentHandler(), VideoHandler())
}

// Resolve returns the first handler supporting mime.
func (r *Registry) Resolve(mime string) (Handler, bool) {
	for _, h := range r.handlers {
		if h.Supports(mime) {
			return h, true
		}
	}
	return Handler{}, false
}

// KindOf returns the media kind for mime.
func (r *Registry) KindOf(mime string) (Kind, bool) {
	h, ok := r.Resolve(mime)
	if !ok {
		return "", false
	}
	return h.Kind, true
}

// Supports reports whether any handler accepts mime.
func (r *Registry) Supports(mime string) bool {
	_, ok := r.Resolve(mime)
	return ok
}
