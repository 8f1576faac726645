package media

import (
	"fmt"

	"github.com/memohai/assetd/internal/errs"
)

// Previewer derives thumbnails through the registry at a fixed width.
type Previewer struct {
	registry *Registry
	width    int
}

// NewPreviewer creates a thumbnail generator for the given width.
func NewPreviewer(registry *Registry, width int) *Previewer {
	return &Previewer{registry: registry, width: width}
}

// Width returns the configured thumbnail width.
func (p *Previewer) Width() int {
	return p.width
}

// Thumbnail derives the secondary artifact for a. An unsupported MIME type
// here means the ingestion checks and the registry disagree.
func (p *Previewer) Thumbnail(a Artifact) (Artifact, error) {
	h, ok := p.registry.Resolve(a.Mime)
	if !ok {
		return Artifact{}, errs.Internal(fmt.Sprintf("'%s' not supported for thumbnail", a.Mime))
	}
	return h.Transform(a.Data, p.width)
}
