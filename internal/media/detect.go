package media

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const genericMime = "application/octet-stream"

// heuristicMimes are reported for content that has no magic signature but
// happens to decode as text.
var heuristicMimes = map[string]struct{}{
	"text/plain": {},
}

// Detect derives the MIME type of data from its content signature. The
// filename and any declared content type are never consulted. Content
// recognized only as text carries no signature and is unsupported.
func Detect(data []byte) (Artifact, error) {
	if len(data) == 0 {
		return Artifact{}, ErrUnsupportedMediaType
	}
	mime := NormalizeMime(mimetype.Detect(data).String())
	if mime == "" || mime == genericMime {
		return Artifact{}, ErrUnsupportedMediaType
	}
	if _, ok := heuristicMimes[mime]; ok {
		return Artifact{}, ErrUnsupportedMediaType
	}
	return Artifact{Data: data, Mime: mime}, nil
}

// NormalizeMime lowercases a MIME type and drops its parameters.
func NormalizeMime(raw string) string {
	mime := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}
