package media

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 90

// Resize clamps the longer side of an image to maxDimension, preserving the
// aspect ratio, and re-encodes the result as JPEG. Images are never upscaled.
func Resize(data []byte, maxDimension int) (Artifact, error) {
	if maxDimension <= 0 {
		return Artifact{}, fmt.Errorf("max dimension must be positive, got %d", maxDimension)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	bounds := img.Bounds()
	width, height := FitDimensions(bounds.Dx(), bounds.Dy(), maxDimension)

	var out image.Image = img
	if width != bounds.Dx() || height != bounds.Dy() {
		out = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return Artifact{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Artifact{Data: buf.Bytes(), Mime: OutputImageMime}, nil
}

// FitDimensions computes the target size for an image of width×height so that
// neither side exceeds maxDimension. Landscape and portrait images scale the
// shorter side proportionally; square images clamp both sides independently.
func FitDimensions(width, height, maxDimension int) (int, int) {
	switch {
	case width > height:
		newWidth := min(maxDimension, width)
		return newWidth, scaleSide(height, newWidth, width)
	case height > width:
		newHeight := min(maxDimension, height)
		return scaleSide(width, newHeight, height), newHeight
	default:
		return min(maxDimension, width), min(maxDimension, height)
	}
}

func scaleSide(side, newLong, long int) int {
	scaled := int(math.Round(float64(side) * float64(newLong) / float64(long)))
	return max(scaled, 1)
}
