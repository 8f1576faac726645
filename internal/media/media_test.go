package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/assetd/internal/errs"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y += 7 {
		for x := 0; x < width; x += 7 {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height, format
}

func TestDetectPNG(t *testing.T) {
	a, err := Detect(pngBytes(t, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, "image/png", a.Mime)
}

func TestDetectPDF(t *testing.T) {
	a, err := Detect([]byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", a.Mime)
}

func TestDetectRejectsPlainText(t *testing.T) {
	for _, payload := range []string{"just some plain words", "hello world", "\xef\xbb\xbfwith a utf-8 bom"} {
		_, err := Detect([]byte(payload))
		assert.ErrorIs(t, err, ErrUnsupportedMediaType, payload)
	}
	assert.True(t, DefaultRegistry().Supports("text/plain"))
}

func TestDetectRejectsUnknown(t *testing.T) {
	_, err := Detect([]byte{0x00, 0xde, 0xad, 0xbe, 0xef, 0x00, 0x13, 0x37, 0x00, 0x01})
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)

	_, err = Detect(nil)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestNormalizeMime(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"IMAGE/PNG", "image/png"},
		{" text/plain; charset=utf-8 ", "text/plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeMime(tt.raw), tt.raw)
	}
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		max           int
		wantW, wantH  int
	}{
		{"landscape", 4000, 2000, 2500, 2500, 1250},
		{"portrait", 1000, 3000, 300, 100, 300},
		{"square", 3000, 3000, 200, 200, 200},
		{"small landscape is kept", 640, 480, 2500, 640, 480},
		{"small square is kept", 100, 100, 200, 100, 100},
		{"thin strip keeps one pixel", 5000, 1, 200, 200, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitDimensions(tt.width, tt.height, tt.max)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestFitDimensionsNeverExceedsMax(t *testing.T) {
	for _, max := range []int{1, 50, 200, 2500} {
		for _, size := range [][2]int{{1, 1}, {3, 7}, {4000, 2000}, {123, 4567}, {999, 999}} {
			w, h := FitDimensions(size[0], size[1], max)
			assert.LessOrEqual(t, w, max)
			assert.LessOrEqual(t, h, max)
			assert.LessOrEqual(t, w, size[0])
			assert.LessOrEqual(t, h, size[1])
			// shorter side within one pixel of the exact proportional size
			if size[0] >= size[1] {
				want := float64(size[1]) * float64(w) / float64(size[0])
				assert.InDelta(t, want, float64(h), 1.0, "aspect ratio for %v at %d", size, max)
			} else {
				want := float64(size[0]) * float64(h) / float64(size[1])
				assert.InDelta(t, want, float64(w), 1.0, "aspect ratio for %v at %d", size, max)
			}
		}
	}
}

func TestResizeLandscapePNG(t *testing.T) {
	a, err := Resize(pngBytes(t, 400, 200), 250)
	require.NoError(t, err)
	assert.Equal(t, OutputImageMime, a.Mime)
	w, h, format := decodeSize(t, a.Data)
	assert.Equal(t, 250, w)
	assert.Equal(t, 125, h)
	assert.Equal(t, "jpeg", format)
}

func TestResizeReencodesWithoutUpscaling(t *testing.T) {
	a, err := Resize(pngBytes(t, 40, 30), 2500)
	require.NoError(t, err)
	w, h, format := decodeSize(t, a.Data)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)
	assert.Equal(t, "jpeg", format)
}

func TestResizeRejectsCorruptImage(t *testing.T) {
	data := pngBytes(t, 10, 10)
	_, err := Resize(data[:20], 100)
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestRegistryResolveFirstMatch(t *testing.T) {
	reg := DefaultRegistry()

	h, ok := reg.Resolve("image/png")
	require.True(t, ok)
	assert.Equal(t, KindImage, h.Kind)

	h, ok = reg.Resolve("application/pdf")
	require.True(t, ok)
	assert.Equal(t, KindDocument, h.Kind)

	kind, ok := reg.KindOf("video/mp4")
	require.True(t, ok)
	assert.Equal(t, KindVideo, kind)

	_, ok = reg.Resolve("application/zip")
	assert.False(t, ok)
	assert.False(t, reg.Supports("image/x-icon"))
}

func TestRegistryOrderWins(t *testing.T) {
	custom := Handler{Kind: KindDocument, Mimes: []string{"image/png"}}
	reg := NewRegistry(custom, ImageHandler())
	h, ok := reg.Resolve("image/png")
	require.True(t, ok)
	assert.Equal(t, KindDocument, h.Kind)
}

func TestScreenshotNotImplemented(t *testing.T) {
	for _, h := range []Handler{DocumentHandler(), VideoHandler()} {
		_, err := h.Transform([]byte("x"), 200)
		assert.True(t, errs.Is(err, errs.KindNotImplemented), "kind %s", h.Kind)
		assert.NotErrorIs(t, err, ErrUnsupportedMediaType)
	}
}

func TestPreviewerThumbnail(t *testing.T) {
	p := NewPreviewer(DefaultRegistry(), 50)
	thumb, err := p.Thumbnail(Artifact{Data: pngBytes(t, 200, 100), Mime: "image/png"})
	require.NoError(t, err)
	w, h, _ := decodeSize(t, thumb.Data)
	assert.Equal(t, 50, w)
	assert.Equal(t, 25, h)
	assert.Equal(t, 50, p.Width())
}

func TestPreviewerUnsupportedIsInternal(t *testing.T) {
	p := NewPreviewer(DefaultRegistry(), 50)
	_, err := p.Thumbnail(Artifact{Data: []byte("PK"), Mime: "application/zip"})
	assert.True(t, errs.Is(err, errs.KindInternal))
}

func TestPreviewerDocumentNotImplemented(t *testing.T) {
	p := NewPreviewer(DefaultRegistry(), 50)
	_, err := p.Thumbnail(Artifact{Data: []byte("%PDF-1.4"), Mime: "application/pdf"})
	assert.True(t, errs.Is(err, errs.KindNotImplemented))
}
