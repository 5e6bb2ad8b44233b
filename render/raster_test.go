package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiler/document"
)

// halves returns a w×h png, red on the left half and blue on the right.
func halves(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func inspected(t *testing.T, r *Raster, content []byte) *document.Document {
	pages, err := r.Inspect("image/png", content)
	require.NoError(t, err)
	return &document.Document{Status: document.StatusOK, MimeType: "image/png", Content: content, Pages: pages}
}

func TestInspect(t *testing.T) {
	r := NewRaster()
	require.NoError(t, r.Init())

	pages, err := r.Inspect("image/png", halves(t, 512, 300))
	require.NoError(t, err)
	assert.Equal(t, document.Pages{Count: 1, Width: 512, Height: 300}, pages)

	_, err = r.Inspect("text/html", []byte("<html>404</html>"))
	assert.Error(t, err)
}

func TestInitNeedsKernel(t *testing.T) {
	assert.Error(t, (&Raster{}).Init())
}

func TestRenderTileIdentity(t *testing.T) {
	r := NewRaster()
	doc := inspected(t, r, halves(t, 256, 256))

	img, err := r.RenderTile(doc, 0, 1, 1, 0, 0, 256, 256)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, img.RGBAAt(200, 10))
}

func TestRenderTileScaled(t *testing.T) {
	r := NewRaster()
	doc := inspected(t, r, halves(t, 512, 512))
	state, err := r.Prepare(doc)
	require.NoError(t, err)
	require.NotNil(t, state)

	img, err := r.RenderTile(doc, 0, 0.5, 0.5, 0, 0, 256, 256)
	require.NoError(t, err)
	assertNear(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(20, 128))
	assertNear(t, color.RGBA{B: 255, A: 255}, img.RGBAAt(236, 128))

	// shifted by 256 px the red half is gone
	img, err = r.RenderTile(doc, 0, 1, 1, 256, 0, 256, 256)
	require.NoError(t, err)
	assertNear(t, color.RGBA{B: 255, A: 255}, img.RGBAAt(5, 5))
}

func assertNear(t *testing.T, want, got color.RGBA) {
	t.Helper()
	d := func(a, b uint8) float64 { return float64(a) - float64(b) }
	assert.InDelta(t, 0, d(want.R, got.R), 3, "red %v", got)
	assert.InDelta(t, 0, d(want.G, got.G), 3, "green %v", got)
	assert.InDelta(t, 0, d(want.B, got.B), 3, "blue %v", got)
	assert.InDelta(t, 0, d(want.A, got.A), 3, "alpha %v", got)
}

func TestRenderTileErrors(t *testing.T) {
	r := NewRaster()
	doc := inspected(t, r, halves(t, 8, 8))

	_, err := r.RenderTile(doc, 1, 1, 1, 0, 0, 8, 8)
	assert.ErrorIs(t, err, ErrPage)

	_, err = r.RenderTile(doc, 0, 0, 1, 0, 0, 8, 8)
	assert.Error(t, err)
}
