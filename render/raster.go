package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"tiler/document"
)

var ErrPage = errors.New("page out of range")

// Raster renders single page raster images (png, jpeg, gif, webp, bmp,
// tiff). It serves both as the fetcher's document engine and as the tile
// cache's renderer.
type Raster struct {
	Kernel draw.Interpolator
}

// NewRaster returns a Raster using Catmull-Rom resampling.
func NewRaster() *Raster {
	return &Raster{Kernel: draw.CatmullRom}
}

func (r *Raster) Init() error {
	if r.Kernel == nil {
		return errors.New("raster: no resampling kernel")
	}
	return nil
}

// Inspect decodes only the image header.
func (r *Raster) Inspect(mimeType string, content []byte) (document.Pages, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return document.Pages{}, fmt.Errorf("%s: %w", mimeType, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return document.Pages{}, fmt.Errorf("%s: empty %s image", mimeType, format)
	}
	return document.Pages{Count: 1, Width: cfg.Width, Height: cfg.Height}, nil
}

// Prepare decodes the full image.
func (r *Raster) Prepare(doc *document.Document) (interface{}, error) {
	img, _, err := image.Decode(bytes.NewReader(doc.Content))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// RenderTile draws page of doc into a width×height buffer. Source pixel
// (sx, sy) lands on (sx*scaleX - originX, sy*scaleY - originY).
func (r *Raster) RenderTile(doc *document.Document, page int, scaleX, scaleY, originX, originY float64, width, height int) (*image.RGBA, error) {
	if page < 0 || page >= doc.Pages.Count {
		return nil, fmt.Errorf("%d of %d: %w", page, doc.Pages.Count, ErrPage)
	}
	if scaleX <= 0 || scaleY <= 0 {
		return nil, fmt.Errorf("invalid scale %gx%g", scaleX, scaleY)
	}
	src, ok := doc.State().(image.Image)
	if !ok {
		state, err := r.Prepare(doc)
		if err != nil {
			return nil, err
		}
		src = state.(image.Image)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	b := src.Bounds()
	if scaleX == 1 && scaleY == 1 && originX == 0 && originY == 0 && b.Dx() == width && b.Dy() == height {
		draw.Copy(dst, image.Point{}, src, b, draw.Src, nil)
		return dst, nil
	}
	s2d := f64.Aff3{
		scaleX, 0, -originX - float64(b.Min.X)*scaleX,
		0, scaleY, -originY - float64(b.Min.Y)*scaleY,
	}
	r.Kernel.Transform(dst, s2d, src, b, draw.Src, nil)
	return dst, nil
}
