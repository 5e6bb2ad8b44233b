package tilecache

import (
	"image"
	"image/color"
	"sync"

	"github.com/paulmach/orb/maptile"

	"tiler/document"
	"tiler/tileserver"
)

// Tile is a rendered map tile, or the shared placeholder.
type Tile struct {
	Key   maptile.Tile
	Image *image.RGBA

	placeholder bool
}

//Placeholder whether t stands in for a tile that is not available
func (t *Tile) Placeholder() bool { return t.placeholder }

// cachedTile decays by one per maintenance tick and gains one per hit.
type cachedTile struct {
	tile     *Tile
	useCount int
}

// Source hands out fetched documents without blocking.
type Source interface {
	GetDocument(url string) *document.Document
}

// Renderer rasterizes a page of a document.
type Renderer interface {
	RenderTile(doc *document.Document, page int, scaleX, scaleY, originX, originY float64, width, height int) (*image.RGBA, error)
}

const checker = 32

var (
	placeholderOnce sync.Once
	placeholder     *Tile
)

// Placeholder returns the checkerboard tile shown while a tile is missing.
func Placeholder() *Tile {
	placeholderOnce.Do(func() {
		light := color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
		dark := color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
		img := image.NewRGBA(image.Rect(0, 0, tileserver.TileSize, tileserver.TileSize))
		for y := 0; y < tileserver.TileSize; y++ {
			for x := 0; x < tileserver.TileSize; x++ {
				c := light
				if (x/checker+y/checker)%2 == 1 {
					c = dark
				}
				img.SetRGBA(x, y, c)
			}
		}
		placeholder = &Tile{Image: img, placeholder: true}
	})
	return placeholder
}
