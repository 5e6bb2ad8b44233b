package main

import (
	"bytes"
	"image/png"

	"github.com/paulmach/orb/maptile"

	"tiler/tilecache"
)

// Constants representing output formats
const (
	MBTILES string = "mbtiles"
	FILES          = "files"
	PNG            = "png"
)

//Tile 导出瓦片
type Tile struct {
	T maptile.Tile
	C []byte
}

func (tile Tile) flipY() uint32 {
	return uint32(1)<<uint32(tile.T.Z) - 1 - tile.T.Y
}

//encodeTile png encoded copy of a rendered tile
func encodeTile(t *tilecache.Tile) (Tile, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, t.Image); err != nil {
		return Tile{}, err
	}
	return Tile{T: t.Key, C: buf.Bytes()}, nil
}

//Layer 级别&瓦片
type Layer struct {
	Zoom  int
	Count int64
	Tiles maptile.Tiles
}
