package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb/maptile"
)

//MaxZoom deepest zoom level any tile server may use
const MaxZoom = 18

// TileCoordinate is a fractional Web-Mercator tile position. X is always in
// [0, 2^Zoom); Y is not wrapped and can run off towards ±Inf near the poles.
type TileCoordinate struct {
	Zoom uint
	X    float64
	Y    float64
}

// TilesPerAxis returns 2^zoom.
func TilesPerAxis(zoom uint) float64 {
	return math.Ldexp(1, int(zoom))
}

// ToTile projects loc to fractional tile coordinates at zoom. The zoom is not
// checked against any server range.
func ToTile(loc Location, zoom uint) TileCoordinate {
	n := TilesPerAxis(zoom)
	x := n * (loc.lon + math.Pi) / (2 * math.Pi)
	// asinh(tan φ) == ln(tan φ + sec φ), without the cancellation at -π/2
	y := n * (1 - math.Asinh(math.Tan(loc.lat))/math.Pi) / 2
	switch loc.lat {
	case math.Pi / 2:
		y = math.Inf(-1)
	case -math.Pi / 2:
		y = math.Inf(1)
	}
	return TileCoordinate{Zoom: zoom, X: wrap(x, n), Y: y}
}

// ToLocation is the inverse of ToTile.
func ToLocation(y, x float64, zoom uint) Location {
	n := TilesPerAxis(zoom)
	lon := x/n*2*math.Pi - math.Pi
	lat := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))
	return FromRadians(lat, lon)
}

// InRange reports whether Y falls on the tiled part of the projection.
func (t TileCoordinate) InRange() bool {
	return t.Y >= 0 && t.Y < TilesPerAxis(t.Zoom)
}

// Floor returns the integer tile containing t, or false when Y is outside
// the tiled range.
func (t TileCoordinate) Floor() (maptile.Tile, bool) {
	if !t.InRange() {
		return maptile.Tile{}, false
	}
	x := uint32(math.Floor(t.X))
	y := uint32(math.Floor(t.Y))
	return maptile.New(x, y, maptile.Zoom(t.Zoom)), true
}

//Location inverse projection of t
func (t TileCoordinate) Location() Location {
	return ToLocation(t.Y, t.X, t.Zoom)
}

func (t TileCoordinate) String() string {
	return fmt.Sprintf("%d/%.4f/%.4f", t.Zoom, t.X, t.Y)
}

// WrapX wraps an integer tile column into [0, 2^zoom).
func WrapX(x int, zoom uint) int {
	n := 1 << zoom
	x %= n
	if x < 0 {
		x += n
	}
	return x
}

func wrap(x, n float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	x = math.Mod(x, n)
	if x < 0 {
		x += n
	}
	if x >= n {
		x = 0
	}
	return x
}
