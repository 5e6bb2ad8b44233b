package tilecache

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"

	"tiler/geo"
	"tiler/tileserver"
)

// Metrics receives tile cache events.
type Metrics interface {
	Hit()
	Miss()
	Evict()
	Size(tiles int)
}

//NoopMetrics default Metrics
type NoopMetrics struct{}

func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Evict()   {}
func (NoopMetrics) Size(int) {}

//Options zero values are usable
type Options struct {
	Logger  log.FieldLogger
	Metrics Metrics
}

// Cache holds the rendered tiles of a single zoom level. It never waits for
// I/O: misses are handed to the Source and answered with the placeholder
// until the document shows up on a later call.
type Cache struct {
	src      Source
	renderer Renderer
	cfg      *tileserver.Config
	log      log.FieldLogger
	metrics  Metrics

	mu    sync.Mutex
	zoom  int
	tiles map[maptile.Tile]*cachedTile
}

// New returns a cache at the config's minimum zoom.
func New(src Source, renderer Renderer, cfg *tileserver.Config, opt Options) *Cache {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	logger := opt.Logger
	if logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Cache{
		src:      src,
		renderer: renderer,
		cfg:      cfg,
		log:      logger.WithFields(log.Fields{"component": "tilecache", "server": cfg.Name}),
		metrics:  opt.Metrics,
		zoom:     cfg.MinZoom,
		tiles:    make(map[maptile.Tile]*cachedTile),
	}
}

//Config active tile server
func (c *Cache) Config() *tileserver.Config { return c.cfg }

func (c *Cache) Zoom() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// SetZoom switches to zoom z, clamped to the server's range. Changing the
// zoom drops every cached tile.
func (c *Cache) SetZoom(z int) {
	z = c.cfg.ClampZoom(z)

	c.mu.Lock()
	defer c.mu.Unlock()
	if z == c.zoom {
		return
	}
	c.log.Debugf("zoom %d -> %d, dropping %d tiles", c.zoom, z, len(c.tiles))
	c.zoom = z
	c.tiles = make(map[maptile.Tile]*cachedTile)
	c.metrics.Size(0)
}

var (
	// ErrOutOfRange is returned by Resolve for a y outside the map.
	ErrOutOfRange = errors.New("tile row out of range")
	// ErrUnavailable is returned by Resolve when the tile cannot be shown.
	ErrUnavailable = errors.New("tile unavailable")
)

// GetTile returns tile (x, y) at the current zoom. x wraps around the
// antimeridian; a y outside the map gets the placeholder.
func (c *Cache) GetTile(x, y int) *Tile {
	tile, _ := c.Resolve(x, y)
	if tile == nil {
		return Placeholder()
	}
	return tile
}

// Resolve is GetTile without the placeholder. It returns (nil, nil) while
// the document is still pending and an error once it is known that the tile
// will not show up.
func (c *Cache) Resolve(x, y int) (*Tile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.key(x, y)
	if !ok {
		return nil, fmt.Errorf("%d/%d/%d: %w", c.zoom, x, y, ErrOutOfRange)
	}
	if e, ok := c.tiles[key]; ok {
		e.useCount++
		c.metrics.Hit()
		return e.tile, nil
	}
	c.metrics.Miss()

	url := c.cfg.FormatURL(c.zoom, int(key.X), int(key.Y))
	doc := c.src.GetDocument(url)
	if doc == nil {
		return nil, nil
	}
	if !doc.OK() {
		return nil, fmt.Errorf("%s: %s: %w", url, doc.Status, ErrUnavailable)
	}

	w, h := c.cfg.TileWidth, c.cfg.TileHeight
	img, err := c.renderer.RenderTile(doc, 0,
		float64(w)/float64(doc.Pages.Width), float64(h)/float64(doc.Pages.Height),
		0, 0, w, h)
	if err != nil {
		c.log.WithField("url", url).Warnf("render tile %v error ~ %s", key, err)
		return nil, fmt.Errorf("%s: %v: %w", url, err, ErrUnavailable)
	}

	tile := &Tile{Key: key, Image: img}
	c.tiles[key] = &cachedTile{tile: tile, useCount: 1}
	c.metrics.Size(len(c.tiles))
	return tile, nil
}

// GetTileAt returns the tile under loc at the current zoom.
func (c *Cache) GetTileAt(loc geo.Location) *Tile {
	t, ok := geo.ToTile(loc, uint(c.Zoom())).Floor()
	if !ok {
		return Placeholder()
	}
	return c.GetTile(int(t.X), int(t.Y))
}

// MaintenanceTick ages every tile by one and drops the ones that were not
// used often enough to stay at or above zero.
func (c *Cache) MaintenanceTick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for k, e := range c.tiles {
		e.useCount--
		if e.useCount < 0 {
			delete(c.tiles, k)
			c.metrics.Evict()
			evicted++
		}
	}
	if evicted > 0 {
		c.log.Debugf("evicted %d tiles, %d left", evicted, len(c.tiles))
		c.metrics.Size(len(c.tiles))
	}
}

// UseCount reports the counter of a cached tile.
func (c *Cache) UseCount(x, y int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.key(x, y)
	if !ok {
		return 0, false
	}
	e, ok := c.tiles[key]
	if !ok {
		return 0, false
	}
	return e.useCount, true
}

//Len number of cached tiles
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tiles)
}

// key must be called with mu held.
func (c *Cache) key(x, y int) (maptile.Tile, bool) {
	z := uint(c.zoom)
	if y < 0 || y >= 1<<z {
		return maptile.Tile{}, false
	}
	return maptile.New(uint32(geo.WrapX(x, z)), uint32(y), maptile.Zoom(z)), true
}
