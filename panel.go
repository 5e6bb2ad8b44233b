package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"

	"tiler/tilecache"
)

// ErrStalled is returned by Collect when no tile resolved for a whole
// timeout.
var ErrStalled = errors.New("no progress")

// tileView is the part of the tile cache a panel drives.
type tileView interface {
	SetZoom(z int)
	Zoom() int
	Resolve(x, y int) (*tilecache.Tile, error)
	MaintenanceTick()
}

//Panel polls a tile cache once per frame like a map view does
type Panel struct {
	cache   tileView
	frame   time.Duration
	tick    time.Duration
	timeout time.Duration
	log     log.FieldLogger
}

//NewPanel frame: poll interval, tick: maintenance interval, timeout: max idle time
func NewPanel(cache tileView, frame, tick, timeout time.Duration, logger log.FieldLogger) *Panel {
	return &Panel{
		cache:   cache,
		frame:   frame,
		tick:    tick,
		timeout: timeout,
		log:     logger.WithField("component", "panel"),
	}
}

// Collect switches the cache to zoom and polls tiles until every one of them
// is either handed to found or known to be unavailable. It returns the
// number of tiles that did not make it.
func (p *Panel) Collect(ctx context.Context, zoom int, tiles maptile.Tiles, found func(*tilecache.Tile)) (int, error) {
	p.cache.SetZoom(zoom)
	if z := p.cache.Zoom(); z != zoom {
		return len(tiles), fmt.Errorf("zoom %d not served, cache is at %d", zoom, z)
	}

	frame := time.NewTicker(p.frame)
	defer frame.Stop()
	tick := time.NewTicker(p.tick)
	defer tick.Stop()

	pending := append(maptile.Tiles(nil), tiles...)
	failed := 0
	last := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return failed + len(pending), err
		}
		next := pending[:0]
		for _, t := range pending {
			tile, err := p.cache.Resolve(int(t.X), int(t.Y))
			switch {
			case err != nil:
				p.log.Warnf("skip tile %d/%d/%d ~ %s", t.Z, t.X, t.Y, err)
				failed++
				last = time.Now()
			case tile != nil:
				found(tile)
				last = time.Now()
			default:
				next = append(next, t)
			}
		}
		pending = next
		if len(pending) == 0 {
			return failed, nil
		}
		if time.Since(last) > p.timeout {
			return failed + len(pending), fmt.Errorf("zoom %d, %d tiles left: %w", zoom, len(pending), ErrStalled)
		}

		select {
		case <-ctx.Done():
		case <-tick.C:
			p.cache.MaintenanceTick()
		case <-frame.C:
		}
	}
}
