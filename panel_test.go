package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiler/tilecache"
)

// scriptedView resolves a tile after it was polled `after` times.
type scriptedView struct {
	mu     sync.Mutex
	zoom   int
	max    int
	after  map[maptile.Tile]int
	broken map[maptile.Tile]bool
	polls  map[maptile.Tile]int
	ticks  int
}

func newScriptedView(max int) *scriptedView {
	return &scriptedView{
		max:    max,
		after:  map[maptile.Tile]int{},
		broken: map[maptile.Tile]bool{},
		polls:  map[maptile.Tile]int{},
	}
}

func (v *scriptedView) SetZoom(z int) {
	if z > v.max {
		z = v.max
	}
	v.zoom = z
}

func (v *scriptedView) Zoom() int { return v.zoom }

func (v *scriptedView) Resolve(x, y int) (*tilecache.Tile, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := maptile.New(uint32(x), uint32(y), maptile.Zoom(v.zoom))
	if v.broken[key] {
		return nil, fmt.Errorf("%v: %w", key, tilecache.ErrUnavailable)
	}
	v.polls[key]++
	if n, ok := v.after[key]; ok && v.polls[key] >= n {
		return &tilecache.Tile{Key: key, Image: image.NewRGBA(image.Rect(0, 0, 1, 1))}, nil
	}
	return nil, nil
}

func (v *scriptedView) MaintenanceTick() {
	v.mu.Lock()
	v.ticks++
	v.mu.Unlock()
}

func TestCollect(t *testing.T) {
	v := newScriptedView(5)
	a, b, c := maptile.New(0, 0, 3), maptile.New(1, 0, 3), maptile.New(2, 0, 3)
	v.after[a] = 1
	v.after[b] = 4
	v.broken[c] = true

	p := NewPanel(v, time.Millisecond, time.Millisecond, time.Second, quietLogger())
	var got []maptile.Tile
	failed, err := p.Collect(context.Background(), 3, maptile.Tiles{a, b, c}, func(t *tilecache.Tile) {
		got = append(got, t.Key)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []maptile.Tile{a, b}, got)
	assert.Equal(t, 1, v.polls[a])
	assert.Equal(t, 4, v.polls[b])
}

func TestCollectStalls(t *testing.T) {
	v := newScriptedView(5)
	p := NewPanel(v, time.Millisecond, 5*time.Millisecond, 50*time.Millisecond, quietLogger())

	failed, err := p.Collect(context.Background(), 2, maptile.Tiles{maptile.New(0, 0, 2), maptile.New(1, 1, 2)}, func(*tilecache.Tile) {
		t.Fatal("nothing should resolve")
	})
	assert.True(t, errors.Is(err, ErrStalled))
	assert.Equal(t, 2, failed)
	assert.Greater(t, v.ticks, 0)
}

func TestCollectZoomNotServed(t *testing.T) {
	v := newScriptedView(5)
	p := NewPanel(v, time.Millisecond, time.Millisecond, time.Second, quietLogger())
	failed, err := p.Collect(context.Background(), 8, maptile.Tiles{maptile.New(0, 0, 8)}, func(*tilecache.Tile) {})
	assert.Error(t, err)
	assert.Equal(t, 1, failed)
}
