package main

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiler/document"
	"tiler/render"
	"tiler/tilecache"
	"tiler/tileserver"
)

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(ioutil.Discard)
	return l
}

func tilePNG(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.SetRGBA(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// tileServer serves a png for every tile except the paths in missing.
func tileServer(t *testing.T, missing ...string) (*tileserver.Config, *int32) {
	body := tilePNG(t)
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		for _, m := range missing {
			if r.URL.Path == m {
				http.NotFound(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	cfg := &tileserver.Config{
		Name:       "Test Tiles",
		Copyright:  "test data",
		Protocol:   "http",
		URL:        "tiles/{z}/{x}/{y}.png",
		Servers:    []string{strings.TrimPrefix(srv.URL, "http://")},
		MinZoom:    0,
		MaxZoom:    4,
		TileWidth:  256,
		TileHeight: 256,
	}
	require.NoError(t, cfg.Validate())
	return cfg, &hits
}

func testPanel(t *testing.T, cfg *tileserver.Config) *Panel {
	raster := render.NewRaster()
	f, err := document.New(raster, document.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	cache := tilecache.New(f, raster, cfg, tilecache.Options{})
	return NewPanel(cache, time.Millisecond, 20*time.Millisecond, 5*time.Second, quietLogger())
}

func TestExportMBTiles(t *testing.T) {
	cfg, _ := tileServer(t)
	dir := t.TempDir()

	task, err := NewTask(areaAround(47.37, 8.54, 0), 0, 2, cfg, testPanel(t, cfg), MBTILES, dir, quietLogger())
	require.NoError(t, err)
	task.Output = ioutil.Discard
	require.Len(t, task.Layers, 3)
	assert.EqualValues(t, 3, task.Total)

	require.NoError(t, task.Download(context.Background()))
	assert.EqualValues(t, 3, task.Saved())
	assert.EqualValues(t, 0, task.Failed())
	assert.Equal(t, dir, filepath.Dir(task.File))
	assert.True(t, strings.HasSuffix(task.File, ".Test_Tiles.mbtiles"))

	db, err := sql.Open("sqlite3", task.File)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("select count(*) from tiles").Scan(&n))
	assert.Equal(t, 3, n)

	// zoom 2 tile (2, 1) is stored as tms row 4-1-1
	var data []byte
	require.NoError(t, db.QueryRow("select tile_data from tiles where zoom_level = 2 and tile_column = 2 and tile_row = 2").Scan(&data))
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())

	var format, attribution string
	require.NoError(t, db.QueryRow("select value from metadata where name = 'format'").Scan(&format))
	require.NoError(t, db.QueryRow("select value from metadata where name = 'attribution'").Scan(&attribution))
	assert.Equal(t, PNG, format)
	assert.Equal(t, "test data", attribution)
}

func TestExportFilesSkipsMissingTiles(t *testing.T) {
	cfg, _ := tileServer(t, "/tiles/1/1/0.png")
	dir := t.TempDir()

	area := orb.Collection{orb.Bound{Min: orb.Point{-170, -80}, Max: orb.Point{170, 80}}}
	task, err := NewTask(area, 1, 1, cfg, testPanel(t, cfg), FILES, dir, quietLogger())
	require.NoError(t, err)
	task.Output = ioutil.Discard
	assert.EqualValues(t, 4, task.Total)

	require.NoError(t, task.Download(context.Background()))
	assert.EqualValues(t, 3, task.Saved())
	assert.EqualValues(t, 1, task.Failed())

	_, err = os.Stat(filepath.Join(task.File, "1", "0", "0.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(task.File, "1", "1", "0.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportCanceled(t *testing.T) {
	cfg, _ := tileServer(t)
	task, err := NewTask(areaAround(0, 0, 0), 0, 4, cfg, testPanel(t, cfg), FILES, t.TempDir(), quietLogger())
	require.NoError(t, err)
	task.Output = ioutil.Discard

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, task.Download(ctx), context.Canceled)
}

func TestNewTaskErrors(t *testing.T) {
	cfg, _ := tileServer(t)
	p := testPanel(t, cfg)

	_, err := NewTask(nil, 0, 1, cfg, p, MBTILES, t.TempDir(), quietLogger())
	assert.Error(t, err)
	_, err = NewTask(areaAround(0, 0, 0), 0, 1, cfg, p, "tar", t.TempDir(), quietLogger())
	assert.Error(t, err)

	// zoom range is clamped to the server and put in order
	task, err := NewTask(areaAround(0, 0, 0), 9, -1, cfg, p, MBTILES, t.TempDir(), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, task.Min)
	assert.Equal(t, 4, task.Max)
}

func TestFlipY(t *testing.T) {
	assert.EqualValues(t, 0, Tile{T: maptile.New(0, 0, 0)}.flipY())
	assert.EqualValues(t, 2, Tile{T: maptile.New(2, 1, 2)}.flipY())
	assert.EqualValues(t, 0, Tile{T: maptile.New(5, 1023, 10)}.flipY())
}
