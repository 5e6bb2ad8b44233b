package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"tiler/tilecache"
	"tiler/tileserver"
)

//MBTileVersion mbtiles版本号
const MBTileVersion = "1.2"

//Task 导出任务
type Task struct {
	ID          string
	Name        string
	Description string
	File        string
	Min         int
	Max         int
	Area        orb.Collection
	Layers      []Layer
	Total       int64
	Bar         *pb.ProgressBar
	Output      io.Writer

	db         *sql.DB
	wg         sync.WaitGroup
	savingpipe chan Tile
	outformat  string
	outdir     string
	server     *tileserver.Config
	panel      *Panel
	log        log.FieldLogger

	saved  int64
	failed int64
}

//NewTask 创建导出任务
func NewTask(area orb.Collection, min, max int, server *tileserver.Config, panel *Panel, outformat, outdir string, logger log.FieldLogger) (*Task, error) {
	if len(area) == 0 {
		return nil, fmt.Errorf("empty export area")
	}
	if outformat != MBTILES && outformat != FILES {
		return nil, fmt.Errorf("unknown output format %q", outformat)
	}
	min, max = server.ClampZoom(min), server.ClampZoom(max)
	if min > max {
		min, max = max, min
	}
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}

	task := &Task{
		ID:          id,
		Name:        server.Name,
		Description: server.Copyright,
		Min:         min,
		Max:         max,
		Area:        area,
		savingpipe:  make(chan Tile, 64),
		outformat:   outformat,
		outdir:      outdir,
		server:      server,
		panel:       panel,
	}
	task.log = logger.WithFields(log.Fields{"component": "task", "task": id})

	for z := min; z <= max; z++ {
		tiles, err := coverZoom(area, z)
		if err != nil {
			return nil, fmt.Errorf("cover zoom %d: %w", z, err)
		}
		task.Layers = append(task.Layers, Layer{Zoom: z, Count: int64(len(tiles)), Tiles: tiles})
		task.Total += int64(len(tiles))
		task.log.Debugf("zoom %d: %d tiles", z, len(tiles))
	}
	return task, nil
}

//Bound 范围
func (task *Task) Bound() orb.Bound {
	bound := task.Area[0].Bound()
	for _, g := range task.Area[1:] {
		bound = bound.Union(g.Bound())
	}
	return bound
}

//Center 中心点
func (task *Task) Center() orb.Point {
	return task.Bound().Center()
}

//MetaItems mbtiles metadata
func (task *Task) MetaItems() map[string]string {
	b := task.Bound()
	c := task.Center()
	return map[string]string{
		"id":          task.ID,
		"name":        task.Name,
		"description": task.Description,
		"attribution": task.server.Copyright,
		"type":        "baselayer",
		"version":     MBTileVersion,
		"format":      PNG,
		"minzoom":     fmt.Sprint(task.Min),
		"maxzoom":     fmt.Sprint(task.Max),
		"bounds":      fmt.Sprintf("%f,%f,%f,%f", b.Left(), b.Bottom(), b.Right(), b.Top()),
		"center":      fmt.Sprintf("%f,%f,%d", c.X(), c.Y(), (task.Min+task.Max)/2),
	}
}

func (task *Task) baseName() string {
	name := strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, task.Name)
	return task.ID + "." + name
}

//SetupMBTileTables 初始化配置MBTile库
func (task *Task) SetupMBTileTables() error {
	if task.File == "" {
		if err := os.MkdirAll(task.outdir, os.ModePerm); err != nil {
			return err
		}
		task.File = filepath.Join(task.outdir, task.baseName()+".mbtiles")
	}
	os.Remove(task.File)
	db, err := sql.Open("sqlite3", task.File)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)

	err = optimizeConnection(db)
	if err != nil {
		db.Close()
		return err
	}

	for _, stmt := range []string{
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index name on metadata (name);",
		"create unique index tile_index on tiles(zoom_level, tile_column, tile_row);",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return err
		}
	}

	for name, value := range task.MetaItems() {
		_, err := db.Exec("insert into metadata (name, value) values (?, ?)", name, value)
		if err != nil {
			db.Close()
			return err
		}
	}

	task.db = db
	return nil
}

//savePipe 保存瓦片管道
func (task *Task) savePipe() {
	for tile := range task.savingpipe {
		err := saveToMBTile(tile, task.db)
		if err != nil {
			task.log.Errorf("save %v tile to mbtiles db error ~ %s", tile.T, err)
			atomic.AddInt64(&task.failed, 1)
		} else {
			atomic.AddInt64(&task.saved, 1)
		}
		task.wg.Done()
	}
}

//saveTile 保存瓦片
func (task *Task) saveTile(t *tilecache.Tile) {
	tile, err := encodeTile(t)
	if err != nil {
		task.log.Errorf("encode %v tile error ~ %s", t.Key, err)
		atomic.AddInt64(&task.failed, 1)
		return
	}
	if task.outformat == MBTILES {
		task.wg.Add(1)
		task.savingpipe <- tile
		return
	}
	name, err := saveToFiles(tile, task.File)
	if err != nil {
		task.log.Errorf("create %v tile file error ~ %s", tile.T, err)
		atomic.AddInt64(&task.failed, 1)
		return
	}
	atomic.AddInt64(&task.saved, 1)
	task.log.Debug(name)
}

func (task *Task) newBar(total int64, prefix string) *pb.ProgressBar {
	bar := pb.New64(total).Prefix(prefix)
	if task.Output != nil {
		bar.Output = task.Output
	}
	return bar
}

//downloadLayer 导出指定层级
func (task *Task) downloadLayer(ctx context.Context, layer Layer) error {
	bar := task.newBar(layer.Count, fmt.Sprintf("Zoom %d : ", layer.Zoom))
	bar.Start()

	failed, err := task.panel.Collect(ctx, layer.Zoom, layer.Tiles, func(t *tilecache.Tile) {
		task.saveTile(t)
		bar.Increment()
		task.Bar.Increment()
	})
	atomic.AddInt64(&task.failed, int64(failed))
	bar.FinishPrint(fmt.Sprintf("task %s zoom %d finished, %d tiles missing ~", task.ID, layer.Zoom, failed))
	return err
}

// Download exports every layer. Tiles that cannot be fetched are skipped;
// the returned error reports an aborted or stalled run.
func (task *Task) Download(ctx context.Context) error {
	task.Bar = task.newBar(task.Total, "Task : ")
	task.Bar.Start()

	if task.outformat == MBTILES {
		if err := task.SetupMBTileTables(); err != nil {
			return fmt.Errorf("setup mbtiles: %w", err)
		}
		go task.savePipe()
	} else if task.File == "" {
		task.File = filepath.Join(task.outdir, task.baseName())
	}

	var err error
	for _, layer := range task.Layers {
		if err = task.downloadLayer(ctx, layer); err != nil {
			task.log.Warnf("task %s stopped ~ %s", task.ID, err)
			break
		}
	}
	task.wg.Wait()
	close(task.savingpipe)

	if task.db != nil {
		if err := optimizeDatabase(task.db); err != nil {
			task.log.Warnf("optimize %s error ~ %s", task.File, err)
		}
		task.db.Close()
	}
	task.Bar.FinishPrint(fmt.Sprintf("task %s finished, %d saved, %d failed ~", task.ID, task.Saved(), task.Failed()))
	return err
}

//Saved tiles written so far
func (task *Task) Saved() int64 { return atomic.LoadInt64(&task.saved) }

//Failed tiles skipped so far
func (task *Task) Failed() int64 { return atomic.LoadInt64(&task.failed) }
