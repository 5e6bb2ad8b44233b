package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"tiler/document"
	"tiler/metrics/prom"
	"tiler/render"
	"tiler/settings"
	"tiler/tilecache"
	"tiler/tileserver"
)

// flag
var (
	hf bool
	cf string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr, `tiler version: tiler/v0.2.0
Usage: tiler [-h] [-c filename]
`)
	flag.PrintDefaults()
}

// initConf 初始化配置
func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	viper.SetDefault("app.version", "v 0.2.0")
	viper.SetDefault("app.title", "Tiler")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
	viper.SetDefault("map.config", "tileservers.json")
	viper.SetDefault("map.tile_server", "")
	viper.SetDefault("panel.frame", "20ms")
	viper.SetDefault("panel.tick", "1s")
	viper.SetDefault("panel.timeout", "2m")
	viper.SetDefault("fetch.timeout", "30s")
	viper.SetDefault("metrics.addr", "")
	viper.SetDefault("output.format", MBTILES)
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("export.geojson", "")
	viper.SetDefault("export.min", 0)
	viper.SetDefault("export.max", 2)
	viper.SetDefault("export.lat", 0.0)
	viper.SetDefault("export.lon", 0.0)
	viper.SetDefault("export.radius", 0.0)
}

//initLog 初始化日志
func initLog(level, file string) {
	formatter := &nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		FieldsOrder:     []string{"component", "server", "task"},
	}
	if file != "" {
		formatter.NoColors = true
		log.SetOutput(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	} else {
		// then wrap the log output with it
		log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
	}
	log.SetFormatter(formatter)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("log level %q ~ %s, using info", level, err)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func exportArea() (orb.Collection, error) {
	if path := viper.GetString("export.geojson"); path != "" {
		return loadCollection(path)
	}
	return areaAround(viper.GetFloat64("export.lat"), viper.GetFloat64("export.lon"), viper.GetFloat64("export.radius")), nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Infof("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server error ~ %s", err)
		}
	}()
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}

	if cf == "" {
		cf = "conf.toml"
	}
	initConf(cf)
	initLog(viper.GetString("log.level"), viper.GetString("log.file"))
	logger := log.StandardLogger()
	start := time.Now()

	servers := tileserver.Load(viper.GetString("map.config"), logger)
	server := selectTileServer(servers, settings.New(viper.GetViper()), logger)
	log.Infof("tile server %s, zoom %d-%d", server.Name, server.MinZoom, server.MaxZoom)

	var (
		fetchMetrics document.Metrics  = document.NoopMetrics{}
		tileMetrics  tilecache.Metrics = tilecache.NoopMetrics{}
	)
	if addr := viper.GetString("metrics.addr"); addr != "" {
		labels := prometheus.Labels{"server": server.Name}
		fetchMetrics = prom.NewFetcher(nil, "tiler", labels)
		tileMetrics = prom.NewTiles(nil, "tiler", labels)
		serveMetrics(addr)
	}

	raster := render.NewRaster()
	fetcher, err := document.New(raster, document.Options{
		Timeout: viper.GetDuration("fetch.timeout"),
		Logger:  logger,
		Metrics: fetchMetrics,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer fetcher.Close()

	cache := tilecache.New(fetcher, raster, server, tilecache.Options{Logger: logger, Metrics: tileMetrics})
	panel := NewPanel(cache,
		viper.GetDuration("panel.frame"),
		viper.GetDuration("panel.tick"),
		viper.GetDuration("panel.timeout"),
		logger)

	area, err := exportArea()
	if err != nil {
		log.Fatalf("export area error ~ %s", err)
	}
	task, err := NewTask(area, viper.GetInt("export.min"), viper.GetInt("export.max"), server, panel,
		viper.GetString("output.format"), viper.GetString("output.directory"), logger)
	if err != nil {
		log.Fatalf("create task error ~ %s", err)
	}
	log.Infof("task %s: zoom %d-%d, %d tiles", task.ID, task.Min, task.Max, task.Total)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := task.Download(ctx); err != nil {
		log.Warnf("task %s incomplete ~ %s", task.ID, err)
	}
	secs := time.Since(start).Seconds()
	log.Printf("%.3fs finished, output %s", secs, task.File)
}
