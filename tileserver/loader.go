package tileserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"tiler/geo"
)

var ErrUnknownServer = errors.New("unknown tile server")

// DefaultConfigJSON is written out when no tile server file exists yet.
const DefaultConfigJSON = `[
  {
    "name": "OpenTopoMap",
    "copyright": "Map Data (c) OpenStreetMap, SRTM - Map Style (c) OpenTopoMap (CC-BY-SA)",
    "protocol": "https",
    "servers": ["a.tile.opentopomap.org", "b.tile.opentopomap.org", "c.tile.opentopomap.org"],
    "url": "{z}/{x}/{y}.png",
    "min_zoom_level": 0,
    "max_zoom_level": 17
  },
  {
    "name": "OpenStreetMap",
    "copyright": "(c) OpenStreetMap contributors",
    "servers": ["tile.openstreetmap.org"],
    "url": "{z}/{x}/{y}.png",
    "max_zoom_level": 18
  },
  {
    "name": "Local tiles",
    "disabled": true,
    "protocol": "http",
    "servers": ["localhost:8080"],
    "url": "tiles/{z}/{y}/{x}.png"
  }
]
`

// entry is one element of the tile server file. Defaults are filled in
// before decoding so absent fields keep them.
type entry struct {
	Name       string   `json:"name"`
	Disabled   bool     `json:"disabled"`
	Copyright  string   `json:"copyright"`
	Protocol   string   `json:"protocol"`
	URL        *string  `json:"url"`
	MinZoom    int      `json:"min_zoom_level"`
	MaxZoom    int      `json:"max_zoom_level"`
	TileWidth  int      `json:"tile_width_px"`
	TileHeight int      `json:"tile_height_px"`
	Servers    []string `json:"servers"`
}

func defaultEntry() entry {
	return entry{
		Name:       "Unnamed",
		Protocol:   "https",
		MinZoom:    0,
		MaxZoom:    18,
		TileWidth:  TileSize,
		TileHeight: TileSize,
	}
}

// Registry holds the usable tile server configs in file order.
type Registry struct {
	configs []*Config
	byName  map[string]*Config
}

// Load reads the tile server file at path, creating it with DefaultConfigJSON
// first when it does not exist. Broken entries are logged and skipped; when
// nothing usable remains an inert offline config is installed so callers
// always get a config back.
func Load(path string, logger log.FieldLogger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	logger = logger.WithField("file", path)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Infof("tile server file not found, writing defaults")
		if err := writeDefault(path); err != nil {
			logger.Warnf("write default tile server file error ~ %s", err)
			data, err = []byte(DefaultConfigJSON), nil
		} else {
			data, err = os.ReadFile(path)
		}
	}
	if err != nil {
		logger.Warnf("read tile server file error ~ %s", err)
	}
	return Parse(data, logger)
}

// Parse builds a Registry from a JSON array of tile server entries.
func Parse(data []byte, logger log.FieldLogger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	r := &Registry{byName: make(map[string]*Config)}

	var raw []json.RawMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			logger.Warnf("tile server file is not a json array ~ %s", err)
			raw = nil
		}
	}

	for i, msg := range raw {
		cfg, err := parseEntry(msg)
		if err != nil {
			logger.WithField("entry", i).Warnf("skipping tile server ~ %s", err)
			continue
		}
		if cfg == nil {
			logger.WithField("entry", i).Debugf("tile server disabled")
			continue
		}
		if _, dup := r.byName[cfg.Name]; dup {
			logger.WithField("entry", i).Warnf("skipping duplicate tile server %q", cfg.Name)
			continue
		}
		r.add(cfg)
	}

	if len(r.configs) == 0 {
		logger.Warnf("no usable tile servers, maps will stay empty")
		r.add(offlineConfig())
	}
	return r
}

func parseEntry(msg json.RawMessage) (*Config, error) {
	e := defaultEntry()
	if err := json.Unmarshal(msg, &e); err != nil {
		return nil, err
	}
	if e.Disabled {
		return nil, nil
	}
	if e.URL == nil {
		return nil, fmt.Errorf("%s: missing url", e.Name)
	}
	if e.Servers == nil {
		return nil, fmt.Errorf("%s: missing servers", e.Name)
	}
	cfg := &Config{
		Name:       e.Name,
		Copyright:  e.Copyright,
		Protocol:   e.Protocol,
		URL:        *e.URL,
		Servers:    e.Servers,
		MinZoom:    e.MinZoom,
		MaxZoom:    e.MaxZoom,
		TileWidth:  e.TileWidth,
		TileHeight: e.TileHeight,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// offlineConfig points at the loopback interface; every fetch fails and the
// pipeline keeps showing placeholders.
func offlineConfig() *Config {
	c := &Config{
		Name:       "Offline",
		Protocol:   "http",
		URL:        "{z}/{x}/{y}",
		Servers:    []string{"127.0.0.1"},
		MinZoom:    0,
		MaxZoom:    geo.MaxZoom,
		TileWidth:  TileSize,
		TileHeight: TileSize,
	}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

func (r *Registry) add(c *Config) {
	r.configs = append(r.configs, c)
	r.byName[c.Name] = c
}

//Names config names in file order
func (r *Registry) Names() []string {
	names := make([]string, len(r.configs))
	for i, c := range r.configs {
		names[i] = c.Name
	}
	return names
}

// Config returns the named config; the empty name selects the first one.
func (r *Registry) Config(name string) (*Config, error) {
	if name == "" {
		return r.configs[0], nil
	}
	if c, ok := r.byName[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownServer)
}

func writeDefault(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(DefaultConfigJSON), 0644)
}

func discardLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
