package main

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"tiler/settings"
	"tiler/tileserver"
)

const tileServerKey = "map.tile_server"

// selectTileServer picks the stored tile server. An unset or unknown name
// falls back to the first loaded server, which is then remembered.
func selectTileServer(reg *tileserver.Registry, store *settings.Store, logger log.FieldLogger) *tileserver.Config {
	name := store.GetString(tileServerKey)
	if name != "" {
		cfg, err := reg.Config(name)
		if err == nil {
			return cfg
		}
		logger.Warnf("tile server %q ~ %s, using default", name, err)
	}

	cfg, _ := reg.Config("")
	if err := store.Put(tileServerKey, cfg.Name); err != nil && !errors.Is(err, settings.ErrNoFile) {
		logger.Warnf("save tile server setting error ~ %s", err)
	}
	return cfg
}
