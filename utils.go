package main

import (
	"database/sql"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
)

func saveToMBTile(tile Tile, db *sql.DB) error {
	_, err := db.Exec("insert or replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);", tile.T.Z, tile.T.X, tile.flipY(), tile.C)
	if err != nil {
		return err
	}
	return nil
}

func saveToFiles(tile Tile, rootdir string) (string, error) {
	dir := filepath.Join(rootdir, fmt.Sprintf(`%d`, tile.T.Z), fmt.Sprintf(`%d`, tile.T.X))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}
	fileName := filepath.Join(dir, fmt.Sprintf(`%d.%s`, tile.T.Y, PNG))
	err := ioutil.WriteFile(fileName, tile.C, 0644)
	if err != nil {
		return "", err
	}
	return fileName, nil
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA synchronous=0")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA locking_mode=EXCLUSIVE")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA journal_mode=DELETE")
	if err != nil {
		return err
	}
	return nil
}

func optimizeDatabase(db *sql.DB) error {
	_, err := db.Exec("ANALYZE;")
	if err != nil {
		return err
	}

	_, err = db.Exec("VACUUM;")
	if err != nil {
		return err
	}

	return nil
}

// loadCollection reads a geojson feature collection, a single feature or a
// bare geometry.
func loadCollection(path string) (orb.Collection, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read file: %w", err)
	}

	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		var collection orb.Collection
		for _, f := range fc.Features {
			collection = append(collection, f.Geometry)
		}
		return collection, nil
	}

	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		return orb.Collection{f.Geometry}, nil
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal %s: %w", path, err)
	}
	return orb.Collection{g.Geometry()}, nil
}

//areaAround square area of radius meters around lon/lat
func areaAround(lat, lon, radius float64) orb.Collection {
	center := orb.Point{lon, lat}
	if radius <= 0 {
		return orb.Collection{center}
	}
	return orb.Collection{geo.NewBoundAroundPoint(center, radius)}
}

// coverZoom lists the tiles covering area at zoom z, row by row.
func coverZoom(area orb.Collection, z int) (maptile.Tiles, error) {
	set, err := tilecover.Collection(area, maptile.Zoom(z))
	if err != nil {
		return nil, err
	}
	tiles := make(maptile.Tiles, 0, len(set))
	for t := range set {
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})
	return tiles, nil
}
