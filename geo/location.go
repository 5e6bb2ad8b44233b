package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

//Location a point on the earth, stored in radians
type Location struct {
	lat float64
	lon float64
}

// FromRadians builds a Location, clamping latitude to [-π/2, π/2] and
// normalizing longitude to [-π, π).
func FromRadians(lat, lon float64) Location {
	return Location{lat: clampLatitude(lat), lon: normalizeLongitude(lon)}
}

// FromDegrees is FromRadians for degree input.
func FromDegrees(lat, lon float64) Location {
	return FromRadians(lat*math.Pi/180, lon*math.Pi/180)
}

// FromPoint converts an orb point (lon, lat in degrees).
func FromPoint(p orb.Point) Location {
	return FromDegrees(p.Lat(), p.Lon())
}

//Latitude in radians
func (l Location) Latitude() float64 { return l.lat }

//Longitude in radians
func (l Location) Longitude() float64 { return l.lon }

//LatitudeDeg in degrees
func (l Location) LatitudeDeg() float64 { return l.lat * 180 / math.Pi }

//LongitudeDeg in degrees
func (l Location) LongitudeDeg() float64 { return l.lon * 180 / math.Pi }

//Point orb point in degrees
func (l Location) Point() orb.Point {
	return orb.Point{l.LongitudeDeg(), l.LatitudeDeg()}
}

func (l Location) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", l.LatitudeDeg(), l.LongitudeDeg())
}

// AngularDistance returns the great-circle distance between a and b in
// radians (haversine).
func AngularDistance(a, b Location) float64 {
	dLat := b.lat - a.lat
	dLon := b.lon - a.lon
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	h := sLat*sLat + math.Cos(a.lat)*math.Cos(b.lat)*sLon*sLon
	if h > 1 {
		h = 1
	}
	return 2 * math.Asin(math.Sqrt(h))
}

// DistanceMeters returns the great-circle distance between a and b in meters.
func DistanceMeters(a, b Location) float64 {
	return orbgeo.Distance(a.Point(), b.Point())
}

func clampLatitude(lat float64) float64 {
	switch {
	case math.IsNaN(lat):
		return 0
	case lat > math.Pi/2:
		return math.Pi / 2
	case lat < -math.Pi/2:
		return -math.Pi / 2
	}
	return lat
}

func normalizeLongitude(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0
	}
	lon = math.Mod(lon+math.Pi, 2*math.Pi)
	if lon < 0 {
		lon += 2 * math.Pi
	}
	lon -= math.Pi
	if lon >= math.Pi {
		lon = -math.Pi
	}
	return lon
}
