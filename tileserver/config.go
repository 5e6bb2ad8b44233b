package tileserver

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"tiler/geo"
)

//TileSize the only tile edge length servers may use
const TileSize = 256

var (
	ErrNoServers   = errors.New("no tile servers")
	ErrPlaceholder = errors.New("url template needs exactly one each of {x}, {y} and {z}")
	ErrProtocol    = errors.New("protocol must be http or https")
	ErrZoomRange   = errors.New("invalid zoom range")
	ErrTileSize    = errors.New("unsupported tile size")
)

// Order is the textual order of the {z}, {x} and {y} placeholders in a URL
// template.
type Order int

const (
	OrderZXY Order = iota
	OrderZYX
	OrderXZY
	OrderXYZ
	OrderYZX
	OrderYXZ
)

var orderNames = map[string]Order{
	"zxy": OrderZXY,
	"zyx": OrderZYX,
	"xzy": OrderXZY,
	"xyz": OrderXYZ,
	"yzx": OrderYZX,
	"yxz": OrderYXZ,
}

func (o Order) String() string {
	for k, v := range orderNames {
		if v == o {
			return k
		}
	}
	return "Order(" + strconv.Itoa(int(o)) + ")"
}

//Config one tile server family
type Config struct {
	Name       string
	Copyright  string
	Protocol   string
	URL        string
	Servers    []string
	MinZoom    int
	MaxZoom    int
	TileWidth  int
	TileHeight int

	order    Order
	segments [4]string
	valid    bool
}

// Validate normalizes the config in place and prepares it for FormatURL.
func (c *Config) Validate() error {
	c.valid = false

	servers := make([]string, 0, len(c.Servers))
	for _, s := range c.Servers {
		s = strings.TrimRight(strings.TrimSpace(s), "/")
		if s != "" {
			servers = append(servers, s)
		}
	}
	if len(servers) == 0 {
		return fmt.Errorf("%s: %w", c.Name, ErrNoServers)
	}
	c.Servers = servers

	c.URL = strings.TrimLeft(c.URL, "/")
	type mark struct {
		name byte
		pos  int
	}
	marks := make([]mark, 0, 3)
	for _, p := range []byte{'z', 'x', 'y'} {
		ph := "{" + string(p) + "}"
		if strings.Count(c.URL, ph) != 1 {
			return fmt.Errorf("%s: %q: %w", c.Name, c.URL, ErrPlaceholder)
		}
		marks = append(marks, mark{name: p, pos: strings.Index(c.URL, ph)})
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].pos < marks[j].pos })
	c.order = orderNames[string([]byte{marks[0].name, marks[1].name, marks[2].name})]
	c.segments = [4]string{
		c.URL[:marks[0].pos],
		c.URL[marks[0].pos+3 : marks[1].pos],
		c.URL[marks[1].pos+3 : marks[2].pos],
		c.URL[marks[2].pos+3:],
	}

	c.Protocol = strings.ToLower(strings.TrimSpace(c.Protocol))
	if c.Protocol != "http" && c.Protocol != "https" {
		return fmt.Errorf("%s: %q: %w", c.Name, c.Protocol, ErrProtocol)
	}

	if c.MinZoom < 0 || c.MinZoom > c.MaxZoom || c.MaxZoom > geo.MaxZoom {
		return fmt.Errorf("%s: [%d, %d]: %w", c.Name, c.MinZoom, c.MaxZoom, ErrZoomRange)
	}
	if c.TileWidth != TileSize || c.TileHeight != TileSize {
		return fmt.Errorf("%s: %dx%d: %w", c.Name, c.TileWidth, c.TileHeight, ErrTileSize)
	}

	c.valid = true
	return nil
}

//Order placeholder order detected by Validate
func (c *Config) Order() Order { return c.order }

//Valid whether Validate succeeded
func (c *Config) Valid() bool { return c.valid }

// ClampZoom limits z to [MinZoom, MaxZoom].
func (c *Config) ClampZoom(z int) int {
	if z < c.MinZoom {
		return c.MinZoom
	}
	if z > c.MaxZoom {
		return c.MaxZoom
	}
	return z
}

// FormatURL renders the request URL of tile z/x/y on an arbitrary mirror.
// The config must have been validated.
func (c *Config) FormatURL(zoom, x, y int) string {
	mirror := c.Servers[0]
	if len(c.Servers) > 1 {
		mirror = c.Servers[rand.Intn(len(c.Servers))]
	}

	z, xs, ys := strconv.Itoa(zoom), strconv.Itoa(x), strconv.Itoa(y)
	var v [3]string
	switch c.order {
	case OrderZXY:
		v = [3]string{z, xs, ys}
	case OrderZYX:
		v = [3]string{z, ys, xs}
	case OrderXZY:
		v = [3]string{xs, z, ys}
	case OrderXYZ:
		v = [3]string{xs, ys, z}
	case OrderYZX:
		v = [3]string{ys, z, xs}
	case OrderYXZ:
		v = [3]string{ys, xs, z}
	}

	var b strings.Builder
	b.WriteString(c.Protocol)
	b.WriteString("://")
	b.WriteString(mirror)
	b.WriteByte('/')
	b.WriteString(c.segments[0])
	b.WriteString(v[0])
	b.WriteString(c.segments[1])
	b.WriteString(v[1])
	b.WriteString(c.segments[2])
	b.WriteString(v[2])
	b.WriteString(c.segments[3])
	return b.String()
}
