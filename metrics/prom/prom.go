package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"tiler/document"
	"tiler/tilecache"
)

// Fetcher implements document.Metrics.
type Fetcher struct {
	started   prometheus.Counter
	dropped   prometheus.Counter
	done      *prometheus.CounterVec
	documents prometheus.Gauge
}

// NewFetcher registers the fetcher metrics with reg (nil means the default
// registerer) under namespace ns.
func NewFetcher(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *Fetcher {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const sub = "fetcher"
	f := &Fetcher{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "started_total",
			Help:        "Fetch jobs taken by the worker",
			ConstLabels: constLabels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "dropped_total",
			Help:        "Requests dropped because the job slot was busy",
			ConstLabels: constLabels,
		}),
		done: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "done_total",
				Help:        "Finished fetches by status",
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "documents",
			Help:        "Cached documents",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(f.started, f.dropped, f.done, f.documents)
	return f
}

func (f *Fetcher) FetchStarted() { f.started.Inc() }
func (f *Fetcher) FetchDropped() { f.dropped.Inc() }

func (f *Fetcher) FetchDone(s document.Status) {
	f.done.WithLabelValues(s.String()).Inc()
}

func (f *Fetcher) Documents(n int) { f.documents.Set(float64(n)) }

// Tiles implements tilecache.Metrics.
type Tiles struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	evicts prometheus.Counter
	size   prometheus.Gauge
}

// NewTiles registers the tile cache metrics with reg (nil means the default
// registerer) under namespace ns.
func NewTiles(reg prometheus.Registerer, ns string, constLabels prometheus.Labels) *Tiles {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const sub = "tiles"
	t := &Tiles{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Tile cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Tile cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Tiles dropped by maintenance",
			ConstLabels: constLabels,
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Resident tiles",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(t.hits, t.misses, t.evicts, t.size)
	return t
}

func (t *Tiles) Hit()       { t.hits.Inc() }
func (t *Tiles) Miss()      { t.misses.Inc() }
func (t *Tiles) Evict()     { t.evicts.Inc() }
func (t *Tiles) Size(n int) { t.size.Set(float64(n)) }

var (
	_ document.Metrics  = (*Fetcher)(nil)
	_ tilecache.Metrics = (*Tiles)(nil)
)
