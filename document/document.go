package document

import (
	"strconv"
	"sync"
)

// Status is the outcome of fetching a document.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusLoadTimeout
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusLoadTimeout:
		return "load_timeout"
	case StatusUnsupported:
		return "unsupported"
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

//Pages page geometry reported by the engine
type Pages struct {
	Count  int
	Width  int
	Height int
}

// Document is a fetched resource. Everything but the engine state is fixed
// at construction; the engine state is prepared once on first use.
type Document struct {
	URL      string
	Status   Status
	MimeType string
	Content  []byte
	Pages    Pages

	once  sync.Once
	state interface{}
	err   error
}

//OK whether the document can be rendered
func (d *Document) OK() bool { return d.Status == StatusOK }

// State returns what the engine prepared for this document, nil until
// prepared or when preparing failed.
func (d *Document) State() interface{} {
	return d.state
}

func (d *Document) prepare(e Engine) error {
	d.once.Do(func() {
		if d.Status != StatusOK {
			return
		}
		d.state, d.err = e.Prepare(d)
	})
	return d.err
}

// Engine is the document engine behind the fetcher.
type Engine interface {
	// Init sets up the engine; an error here is fatal for the fetcher.
	Init() error
	// Inspect checks that content can be rendered and reports its pages.
	Inspect(mimeType string, content []byte) (Pages, error)
	// Prepare builds the engine state used when rendering doc.
	Prepare(doc *Document) (interface{}, error)
}
