package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrEngineInit wraps engine start-up failures returned by New. There is no
// way to recover from it; treat it as a failed start.
var ErrEngineInit = errors.New("document engine initialization failed")

var errCanceled = errors.New("download canceled")

//DefaultUserAgent sent with every download
const DefaultUserAgent = "tiler/0.2"

// Options configures a Fetcher. Zero values are usable.
type Options struct {
	// Client performs downloads; nil means a client without its own timeout.
	Client *http.Client
	// Timeout bounds one fetch. Timed out fetches are not cached, so the
	// next request retries them. 0 disables the limit.
	Timeout   time.Duration
	UserAgent string
	Logger    log.FieldLogger
	Metrics   Metrics
	// Progress is called from the worker while a download is running.
	Progress func(url string, read, total int64)
}

// Fetcher downloads or reads documents one at a time on a background
// goroutine and keeps every result, failures included, keyed by URL.
//
// The document map and the job slot have separate locks and the two are
// never held together.
type Fetcher struct {
	engine Engine
	opt    Options
	log    log.FieldLogger

	cacheMu sync.Mutex
	docs    map[string]*Document

	jobMu   sync.Mutex
	jobCond *sync.Cond
	job     string
	running bool

	canceled  atomic.Bool
	ctx       context.Context
	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New initializes engine and starts the fetch worker.
func New(engine Engine, opt Options) (*Fetcher, error) {
	if err := engine.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}
	if opt.Client == nil {
		opt.Client = &http.Client{}
	}
	if opt.UserAgent == "" {
		opt.UserAgent = DefaultUserAgent
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	logger := opt.Logger
	if logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	f := &Fetcher{
		engine:  engine,
		opt:     opt,
		log:     logger.WithField("component", "fetcher"),
		docs:    make(map[string]*Document),
		running: true,
		done:    make(chan struct{}),
	}
	f.jobCond = sync.NewCond(&f.jobMu)
	f.ctx, f.stop = context.WithCancel(context.Background())
	go f.worker()
	return f, nil
}

// GetDocument returns the cached document for url. On a miss it hands url to
// the worker if no other fetch is running and returns nil; callers poll
// again later.
func (f *Fetcher) GetDocument(url string) *Document {
	f.cacheMu.Lock()
	doc, ok := f.docs[url]
	f.cacheMu.Unlock()
	if ok {
		if err := doc.prepare(f.engine); err != nil {
			f.log.WithField("url", url).Debugf("prepare document error ~ %s", err)
		}
		return doc
	}

	f.jobMu.Lock()
	switch {
	case !f.running:
	case f.job == "":
		f.job = url
		f.jobCond.Signal()
		f.opt.Metrics.FetchStarted()
	case f.job != url:
		f.opt.Metrics.FetchDropped()
	}
	f.jobMu.Unlock()
	return nil
}

//Busy whether a fetch is in flight
func (f *Fetcher) Busy() bool {
	f.jobMu.Lock()
	defer f.jobMu.Unlock()
	return f.job != ""
}

//Len number of cached documents
func (f *Fetcher) Len() int {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	return len(f.docs)
}

// Close aborts the running download, stops the worker and waits for it
// before dropping the cache. It is safe to call more than once.
func (f *Fetcher) Close() error {
	f.closeOnce.Do(func() {
		f.canceled.Store(true)
		f.stop()

		f.jobMu.Lock()
		f.running = false
		f.jobCond.Broadcast()
		f.jobMu.Unlock()

		<-f.done

		f.cacheMu.Lock()
		f.docs = make(map[string]*Document)
		f.cacheMu.Unlock()
	})
	return nil
}

func (f *Fetcher) worker() {
	defer close(f.done)

	f.jobMu.Lock()
	for {
		for f.running && f.job == "" {
			f.jobCond.Wait()
		}
		if !f.running {
			f.jobMu.Unlock()
			return
		}
		url := f.job
		f.jobMu.Unlock()

		f.process(url)

		f.jobMu.Lock()
		f.job = ""
	}
}

func (f *Fetcher) process(url string) {
	f.cacheMu.Lock()
	_, ok := f.docs[url]
	f.cacheMu.Unlock()
	if ok {
		return
	}

	logger := f.log.WithField("url", url)
	start := time.Now()
	doc, keep := f.fetch(url)
	if doc == nil {
		logger.Debugf("fetch canceled")
		return
	}
	f.opt.Metrics.FetchDone(doc.Status)
	secs := time.Since(start).Seconds()
	if !keep {
		logger.Warnf("fetch %s after %.3fs, will retry", doc.Status, secs)
		return
	}
	if doc.Status == StatusOK {
		logger.Debugf("fetched %s, %.3fs, %.2f kb", doc.MimeType, secs, float32(len(doc.Content))/1024.0)
	} else {
		logger.Infof("fetch failed: %s, %.3fs", doc.Status, secs)
	}

	f.cacheMu.Lock()
	f.docs[url] = doc
	n := len(f.docs)
	f.cacheMu.Unlock()
	f.opt.Metrics.Documents(n)
}

// fetch loads url and reports whether the result may be cached. A nil
// document means the fetcher is shutting down.
func (f *Fetcher) fetch(url string) (*Document, bool) {
	var (
		doc *Document
		err error
	)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		doc, err = f.download(url)
	} else {
		doc, err = f.readFile(url)
	}
	if f.canceled.Load() {
		return nil, false
	}
	if err != nil {
		f.log.WithField("url", url).Debugf("fetch error ~ %s", err)
	}
	if doc.Status == StatusLoadTimeout {
		return doc, false
	}
	if doc.Status != StatusOK {
		return doc, true
	}

	pages, err := f.engine.Inspect(doc.MimeType, doc.Content)
	if err != nil {
		f.log.WithField("url", url).Debugf("unsupported document ~ %s", err)
		return &Document{URL: url, Status: StatusUnsupported, MimeType: doc.MimeType}, true
	}
	doc.Pages = pages
	return doc, true
}

func (f *Fetcher) readFile(url string) (*Document, error) {
	path := strings.TrimPrefix(url, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return &Document{URL: url, Status: StatusNotFound}, err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &Document{URL: url, Status: StatusOK, MimeType: mimeType, Content: data}, nil
}

func (f *Fetcher) download(url string) (*Document, error) {
	ctx := f.ctx
	if f.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opt.Timeout)
		defer cancel()
	}

	failed := func(err error) (*Document, error) {
		status := StatusNotFound
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			status = StatusLoadTimeout
		}
		return &Document{URL: url, Status: status}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failed(err)
	}
	req.Header.Set("User-Agent", f.opt.UserAgent)

	resp, err := f.opt.Client.Do(req)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(fmt.Errorf("status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(&progressReader{
		r:     resp.Body,
		total: resp.ContentLength,
		fn: func(read, total int64) bool {
			if f.opt.Progress != nil {
				f.opt.Progress(url, read, total)
			}
			return !f.canceled.Load()
		},
	})
	if err != nil {
		return failed(err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(body)
	}
	return &Document{URL: url, Status: StatusOK, MimeType: mimeType, Content: body}, nil
}

// progressReader reports every read to fn and aborts once fn returns false.
type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    func(read, total int64) bool
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if !p.fn(p.read, p.total) {
		return n, errCanceled
	}
	return n, err
}
