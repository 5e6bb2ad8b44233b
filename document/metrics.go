package document

// Metrics receives fetcher events.
type Metrics interface {
	FetchStarted()
	// FetchDropped is called when a request finds the job slot busy.
	FetchDropped()
	FetchDone(s Status)
	Documents(n int)
}

//NoopMetrics default Metrics
type NoopMetrics struct{}

func (NoopMetrics) FetchStarted()    {}
func (NoopMetrics) FetchDropped()    {}
func (NoopMetrics) FetchDone(Status) {}
func (NoopMetrics) Documents(int)    {}

var _ Metrics = NoopMetrics{}
