package imgex

// Event is one completed step of an export.
type Event struct {
	// Current is the 1-based number of the completed step.
	Current int
	// Total is the number of steps: manifest, config, one per layer, and
	// archive finalize.
	Total int
	// Description names the completed step.
	Description string
}

// Reporter receives progress events. Report is called synchronously on the
// exporting goroutine; a slow reporter slows the export.
type Reporter interface {
	Report(Event)
}

// NopReporter discards events.
type NopReporter struct{}

// Report does nothing.
func (NopReporter) Report(Event) {}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f.
func (f ReporterFunc) Report(e Event) {
	f(e)
}

// ChannelReporter sends every event on the channel. Sends block, so the
// channel must be drained while the export runs.
type ChannelReporter chan<- Event

// Report sends e.
func (c ChannelReporter) Report(e Event) {
	c <- e
}

// progress numbers the steps of one job.
type progress struct {
	reporter Reporter
	total    int
	current  int
}

func newProgress(r Reporter, layers int) *progress {
	if r == nil {
		r = NopReporter{}
	}
	return &progress{reporter: r, total: layers + 3}
}

func (p *progress) step(description string) {
	p.current++
	p.reporter.Report(Event{Current: p.current, Total: p.total, Description: description})
}
