// Package progress aggregates lifecycle and progress events from concurrently
// running scrapers into a single serialized view.
package progress

import (
	"time"
)

// Kind denotes the lifecycle point an Event represents.
type Kind string

const (
	Started   Kind = "STARTED"
	Progress  Kind = "PROGRESS"
	Completed Kind = "COMPLETED"
	Failed    Kind = "FAILED"

	// sentinel only unblocks the consumer loop during Close.
	sentinel Kind = "SENTINEL"
)

// Event is a single notification emitted by a scraper.
type Event struct {
	ScraperID string
	// RunID identifies one Invoke of the scraper.
	RunID     string
	Kind      Kind
	Message   string
	TS        time.Time
	Cause     error
}

// Sink receives progress events. Implementations must be safe for concurrent use.
type Sink interface {
	Report(evt Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(evt Event)

func (f SinkFunc) Report(evt Event) {
	f(evt)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Tee reports every event to each of sinks in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(evt Event) {
		for _, s := range sinks {
			s.Report(evt)
		}
	})
}
