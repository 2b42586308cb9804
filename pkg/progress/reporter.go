package progress

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/jvm-metadata/harvester/pkg/queue"
)

const defaultCloseTimeout = 30 * time.Second

var _ Sink = (*Reporter)(nil)

type Option struct {
	Logger *slog.Logger
	Clock  clock.PassiveClock
}

// Reporter consumes events from every scraper on a single goroutine, strictly
// in arrival order. Report never blocks.
type Reporter struct {
	logger *slog.Logger
	clock  clock.PassiveClock
	events *queue.Queue[Event]

	// mu orders Report against Close so that the sentinel is queued behind
	// every event accepted before Close.
	mu     sync.Mutex
	closed bool

	runningMu sync.RWMutex
	running   map[string]struct{}

	processed atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewReporter creates a Reporter and starts its consumer.
func NewReporter(opt Option) *Reporter {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Clock == nil {
		opt.Clock = clock.RealClock{}
	}
	r := &Reporter{
		logger:  opt.Logger.With(slog.String("component", "progress")),
		clock:   opt.Clock,
		events:  queue.New[Event](),
		running: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	go r.consume()
	return r
}

// Report enqueues an event. Events reported after Close are dropped.
func (r *Reporter) Report(evt Event) {
	if evt.TS.IsZero() {
		evt.TS = r.clock.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Debug("Dropping event reported after close", slog.String("scraper", evt.ScraperID),
			slog.String("kind", string(evt.Kind)))
		return
	}
	r.events.Push(evt)
}

// Close stops accepting events and waits up to timeout for every event
// reported before it to be processed. A zero timeout uses a 30s default.
func (r *Reporter) Close(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultCloseTimeout
	}
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.events.Push(Event{Kind: sentinel})
		r.mu.Unlock()
	})

	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
		return xerrors.Errorf("progress reporter did not drain within %s", timeout)
	}
}

// RunningCount returns the number of scrapers currently running.
func (r *Reporter) RunningCount() int {
	r.runningMu.RLock()
	defer r.runningMu.RUnlock()
	return len(r.running)
}

// RunningScrapers returns a sorted snapshot of the running scraper ids.
func (r *Reporter) RunningScrapers() []string {
	r.runningMu.RLock()
	ids := lo.Keys(r.running)
	r.runningMu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Processed returns the number of events the consumer has handled.
func (r *Reporter) Processed() int64 {
	return r.processed.Load()
}

func (r *Reporter) consume() {
	defer close(r.done)
	for {
		evt, ok := r.events.Pop()
		if !ok || evt.Kind == sentinel {
			r.events.Close()
			return
		}
		r.handle(evt)
		r.processed.Add(1)
	}
}

func (r *Reporter) handle(evt Event) {
	logger := r.logger.With(slog.String("scraper", evt.ScraperID))
	if evt.RunID != "" {
		logger = logger.With(slog.String("run_id", evt.RunID))
	}
	switch evt.Kind {
	case Started:
		r.runningMu.Lock()
		r.running[evt.ScraperID] = struct{}{}
		r.runningMu.Unlock()
		logger.Info("Scraper started", slog.Int("running", r.RunningCount()))
	case Completed:
		r.remove(evt.ScraperID)
		logger.Info("Scraper completed", slog.String("message", evt.Message), slog.Int("running", r.RunningCount()))
	case Failed:
		r.remove(evt.ScraperID)
		logger.Error("Scraper failed", slog.String("message", evt.Message), slog.Any("error", evt.Cause),
			slog.Int("running", r.RunningCount()))
	case Progress:
		logger.Debug(evt.Message)
	default:
		logger.Warn("Unknown progress event", slog.String("kind", string(evt.Kind)))
	}
}

func (r *Reporter) remove(id string) {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()
	delete(r.running, id)
}
