// Package metrics exposes Prometheus collectors for harvest runs.
//
// Metrics is a progress.Sink: lifecycle events drive the run counters and the
// running gauge. Item totals come from run results and download totals are
// read from the download manager when gathered.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/progress"
)

const namespace = "harvester"

var _ progress.Sink = (*Metrics)(nil)

// Downloads is the read side of the download manager.
type Downloads interface {
	Completed() int64
	Failed() int64
}

type Metrics struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	eventsTotal *prometheus.CounterVec
	itemsTotal  *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	running     prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

// New creates collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Scraper runs, labeled by scraper and terminal status.",
			},
			[]string{"scraper", "status"},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Progress events, labeled by scraper and kind.",
			},
			[]string{"scraper", "kind"},
		),
		itemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Harvested items, labeled by scraper and outcome.",
			},
			[]string{"scraper", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of scraper runs.",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"scraper"},
		),
		running: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "running_scrapers",
				Help:      "Scrapers currently running.",
			},
		),
		started: make(map[string]time.Time),
	}
}

func (m *Metrics) Report(evt progress.Event) {
	m.eventsTotal.WithLabelValues(evt.ScraperID, string(evt.Kind)).Inc()

	switch evt.Kind {
	case progress.Started:
		m.running.Inc()
		m.mu.Lock()
		m.started[evt.ScraperID] = evt.TS
		m.mu.Unlock()
	case progress.Completed, progress.Failed:
		m.running.Dec()
		m.runsTotal.WithLabelValues(evt.ScraperID, string(evt.Kind)).Inc()

		m.mu.Lock()
		start, ok := m.started[evt.ScraperID]
		delete(m.started, evt.ScraperID)
		m.mu.Unlock()
		if ok && !start.IsZero() && !evt.TS.IsZero() {
			m.runDuration.WithLabelValues(evt.ScraperID).Observe(evt.TS.Sub(start).Seconds())
		}
	}
}

// Items adds the counters of a finished run.
func (m *Metrics) Items(scraperID string, processed, skipped, failed int) {
	m.itemsTotal.WithLabelValues(scraperID, "processed").Add(float64(processed))
	m.itemsTotal.WithLabelValues(scraperID, "skipped").Add(float64(skipped))
	m.itemsTotal.WithLabelValues(scraperID, "failed").Add(float64(failed))
}

// WatchDownloads exports the counters of d.
func (m *Metrics) WatchDownloads(d Downloads) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_completed_total",
			Help:      "Artifacts downloaded and verified.",
		}, func() float64 { return float64(d.Completed()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_failed_total",
			Help:      "Artifacts that failed to download or verify.",
		}, func() float64 { return float64(d.Failed()) }),
	)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format,
// suitable for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return xerrors.Errorf("unable to write metrics to %s: %w", path, err)
	}
	return nil
}
