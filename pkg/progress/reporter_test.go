package progress_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/jvm-metadata/harvester/pkg/progress"
)

func newTestReporter(t *testing.T) (*progress.Reporter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&syncWriter{w: &buf}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := progress.NewReporter(progress.Option{
		Logger: logger,
		Clock:  clocktesting.NewFakePassiveClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
	})
	return r, &buf
}

func TestReporterRunningSet(t *testing.T) {
	r, _ := newTestReporter(t)

	r.Report(progress.Event{ScraperID: "b", Kind: progress.Started})
	r.Report(progress.Event{ScraperID: "a", Kind: progress.Started})
	r.Report(progress.Event{ScraperID: "c", Kind: progress.Started})
	r.Report(progress.Event{ScraperID: "a", Kind: progress.Progress, Message: "working"})
	r.Report(progress.Event{ScraperID: "c", Kind: progress.Completed})

	require.Eventually(t, func() bool { return r.Processed() == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, r.RunningCount())
	assert.Equal(t, []string{"a", "b"}, r.RunningScrapers())

	r.Report(progress.Event{ScraperID: "b", Kind: progress.Failed, Cause: errors.New("boom")})
	require.NoError(t, r.Close(time.Second))
	assert.Equal(t, []string{"a"}, r.RunningScrapers())
}

func TestReporterCloseDrains(t *testing.T) {
	r, buf := newTestReporter(t)

	const producers, perProducer = 8, 250
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("scraper-%d", p)
			r.Report(progress.Event{ScraperID: id, Kind: progress.Started})
			for i := range perProducer - 2 {
				r.Report(progress.Event{ScraperID: id, Kind: progress.Progress, Message: fmt.Sprintf("item %d", i)})
			}
			r.Report(progress.Event{ScraperID: id, Kind: progress.Completed})
		}()
	}
	wg.Wait()

	require.NoError(t, r.Close(5*time.Second))
	assert.EqualValues(t, producers*perProducer, r.Processed())
	assert.Zero(t, r.RunningCount())
	assert.Contains(t, buf.String(), "Scraper completed")

	// Events after close are dropped and Close stays idempotent.
	r.Report(progress.Event{ScraperID: "late", Kind: progress.Started})
	require.NoError(t, r.Close(time.Second))
	assert.EqualValues(t, producers*perProducer, r.Processed())
	assert.Zero(t, r.RunningCount())
}

func TestForwardingLogger(t *testing.T) {
	var got []progress.Event
	var mu sync.Mutex
	sink := progress.SinkFunc(func(evt progress.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt)
	})

	logger := progress.NewLogger(sink, "adoptium", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	logger.Info("Fetched releases", slog.Int("count", 3))
	logger.With(slog.String("feature", "17")).WithGroup("asset").Warn("Skipping", slog.Any("error", errors.New("bad")))
	logger.Debug("not forwarded")

	require.Len(t, got, 2)
	assert.Equal(t, "adoptium", got[0].ScraperID)
	assert.Equal(t, progress.Progress, got[0].Kind)
	assert.Equal(t, "Fetched releases count=3", got[0].Message)
	assert.False(t, got[0].TS.IsZero())

	assert.Equal(t, "Skipping feature=17 asset.error=bad", got[1].Message)
	require.Error(t, got[1].Cause)
	assert.Equal(t, "bad", got[1].Cause.Error())
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
