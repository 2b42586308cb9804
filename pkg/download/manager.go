// Package download retrieves artifacts in the background and verifies their checksums.
//
// A Manager is shared by every scraper of a process. Scrapers submit work and
// move on; the outcome of each download is only visible through the counters
// and the owning scraper's logger, never as an error returned to the submitter.
package download

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/checksum"
	"github.com/jvm-metadata/harvester/pkg/fetch"
	"github.com/jvm-metadata/harvester/pkg/fileutil"
	"github.com/jvm-metadata/harvester/pkg/queue"
	"github.com/jvm-metadata/harvester/pkg/types"
)

const (
	defaultWorkers = 4
	// A stalled server must not pin a worker forever.
	defaultTimeout = 30 * time.Minute
)

// ErrShutdown is returned by Submit once Shutdown has been called.
var ErrShutdown = xerrors.New("download manager is shut down")

// Owner is the scraper a download is submitted for.
type Owner interface {
	ID() string
	// ChecksumDir is the vendor-namespaced directory for artifacts and sidecars.
	ChecksumDir() string
	// Logger forwards to the progress reporter.
	Logger() *slog.Logger
}

type Option struct {
	Workers int
	// Fetcher defaults to a client without retries bounded by Timeout.
	Fetcher fetch.Fetcher
	// Timeout bounds one download including its body. Only used by the
	// default Fetcher.
	Timeout time.Duration
	Logger  *slog.Logger
}

type job struct {
	item  types.Metadata
	owner Owner
}

type Manager struct {
	fetcher fetch.Fetcher
	workers int
	logger  *slog.Logger
	jobs    *queue.Queue[job]
	group   errgroup.Group

	startOnce sync.Once

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int

	completed atomic.Int64
	failed    atomic.Int64
}

func NewManager(opt Option) *Manager {
	if opt.Workers <= 0 {
		opt.Workers = defaultWorkers
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Timeout <= 0 {
		opt.Timeout = defaultTimeout
	}
	if opt.Fetcher == nil {
		// Downloads are never retried automatically.
		opt.Fetcher = fetch.New(fetch.Option{RetryMax: 0, Timeout: opt.Timeout, Logger: opt.Logger})
	}
	m := &Manager{
		fetcher: opt.Fetcher,
		workers: opt.Workers,
		logger:  opt.Logger.With(slog.String("component", "download")),
		jobs:    queue.New[job](),
	}
	m.idle = sync.NewCond(&m.mu)
	return m
}

// Start launches the worker pool. Calling it more than once has no effect.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.logger.Info("Starting download workers", slog.Int("workers", m.workers))
		for range m.workers {
			m.group.Go(func() error {
				m.work()
				return nil
			})
		}
	})
}

// Submit queues a download of item for owner. It never blocks and never
// reports download failures; it only fails after Shutdown.
func (m *Manager) Submit(item types.Metadata, owner Owner) error {
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()

	if !m.jobs.Push(job{item: item, owner: owner}) {
		m.done()
		return ErrShutdown
	}
	return nil
}

// Shutdown stops accepting submissions. Work already queued still runs.
func (m *Manager) Shutdown() {
	m.jobs.Close()
}

// AwaitCompletion blocks until every submitted download has finished.
// Work is only processed after Start.
func (m *Manager) AwaitCompletion() {
	m.mu.Lock()
	for m.inflight > 0 {
		m.idle.Wait()
	}
	m.mu.Unlock()
}

// Wait blocks until the workers have exited, which requires Shutdown.
func (m *Manager) Wait() {
	_ = m.group.Wait()
}

func (m *Manager) Completed() int64 {
	return m.completed.Load()
}

func (m *Manager) Failed() int64 {
	return m.failed.Load()
}

func (m *Manager) done() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if m.inflight == 0 {
		m.idle.Broadcast()
	}
}

func (m *Manager) work() {
	for {
		j, ok := m.jobs.Pop()
		if !ok {
			return
		}
		m.run(j)
	}
}

func (m *Manager) run(j job) {
	defer m.done()

	logger := m.logger
	if l := j.owner.Logger(); l != nil {
		logger = l
	}
	logger = logger.With(slog.String("filename", j.item.Filename))

	defer func() {
		if r := recover(); r != nil {
			m.failed.Add(1)
			logger.Error("Download panicked", slog.Any("panic", r))
		}
	}()

	if err := m.download(context.Background(), j); err != nil {
		m.failed.Add(1)
		logger.Warn("Download failed", slog.String("url", j.item.URL), slog.Any("error", err))
		return
	}
	m.completed.Add(1)
	logger.Info("Downloaded artifact", slog.String("url", j.item.URL))
}

// download fetches into a private temp file, verifies it and only then
// renames it over the artifact path. Concurrent downloads of one artifact
// never see each other's partial content.
func (m *Manager) download(ctx context.Context, j job) error {
	if j.item.URL == "" {
		return xerrors.New("no download url")
	}
	dir := j.owner.ChecksumDir()
	name := filepath.Base(j.item.Filename)
	path := filepath.Join(dir, name)

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return xerrors.Errorf("unable to create a directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return xerrors.Errorf("unable to create a temp file: %w", err)
	}
	tmp := f.Name()
	_ = f.Close()
	defer os.Remove(tmp)

	if err = m.fetcher.ToFile(ctx, j.item.URL, tmp); err != nil {
		return xerrors.Errorf("fetch error: %w", err)
	}

	declared := Declared(j.item)
	algos := lo.Keys(declared)
	if len(algos) == 0 {
		algos = []checksum.Algorithm{checksum.SHA256}
	}
	slices.Sort(algos)

	if f, err = os.Open(tmp); err != nil {
		return xerrors.Errorf("unable to open %s: %w", tmp, err)
	}
	sums, err := checksum.Compute(f, algos...)
	_ = f.Close()
	if err != nil {
		return xerrors.Errorf("checksum error: %w", err)
	}

	for algo, want := range declared {
		if !strings.EqualFold(sums[algo], want) {
			return &MismatchError{Algorithm: algo, Want: want, Got: sums[algo]}
		}
	}

	if err = os.Rename(tmp, path); err != nil {
		return xerrors.Errorf("unable to move %s into place: %w", path, err)
	}
	for _, algo := range algos {
		sidecar := filepath.Join(dir, SidecarName(j.item, algo))
		line := checksum.Format(sums[algo], name)
		if err = fileutil.WriteAtomic(sidecar, func(w io.Writer) error {
			_, err := io.WriteString(w, line)
			return err
		}); err != nil {
			return xerrors.Errorf("unable to write %s: %w", sidecar, err)
		}
	}
	return nil
}

// SidecarName is the checksum file name of m for algo: the name the vendor
// publishes when the record carries one, "<filename>.<algo>" otherwise.
func SidecarName(m types.Metadata, algo checksum.Algorithm) string {
	published := map[checksum.Algorithm]string{
		checksum.MD5:    m.MD5File,
		checksum.SHA1:   m.SHA1File,
		checksum.SHA256: m.SHA256File,
		checksum.SHA512: m.SHA512File,
	}[algo]
	if published != "" {
		return filepath.Base(published)
	}
	return filepath.Base(m.Filename) + "." + string(algo)
}

// MismatchError reports a computed digest that differs from the vendor's.
type MismatchError struct {
	Algorithm checksum.Algorithm
	Want      string
	Got       string
}

func (e *MismatchError) Error() string {
	return "checksum mismatch (" + string(e.Algorithm) + "): want " + e.Want + ", got " + e.Got
}

// Declared returns the non-empty vendor-declared digests of m.
func Declared(m types.Metadata) map[checksum.Algorithm]string {
	return lo.OmitByValues(map[checksum.Algorithm]string{
		checksum.MD5:    m.MD5,
		checksum.SHA1:   m.SHA1,
		checksum.SHA256: m.SHA256,
		checksum.SHA512: m.SHA512,
	}, []string{""})
}
