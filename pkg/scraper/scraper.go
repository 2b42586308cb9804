// Package scraper drives one vendor harvest from start to finish.
//
// Vendor modules only produce candidates; the Scraper engine decides whether
// each one is skipped, persisted or counted as a failure, enforces the
// failure and progress ceilings, writes the aggregate file and reports every
// lifecycle step. Invoke never returns an error or panics: the outcome of a
// run is always a Result.
package scraper

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/jvm-metadata/harvester/pkg/download"
	"github.com/jvm-metadata/harvester/pkg/fetch"
	"github.com/jvm-metadata/harvester/pkg/fileutil"
	"github.com/jvm-metadata/harvester/pkg/hash"
	"github.com/jvm-metadata/harvester/pkg/normalize"
	"github.com/jvm-metadata/harvester/pkg/progress"
	"github.com/jvm-metadata/harvester/pkg/types"
)

var _ download.Owner = (*Scraper)(nil)

var validate = validator.New()

// Candidate is one item produced by a vendor. A candidate with Err set could
// not be turned into a record and counts as a failure.
type Candidate struct {
	Metadata types.Metadata
	Message  string
	Err      error
}

// Item wraps a parsed record.
func Item(m types.Metadata) Candidate {
	return Candidate{Metadata: m}
}

// Invalid reports an item that could not be parsed.
func Invalid(message string, err error) Candidate {
	return Candidate{Message: message, Err: err}
}

// Env is what a vendor may use while producing candidates.
type Env struct {
	Fetcher fetch.Fetcher
	// Logger forwards every record to the progress reporter.
	Logger *slog.Logger
	// Exists reports whether an item was harvested by a previous run. Vendors
	// can use it to avoid fetching details of items that will be skipped.
	Exists func(filename string) bool
}

// Source is implemented by vendor modules. A non-nil error yielded by the
// sequence aborts the run; per-item problems are yielded as Invalid candidates.
type Source interface {
	Candidates(ctx context.Context, env Env) iter.Seq2[Candidate, error]
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, env Env) iter.Seq2[Candidate, error]

func (f SourceFunc) Candidates(ctx context.Context, env Env) iter.Seq2[Candidate, error] {
	return f(ctx, env)
}

// Config is the run configuration of one scraper. It is copied on New.
type Config struct {
	ID     string
	Vendor string
	// MetadataDir receives per-item files and the aggregate file.
	MetadataDir string
	// ChecksumDir receives downloaded artifacts and checksum sidecars.
	ChecksumDir string
	Reporter    progress.Sink
	Logger      *slog.Logger
	// FromStart disables resume: every item is harvested again.
	FromStart bool
	// MaxFailures is the number of failures tolerated; one more aborts the run.
	MaxFailures int
	// Limit stops the run after this many processed items. Zero is unlimited.
	Limit int
	// Downloads is optional; artifacts are only fetched when set.
	Downloads *download.Manager
	Fetcher   fetch.Fetcher
	Clock     clock.PassiveClock
}

// Result is the terminal value of one Invoke.
type Result struct {
	Success   bool
	Processed int
	Skipped   int
	Failed    int
	Err       error
}

func succeeded(processed, skipped, failed int) Result {
	return Result{Success: true, Processed: processed, Skipped: skipped, Failed: failed}
}

func failure(err error) Result {
	return Result{Err: err}
}

// Scraper runs one vendor. It must not be invoked concurrently with itself.
type Scraper struct {
	cfg    Config
	source Source
	runID  string

	processed int
	skipped   int
	failed    int

	// written holds filenames persisted during the current run.
	written map[string]struct{}
	records []types.Metadata
	index   map[uint64]int
}

func New(cfg Config, source Source) *Scraper {
	if cfg.Reporter == nil {
		cfg.Reporter = progress.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = progress.NewLogger(cfg.Reporter, cfg.ID, nil)
	}
	if cfg.Vendor == "" {
		cfg.Vendor = cfg.ID
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.New(fetch.Option{RetryMax: 3, Logger: cfg.Logger})
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	s := &Scraper{
		cfg:    cfg,
		source: source,
	}
	s.reset()
	return s
}

func (s *Scraper) ID() string {
	return s.cfg.ID
}

func (s *Scraper) Vendor() string {
	return s.cfg.Vendor
}

func (s *Scraper) MetadataDir() string {
	return s.cfg.MetadataDir
}

func (s *Scraper) ChecksumDir() string {
	return s.cfg.ChecksumDir
}

func (s *Scraper) Logger() *slog.Logger {
	return s.cfg.Logger
}

// RunID identifies the current or last Invoke.
func (s *Scraper) RunID() string {
	return s.runID
}

func (s *Scraper) Processed() int { return s.processed }
func (s *Scraper) Skipped() int   { return s.skipped }
func (s *Scraper) Failed() int    { return s.failed }

// Invoke runs the harvest and returns its result.
func (s *Scraper) Invoke(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = s.abort(xerrors.Errorf("scraper panicked: %v", r))
		}
	}()

	s.reset()
	s.cfg.Logger.Debug("Starting run", slog.String("run_id", s.runID))
	if err := s.ensureDirs(); err != nil {
		return s.abort(err)
	}
	s.report(progress.Started, "Scraper started", nil)

	if err := s.drain(ctx); err != nil {
		return s.abort(err)
	}

	if s.processed > 0 {
		if err := fileutil.WriteJSON(filepath.Join(s.cfg.MetadataDir, types.AggregateFile), s.records); err != nil {
			return s.abort(xerrors.Errorf("unable to write aggregate file: %w", err))
		}
	}

	s.report(progress.Completed, fmt.Sprintf("Processed %d, skipped %d, failed %d", s.processed, s.skipped, s.failed), nil)
	return succeeded(s.processed, s.skipped, s.failed)
}

func (s *Scraper) drain(ctx context.Context) error {
	env := Env{
		Fetcher: s.cfg.Fetcher,
		Logger:  s.cfg.Logger,
		Exists:  s.MetadataExists,
	}
	for c, err := range s.source.Candidates(ctx, env) {
		if err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = s.classify(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) classify(c Candidate) error {
	if c.Err != nil {
		return s.Fail(c.Message, c.Err)
	}

	m := c.Metadata
	if m.Filename == "" {
		return s.Fail("Candidate without filename", xerrors.Errorf("missing filename (url %q)", m.URL))
	}
	if m.Vendor == "" {
		m.Vendor = s.cfg.Vendor
	}
	if s.MetadataExists(m.Filename) {
		s.Skipped(m.Filename)
		return nil
	}
	m = normalize.Metadata(m)
	if err := validate.Struct(m); err != nil {
		return s.Fail("Invalid record "+m.Filename, err)
	}
	return s.Success(m)
}

// Success persists m if not yet persisted in this run, queues its download
// the first time and counts it as processed. It returns an *InterruptedRunError once the progress ceiling is
// reached.
func (s *Scraper) Success(m types.Metadata) error {
	if _, ok := s.written[m.Filename]; !ok {
		path := filepath.Join(s.cfg.MetadataDir, types.MetadataFile(m.Filename))
		if err := fileutil.WriteJSON(path, m); err != nil {
			return s.Fail("Unable to persist "+m.Filename, err)
		}
		s.written[m.Filename] = struct{}{}
		s.submit(m)
	}
	s.collect(m)
	s.processed++
	s.report(progress.Progress, "Processed "+m.Filename, nil)

	if s.cfg.Limit > 0 && s.processed >= s.cfg.Limit {
		return &InterruptedRunError{Limit: s.cfg.Limit}
	}
	return nil
}

// submit queues the artifact of m once per filename and run.
func (s *Scraper) submit(m types.Metadata) {
	if s.cfg.Downloads == nil {
		return
	}
	if err := s.cfg.Downloads.Submit(m, s); err != nil {
		s.cfg.Logger.Warn("Download not submitted", slog.String("filename", m.Filename), slog.Any("error", err))
	}
}

// Skipped counts an item harvested by a previous run.
func (s *Scraper) Skipped(filename string) {
	s.skipped++
	s.report(progress.Progress, "Skipped "+filename, nil)
}

// Fail counts a failed item. The run aborts with ErrTooManyFailures when the
// number of failures becomes strictly greater than MaxFailures.
func (s *Scraper) Fail(message string, cause error) error {
	s.failed++
	s.report(progress.Progress, "Failed: "+message, cause)
	if s.failed > s.cfg.MaxFailures {
		return ErrTooManyFailures
	}
	return nil
}

// MetadataExists reports whether the per-item file of filename exists. It is
// always false when the run starts from scratch.
func (s *Scraper) MetadataExists(filename string) bool {
	if s.cfg.FromStart {
		return false
	}
	return fileutil.Exists(filepath.Join(s.cfg.MetadataDir, types.MetadataFile(filename)))
}

// collect keeps the records for the aggregate file in first-seen order. A
// record with the identity of an earlier one replaces it.
func (s *Scraper) collect(m types.Metadata) {
	key := hash.Identity(m)
	if i, ok := s.index[key]; ok {
		s.records[i] = m
		return
	}
	s.index[key] = len(s.records)
	s.records = append(s.records, m)
}

func (s *Scraper) reset() {
	s.runID = uuid.NewString()
	s.processed, s.skipped, s.failed = 0, 0, 0
	s.written = make(map[string]struct{})
	s.records = []types.Metadata{}
	s.index = make(map[uint64]int)
}

func (s *Scraper) ensureDirs() error {
	for _, dir := range []string{s.cfg.MetadataDir, s.cfg.ChecksumDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return xerrors.Errorf("unable to create %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Scraper) abort(err error) Result {
	s.report(progress.Failed, err.Error(), err)
	return failure(err)
}

func (s *Scraper) report(kind progress.Kind, message string, cause error) {
	s.cfg.Reporter.Report(progress.Event{
		ScraperID: s.cfg.ID,
		RunID:     s.runID,
		Kind:      kind,
		Message:   message,
		TS:        s.cfg.Clock.Now(),
		Cause:     cause,
	})
}
