package scraper

import (
	"log/slog"
	"path/filepath"

	"k8s.io/utils/clock"

	"github.com/jvm-metadata/harvester/pkg/download"
	"github.com/jvm-metadata/harvester/pkg/fetch"
	"github.com/jvm-metadata/harvester/pkg/progress"
	"github.com/jvm-metadata/harvester/pkg/types"
)

// FactoryOption holds the settings shared by every scraper of a process.
type FactoryOption struct {
	// MetadataDir is the root of the metadata tree; scrapers write below
	// <MetadataDir>/vendor/<vendor>.
	MetadataDir string
	// ChecksumDir is the root of the artifact tree; scrapers write below
	// <ChecksumDir>/<vendor>.
	ChecksumDir string
	Reporter    progress.Sink
	// Logger is the base logger. Each scraper gets a child that also reports
	// every record as a PROGRESS event.
	Logger      *slog.Logger
	FromStart   bool
	MaxFailures int
	Limit       int
	Downloads   *download.Manager
	Fetcher     fetch.Fetcher
	Clock       clock.PassiveClock
}

// Factory builds scrapers from the registry.
type Factory struct {
	opt FactoryOption
}

func NewFactory(opt FactoryOption) *Factory {
	if opt.Reporter == nil {
		opt.Reporter = progress.Discard
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Factory{opt: opt}
}

// Create returns the scraper registered under id.
func (f *Factory) Create(id string) (*Scraper, error) {
	reg, ok := lookup(id)
	if !ok {
		return nil, &UnknownScraperError{ID: id}
	}
	return f.build(reg), nil
}

// CreateAll returns one scraper per registration, sorted by id.
func (f *Factory) CreateAll() []*Scraper {
	var scrapers []*Scraper
	for _, id := range Registered() {
		if reg, ok := lookup(id); ok {
			scrapers = append(scrapers, f.build(reg))
		}
	}
	return scrapers
}

func (f *Factory) build(reg registration) *Scraper {
	logger := progress.NewLogger(f.opt.Reporter, reg.id, f.opt.Logger).With(slog.String("scraper", reg.id))
	return New(Config{
		ID:          reg.id,
		Vendor:      reg.vendor,
		MetadataDir: filepath.Join(f.opt.MetadataDir, types.VendorDir, reg.vendor),
		ChecksumDir: filepath.Join(f.opt.ChecksumDir, reg.vendor),
		Reporter:    f.opt.Reporter,
		Logger:      logger,
		FromStart:   f.opt.FromStart,
		MaxFailures: f.opt.MaxFailures,
		Limit:       f.opt.Limit,
		Downloads:   f.opt.Downloads,
		Fetcher:     f.opt.Fetcher,
		Clock:       f.opt.Clock,
	}, reg.ctor())
}
