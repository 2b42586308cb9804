package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/download"
	"github.com/jvm-metadata/harvester/pkg/fetch"
	"github.com/jvm-metadata/harvester/pkg/metrics"
	"github.com/jvm-metadata/harvester/pkg/progress"
	"github.com/jvm-metadata/harvester/pkg/scraper"
)

const reporterCloseTimeout = 30 * time.Second

type scrapeOptions struct {
	*globalOptions

	metadataDir     string
	checksumDir     string
	fromStart       bool
	maxFailures     int
	limit           int
	download        bool
	downloadWorkers int
	downloadTimeout time.Duration
	parallel        int
	retries         int
	metricsFile     string
}

func newScrapeCmd(global *globalOptions) *cobra.Command {
	opts := &scrapeOptions{globalOptions: global}
	cmd := &cobra.Command{
		Use:   "scrape [scraper ids...]",
		Short: "Run vendor scrapers; all registered scrapers when no id is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.metadataDir, "metadata-dir", "metadata", "root of the metadata tree")
	f.StringVar(&opts.checksumDir, "checksum-dir", "checksums", "root of downloaded artifacts and checksum sidecars")
	f.BoolVar(&opts.fromStart, "from-start", false, "harvest every item again instead of resuming")
	f.IntVar(&opts.maxFailures, "max-failures", 10, "failures tolerated per scraper before it aborts")
	f.IntVar(&opts.limit, "limit", 0, "stop each scraper after this many processed items (0 is unlimited)")
	f.BoolVar(&opts.download, "download", false, "download artifacts and verify their checksums")
	f.IntVar(&opts.downloadWorkers, "download-workers", 4, "concurrent downloads")
	f.DurationVar(&opts.downloadTimeout, "download-timeout", 30*time.Minute, "time limit of one artifact download")
	f.IntVar(&opts.parallel, "parallel", 4, "scrapers run concurrently")
	f.IntVar(&opts.retries, "retries", 3, "retries of failed listing requests")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
	return cmd
}

func runScrape(ctx context.Context, opts *scrapeOptions, ids []string) error {
	logger := newLogger(opts.globalOptions)
	reporter := progress.NewReporter(progress.Option{Logger: logger})
	stats := metrics.New()

	var downloads *download.Manager
	if opts.download {
		downloads = download.NewManager(download.Option{
			Workers: opts.downloadWorkers,
			Timeout: opts.downloadTimeout,
			Logger:  logger,
		})
		stats.WatchDownloads(downloads)
		downloads.Start()
	}

	factory := scraper.NewFactory(scraper.FactoryOption{
		MetadataDir: opts.metadataDir,
		ChecksumDir: opts.checksumDir,
		Reporter:    progress.Tee(stats, reporter),
		Logger:      logger,
		FromStart:   opts.fromStart,
		MaxFailures: opts.maxFailures,
		Limit:       opts.limit,
		Downloads:   downloads,
		Fetcher:     fetch.New(fetch.Option{RetryMax: opts.retries, Logger: logger}),
	})

	scrapers, err := selectScrapers(factory, ids)
	if err != nil {
		_ = reporter.Close(reporterCloseTimeout)
		return err
	}

	results := make([]scraper.Result, len(scrapers))
	var g errgroup.Group
	g.SetLimit(max(opts.parallel, 1))
	for i, s := range scrapers {
		g.Go(func() error {
			results[i] = s.Invoke(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if downloads != nil {
		downloads.Shutdown()
		downloads.AwaitCompletion()
		downloads.Wait()
		logger.Info("Downloads finished", slog.Int64("completed", downloads.Completed()),
			slog.Int64("failed", downloads.Failed()))
	}
	if err = reporter.Close(reporterCloseTimeout); err != nil {
		logger.Warn("Progress reporter did not drain", slog.Any("error", err))
	}

	for i, res := range results {
		stats.Items(scrapers[i].ID(), res.Processed, res.Skipped, res.Failed)
		logger.Info("Scraper finished", slog.String("scraper", scrapers[i].ID()), slog.Bool("success", res.Success),
			slog.Int("processed", res.Processed), slog.Int("skipped", res.Skipped), slog.Int("failed", res.Failed))
	}
	if opts.metricsFile != "" {
		if err = stats.WriteTextfile(opts.metricsFile); err != nil {
			logger.Warn("Metrics not written", slog.Any("error", err))
		}
	}

	failed := lo.CountBy(results, func(r scraper.Result) bool { return !r.Success })
	if failed > 0 {
		return xerrors.Errorf("%d of %d scrapers failed", failed, len(results))
	}
	return nil
}

func selectScrapers(factory *scraper.Factory, ids []string) ([]*scraper.Scraper, error) {
	if len(ids) == 0 {
		return factory.CreateAll(), nil
	}
	var scrapers []*scraper.Scraper
	for _, id := range lo.Uniq(ids) {
		s, err := factory.Create(id)
		if err != nil {
			return nil, err
		}
		scrapers = append(scrapers, s)
	}
	return scrapers, nil
}
