// Package openjdk harvests the reference builds listed on jdk.java.net.
package openjdk

import (
	"context"
	"iter"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/checksum"
	"github.com/jvm-metadata/harvester/pkg/scraper"
	"github.com/jvm-metadata/harvester/pkg/types"
)

const (
	ID             = "openjdk"
	DefaultBaseURL = "https://jdk.java.net"

	// concurrent checksum fetches per page
	checksumLimit = 8
)

var _ scraper.Source = (*Source)(nil)

// openjdk-21.0.1_linux-x64_bin.tar.gz, openjdk-22-ea+27_macos-aarch64_bin.tar.gz
var filenameRe = regexp.MustCompile(`^openjdk-([0-9][^_]*)_([a-z]+)-([a-z0-9_-]+?)_bin\.(tar\.gz|zip)$`)

func init() {
	scraper.Register(ID, "", func() scraper.Source {
		return New(DefaultBaseURL)
	})
}

type Source struct {
	baseURL string
	pages   []string
}

// New returns a source reading the archive page of baseURL.
func New(baseURL string, pages ...string) *Source {
	if len(pages) == 0 {
		pages = []string{"/archive/"}
	}
	return &Source{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		pages:   pages,
	}
}

type link struct {
	href     string
	filename string
	version  string
	os       string
	arch     string
}

func (s *Source) Candidates(ctx context.Context, env scraper.Env) iter.Seq2[scraper.Candidate, error] {
	return func(yield func(scraper.Candidate, error) bool) {
		for _, page := range s.pages {
			pageURL := s.baseURL + page
			html, err := env.Fetcher.Text(ctx, pageURL)
			if err != nil {
				yield(scraper.Candidate{}, xerrors.Errorf("unable to fetch %s: %w", pageURL, err))
				return
			}
			links, err := parseLinks(pageURL, html)
			if err != nil {
				yield(scraper.Candidate{}, &scraper.ParseError{Source: pageURL, Err: err})
				return
			}
			env.Logger.Info("Parsed archive page", slog.String("url", pageURL), slog.Int("artifacts", len(links)))

			for _, c := range s.resolve(ctx, env, links) {
				if !yield(c, nil) {
					return
				}
			}
		}
	}
}

// parseLinks returns the distinct artifact links of an HTML page in document order.
func parseLinks(pageURL, html string) ([]link, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, xerrors.Errorf("invalid page url: %w", err)
	}
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, xerrors.Errorf("can't create new goquery doc: %w", err)
	}

	var links []link
	d.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		filename := path.Base(abs.Path)
		match := filenameRe.FindStringSubmatch(filename)
		if match == nil {
			return
		}
		links = append(links, link{
			href:     abs.String(),
			filename: filename,
			version:  match[1],
			os:       match[2],
			arch:     match[3],
		})
	})
	return lo.UniqBy(links, func(l link) string { return l.filename }), nil
}

// resolve turns links into candidates, fetching the detached sha256 files
// concurrently. Items harvested by an earlier run are not fetched again.
func (s *Source) resolve(ctx context.Context, env scraper.Env, links []link) []scraper.Candidate {
	candidates := make([]scraper.Candidate, len(links))
	sem := semaphore.NewWeighted(checksumLimit)
	var wg sync.WaitGroup

	for i, l := range links {
		m := toMetadata(l)
		if env.Exists != nil && env.Exists(l.filename) {
			candidates[i] = scraper.Item(m)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			candidates[i] = scraper.Invalid("Checksum of "+l.filename+" not fetched", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()

			sumURL := l.href + ".sha256"
			body, err := env.Fetcher.Text(ctx, sumURL)
			if err != nil {
				candidates[i] = scraper.Invalid("Unable to fetch checksum of "+l.filename, err)
				return
			}
			sum := checksum.Parse(checksum.SHA256, []byte(body))
			if sum == "" {
				candidates[i] = scraper.Invalid("Invalid checksum file for "+l.filename,
					&scraper.ParseError{Source: sumURL, Err: xerrors.New("no sha256 digest")})
				return
			}
			m.SHA256 = sum
			m.SHA256File = l.filename + ".sha256"
			candidates[i] = scraper.Item(m)
		}()
	}
	wg.Wait()
	return candidates
}

func toMetadata(l link) types.Metadata {
	rt := types.GA
	if strings.Contains(l.version, "-ea") || strings.Contains(l.href, "/early_access/") {
		rt = types.EA
	}
	return types.Metadata{
		Vendor:       ID,
		Filename:     l.filename,
		ReleaseType:  rt,
		Version:      l.version,
		JVMImpl:      "hotspot",
		OS:           l.os,
		Architecture: l.arch,
		ImageType:    "jdk",
		URL:          l.href,
	}
}
