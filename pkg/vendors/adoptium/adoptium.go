// Package adoptium harvests Eclipse Temurin builds from the Adoptium API.
package adoptium

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"path"

	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/fetch"
	"github.com/jvm-metadata/harvester/pkg/scraper"
	"github.com/jvm-metadata/harvester/pkg/types"
)

const (
	ID             = "adoptium"
	DefaultBaseURL = "https://api.adoptium.net"

	defaultPageSize = 20
)

var _ scraper.Source = (*Source)(nil)

func init() {
	scraper.Register(ID, "", func() scraper.Source {
		return New(DefaultBaseURL)
	})
}

type Source struct {
	baseURL  string
	pageSize int
}

func New(baseURL string) *Source {
	return &Source{
		baseURL:  baseURL,
		pageSize: defaultPageSize,
	}
}

// Candidates walks every feature release, GA builds first, page by page.
func (s *Source) Candidates(ctx context.Context, env scraper.Env) iter.Seq2[scraper.Candidate, error] {
	return func(yield func(scraper.Candidate, error) bool) {
		features, err := s.featureReleases(ctx, env.Fetcher)
		if err != nil {
			yield(scraper.Candidate{}, err)
			return
		}
		env.Logger.Info("Found feature releases", slog.Int("count", len(features)))

		for _, feature := range features {
			for _, rt := range []types.ReleaseType{types.GA, types.EA} {
				if !s.walkPages(ctx, env, feature, rt, yield) {
					return
				}
			}
		}
	}
}

func (s *Source) featureReleases(ctx context.Context, f fetch.Fetcher) ([]int, error) {
	url := s.baseURL + "/v3/info/available_releases"
	body, err := f.Text(ctx, url)
	if err != nil {
		return nil, xerrors.Errorf("unable to list releases: %w", err)
	}
	var info availableReleases
	if err = json.Unmarshal([]byte(body), &info); err != nil {
		return nil, &scraper.ParseError{Source: url, Err: err}
	}
	return info.AvailableReleases, nil
}

// walkPages returns false once the consumer stopped or a fatal error was yielded.
func (s *Source) walkPages(ctx context.Context, env scraper.Env, feature int, rt types.ReleaseType,
	yield func(scraper.Candidate, error) bool) bool {
	for page := 0; ; page++ {
		url := fmt.Sprintf("%s/v3/assets/feature_releases/%d/%s?page=%d&page_size=%d&vendor=eclipse&sort_order=DESC",
			s.baseURL, feature, rt, page, s.pageSize)
		body, err := env.Fetcher.Text(ctx, url)
		if fetch.IsNotFound(err) {
			// The API answers 404 past the last page.
			return true
		} else if err != nil {
			return yield(scraper.Candidate{}, xerrors.Errorf("unable to fetch %s: %w", url, err))
		}

		var releases []release
		if err = json.Unmarshal([]byte(body), &releases); err != nil {
			return yield(scraper.Invalid(fmt.Sprintf("Unable to parse Java %d %s page %d", feature, rt, page),
				&scraper.ParseError{Source: url, Err: err}), nil)
		}
		env.Logger.Debug("Fetched releases", slog.Int("feature", feature), slog.String("type", string(rt)),
			slog.Int("page", page), slog.Int("count", len(releases)))

		for _, r := range releases {
			for _, m := range toMetadata(r, rt) {
				if !yield(scraper.Item(m), nil) {
					return false
				}
			}
		}
		if len(releases) < s.pageSize {
			return true
		}
	}
}

func toMetadata(r release, rt types.ReleaseType) []types.Metadata {
	version := r.VersionData.Semver
	if version == "" {
		version = r.ReleaseName
	}
	if r.ReleaseType != "" {
		rt = types.ReleaseType(r.ReleaseType)
	}

	var records []types.Metadata
	for _, b := range r.Binaries {
		var features []string
		if b.HeapSize == "large" {
			features = append(features, "large_heap")
		}
		for _, a := range []*asset{b.Package, b.Installer} {
			if a == nil || a.Name == "" {
				continue
			}
			m := types.Metadata{
				Vendor:       ID,
				Filename:     a.Name,
				ReleaseType:  rt,
				Version:      version,
				JVMImpl:      b.JVMImpl,
				OS:           b.OS,
				Architecture: b.Architecture,
				ImageType:    b.ImageType,
				Features:     features,
				URL:          a.Link,
				SHA256:       a.Checksum,
				Size:         a.Size,
			}
			if a.Checksum != "" {
				m.SHA256File = a.Name + ".sha256.txt"
				if a.ChecksumLink != "" {
					m.SHA256File = path.Base(a.ChecksumLink)
				}
			}
			records = append(records, m)
		}
	}
	return records
}
