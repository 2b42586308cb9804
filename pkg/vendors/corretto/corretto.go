// Package corretto harvests Amazon Corretto builds from the published
// latest-links index.
package corretto

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/scraper"
	"github.com/jvm-metadata/harvester/pkg/types"
)

const (
	ID                  = "corretto"
	DefaultIndexURL     = "https://corretto.github.io/corretto-downloads/latest_links/indexmap_with_checksum.json"
	DefaultDownloadBase = "https://corretto.aws"
)

var _ scraper.Source = (*Source)(nil)

func init() {
	scraper.Register(ID, "", func() scraper.Source {
		return New(DefaultIndexURL, DefaultDownloadBase)
	})
}

// entry is one leaf of the index.
type entry struct {
	Resource string `json:"resource"`
	// Checksum is the MD5 digest.
	Checksum string `json:"checksum"`
	SHA256   string `json:"sha256"`
}

// index is keyed by os, architecture, image type, major version and extension.
type index map[string]map[string]map[string]map[string]map[string]json.RawMessage

type Source struct {
	indexURL     string
	downloadBase string
}

func New(indexURL, downloadBase string) *Source {
	return &Source{
		indexURL:     indexURL,
		downloadBase: strings.TrimSuffix(downloadBase, "/"),
	}
}

func (s *Source) Candidates(ctx context.Context, env scraper.Env) iter.Seq2[scraper.Candidate, error] {
	return func(yield func(scraper.Candidate, error) bool) {
		body, err := env.Fetcher.Text(ctx, s.indexURL)
		if err != nil {
			yield(scraper.Candidate{}, xerrors.Errorf("unable to fetch index: %w", err))
			return
		}
		var idx index
		if err = json.Unmarshal([]byte(body), &idx); err != nil {
			yield(scraper.Candidate{}, &scraper.ParseError{Source: s.indexURL, Err: err})
			return
		}
		env.Logger.Info("Fetched index", slog.Int("platforms", len(idx)))

		for _, osName := range sortedKeys(idx) {
			for _, arch := range sortedKeys(idx[osName]) {
				for _, image := range sortedKeys(idx[osName][arch]) {
					for _, major := range sortedKeys(idx[osName][arch][image]) {
						exts := idx[osName][arch][image][major]
						for _, ext := range sortedKeys(exts) {
							c := s.candidate(exts[ext], osName, arch, image, major)
							if !yield(c, nil) {
								return
							}
						}
					}
				}
			}
		}
	}
}

func (s *Source) candidate(raw json.RawMessage, osName, arch, image, major string) scraper.Candidate {
	where := strings.Join([]string{osName, arch, image, major}, "/")

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return scraper.Invalid("Malformed entry "+where, &scraper.ParseError{Source: s.indexURL, Err: err})
	}
	if e.Resource == "" {
		return scraper.Invalid("Entry without resource "+where, xerrors.New("missing resource"))
	}

	// /downloads/resources/17.0.9.8.1/amazon-corretto-17.0.9.8.1-linux-x64.tar.gz
	filename := path.Base(e.Resource)
	version := path.Base(path.Dir(e.Resource))

	m := types.Metadata{
		Vendor:       ID,
		Filename:     filename,
		ReleaseType:  types.GA,
		Version:      version,
		JavaVersion:  major + ".0",
		JVMImpl:      "hotspot",
		OS:           osName,
		Architecture: arch,
		ImageType:    image,
		URL:          s.downloadBase + e.Resource,
		MD5:          strings.ToLower(e.Checksum),
		SHA256:       strings.ToLower(e.SHA256),
	}
	if strings.HasPrefix(osName, "alpine") {
		m.OS = "linux"
		m.Features = []string{"musl"}
	}
	if m.MD5 != "" {
		m.MD5File = filename + ".md5"
	}
	if m.SHA256 != "" {
		m.SHA256File = filename + ".sha256"
	}
	return scraper.Item(m)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
