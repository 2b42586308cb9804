package adoptium

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvm-metadata/harvester/pkg/fetch"
	"github.com/jvm-metadata/harvester/pkg/fileutil"
	"github.com/jvm-metadata/harvester/pkg/scraper"
	"github.com/jvm-metadata/harvester/pkg/types"
)

const page0 = `[
  {
    "release_name": "jdk-17.0.9+9",
    "release_type": "ga",
    "version_data": {"semver": "17.0.9+9", "openjdk_version": "17.0.9+9"},
    "binaries": [
      {
        "architecture": "x64",
        "heap_size": "normal",
        "image_type": "jdk",
        "jvm_impl": "hotspot",
        "os": "linux",
        "package": {
          "checksum": "7b133bd9e8b1d9e7e4d8f5ae0d06a0f34b9f9f5a3d0d4e0b2a2e6ddc8c2ad8d0",
          "checksum_link": "https://github.com/adoptium/temurin17-binaries/releases/download/jdk-17.0.9%2B9/OpenJDK17U-jdk_x64_linux_hotspot_17.0.9_9.tar.gz.sha256.txt",
          "link": "https://github.com/adoptium/temurin17-binaries/releases/download/jdk-17.0.9%2B9/OpenJDK17U-jdk_x64_linux_hotspot_17.0.9_9.tar.gz",
          "name": "OpenJDK17U-jdk_x64_linux_hotspot_17.0.9_9.tar.gz",
          "size": 191000000
        }
      },
      {
        "architecture": "aarch64",
        "heap_size": "large",
        "image_type": "jre",
        "jvm_impl": "hotspot",
        "os": "mac",
        "package": {
          "checksum": "",
          "link": "https://example.com/OpenJDK17U-jre_aarch64_mac_hotspot_17.0.9_9.tar.gz",
          "name": "OpenJDK17U-jre_aarch64_mac_hotspot_17.0.9_9.tar.gz",
          "size": 42
        },
        "installer": {
          "checksum": "abc",
          "link": "https://example.com/OpenJDK17U-jre_aarch64_mac_hotspot_17.0.9_9.pkg",
          "name": "OpenJDK17U-jre_aarch64_mac_hotspot_17.0.9_9.pkg",
          "size": 43
        }
      }
    ]
  }
]`

const page1 = `[
  {
    "release_name": "jdk-17.0.8+7",
    "binaries": [
      {
        "architecture": "x64",
        "image_type": "jdk",
        "jvm_impl": "hotspot",
        "os": "windows",
        "package": {"name": "OpenJDK17U-jdk_x64_windows_hotspot_17.0.8_7.zip", "link": "https://example.com/a.zip", "size": 1}
      }
    ]
  }
]`

func newServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if p := r.URL.Query().Get("page"); p != "" {
			key += "?page=" + p
		}
		body, ok := pages[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func run(t *testing.T, src *Source, maxFailures int) (scraper.Result, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	dir := t.TempDir()
	s := scraper.New(scraper.Config{
		ID:          ID,
		MetadataDir: filepath.Join(dir, "vendor", ID),
		ChecksumDir: filepath.Join(dir, "checksums"),
		Logger:      logger,
		MaxFailures: maxFailures,
		Fetcher:     fetch.New(fetch.Option{Logger: logger}),
	}, src)
	return s.Invoke(context.Background()), s.MetadataDir()
}

func TestSource(t *testing.T) {
	ts := newServer(t, map[string]string{
		"/v3/info/available_releases":            `{"available_releases": [17]}`,
		"/v3/assets/feature_releases/17/ga?page=0": page0,
		"/v3/assets/feature_releases/17/ga?page=1": page1,
		"/v3/assets/feature_releases/17/ea?page=0": `[]`,
	})
	src := New(ts.URL)
	src.pageSize = 1

	res, dir := run(t, src, 0)
	require.NoError(t, res.Err)
	assert.Equal(t, scraper.Result{Success: true, Processed: 4}, res)

	var all []types.Metadata
	require.NoError(t, fileutil.ReadJSON(filepath.Join(dir, types.AggregateFile), &all))
	require.Len(t, all, 4)

	want := types.Metadata{
		Vendor:       ID,
		Filename:     "OpenJDK17U-jdk_x64_linux_hotspot_17.0.9_9.tar.gz",
		ReleaseType:  types.GA,
		Version:      "17.0.9+9",
		JavaVersion:  "17.0",
		JVMImpl:      "hotspot",
		OS:           "linux",
		Architecture: "x86_64",
		FileType:     "tar.gz",
		ImageType:    "jdk",
		Features:     []string{},
		URL:          "https://github.com/adoptium/temurin17-binaries/releases/download/jdk-17.0.9%2B9/OpenJDK17U-jdk_x64_linux_hotspot_17.0.9_9.tar.gz",
		SHA256:       "7b133bd9e8b1d9e7e4d8f5ae0d06a0f34b9f9f5a3d0d4e0b2a2e6ddc8c2ad8d0",
		SHA256File:   "OpenJDK17U-jdk_x64_linux_hotspot_17.0.9_9.tar.gz.sha256.txt",
		Size:         191000000,
	}
	assert.Equal(t, want, all[0])

	assert.Equal(t, "macosx", all[1].OS)
	assert.Equal(t, "aarch64", all[1].Architecture)
	assert.Equal(t, []string{"large_heap"}, all[1].Features)
	assert.Empty(t, all[1].SHA256File)

	assert.Equal(t, "pkg", all[2].FileType)
	assert.Equal(t, "abc", all[2].SHA256)
	assert.Equal(t, "OpenJDK17U-jre_aarch64_mac_hotspot_17.0.9_9.pkg.sha256.txt", all[2].SHA256File)

	// Version falls back to the release name.
	assert.Equal(t, "jdk-17.0.8+7", all[3].Version)
	assert.Equal(t, "17.0", all[3].JavaVersion)
	assert.Equal(t, "windows", all[3].OS)
}

func TestSourceErrors(t *testing.T) {
	t.Run("listing unavailable", func(t *testing.T) {
		ts := newServer(t, map[string]string{})
		res, _ := run(t, New(ts.URL), 0)
		assert.False(t, res.Success)
		assert.True(t, fetch.IsNotFound(res.Err))
	})

	t.Run("malformed listing", func(t *testing.T) {
		ts := newServer(t, map[string]string{"/v3/info/available_releases": `{`})
		res, _ := run(t, New(ts.URL), 0)
		var parseErr *scraper.ParseError
		require.ErrorAs(t, res.Err, &parseErr)
	})

	t.Run("malformed page counts as failure", func(t *testing.T) {
		ts := newServer(t, map[string]string{
			"/v3/info/available_releases":            `{"available_releases": [21]}`,
			"/v3/assets/feature_releases/21/ga?page=0": `not json`,
			"/v3/assets/feature_releases/21/ea?page=0": page1,
		})
		res, _ := run(t, New(ts.URL), 1)
		assert.Equal(t, scraper.Result{Success: true, Processed: 1, Failed: 1}, res)
	})
}
