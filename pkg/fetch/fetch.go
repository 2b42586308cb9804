// Package fetch is the HTTP transport used by vendor scrapers and the download manager.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/dnscache"
	"golang.org/x/xerrors"

	"github.com/jvm-metadata/harvester/pkg/fileutil"
)

const (
	defaultUserAgent = "jvm-metadata-harvester/1.0"
	dnsRefresh       = 5 * time.Minute
)

var (
	resolver     = &dnscache.Resolver{}
	resolverOnce sync.Once
)

// NetworkError is a transport failure or an unexpected HTTP status.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error (%s): %s", e.URL, e.Err)
	}
	return fmt.Sprintf("network error (%s): HTTP %d", e.URL, e.StatusCode)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is an HTTP 404 from the server.
func IsNotFound(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.StatusCode == http.StatusNotFound
}

// Fetcher is the capability vendors and the download manager depend on.
type Fetcher interface {
	// Text fetches url and returns the body.
	Text(ctx context.Context, url string) (string, error)
	// ToFile streams url into path, creating parent directories. path is
	// replaced atomically and left untouched on error.
	ToFile(ctx context.Context, url, path string) error
}

var _ Fetcher = (*Client)(nil)

type Option struct {
	// RetryMax is the number of retries on transport errors and 5xx/429.
	// Zero disables retries.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	UserAgent    string
	Logger       *slog.Logger
	// NoDNSCache resolves every connection again instead of using the
	// process-wide cache.
	NoDNSCache bool
}

type Client struct {
	http      *retryablehttp.Client
	userAgent string
}

func New(opt Option) *Client {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.UserAgent == "" {
		opt.UserAgent = defaultUserAgent
	}
	if opt.RetryWaitMin == 0 {
		opt.RetryWaitMin = 1 * time.Second
	}
	if opt.RetryWaitMax == 0 {
		opt.RetryWaitMax = 30 * time.Second
	}
	logger := opt.Logger.With(slog.String("component", "fetch"))

	client := retryablehttp.NewClient()
	client.RetryMax = opt.RetryMax
	client.Logger = logger
	client.RetryWaitMin = opt.RetryWaitMin
	client.RetryWaitMax = opt.RetryWaitMax
	client.Backoff = retryablehttp.LinearJitterBackoff
	if opt.Timeout > 0 {
		client.HTTPClient.Timeout = opt.Timeout
	}
	if t, ok := client.HTTPClient.Transport.(*http.Transport); ok && !opt.NoDNSCache {
		t.DialContext = cachedDialer()
	}
	client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		if resp.StatusCode != http.StatusOK {
			logger.Warn("Unexpected http response", slog.String("url", resp.Request.URL.String()), slog.String("status", resp.Status))
		}
	}
	client.ErrorHandler = func(resp *http.Response, err error, numTries int) (*http.Response, error) {
		l := logger
		if resp != nil {
			l = l.With(slog.String("url", resp.Request.URL.String()), slog.Int("status_code", resp.StatusCode),
				slog.Int("num_tries", numTries))
		}
		if err != nil {
			l = l.With(slog.String("error", err.Error()))
		}
		l.Error("HTTP request failed after retries")

		if resp != nil {
			_ = resp.Body.Close()
			return nil, xerrors.Errorf("HTTP request failed after %d attempts: %s", numTries, resp.Status)
		}
		return nil, xerrors.Errorf("HTTP request failed after %d attempts: %w", numTries, err)
	}

	return &Client{
		http:      client,
		userAgent: opt.UserAgent,
	}
}

// cachedDialer dials the first reachable address of the cached host lookup.
func cachedDialer() func(ctx context.Context, network, addr string) (net.Conn, error) {
	resolverOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(dnsRefresh)
			defer ticker.Stop()
			for range ticker.C {
				resolver.Refresh(true)
			}
		}()
	})

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		} else if len(ips) == 0 {
			return nil, xerrors.Errorf("no address for %s", host)
		}
		var errs []error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			errs = append(errs, err)
		}
		return nil, xerrors.Errorf("failed to dial any resolved address of %s: %w", host, errors.Join(errs...))
	}
}

func (c *Client) Text(ctx context.Context, url string) (string, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{URL: url, Err: xerrors.Errorf("can't read body: %w", err)}
	}
	return string(b), nil
}

func (c *Client) ToFile(ctx context.Context, url, path string) error {
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The body lands in a temp file renamed over path, so concurrent
	// downloads of one URL never truncate each other.
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return &NetworkError{URL: url, Err: xerrors.Errorf("can't copy to %s: %w", path, err)}
		}
		return nil
	})
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrors.Errorf("unable to create a HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
