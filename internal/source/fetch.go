// SPDX-License-Identifier: MIT

// Package source retrieves and parses the guide sources a run merges.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/epgmerge/internal/cache"
	"github.com/ManuGH/epgmerge/internal/config"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/ManuGH/epgmerge/internal/platform/httpx"
	xgnet "github.com/ManuGH/epgmerge/internal/platform/net"
	"github.com/ManuGH/epgmerge/internal/resilience"
)

var (
	// ErrTooLarge is returned when a payload exceeds the configured size cap.
	ErrTooLarge = errors.New("payload exceeds size limit")
)

// StatusError reports a non-200 upstream response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Payload is a retrieved source document, still possibly compressed.
type Payload struct {
	URL         string
	Data        []byte
	ContentType string
	FetchedAt   time.Time
	FromCache   bool
}

// Fetcher downloads source documents. It is safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	cfg      config.FetchSettings
	limiter  *rate.Limiter
	breakers *resilience.Group
	cache    cache.Cache
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

// NewFetcher builds a fetcher from the fetch settings. A nil cache disables
// payload caching, as does a zero CacheTTL.
func NewFetcher(cfg config.FetchSettings, c cache.Cache) *Fetcher {
	if c == nil || cfg.CacheTTL <= 0 {
		c = cache.NewNoOpCache()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return &Fetcher{
		client:  httpx.NewDownloadClient(cfg.Timeout),
		cfg:     cfg,
		limiter: limiter,
		breakers: resilience.NewGroup("fetch", threshold, cfg.BreakerReset,
			resilience.WithFailureFilter(countsAsFailure)),
		cache:  c,
		now:    time.Now,
		sleep:  sleepCtx,
		logger: xglog.WithComponent("source"),
	}
}

// countsAsFailure keeps caller cancellations and client-side errors from
// tripping a host breaker.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests {
		return false
	}
	return true
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, ErrTooLarge):
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch retrieves rawURL. http and https URLs are downloaded with retries;
// file URLs and bare paths are read from disk.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Payload, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Payload{}, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "", "file":
		return f.readFile(u, rawURL)
	case "http", "https":
	default:
		return Payload{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if data, ok := f.cache.Get(rawURL); ok {
		metrics.IncCacheRequest("hit")
		ct, body := unpackCached(data)
		return Payload{URL: rawURL, Data: body, ContentType: ct, FetchedAt: f.now(), FromCache: true}, nil
	}
	if f.cfg.CacheTTL > 0 {
		metrics.IncCacheRequest("miss")
	}

	cb := f.breakers.Get(xgnet.HostKey(u))
	var (
		p       Payload
		lastErr error
	)
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * f.cfg.Backoff
			if err := f.sleep(ctx, backoff); err != nil {
				return Payload{}, err
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return Payload{}, err
			}
		}

		lastErr = cb.Execute(func() error {
			var getErr error
			p, getErr = f.get(ctx, rawURL)
			return getErr
		})
		if lastErr == nil {
			if f.cfg.CacheTTL > 0 {
				f.cache.Set(rawURL, packCached(p.ContentType, p.Data), f.cfg.CacheTTL)
			}
			return p, nil
		}

		f.logger.Debug().
			Err(lastErr).
			Str(xglog.FieldURL, xgnet.SanitizeURL(rawURL)).
			Int("attempt", attempt+1).
			Msg("fetch attempt failed")
		if !retryable(lastErr) {
			break
		}
	}
	return Payload{}, fmt.Errorf("fetch %s: %w", xgnet.SanitizeURL(rawURL), lastErr)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Payload{}, err
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = xgnet.SanitizeURL(ue.URL)
		}
		return Payload{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Payload{}, &StatusError{URL: xgnet.SanitizeURL(rawURL), Code: resp.StatusCode}
	}

	data, err := readCapped(resp.Body, f.cfg.MaxBytes)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		URL:         rawURL,
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   f.now(),
	}, nil
}

func (f *Fetcher) readFile(u *url.URL, rawURL string) (Payload, error) {
	path := rawURL
	if u.Scheme == "file" {
		path = u.Path
	}
	// #nosec G304 -- source paths come from operator configuration
	fh, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Payload{}, err
	}
	defer func() { _ = fh.Close() }()

	data, err := readCapped(fh, f.cfg.MaxBytes)
	if err != nil {
		return Payload{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Payload{URL: rawURL, Data: data, FetchedAt: f.now()}, nil
}

// readCapped reads r fully. A limit of 0 means unlimited.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Cached entries are stored as "<content-type>\n<body>".
func packCached(contentType string, body []byte) []byte {
	out := make([]byte, 0, len(contentType)+1+len(body))
	out = append(out, contentType...)
	out = append(out, '\n')
	return append(out, body...)
}

func unpackCached(data []byte) (string, []byte) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", data
	}
	return string(data[:i]), data[i+1:]
}
