// Package legislation downloads act XML and reads curated source lists.
package legislation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/resilience"
)

const (
	defaultMaxBytes     = 64 << 20
	defaultRequestsPerS = 2
	userAgent           = "uk-legal-assistant/1.0 (+legislation ingest)"
)

type FetcherOptions struct {
	Timeout        time.Duration
	MaxBytes       int64
	RequestsPerSec float64
	Executor       *resilience.Executor
}

// Fetcher reads http(s) and file:// sources. Remote requests are throttled
// so bulk ingests stay polite to legislation.gov.uk.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = defaultRequestsPerS
	}
	if opts.Executor == nil {
		opts.Executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxBytes:   opts.MaxBytes,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		executor:   opts.Executor,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse source url", err)
	}
	switch u.Scheme {
	case "file":
		return f.readFile(u)
	case "http", "https":
		return f.fetchHTTP(ctx, u.String())
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch legislation", fmt.Errorf("unsupported url scheme %q", u.Scheme))
	}
}

func (f *Fetcher) readFile(u *url.URL) ([]byte, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open legislation file: %w", err)
	}
	defer file.Close()
	return f.readLimited(file)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, target string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	err := f.executor.Execute(ctx, "legislation.fetch", func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("create fetch request: %w", err)
		}
		req.Header.Set("Accept", "application/xml")
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("legislation fetch request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("legislation", "fetch", resp)
		}
		body, err = f.readLimited(resp.Body)
		return err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("legislation fetch", err)
	}
	return body, nil
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read legislation body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.New("legislation document exceeds size limit")
	}
	return data, nil
}
