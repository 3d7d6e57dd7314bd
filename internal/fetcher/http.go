package fetcher

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrExportTooLarge is returned while reading a download past MaxBytes.
var ErrExportTooLarge = errors.New("fetcher: export exceeds size limit")

const (
	retryBase    = 500 * time.Millisecond
	retryCeiling = 10 * time.Second
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	MaxBytes    int64         // 0 means unlimited
	BearerToken string        // optional Authorization header for private exports
	Limiter     *rate.Limiter // default 5 req/s
}

// HTTPFetcher downloads CRM exports published over http(s). Throttled and
// server-error responses are retried, honouring Retry-After.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "crm-dedupe/1.0"
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(5, 5)
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: opts.Limiter,
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryDelay is exponential with jitter, capped at retryCeiling. A
// Retry-After hint in seconds raises the floor.
func retryDelay(attempt int, retryAfter string) time.Duration {
	d := retryCeiling
	if attempt < 5 {
		d = min(retryBase<<attempt, retryCeiling)
	}
	d += time.Duration(rand.Int64N(int64(d)/2 + 1))

	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		if hint := time.Duration(secs) * time.Second; hint > d {
			d = min(hint, retryCeiling)
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *HTTPFetcher) get(ctx context.Context, req *http.Request) (*http.Response, error) {
	log := zap.L().With(zap.String("url", redactURL(req.URL.String())))

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if attempt > 0 {
			log.Warn("fetcher: retrying download", zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if sleepErr := sleepCtx(ctx, retryDelay(attempt, "")); sleepErr != nil {
				return nil, eris.Wrap(sleepErr, "download cancelled")
			}
			continue
		}
		if !retryable(resp.StatusCode) {
			return resp, nil
		}

		retryAfter := resp.Header.Get("Retry-After")
		_ = resp.Body.Close()
		lastErr = eris.Errorf("http %d", resp.StatusCode)
		if attempt+1 == f.opts.MaxRetries {
			break
		}
		if sleepErr := sleepCtx(ctx, retryDelay(attempt, retryAfter)); sleepErr != nil {
			return nil, eris.Wrap(sleepErr, "download cancelled")
		}
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

// cappedBody fails the read that crosses the size limit.
type cappedBody struct {
	io.ReadCloser
	remaining int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		var probe [1]byte
		if n, _ := b.ReadCloser.Read(probe[:]); n > 0 {
			return 0, ErrExportTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	return n, err
}

// Download fetches the URL and returns the response body. The caller must
// close it.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/csv, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, */*")
	if f.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.opts.BearerToken)
	}

	resp, err := f.get(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, redactURL(rawURL))
	}

	if f.opts.MaxBytes > 0 {
		if resp.ContentLength > f.opts.MaxBytes {
			_ = resp.Body.Close()
			return nil, eris.Wrapf(ErrExportTooLarge, "download: %d bytes", resp.ContentLength)
		}
		return &cappedBody{ReadCloser: resp.Body, remaining: f.opts.MaxBytes}, nil
	}
	return resp.Body, nil
}
