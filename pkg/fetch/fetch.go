// Package fetch runs small batches of GET requests against a shared
// authenticated session, bounded by a fixed worker pool, and returns the
// responses in the order the URLs were given regardless of which request
// finished first.
package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/predictbot/gopredict/pkg/logger"
)

const (
	// DefaultMaxWorkers caps concurrent requests per batch.
	DefaultMaxWorkers = 5
	// DefaultTimeout bounds each individual request.
	DefaultTimeout = 5 * time.Second
)

// ErrTimeout marks a request that exceeded its per-request deadline.
// Callers distinguish it from HTTP-level failures with errors.Is.
var ErrTimeout = errors.New("fetch: request timed out")

// Getter issues one GET against a shared session. *predictit.Session
// satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*resty.Response, error)
}

type options struct {
	maxWorkers int
	timeout    time.Duration
}

// Option customizes a batch.
type Option func(*options)

// WithMaxWorkers overrides the worker pool size.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// All requests every URL and returns the responses positionally:
// result[i] corresponds to urls[i]. The first failure (by input order)
// fails the whole batch; remaining in-flight requests are abandoned via
// context cancellation. No retries.
func All(ctx context.Context, g Getter, urls []string, opts ...Option) ([]*resty.Response, error) {
	o := options{maxWorkers: DefaultMaxWorkers, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if len(urls) == 0 {
		return nil, nil
	}

	batchID := uuid.NewString()[:8]
	logger.Debugf("fetch[%s]: %d urls, %d workers, %s timeout",
		batchID, len(urls), o.maxWorkers, o.timeout)

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*resty.Response, len(urls))
	errs := make([]error, len(urls))

	workers := o.maxWorkers
	if workers > len(urls) {
		workers = len(urls)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = get(batchCtx, g, urls[i], o.timeout)
				if errs[i] != nil {
					// Abandon the rest of the batch.
					cancel()
				}
			}
		}()
	}

	for i := range urls {
		select {
		case jobs <- i:
		case <-batchCtx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	// Prefer the request's own failure over "context canceled" noise
	// from siblings abandoned after the batch was cancelled.
	var firstErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		logger.Debugf("fetch[%s]: %s failed: %v", batchID, urls[i], err)
		if firstErr == nil {
			firstErr = err
		}
		if !errors.Is(err, context.Canceled) {
			return results, err
		}
	}
	return results, firstErr
}

func get(ctx context.Context, g Getter, url string, timeout time.Duration) (*resty.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := g.Get(reqCtx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "GET %s after %s", url, timeout)
		}
		return nil, errors.Wrapf(err, "GET %s", url)
	}
	return resp, nil
}
