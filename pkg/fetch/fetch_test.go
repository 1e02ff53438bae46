package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restyGetter struct {
	client *resty.Client
}

func (g restyGetter) Get(ctx context.Context, url string) (*resty.Response, error) {
	return g.client.R().SetContext(ctx).Get(url)
}

func newGetter(server *httptest.Server) restyGetter {
	return restyGetter{client: resty.New().SetBaseURL(server.URL)}
}

func TestAllPreservesInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i, _ := strconv.Atoi(r.URL.Query().Get("i"))
		delay, _ := strconv.Atoi(r.URL.Query().Get("delay"))
		time.Sleep(time.Duration(delay) * time.Millisecond)
		fmt.Fprintf(w, "result-%d", i)
	}))
	defer server.Close()

	// Earlier URLs respond slower, so completion order is roughly the
	// reverse of input order.
	const n = 8
	urls := make([]string, n)
	for i := 0; i < n; i++ {
		urls[i] = fmt.Sprintf("/resource?i=%d&delay=%d", i, (n-i)*15)
	}

	responses, err := All(context.Background(), newGetter(server), urls)
	require.NoError(t, err)
	require.Len(t, responses, n)
	for i, resp := range responses {
		assert.Equal(t, fmt.Sprintf("result-%d", i), string(resp.Body()))
	}
}

func TestAllBoundsConcurrency(t *testing.T) {
	var inFlight, peak int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		time.Sleep(25 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = fmt.Sprintf("/r/%d", i)
	}

	_, err := All(context.Background(), newGetter(server), urls, WithMaxWorkers(2))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestAllTimeoutIsDistinguishable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(500 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := All(context.Background(), newGetter(server), []string{"/fast", "/slow"},
		WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAllTransportErrorIsNotTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close() // refuse connections

	_, err := All(context.Background(), newGetter(server), []string{"/r"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestAllEmptyBatch(t *testing.T) {
	responses, err := All(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, responses)
}
