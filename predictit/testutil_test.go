package predictit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAPI is a configurable stand-in for the upstream web API. Bodies
// and status codes can be swapped mid-test to simulate later refreshes
// or upstream failures.
type fakeAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	trades   []url.Values
	posts    []string

	tokenCount   int32
	tokenFail    bool
	expiresIn    time.Duration
	lastAuthForm url.Values
}

func newFakeAPI(t *testing.T) *fakeAPI {
	f := &fakeAPI{
		bodies:    make(map[string]string),
		statuses:  make(map[string]int),
		expiresIn: time.Hour,
	}
	f.setBody(pathWalletBalance,
		`{"accountBalanceDecimal": 123.45, "portfolioBalanceDecimal": 67.89}`)
	f.setBody(pathProfileShares, `{
		"isTradingSuspended": false,
		"isTradingSuspendedMessage": "",
		"markets": [
			{"marketId": 11, "marketContracts": [{"contractId": 101}, {"contractId": 102}]},
			{"marketId": 22, "marketContracts": [{"contractId": 201}]}
		]
	}`)

	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) setBody(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
}

func (f *fakeAPI) setStatus(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[path] = status
}

func (f *fakeAPI) setTokenFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenFail = fail
}

func (f *fakeAPI) tradeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

func (f *fakeAPI) lastTrade() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.trades) == 0 {
		return nil
	}
	return f.trades[len(f.trades)-1]
}

func (f *fakeAPI) authForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuthForm
}

func (f *fakeAPI) postedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == pathToken {
		f.serveToken(w, r)
		return
	}

	if r.Method == http.MethodPost {
		_ = r.ParseForm()
		f.mu.Lock()
		f.posts = append(f.posts, r.URL.Path)
		if r.URL.Path == pathSubmitTrade {
			f.trades = append(f.trades, r.PostForm)
		}
		f.mu.Unlock()
	}

	f.mu.Lock()
	status, hasStatus := f.statuses[r.URL.Path]
	body, hasBody := f.bodies[r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if hasStatus && status != http.StatusOK {
		w.WriteHeader(status)
		io.WriteString(w, `{"message": "upstream error"}`)
		return
	}
	if !hasBody {
		if r.Method == http.MethodPost {
			io.WriteString(w, `{}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}
	io.WriteString(w, body)
}

func (f *fakeAPI) serveToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.lastAuthForm = r.PostForm
	fail := f.tokenFail
	expiresIn := f.expiresIn
	f.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": "invalid_grant"}`)
		return
	}

	n := atomic.AddInt32(&f.tokenCount, 1)
	expires := time.Now().UTC().Add(expiresIn).Format("2006-01-02T15:04:05.0000000-07:00")
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w,
		`{"access_token": "token-%d", "refresh_token": "refresh-%d", ".expires": "%s"}`,
		n, n, expires)
}

func (f *fakeAPI) newAccount(t *testing.T, opts ...AccountOption) *Account {
	opts = append([]AccountOption{WithBaseURL(f.server.URL)}, opts...)
	account, err := NewAccount(context.Background(), Credentials{
		Username: "trader@example.com",
		Password: "hunter2",
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(account.Close)
	return account
}

// bookJSON builds an order-book payload from "price:qty" pairs.
func bookJSON(yes, no []string) string {
	side := func(pairs []string) string {
		entries := make([]string, len(pairs))
		for i, p := range pairs {
			parts := strings.SplitN(p, ":", 2)
			entries[i] = fmt.Sprintf(`{"pricePerShare": %s, "quantity": %s}`, parts[0], parts[1])
		}
		return "[" + strings.Join(entries, ", ") + "]"
	}
	return fmt.Sprintf(`{"yesOrders": %s, "noOrders": %s}`, side(yes), side(no))
}
