package predictit

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Session is the authenticated HTTP context shared by an Account and
// every Market/Contract built from it. The token is the only mutable
// state; replacing it (the refresh path) is safe while requests are in
// flight, which keep whatever token they were dispatched with.
type Session struct {
	client *resty.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expires      time.Time
}

// The upstream web API rejects requests that do not look like they came
// from the site itself, so the session carries browser-style headers.
var defaultHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 6.1; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/69.0.3497.100 Safari/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.5",
	"Referer":         "https://www.predictit.org/dashboard/",
	"DNT":             "1",
	"Connection":      "keep-alive",
}

func newSession(baseURL string, timeout time.Duration) *Session {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeaders(defaultHeaders)

	return &Session{client: client}
}

func (s *Session) request(ctx context.Context) *resty.Request {
	r := s.client.R().SetContext(ctx)
	if token := s.AccessToken(); token != "" {
		r.SetAuthToken(token)
	}
	return r
}

// Get issues one GET against the base URL. Satisfies fetch.Getter.
func (s *Session) Get(ctx context.Context, url string) (*resty.Response, error) {
	return s.request(ctx).Get(url)
}

// PostForm issues a form-encoded POST; form may be nil for bare POSTs.
func (s *Session) PostForm(ctx context.Context, url string, form map[string]string) (*resty.Response, error) {
	r := s.request(ctx)
	if len(form) > 0 {
		r.SetFormData(form)
	}
	return r.Post(url)
}

func (s *Session) setToken(access, refresh string, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
	s.expires = expires
}

// AccessToken returns the current bearer token.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// AuthExpiresIn reports how long the current token remains valid.
func (s *Session) AuthExpiresIn() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Until(s.expires)
}
