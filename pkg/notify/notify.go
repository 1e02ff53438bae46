// Package notify sends outbound webhook notifications through an
// IFTTT-style maker endpoint, typically to announce a completed trade.
package notify

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	// DefaultBaseURL is the IFTTT maker host.
	DefaultBaseURL = "https://maker.ifttt.com"
	// DefaultEvent is the trigger name notifications fire under.
	DefaultEvent = "predictit_trade"
	// EnvKey names the environment variable holding the webhook key.
	EnvKey = "IFTTT_WEBHOOK_KEY"
)

// ErrEmptyMessage rejects notifications with nothing to say before any
// network call is made.
var ErrEmptyMessage = errors.New("notify: message must not be empty")

type options struct {
	key     string
	title   string
	link    string
	event   string
	baseURL string
}

// Option customizes one notification.
type Option func(*options)

// WithKey supplies the webhook key explicitly instead of reading it
// from the environment.
func WithKey(key string) Option {
	return func(o *options) { o.key = key }
}

// WithTitle attaches an optional title.
func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

// WithLink attaches an optional link.
func WithLink(link string) Option {
	return func(o *options) { o.link = link }
}

// WithEvent overrides the trigger event name.
func WithEvent(event string) Option {
	return func(o *options) { o.event = event }
}

// WithBaseURL points at a different webhook host.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

var dotEnvOnce sync.Once

// Send fires one notification. The key falls back to the IFTTT_WEBHOOK_KEY
// environment variable (a .env file is honored) when not supplied.
func Send(ctx context.Context, message string, opts ...Option) error {
	if message == "" {
		return ErrEmptyMessage
	}

	o := options{event: DefaultEvent, baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.key == "" {
		dotEnvOnce.Do(func() { _ = godotenv.Load() })
		o.key = os.Getenv(EnvKey)
	}
	if o.key == "" {
		return errors.Errorf("notify: %s not set and no key supplied", EnvKey)
	}

	resp, err := resty.New().
		SetBaseURL(o.baseURL).
		SetTimeout(10 * time.Second).
		R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"value1": o.title,
			"value2": message,
			"value3": o.link,
		}).
		Post("/trigger/" + o.event + "/with/key/" + o.key)
	if err != nil {
		return errors.Wrap(err, "notify")
	}
	if !resp.IsSuccess() {
		return errors.Errorf("notify: %s: %s", resp.Status(), resp.Body())
	}
	return nil
}
