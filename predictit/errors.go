package predictit

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Order validation failures. Each check in the submit path has its own
// sentinel so callers can tell exactly which precondition broke; all of
// them fire before any network call.
var (
	ErrPriceOutOfRange    = errors.New("predictit: price must be between $0.01 and $0.99")
	ErrInvalidQuantity    = errors.New("predictit: quantity must be a positive integer")
	ErrOppositeSide       = errors.New("predictit: cannot trade against the side currently held")
	ErrInsufficientShares = errors.New("predictit: cannot sell more shares than owned")
	ErrInvestmentCap      = errors.New("predictit: contract investment cap exceeded")
)

// ErrUnsupportedTimezone fires when a market end date carries a timezone
// abbreviation other than ET. Guessing the offset would corrupt every
// downstream time comparison, so this is fatal rather than coerced.
var ErrUnsupportedTimezone = errors.New("predictit: unsupported timezone abbreviation in market end date")

// APIError carries an upstream non-2xx response verbatim.
type APIError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("predictit: %s %s: %s", e.URL, e.Status, e.Body)
}

// checkResponse turns a non-2xx resty response into an *APIError.
func checkResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return &APIError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		URL:        resp.Request.URL,
		Body:       string(resp.Body()),
	}
}
