package predictit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/predictbot/gopredict/pkg/fetch"
)

// Market is one tradable market: metadata plus the ordered list of its
// constituent contract IDs. It holds a non-owning reference to the
// Account whose session it uses.
type Market struct {
	account  *Account
	marketID int64

	mu                        sync.RWMutex
	marketName                string
	marketType                MarketType
	endDate                   *time.Time
	isActive                  bool
	rule                      string
	haveOwnership             bool
	haveTradeHistory          bool
	investment                decimal.Decimal
	maxPayout                 decimal.Decimal
	info                      string
	dateOpened                time.Time
	isMarketWatched           bool
	status                    string
	isOpen                    bool
	isOpenStatusMessage       string
	isTradingSuspended        bool
	isTradingSuspendedMessage string
	isEngineBusy              bool
	isEngineBusyMessage       string
	contractIDs               []int64
}

// NewMarket builds a Market against an existing Account and immediately
// populates it with one combined concurrent fetch.
func NewMarket(ctx context.Context, account *Account, marketID int64) (*Market, error) {
	if account == nil {
		return nil, errors.New("predictit: market requires an account")
	}
	m := &Market{account: account, marketID: marketID}
	if err := m.UpdateAll(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateInfo refreshes market metadata.
func (m *Market) UpdateInfo(ctx context.Context) error {
	resp, err := m.account.session.Get(ctx, pathMarketInfo(m.marketID))
	if err != nil {
		return errors.Wrap(err, "update market info")
	}
	return m.applyInfo(resp)
}

func (m *Market) applyInfo(resp *resty.Response) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	var info marketInfoResponse
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return errors.Wrap(err, "decode market info")
	}

	endDate, err := parseMarketEndDate(info.DateEndString)
	if err != nil {
		return err
	}
	dateOpened, err := parseAPITime(info.DateOpened)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketName = info.MarketName
	m.marketType = MarketType(info.MarketType)
	m.endDate = endDate
	m.isActive = info.IsActive
	m.rule = info.Rule
	m.haveOwnership = info.UserHasOwnership
	m.haveTradeHistory = info.UserHasTradeHistory
	m.investment = info.UserInvestment
	m.maxPayout = info.UserMaxPayout
	m.info = info.Info
	m.dateOpened = dateOpened
	m.isMarketWatched = info.IsMarketWatched
	m.status = info.Status
	m.isOpen = info.IsOpen
	m.isOpenStatusMessage = info.IsOpenStatusMessage
	m.isTradingSuspended = info.IsTradingSuspended
	m.isTradingSuspendedMessage = info.IsTradingSuspendedMessage
	m.isEngineBusy = info.IsEngineBusy
	m.isEngineBusyMessage = info.IsEngineBusyMessage
	return nil
}

// UpdateContracts refreshes the list of constituent contract IDs.
func (m *Market) UpdateContracts(ctx context.Context) error {
	resp, err := m.account.session.Get(ctx, pathMarketContracts(m.marketID))
	if err != nil {
		return errors.Wrap(err, "update market contracts")
	}
	return m.applyContracts(resp)
}

func (m *Market) applyContracts(resp *resty.Response) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	var entries []marketContractEntry
	if err := json.Unmarshal(resp.Body(), &entries); err != nil {
		return errors.Wrap(err, "decode market contracts")
	}

	// IDs only; building Contract objects here would fan out three
	// requests per contract, and requests should stay explicit.
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ContractID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.contractIDs = ids
	return nil
}

// UpdateAll refreshes metadata and contract IDs in one concurrent
// batch so both views move together.
func (m *Market) UpdateAll(ctx context.Context) error {
	urls := []string{pathMarketInfo(m.marketID), pathMarketContracts(m.marketID)}
	responses, err := fetch.All(ctx, m.account.session, urls, m.account.fetchOpts...)
	if err != nil {
		return err
	}
	if err := m.applyInfo(responses[0]); err != nil {
		return err
	}
	return m.applyContracts(responses[1])
}

// marketEndDateLayout is the civil-time prefix of dateEndString, e.g.
// "03/01/2024 09:00 PM (ET)".
const marketEndDateLayout = "01/02/2006 03:04 PM"

// parseMarketEndDate converts the upstream local-time end date to a UTC
// instant. Only the ET abbreviation is supported; anything else fails
// loudly rather than guessing an offset.
func parseMarketEndDate(s string) (*time.Time, error) {
	if s == "" || s == "N/A" {
		return nil, nil
	}
	if len(s) < len(marketEndDateLayout) {
		return nil, errors.Errorf("predictit: malformed market end date %q", s)
	}
	stamp := s[:len(marketEndDateLayout)]
	zone := strings.Trim(s[len(marketEndDateLayout):], " ()")
	if zone != "ET" {
		return nil, errors.Wrapf(ErrUnsupportedTimezone, "%q", zone)
	}

	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, errors.Wrap(err, "load ET location")
	}
	local, err := time.ParseInLocation(marketEndDateLayout, stamp, eastern)
	if err != nil {
		return nil, errors.Wrapf(err, "parse market end date %q", s)
	}
	utc := local.UTC()
	return &utc, nil
}

// MarketID returns this market's identifier.
func (m *Market) MarketID() int64 { return m.marketID }

// MarketName is the human-readable name for this market.
func (m *Market) MarketName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marketName
}

// Type is the upstream market-type code, kept opaque.
func (m *Market) Type() MarketType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marketType
}

// EndDate is the UTC instant by which the market closes, or nil when
// the market has no definite end date. Markets may resolve earlier.
func (m *Market) EndDate() *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.endDate == nil {
		return nil
	}
	t := *m.endDate
	return &t
}

// IsActive reports whether the market has not yet settled.
func (m *Market) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isActive
}

// Rule is the human-readable resolution rule.
func (m *Market) Rule() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rule
}

// HaveOwnership reports whether the user owns shares in this market.
func (m *Market) HaveOwnership() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.haveOwnership
}

// HaveTradeHistory reports whether the user ever traded this market.
func (m *Market) HaveTradeHistory() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.haveTradeHistory
}

// Investment is the user's spend on currently owned shares here.
func (m *Market) Investment() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.investment
}

// MaxPayout is the user's maximum payout in this market net of fees.
func (m *Market) MaxPayout() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxPayout
}

// Info returns the upstream free-text info blob.
func (m *Market) Info() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

// DateOpened is when the market opened.
func (m *Market) DateOpened() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dateOpened
}

// IsMarketWatched reports whether the user watches this market.
func (m *Market) IsMarketWatched() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isMarketWatched
}

// Status is the upstream status string, e.g. "Open".
func (m *Market) Status() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsOpen reports the upstream open flag.
func (m *Market) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOpen
}

// IsOpenStatusMessage returns the message paired with IsOpen.
func (m *Market) IsOpenStatusMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOpenStatusMessage
}

// IsTradingSuspended reports the market-level suspension flag.
func (m *Market) IsTradingSuspended() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isTradingSuspended
}

// IsTradingSuspendedMessage returns the upstream suspension message.
func (m *Market) IsTradingSuspendedMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isTradingSuspendedMessage
}

// IsEngineBusy reports the upstream engine-busy flag.
func (m *Market) IsEngineBusy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isEngineBusy
}

// IsEngineBusyMessage returns the message paired with IsEngineBusy.
func (m *Market) IsEngineBusyMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isEngineBusyMessage
}

// ContractIDs returns the ordered constituent contract IDs.
func (m *Market) ContractIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.contractIDs...)
}
