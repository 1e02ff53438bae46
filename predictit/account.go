package predictit

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/predictbot/gopredict/pkg/fetch"
	"github.com/predictbot/gopredict/pkg/logger"
)

// Credentials authenticate an Account.
type Credentials struct {
	Username string
	Password string
}

// CredentialsFromEnv reads PREDICTIT_USERNAME and PREDICTIT_PASSWORD,
// loading a .env file first if one is present.
func CredentialsFromEnv() (Credentials, error) {
	loadDotEnv()
	creds := Credentials{
		Username: os.Getenv("PREDICTIT_USERNAME"),
		Password: os.Getenv("PREDICTIT_PASSWORD"),
	}
	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, errors.New("predictit: PREDICTIT_USERNAME and PREDICTIT_PASSWORD must be set")
	}
	return creds, nil
}

var dotEnvOnce sync.Once

func loadDotEnv() {
	dotEnvOnce.Do(func() {
		// Best effort; absence of a .env file is the normal case.
		_ = godotenv.Load()
	})
}

type accountOptions struct {
	baseURL         string
	requestTimeout  time.Duration
	refreshInterval time.Duration
	maxWorkers      int
}

// AccountOption customizes an Account at construction.
type AccountOption func(*accountOptions)

// WithBaseURL points the account at a different API host.
func WithBaseURL(u string) AccountOption {
	return func(o *accountOptions) { o.baseURL = u }
}

// WithRequestTimeout bounds each individual request.
func WithRequestTimeout(d time.Duration) AccountOption {
	return func(o *accountOptions) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithAuthRefreshInterval starts a background token refresher on the
// given interval. Stop it with Close.
func WithAuthRefreshInterval(d time.Duration) AccountOption {
	return func(o *accountOptions) { o.refreshInterval = d }
}

// WithMaxWorkers caps batch-fetch concurrency for this account.
func WithMaxWorkers(n int) AccountOption {
	return func(o *accountOptions) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// Account owns the authenticated session and exposes balance and
// position snapshots. Snapshots are only as fresh as the last explicit
// refresh; nothing revalidates implicitly before trading.
type Account struct {
	session   *Session
	username  string
	fetchOpts []fetch.Option

	mu                        sync.RWMutex
	cashBalance               decimal.Decimal
	investmentBalance         decimal.Decimal
	myMarketIDs               []int64
	myContractIDs             []int64
	isTradingSuspended        bool
	isTradingSuspendedMessage string
	lastRefreshErr            error

	closeOnce   sync.Once
	stopRefresh chan struct{}
	refreshDone chan struct{}
}

// NewAccount logs in and performs one combined refresh of balances and
// positions, so a returned Account is never partially initialized.
func NewAccount(ctx context.Context, creds Credentials, opts ...AccountOption) (*Account, error) {
	o := accountOptions{
		baseURL:        DefaultBaseURL,
		requestTimeout: fetch.DefaultTimeout,
		maxWorkers:     fetch.DefaultMaxWorkers,
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Account{
		session:  newSession(o.baseURL, o.requestTimeout),
		username: creds.Username,
		fetchOpts: []fetch.Option{
			fetch.WithTimeout(o.requestTimeout),
			fetch.WithMaxWorkers(o.maxWorkers),
		},
	}

	if err := a.login(ctx, creds); err != nil {
		return nil, err
	}
	if err := a.UpdateAll(ctx); err != nil {
		return nil, err
	}

	if o.refreshInterval > 0 {
		a.stopRefresh = make(chan struct{})
		a.refreshDone = make(chan struct{})
		go a.refreshLoop(o.refreshInterval)
	}
	return a, nil
}

func (a *Account) login(ctx context.Context, creds Credentials) error {
	resp, err := a.session.PostForm(ctx, pathToken, map[string]string{
		"email":      creds.Username,
		"password":   creds.Password,
		"grant_type": "password",
		"rememberMe": "false",
	})
	if err != nil {
		return errors.Wrap(err, "login")
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	return a.applyToken(resp.Body())
}

// RefreshAuth exchanges the refresh token for a new access token. It is
// idempotent and safe to call concurrently with trading calls: requests
// in flight keep the token they were dispatched with.
func (a *Account) RefreshAuth(ctx context.Context) error {
	resp, err := a.session.PostForm(ctx, pathToken, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": a.session.RefreshToken(),
	})
	if err != nil {
		return errors.Wrap(err, "refresh auth")
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	return a.applyToken(resp.Body())
}

func (a *Account) applyToken(body []byte) error {
	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return errors.Wrap(err, "decode token response")
	}
	if token.AccessToken == "" {
		return errors.New("predictit: token response missing access_token")
	}
	expires, err := parseTokenExpiry(token.Expires)
	if err != nil {
		return err
	}
	a.session.setToken(token.AccessToken, token.RefreshToken, expires)
	return nil
}

func (a *Account) refreshLoop(interval time.Duration) {
	defer close(a.refreshDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopRefresh:
			return
		case <-ticker.C:
			err := a.RefreshAuth(context.Background())
			a.mu.Lock()
			a.lastRefreshErr = err
			a.mu.Unlock()
			if err != nil {
				logger.Errorf("predictit: background auth refresh for %s failed: %v", a.username, err)
			}
		}
	}
}

// LastRefreshErr reports the outcome of the most recent background token
// refresh; nil after a successful one.
func (a *Account) LastRefreshErr() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastRefreshErr
}

// Close stops the background refresher, if any. Idempotent.
func (a *Account) Close() {
	a.closeOnce.Do(func() {
		if a.stopRefresh != nil {
			close(a.stopRefresh)
			<-a.refreshDone
		}
	})
}

// UpdateBalances refreshes cash and investment balances.
func (a *Account) UpdateBalances(ctx context.Context) error {
	resp, err := a.session.Get(ctx, pathWalletBalance)
	if err != nil {
		return errors.Wrap(err, "update balances")
	}
	return a.applyBalances(resp)
}

func (a *Account) applyBalances(resp *resty.Response) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	var balances balanceResponse
	if err := json.Unmarshal(resp.Body(), &balances); err != nil {
		return errors.Wrap(err, "decode balances")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cashBalance = balances.AccountBalanceDecimal
	a.investmentBalance = balances.PortfolioBalanceDecimal
	return nil
}

// UpdatePositions refreshes the sets of market and contract IDs the user
// holds shares in, plus the account-level trading-suspended flag.
func (a *Account) UpdatePositions(ctx context.Context) error {
	resp, err := a.session.Get(ctx, pathProfileShares)
	if err != nil {
		return errors.Wrap(err, "update positions")
	}
	return a.applyPositions(resp)
}

func (a *Account) applyPositions(resp *resty.Response) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	var shares profileSharesResponse
	if err := json.Unmarshal(resp.Body(), &shares); err != nil {
		return errors.Wrap(err, "decode positions")
	}

	marketIDs := make([]int64, 0, len(shares.Markets))
	var contractIDs []int64
	for _, mkt := range shares.Markets {
		marketIDs = append(marketIDs, mkt.MarketID)
		for _, c := range mkt.MarketContracts {
			contractIDs = append(contractIDs, c.ContractID)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.isTradingSuspended = shares.IsTradingSuspended
	a.isTradingSuspendedMessage = shares.IsTradingSuspendedMessage
	a.myMarketIDs = marketIDs
	a.myContractIDs = contractIDs
	return nil
}

// UpdateAll refreshes balances and positions in one concurrent batch.
// Either both field groups apply or the error is returned before any
// mutation.
func (a *Account) UpdateAll(ctx context.Context) error {
	responses, err := fetch.All(ctx, a.session, []string{pathWalletBalance, pathProfileShares}, a.fetchOpts...)
	if err != nil {
		return err
	}
	if err := a.applyBalances(responses[0]); err != nil {
		return err
	}
	return a.applyPositions(responses[1])
}

// SearchMarkets queries active markets. Pages are 1-based.
func (a *Account) SearchMarkets(ctx context.Context, query string, page, itemsPerPage int) ([]MarketSearchResult, error) {
	if page <= 0 {
		page = 1
	}
	if itemsPerPage <= 0 {
		itemsPerPage = 30
	}
	endpoint := pathSearch(url.PathEscape(query)) +
		"?page=" + strconv.Itoa(page) +
		"&itemsPerPage=" + strconv.Itoa(itemsPerPage)

	resp, err := a.session.Get(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "search markets")
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	var result struct {
		Markets []MarketSearchResult `json:"markets"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, errors.Wrap(err, "decode search results")
	}
	return result.Markets, nil
}

// Username returns the username this account logged in with.
func (a *Account) Username() string { return a.username }

// AuthExpiresIn reports how long the current token remains valid.
func (a *Account) AuthExpiresIn() time.Duration { return a.session.AuthExpiresIn() }

// CashBalance is the cash available to invest.
func (a *Account) CashBalance() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cashBalance
}

// InvestmentBalance is the total spent on currently owned shares.
func (a *Account) InvestmentBalance() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.investmentBalance
}

// MyMarketIDs lists markets with currently owned shares.
func (a *Account) MyMarketIDs() []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]int64(nil), a.myMarketIDs...)
}

// MyContractIDs lists contracts with currently owned shares.
func (a *Account) MyContractIDs() []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]int64(nil), a.myContractIDs...)
}

// IsTradingSuspended reports the account-level suspension flag.
func (a *Account) IsTradingSuspended() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isTradingSuspended
}

// IsTradingSuspendedMessage returns the upstream suspension message.
func (a *Account) IsTradingSuspendedMessage() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isTradingSuspendedMessage
}
