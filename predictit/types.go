package predictit

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TradeType is the upstream code for one of the four order kinds.
type TradeType int

const (
	TradeBuyNo   TradeType = 0
	TradeBuyYes  TradeType = 1
	TradeSellNo  TradeType = 2
	TradeSellYes TradeType = 3
)

func (t TradeType) String() string {
	switch t {
	case TradeBuyNo:
		return "buy-no"
	case TradeBuyYes:
		return "buy-yes"
	case TradeSellNo:
		return "sell-no"
	case TradeSellYes:
		return "sell-yes"
	default:
		return "unknown"
	}
}

// isBuy reports whether the trade type opens or extends a position.
func (t TradeType) isBuy() bool { return t == TradeBuyNo || t == TradeBuyYes }

// isSell reports whether the trade type reduces a position.
func (t TradeType) isSell() bool { return t == TradeSellNo || t == TradeSellYes }

// Prediction is the side of a contract the user currently holds.
type Prediction int

const (
	PredictionNone Prediction = -1
	PredictionNo   Prediction = 0
	PredictionYes  Prediction = 1
)

func (p Prediction) String() string {
	switch p {
	case PredictionNo:
		return "no"
	case PredictionYes:
		return "yes"
	default:
		return "none"
	}
}

// MarketType is an opaque upstream enumeration. Observed values include
// 0 and 3; treat unknown codes as valid.
type MarketType int

// PriceLevel is one resting (price, quantity) pair on an order book
// side. Price is in dollars, within (0, 1).
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity int64
}

// OwnOrder is an immutable snapshot of one of the user's outstanding
// orders. Price is in integer cents, as the upstream trade API deals in.
type OwnOrder struct {
	OrderID           int64
	ContractID        int64
	Price             decimal.Decimal
	OriginalQuantity  int64
	RemainingQuantity int64
	DateCreated       time.Time
	IsProcessed       bool
}

// ShareDetail is one fill record behind the user's position in a
// contract. PricePerShare is in integer cents.
type ShareDetail struct {
	PredictionType Prediction
	SharesOwned    int64
	PricePerShare  decimal.Decimal
	DateExecuted   time.Time
}

// MarketSearchResult is one hit from the market search endpoint.
type MarketSearchResult struct {
	MarketID   int64  `json:"marketId"`
	MarketName string `json:"marketName"`
	Status     string `json:"status"`
}

// Raw upstream payloads. Decoded fully before any entity field is
// mutated, so a bad response never half-applies.

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expires      string `json:".expires"`
}

type balanceResponse struct {
	AccountBalanceDecimal   decimal.Decimal `json:"accountBalanceDecimal"`
	PortfolioBalanceDecimal decimal.Decimal `json:"portfolioBalanceDecimal"`
}

type profileSharesResponse struct {
	IsTradingSuspended        bool   `json:"isTradingSuspended"`
	IsTradingSuspendedMessage string `json:"isTradingSuspendedMessage"`
	Markets                   []struct {
		MarketID        int64 `json:"marketId"`
		MarketContracts []struct {
			ContractID int64 `json:"contractId"`
		} `json:"marketContracts"`
	} `json:"markets"`
}

type marketInfoResponse struct {
	MarketName                string          `json:"marketName"`
	MarketType                int             `json:"marketType"`
	DateEndString             string          `json:"dateEndString"`
	IsActive                  bool            `json:"isActive"`
	Rule                      string          `json:"rule"`
	UserHasOwnership          bool            `json:"userHasOwnership"`
	UserHasTradeHistory       bool            `json:"userHasTradeHistory"`
	UserInvestment            decimal.Decimal `json:"userInvestment"`
	UserMaxPayout             decimal.Decimal `json:"userMaxPayout"`
	Info                      string          `json:"info"`
	DateOpened                string          `json:"dateOpened"`
	IsMarketWatched           bool            `json:"isMarketWatched"`
	Status                    string          `json:"status"`
	IsOpen                    bool            `json:"isOpen"`
	IsOpenStatusMessage       string          `json:"isOpenStatusMessage"`
	IsTradingSuspended        bool            `json:"isTradingSuspended"`
	IsTradingSuspendedMessage string          `json:"isTradingSuspendedMessage"`
	IsEngineBusy              bool            `json:"isEngineBusy"`
	IsEngineBusyMessage       string          `json:"isEngineBusyMessage"`
}

type marketContractEntry struct {
	ContractID int64 `json:"contractId"`
}

type rawBookOrder struct {
	PricePerShare decimal.Decimal `json:"pricePerShare"`
	Quantity      int64           `json:"quantity"`
}

type orderBookResponse struct {
	YesOrders []rawBookOrder `json:"yesOrders"`
	NoOrders  []rawBookOrder `json:"noOrders"`
}

type contractSharesResponse struct {
	ContractName string `json:"contractName"`
	Shares       []struct {
		PredictionType int             `json:"predictionType"`
		SharesOwned    int64           `json:"sharesOwned"`
		PricePerShare  decimal.Decimal `json:"pricePerShare"`
		DateExecuted   string          `json:"dateExecuted"`
	} `json:"shares"`
}

type offersResponse struct {
	Offers []struct {
		OfferID           int64           `json:"offerId"`
		ContractID        int64           `json:"contractId"`
		PricePerShare     decimal.Decimal `json:"pricePerShare"`
		Quantity          int64           `json:"quantity"`
		RemainingQuantity int64           `json:"remainingQuantity"`
		DateCreated       string          `json:"dateCreated"`
		TradeType         int             `json:"tradeType"`
		IsProcessed       bool            `json:"isProcessed"`
	} `json:"offers"`
}

// apiTimeLayout covers upstream naive timestamps; Go accepts an optional
// fractional second after the seconds element, so the same layout parses
// both "2006-01-02T15:04:05" and "...05.1234567" forms.
const apiTimeLayout = "2006-01-02T15:04:05"

func parseAPITime(s string) (time.Time, error) {
	t, err := time.Parse(apiTimeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}

// tokenExpiryLayout matches the .NET-style expiry in the token payload,
// e.g. "2024-03-01T21:00:00.0000000+00:00".
const tokenExpiryLayout = "2006-01-02T15:04:05-07:00"

func parseTokenExpiry(s string) (time.Time, error) {
	t, err := time.Parse(tokenExpiryLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse token expiry %q", s)
	}
	return t.UTC(), nil
}
