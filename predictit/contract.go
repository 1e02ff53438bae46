package predictit

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/predictbot/gopredict/pkg/fetch"
)

// DefaultInvestmentCap is the upstream platform's per-contract limit on
// open buy exposure, measured in cents-weighted units
// (price-in-cents x quantity, summed with current investment).
var DefaultInvestmentCap = decimal.NewFromInt(850)

type contractOptions struct {
	investmentCap decimal.Decimal
}

// ContractOption customizes a Contract at construction.
type ContractOption func(*contractOptions)

// WithInvestmentCap overrides the per-contract investment cap.
func WithInvestmentCap(cap decimal.Decimal) ContractOption {
	return func(o *contractOptions) { o.investmentCap = cap }
}

// Contract is one tradable yes/no instrument. It exposes the normalized
// order book, the user's position, and the user's own open orders, and
// validates trades client-side before submitting them.
type Contract struct {
	account       *Account
	contractID    int64
	investmentCap decimal.Decimal

	mu sync.RWMutex

	// Canonical order book sides, each ascending by price. The four
	// public views derive from these two under the complement
	// transform: a No ask at p is a Yes bid at 1-p.
	yesSide []PriceLevel
	noSide  []PriceLevel

	contractName string
	myPrediction Prediction
	sharesOwned  int64
	investment   decimal.Decimal
	shareDetails []ShareDetail

	myOrders [4][]OwnOrder
}

// NewContract builds a Contract against an existing Account and
// immediately populates it with one combined concurrent fetch of the
// order book, owned shares, and own open orders.
func NewContract(ctx context.Context, account *Account, contractID int64, opts ...ContractOption) (*Contract, error) {
	if account == nil {
		return nil, errors.New("predictit: contract requires an account")
	}
	o := contractOptions{investmentCap: DefaultInvestmentCap}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Contract{
		account:       account,
		contractID:    contractID,
		investmentCap: o.investmentCap,
		myPrediction:  PredictionNone,
	}
	if err := c.UpdateAll(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ContractID returns this contract's identifier.
func (c *Contract) ContractID() int64 { return c.contractID }

// UpdateOrderBook refreshes the canonical yes/no sides.
func (c *Contract) UpdateOrderBook(ctx context.Context) error {
	resp, err := c.account.session.Get(ctx, pathContractOrderBook(c.contractID))
	if err != nil {
		return errors.Wrap(err, "update order book")
	}
	return c.applyOrderBook(resp)
}

func (c *Contract) applyOrderBook(resp *resty.Response) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	var book orderBookResponse
	if err := json.Unmarshal(resp.Body(), &book); err != nil {
		return errors.Wrap(err, "decode order book")
	}

	yes := toLevels(book.YesOrders)
	no := toLevels(book.NoOrders)
	// Upstream sends the book sorted, but that is a hint, not a
	// guarantee.
	sortLevels(yes)
	sortLevels(no)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.yesSide = yes
	c.noSide = no
	return nil
}

func toLevels(raw []rawBookOrder) []PriceLevel {
	levels := make([]PriceLevel, len(raw))
	for i, r := range raw {
		levels[i] = PriceLevel{Price: r.PricePerShare, Quantity: r.Quantity}
	}
	return levels
}

func sortLevels(levels []PriceLevel) {
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

// complement maps each price p to 1-p, preserving order, so a side can
// be read from the opposite outcome's point of view.
func complement(levels []PriceLevel) []PriceLevel {
	one := decimal.NewFromInt(1)
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: one.Sub(l.Price), Quantity: l.Quantity}
	}
	return out
}

func copyLevels(levels []PriceLevel) []PriceLevel {
	return append([]PriceLevel(nil), levels...)
}

// YesAsks lists open Yes asks, best price first.
func (c *Contract) YesAsks() []PriceLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyLevels(c.yesSide)
}

// YesBids lists open Yes bids, best price first. A Yes bid is the
// complement view of a resting No order, quoted at the No price.
func (c *Contract) YesBids() []PriceLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyLevels(c.noSide)
}

// NoAsks lists open No asks, best price first.
func (c *Contract) NoAsks() []PriceLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return complement(c.yesSide)
}

// NoBids lists open No bids, best price first.
func (c *Contract) NoBids() []PriceLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return complement(c.noSide)
}

// UpdateShares refreshes the user's position in this contract.
func (c *Contract) UpdateShares(ctx context.Context) error {
	resp, err := c.account.session.Get(ctx, pathContractShares(c.contractID))
	if err != nil {
		return errors.Wrap(err, "update shares")
	}
	return c.applyShares(resp)
}

func (c *Contract) applyShares(resp *resty.Response) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	var info contractSharesResponse
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return errors.Wrap(err, "decode shares")
	}

	prediction := PredictionNone
	if len(info.Shares) > 0 {
		prediction = Prediction(info.Shares[0].PredictionType)
	}

	details := make([]ShareDetail, len(info.Shares))
	var owned int64
	investment := decimal.Zero
	for i, share := range info.Shares {
		executed, err := parseAPITime(share.DateExecuted)
		if err != nil {
			return err
		}
		details[i] = ShareDetail{
			PredictionType: Prediction(share.PredictionType),
			SharesOwned:    share.SharesOwned,
			PricePerShare:  share.PricePerShare,
			DateExecuted:   executed,
		}
		owned += share.SharesOwned
		investment = investment.Add(share.PricePerShare.Mul(decimal.NewFromInt(share.SharesOwned)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.contractName = info.ContractName
	c.myPrediction = prediction
	c.sharesOwned = owned
	c.investment = investment
	c.shareDetails = details
	return nil
}

// UpdateMyOrders refreshes the user's own open orders, replacing the
// snapshot wholesale.
func (c *Contract) UpdateMyOrders(ctx context.Context) error {
	resp, err := c.account.session.Get(ctx, pathContractOffers(c.contractID))
	if err != nil {
		return errors.Wrap(err, "update my orders")
	}
	return c.applyMyOrders(resp)
}

func (c *Contract) applyMyOrders(resp *resty.Response) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	var offers offersResponse
	if err := json.Unmarshal(resp.Body(), &offers); err != nil {
		return errors.Wrap(err, "decode my orders")
	}

	var orders [4][]OwnOrder
	for _, raw := range offers.Offers {
		if raw.TradeType < 0 || raw.TradeType > 3 {
			return errors.Errorf("predictit: unknown trade type %d in offer %d", raw.TradeType, raw.OfferID)
		}
		created, err := parseAPITime(raw.DateCreated)
		if err != nil {
			return err
		}
		orders[raw.TradeType] = append(orders[raw.TradeType], OwnOrder{
			OrderID:           raw.OfferID,
			ContractID:        raw.ContractID,
			Price:             raw.PricePerShare,
			OriginalQuantity:  raw.Quantity,
			RemainingQuantity: raw.RemainingQuantity,
			DateCreated:       created,
			IsProcessed:       raw.IsProcessed,
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.myOrders = orders
	return nil
}

// UpdateAll refreshes order book, owned shares, and own orders in one
// concurrent batch. Each field group applies whole or not at all; the
// first failing resource aborts the remaining appliers.
func (c *Contract) UpdateAll(ctx context.Context) error {
	urls := []string{
		pathContractOrderBook(c.contractID),
		pathContractShares(c.contractID),
		pathContractOffers(c.contractID),
	}
	responses, err := fetch.All(ctx, c.account.session, urls, c.account.fetchOpts...)
	if err != nil {
		return err
	}
	appliers := []func(*resty.Response) error{
		c.applyOrderBook,
		c.applyShares,
		c.applyMyOrders,
	}
	for i, apply := range appliers {
		if err := apply(responses[i]); err != nil {
			return err
		}
	}
	return nil
}

// ContractName is the display name from the shares payload.
func (c *Contract) ContractName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contractName
}

// MyPrediction is the side currently held, or PredictionNone. Yes and
// No shares cannot be held simultaneously.
func (c *Contract) MyPrediction() Prediction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.myPrediction
}

// SharesOwned is the number of shares held in this contract.
func (c *Contract) SharesOwned() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sharesOwned
}

// Investment is the cents-weighted spend behind the current position,
// the quantity the per-contract cap is measured against.
func (c *Contract) Investment() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.investment
}

// MeanPricePerShare is Investment divided by SharesOwned.
func (c *Contract) MeanPricePerShare() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sharesOwned == 0 {
		return decimal.Zero
	}
	return c.investment.Div(decimal.NewFromInt(c.sharesOwned))
}

// ShareDetails returns the per-fill records behind the position.
func (c *Contract) ShareDetails() []ShareDetail {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ShareDetail(nil), c.shareDetails...)
}

// HaveOpenOrders reports whether any own order is outstanding.
func (c *Contract) HaveOpenOrders() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, bucket := range c.myOrders {
		if len(bucket) > 0 {
			return true
		}
	}
	return false
}

func (c *Contract) ordersOfType(t TradeType) []OwnOrder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]OwnOrder(nil), c.myOrders[t]...)
}

// MyNoBids lists the user's open buy-no orders.
func (c *Contract) MyNoBids() []OwnOrder { return c.ordersOfType(TradeBuyNo) }

// MyYesBids lists the user's open buy-yes orders.
func (c *Contract) MyYesBids() []OwnOrder { return c.ordersOfType(TradeBuyYes) }

// MyNoAsks lists the user's open sell-no orders.
func (c *Contract) MyNoAsks() []OwnOrder { return c.ordersOfType(TradeSellNo) }

// MyYesAsks lists the user's open sell-yes orders.
func (c *Contract) MyYesAsks() []OwnOrder { return c.ordersOfType(TradeSellYes) }

// BuyNo places an order to buy No shares at price dollars per share.
func (c *Contract) BuyNo(ctx context.Context, price decimal.Decimal, quantity int64) error {
	return c.postOrder(ctx, TradeBuyNo, price, quantity)
}

// BuyYes places an order to buy Yes shares at price dollars per share.
func (c *Contract) BuyYes(ctx context.Context, price decimal.Decimal, quantity int64) error {
	return c.postOrder(ctx, TradeBuyYes, price, quantity)
}

// SellNo places an order to sell No shares at price dollars per share.
func (c *Contract) SellNo(ctx context.Context, price decimal.Decimal, quantity int64) error {
	return c.postOrder(ctx, TradeSellNo, price, quantity)
}

// SellYes places an order to sell Yes shares at price dollars per share.
func (c *Contract) SellYes(ctx context.Context, price decimal.Decimal, quantity int64) error {
	return c.postOrder(ctx, TradeSellYes, price, quantity)
}

func (c *Contract) postOrder(ctx context.Context, tradeType TradeType, price decimal.Decimal, quantity int64) error {
	cents, err := c.validateOrder(tradeType, price, quantity)
	if err != nil {
		return err
	}

	resp, err := c.account.session.PostForm(ctx, pathSubmitTrade, map[string]string{
		"pricePerShare": strconv.FormatInt(cents, 10),
		"quantity":      strconv.FormatInt(quantity, 10),
		"contractId":    strconv.FormatInt(c.contractID, 10),
		"tradeType":     strconv.Itoa(int(tradeType)),
	})
	if err != nil {
		return errors.Wrapf(err, "submit %s", tradeType)
	}
	return checkResponse(resp)
}

// validateOrder runs the five submission checks in their fixed order and
// returns the integer cent price. It is pure: no network, no mutation.
func (c *Contract) validateOrder(tradeType TradeType, price decimal.Decimal, quantity int64) (int64, error) {
	cents := price.Mul(decimal.NewFromInt(100)).IntPart()
	if cents < 1 || cents > 99 {
		return 0, errors.Wrapf(ErrPriceOutOfRange, "price %s", price)
	}

	if quantity <= 0 {
		return 0, errors.Wrapf(ErrInvalidQuantity, "quantity %d", quantity)
	}

	c.mu.RLock()
	prediction := c.myPrediction
	owned := c.sharesOwned
	investment := c.investment
	c.mu.RUnlock()

	// Holding one side blocks orders on the other, sells included;
	// economically only opposite-side buys are nonsense, but the
	// broader check is kept deliberately (see DESIGN.md).
	switch prediction {
	case PredictionYes:
		if tradeType == TradeBuyNo || tradeType == TradeSellNo {
			return 0, errors.Wrap(ErrOppositeSide, "own Yes shares")
		}
	case PredictionNo:
		if tradeType == TradeBuyYes || tradeType == TradeSellYes {
			return 0, errors.Wrap(ErrOppositeSide, "own No shares")
		}
	}

	if tradeType.isSell() && quantity > owned {
		return 0, errors.Wrapf(ErrInsufficientShares, "sell %d, own %d", quantity, owned)
	}

	if tradeType.isBuy() {
		exposure := decimal.NewFromInt(cents * quantity).Add(investment)
		if exposure.GreaterThan(c.investmentCap) {
			return 0, errors.Wrapf(ErrInvestmentCap, "exposure %s exceeds cap %s", exposure, c.investmentCap)
		}
	}

	return cents, nil
}

// CancelOrder cancels one outstanding order by its ID.
func (c *Contract) CancelOrder(ctx context.Context, orderID int64) error {
	resp, err := c.account.session.PostForm(ctx, pathCancelOffer(orderID), nil)
	if err != nil {
		return errors.Wrapf(err, "cancel order %d", orderID)
	}
	return checkResponse(resp)
}

// CancelAllOrders cancels every outstanding order on this contract.
func (c *Contract) CancelAllOrders(ctx context.Context) error {
	resp, err := c.account.session.PostForm(ctx, pathCancelAllOffers(c.contractID), nil)
	if err != nil {
		return errors.Wrap(err, "cancel all orders")
	}
	return checkResponse(resp)
}
