package predictit

import "fmt"

// DefaultBaseURL is the upstream web API host. Overridable per Account
// so tests can point at a local server.
const DefaultBaseURL = "https://www.predictit.org"

const (
	pathToken         = "/api/Account/token"
	pathWalletBalance = "/api/User/Wallet/Balance"
	pathProfileShares = "/api/Profile/Shares"
	pathSubmitTrade   = "/api/Trade/SubmitTrade"
)

func pathMarketInfo(marketID int64) string {
	return fmt.Sprintf("/api/Market/%d", marketID)
}

func pathMarketContracts(marketID int64) string {
	return fmt.Sprintf("/api/Market/%d/Contracts", marketID)
}

func pathContractOrderBook(contractID int64) string {
	return fmt.Sprintf("/api/Trade/%d/OrderBook", contractID)
}

func pathContractShares(contractID int64) string {
	return fmt.Sprintf("/api/Profile/contract/%d/Shares", contractID)
}

func pathContractOffers(contractID int64) string {
	return fmt.Sprintf("/api/Profile/contract/%d/Offers", contractID)
}

func pathCancelOffer(orderID int64) string {
	return fmt.Sprintf("/api/Trade/CancelOffer/%d", orderID)
}

func pathCancelAllOffers(contractID int64) string {
	return fmt.Sprintf("/api/Trade/CancelAllOffers/%d", contractID)
}

func pathSearch(query string) string {
	return "/api/Browse/Search/" + query
}
