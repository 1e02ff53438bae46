// Package predictit is a client for the PredictIt private web API. It
// authenticates an account, tracks balances and positions, reads market
// and contract state, and submits and cancels trade orders.
//
// Entities self-populate on construction: NewAccount logs in and pulls
// balances and positions, NewMarket and NewContract pull their resources
// in one bounded concurrent batch, so no object is ever observed
// half-initialized. All later freshness is explicit; call the Update
// methods when newer snapshots are needed.
package predictit
