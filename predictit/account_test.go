package predictit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountPopulatesState(t *testing.T) {
	f := newFakeAPI(t)
	account := f.newAccount(t)

	assert.Equal(t, "trader@example.com", account.Username())
	assert.True(t, account.CashBalance().Equal(decimal.RequireFromString("123.45")))
	assert.True(t, account.InvestmentBalance().Equal(decimal.RequireFromString("67.89")))
	assert.Equal(t, []int64{11, 22}, account.MyMarketIDs())
	assert.Equal(t, []int64{101, 102, 201}, account.MyContractIDs())
	assert.False(t, account.IsTradingSuspended())

	form := f.authForm()
	assert.Equal(t, "password", form.Get("grant_type"))
	assert.Equal(t, "trader@example.com", form.Get("email"))
}

func TestAuthExpiresIn(t *testing.T) {
	f := newFakeAPI(t)
	f.expiresIn = 60 * time.Second
	account := f.newAccount(t)

	remaining := account.AuthExpiresIn()
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 60*time.Second)
}

func TestRefreshAuthReplacesToken(t *testing.T) {
	f := newFakeAPI(t)
	account := f.newAccount(t)
	require.Equal(t, "token-1", account.session.AccessToken())

	require.NoError(t, account.RefreshAuth(context.Background()))
	assert.Equal(t, "token-2", account.session.AccessToken())

	form := f.authForm()
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "refresh-1", form.Get("refresh_token"))
}

func TestLoginFailureSurfacesAPIError(t *testing.T) {
	f := newFakeAPI(t)
	f.setTokenFail(true)

	_, err := NewAccount(context.Background(), Credentials{
		Username: "trader@example.com",
		Password: "wrong",
	}, WithBaseURL(f.server.URL))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid_grant")
}

func TestBackgroundRefresher(t *testing.T) {
	f := newFakeAPI(t)
	account := f.newAccount(t, WithAuthRefreshInterval(20*time.Millisecond))

	require.Eventually(t, func() bool {
		return account.session.AccessToken() != "token-1"
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, account.LastRefreshErr())
	account.Close()
	account.Close() // idempotent
}

func TestBackgroundRefresherSurfacesFailure(t *testing.T) {
	f := newFakeAPI(t)
	account := f.newAccount(t, WithAuthRefreshInterval(20*time.Millisecond))
	f.setTokenFail(true)

	require.Eventually(t, func() bool {
		return account.LastRefreshErr() != nil
	}, 2*time.Second, 10*time.Millisecond)

	var apiErr *APIError
	assert.ErrorAs(t, account.LastRefreshErr(), &apiErr)
}

func TestUpdatePositionsTradingSuspended(t *testing.T) {
	f := newFakeAPI(t)
	account := f.newAccount(t)

	f.setBody(pathProfileShares, `{
		"isTradingSuspended": true,
		"isTradingSuspendedMessage": "maintenance window",
		"markets": null
	}`)
	require.NoError(t, account.UpdatePositions(context.Background()))

	assert.True(t, account.IsTradingSuspended())
	assert.Equal(t, "maintenance window", account.IsTradingSuspendedMessage())
	assert.Empty(t, account.MyMarketIDs())
	assert.Empty(t, account.MyContractIDs())
}

func TestUpdateAllDoesNotApplyFailedGroup(t *testing.T) {
	f := newFakeAPI(t)
	account := f.newAccount(t)

	f.setBody(pathWalletBalance,
		`{"accountBalanceDecimal": 999.99, "portfolioBalanceDecimal": 0.01}`)
	f.setStatus(pathProfileShares, 500)

	// Balances (first group) apply; positions fail and keep their old
	// snapshot.
	err := account.UpdateAll(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, []int64{11, 22}, account.MyMarketIDs())
}

func TestSearchMarkets(t *testing.T) {
	f := newFakeAPI(t)
	account := f.newAccount(t)

	f.setBody("/api/Browse/Search/nominee", `{
		"markets": [
			{"marketId": 31, "marketName": "Who will be the nominee?", "status": "Open"},
			{"marketId": 32, "marketName": "Nominee announced by June?", "status": "Open"}
		]
	}`)

	results, err := account.SearchMarkets(context.Background(), "nominee", 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(31), results[0].MarketID)
	assert.Equal(t, "Who will be the nominee?", results[0].MarketName)
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("PREDICTIT_USERNAME", "env-user@example.com")
	t.Setenv("PREDICTIT_PASSWORD", "env-pass")

	creds, err := CredentialsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-user@example.com", creds.Username)
	assert.Equal(t, "env-pass", creds.Password)

	t.Setenv("PREDICTIT_PASSWORD", "")
	_, err = CredentialsFromEnv()
	assert.Error(t, err)
}
