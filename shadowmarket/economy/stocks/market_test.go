package stocks

import (
	"context"
	"testing"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/dbtest"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuild = "guild-1"

func newTestMarket(t *testing.T) (*Market, *ledger.Ledger) {
	db := dbtest.New(t)
	l := ledger.New(db)
	return New(repositories.NewStockRepository(db), l), l
}

func TestPriceLazyInit(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMarket(t)

	price, err := m.Price(ctx, "cat_ears")
	require.NoError(t, err)
	assert.Equal(t, 100.0, price)
}

func TestImpulseRespectsFloor(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMarket(t)

	// Hammer the price down far below what the floor allows
	for i := 0; i < 2000; i++ {
		require.NoError(t, m.ApplyImpulse(ctx, "cat_ears", 0.5))
	}

	price, err := m.Price(ctx, "cat_ears")
	require.NoError(t, err)
	assert.Equal(t, 1.0, price)
}

func TestSubmissionImpulse(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMarket(t)

	m.ApplySubmissionImpulses(ctx, []string{"plain"}, 5.0)
	price, err := m.Price(ctx, "plain")
	require.NoError(t, err)
	assert.InDelta(t, 99.5, price, 1e-9)

	m.ApplySubmissionImpulses(ctx, []string{"brilliant"}, 9.3)
	price, err = m.Price(ctx, "brilliant")
	require.NoError(t, err)
	assert.InDelta(t, 100*0.995*1.02, price, 1e-9)
}

func TestBuyUpdatesHoldingAndPrice(t *testing.T) {
	ctx := context.Background()
	m, l := newTestMarket(t)

	require.NoError(t, l.Deposit(ctx, "alice", testGuild, 100000))

	trade, err := m.Buy(ctx, "alice", testGuild, "cat_ears", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), trade.Total)
	assert.Equal(t, 100.0, trade.PricePerShare)
	assert.InDelta(t, 100.0*(1+0.0001*10), trade.NewPrice, 1e-9)
	assert.Equal(t, int64(10), trade.NewAmount)

	balance, err := l.GetBalance(ctx, "alice", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(99000), balance)

	holdings, err := m.Holdings(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, int64(10), holdings[0].Amount)
	assert.InDelta(t, 100.0, holdings[0].AverageCost, 1e-9)
}

func TestBuyAverageCostReweighted(t *testing.T) {
	ctx := context.Background()
	m, l := newTestMarket(t)

	require.NoError(t, l.Deposit(ctx, "alice", testGuild, 1000000))

	first, err := m.Buy(ctx, "alice", testGuild, "cat_ears", 10)
	require.NoError(t, err)
	second, err := m.Buy(ctx, "alice", testGuild, "cat_ears", 10)
	require.NoError(t, err)
	assert.Greater(t, second.PricePerShare, first.PricePerShare)

	holdings, err := m.Holdings(ctx, "alice")
	require.NoError(t, err)

	var avg float64
	for _, h := range holdings {
		if h.TagName == "cat_ears" {
			avg = h.AverageCost
		}
	}
	expected := (first.PricePerShare*10 + second.PricePerShare*10) / 20
	assert.InDelta(t, expected, avg, 1e-9)
}

func TestBuyInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	m, l := newTestMarket(t)

	require.NoError(t, l.Deposit(ctx, "alice", testGuild, 500))

	_, err := m.Buy(ctx, "alice", testGuild, "cat_ears", 10)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// Failed order must leave no position behind
	holdings, err := m.Holdings(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, holdings)

	balance, err := l.GetBalance(ctx, "alice", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}

func TestSellRealizesProfitAndDeletesAtZero(t *testing.T) {
	ctx := context.Background()
	m, l := newTestMarket(t)

	require.NoError(t, l.Deposit(ctx, "alice", testGuild, 10000))

	buy, err := m.Buy(ctx, "alice", testGuild, "cat_ears", 5)
	require.NoError(t, err)

	sell, err := m.Sell(ctx, "alice", testGuild, "cat_ears", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sell.NewAmount)
	assert.Equal(t, sell.Total-buy.Total, sell.Profit)

	holdings, err := m.Holdings(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestSellMoreThanHeld(t *testing.T) {
	ctx := context.Background()
	m, l := newTestMarket(t)

	require.NoError(t, l.Deposit(ctx, "alice", testGuild, 10000))

	_, err := m.Sell(ctx, "alice", testGuild, "cat_ears", 1)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, err = m.Buy(ctx, "alice", testGuild, "cat_ears", 3)
	require.NoError(t, err)

	_, err = m.Sell(ctx, "alice", testGuild, "cat_ears", 4)
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestOrderValidation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMarket(t)

	_, err := m.Buy(ctx, "alice", testGuild, "cat_ears", 0)
	assert.ErrorIs(t, err, ErrInvalidShares)
	_, err = m.Sell(ctx, "alice", testGuild, "cat_ears", -2)
	assert.ErrorIs(t, err, ErrInvalidShares)
}

func TestVolatilityPassKeepsFloor(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMarket(t)

	_, err := m.Price(ctx, "a")
	require.NoError(t, err)
	_, err = m.Price(ctx, "b")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, m.VolatilityPass(ctx))
	}

	stocks, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	for _, s := range stocks {
		assert.GreaterOrEqual(t, s.CurrentPrice, 1.0)
	}
}
