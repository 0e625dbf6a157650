package auction

import (
	"context"
	"testing"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/dbtest"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuild = "guild-1"

type fixture struct {
	manager *Manager
	ledger  *ledger.Ledger
	items   repositories.ItemRepository
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.New(t)
	l := ledger.New(db)
	items := repositories.NewItemRepository(db)
	return &fixture{
		manager: NewManager(items, l),
		ledger:  l,
		items:   items,
	}
}

func (f *fixture) ownedItem(t *testing.T, owner string) *models.MarketItem {
	item := &models.MarketItem{
		SellerID:   "house-bot",
		GuildID:    testGuild,
		ContentURL: "https://cdn.example/item.png",
		Price:      500,
		Status:     models.ItemStatusOwned,
		BuyerID:    owner,
	}
	require.NoError(t, f.items.Create(context.Background(), item))
	return item
}

func (f *fixture) expire(t *testing.T, itemID int64) {
	_, err := f.items.DB().NewUpdate().
		Model((*models.MarketItem)(nil)).
		Set("auction_end_time = ?", time.Now().Add(-time.Minute)).
		Where("id = ?", itemID).
		Exec(context.Background())
	require.NoError(t, err)
}

func TestMinimumBid(t *testing.T) {
	// 10% step beats the flat increment only above 1000
	assert.Equal(t, int64(200), MinimumBid(100))
	assert.Equal(t, int64(1100), MinimumBid(1000))
	assert.Equal(t, int64(2200), MinimumBid(2000))
	assert.Equal(t, int64(11000), MinimumBid(10000))
}

func TestStartValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 99, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidStart)

	_, err = f.manager.Start(ctx, item.ID, "alice", 100, 30*time.Second)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = f.manager.Start(ctx, item.ID, "alice", 100, 25*time.Hour)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = f.manager.Start(ctx, item.ID, "bob", 100, time.Hour)
	assert.ErrorIs(t, err, ErrNotOwner)

	started, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusOnAuction, started.Status)
	assert.Equal(t, int64(100), started.CurrentBid)

	// Already on auction
	_, err = f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestPlaceBidMinimum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Deposit(ctx, "bob", testGuild, 10000))

	_, err = f.manager.PlaceBid(ctx, item.ID, "bob", 150)
	assert.ErrorIs(t, err, ErrBidTooLow)

	placed, err := f.manager.PlaceBid(ctx, item.ID, "bob", 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), placed.CurrentBid)
	assert.Equal(t, "bob", placed.TopBidderID)

	// Escrowed immediately
	balance, err := f.ledger.GetBalance(ctx, "bob", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(9800), balance)
}

func TestPlaceBidRefundsPrevious(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Deposit(ctx, "bob", testGuild, 1000))
	require.NoError(t, f.ledger.Deposit(ctx, "carol", testGuild, 1000))

	_, err = f.manager.PlaceBid(ctx, item.ID, "bob", 200)
	require.NoError(t, err)
	_, err = f.manager.PlaceBid(ctx, item.ID, "carol", 300)
	require.NoError(t, err)

	bobBal, err := f.ledger.GetBalance(ctx, "bob", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bobBal)

	carolBal, err := f.ledger.GetBalance(ctx, "carol", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(700), carolBal)
}

func TestPlaceBidRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Deposit(ctx, "alice", testGuild, 10000))
	require.NoError(t, f.ledger.Deposit(ctx, "bob", testGuild, 10000))

	_, err = f.manager.PlaceBid(ctx, item.ID, "alice", 200)
	assert.ErrorIs(t, err, ErrSelfBid)

	_, err = f.manager.PlaceBid(ctx, item.ID, "bob", 200)
	require.NoError(t, err)

	_, err = f.manager.PlaceBid(ctx, item.ID, "bob", 400)
	assert.ErrorIs(t, err, ErrAlreadyTopBidder)

	// Failed bid keeps the escrow untouched
	balance, err := f.ledger.GetBalance(ctx, "bob", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(9800), balance)
}

func TestPlaceBidInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Deposit(ctx, "bob", testGuild, 150))

	_, err = f.manager.PlaceBid(ctx, item.ID, "bob", 200)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	reloaded, err := f.items.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.CurrentBid)
	assert.Equal(t, "", reloaded.TopBidderID)
}

func TestAntiSnipeExtension(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	// Ends in one minute, inside the anti-snipe window
	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Minute)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Deposit(ctx, "bob", testGuild, 1000))

	placed, err := f.manager.PlaceBid(ctx, item.ID, "bob", 200)
	require.NoError(t, err)

	remaining := time.Until(placed.AuctionEndTime)
	assert.Greater(t, remaining, 110*time.Second)
	assert.LessOrEqual(t, remaining, AntiSnipeWindow)
}

func TestNoExtensionOutsideWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	started, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Deposit(ctx, "bob", testGuild, 1000))

	placed, err := f.manager.PlaceBid(ctx, item.ID, "bob", 200)
	require.NoError(t, err)
	assert.Equal(t, started.AuctionEndTime.Unix(), placed.AuctionEndTime.Unix())
}

func TestSettleWithWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Deposit(ctx, "bob", testGuild, 2000))
	_, err = f.manager.PlaceBid(ctx, item.ID, "bob", 1000)
	require.NoError(t, err)

	f.expire(t, item.ID)

	settled, err := f.manager.SettleExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	reloaded, err := f.items.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusOwned, reloaded.Status)
	assert.Equal(t, "bob", reloaded.BuyerID)
	assert.Equal(t, int64(0), reloaded.Price)
	assert.Equal(t, int64(0), reloaded.CurrentBid)
	assert.Equal(t, "", reloaded.TopBidderID)
	assert.True(t, reloaded.AuctionEndTime.IsZero())

	// Seller receives the bid minus 10% tax
	aliceBal, err := f.ledger.GetBalance(ctx, "alice", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(900), aliceBal)
}

func TestSettleWithoutBidsRevertsToOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)

	f.expire(t, item.ID)

	settled, err := f.manager.SettleExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	reloaded, err := f.items.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusOwned, reloaded.Status)
	assert.Equal(t, "alice", reloaded.BuyerID)
	assert.Equal(t, int64(0), reloaded.CurrentBid)
}

func TestBidAfterEndRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)

	f.expire(t, item.ID)

	require.NoError(t, f.ledger.Deposit(ctx, "bob", testGuild, 1000))
	_, err = f.manager.PlaceBid(ctx, item.ID, "bob", 200)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSettleIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.ownedItem(t, "alice")

	_, err := f.manager.Start(ctx, item.ID, "alice", 100, time.Hour)
	require.NoError(t, err)
	f.expire(t, item.ID)

	_, err = f.manager.SettleExpired(ctx)
	require.NoError(t, err)

	settled, err := f.manager.SettleExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)
}
