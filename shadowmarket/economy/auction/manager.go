// Package auction runs timed auctions over market items. Bids escrow the
// bidder's credits immediately; the previous top bidder is refunded in
// the same transaction, so at most one bid per auction is ever held.
package auction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/uptrace/bun"
)

const (
	MinStartPrice   = 100
	MinDuration     = 1 * time.Minute
	MaxDuration     = 1440 * time.Minute
	MinBidIncrement = 100
	BidRatio        = 1.1
	AntiSnipeWindow = 120 * time.Second
	AuctionTaxRate  = 0.10

	sweepInterval = 60 * time.Second
)

var (
	ErrNotOwner         = errors.New("item is not owned by you")
	ErrInvalidStart     = errors.New("start price is below the minimum")
	ErrInvalidDuration  = errors.New("auction duration out of range")
	ErrNotRunning       = errors.New("auction is not running")
	ErrBidTooLow        = errors.New("bid is below the minimum")
	ErrSelfBid          = errors.New("cannot bid on your own auction")
	ErrAlreadyTopBidder = errors.New("you are already the top bidder")
	ErrConflict         = errors.New("auction was modified concurrently")
)

// Notifier receives post-commit auction events. A nil notifier is valid.
type Notifier interface {
	AnnounceBid(item *models.MarketItem, bidderID string, amount int64, extended bool)
	AnnounceSettlement(item *models.MarketItem, winnerID string, amount int64)
	AnnounceExpired(item *models.MarketItem)
}

type Manager struct {
	items    repositories.ItemRepository
	ledger   *ledger.Ledger
	notifier Notifier

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewManager(items repositories.ItemRepository, l *ledger.Ledger) *Manager {
	if items == nil {
		panic("item repository cannot be nil")
	}
	if l == nil {
		panic("ledger cannot be nil")
	}

	return &Manager{
		items:  items,
		ledger: l,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// MinimumBid is the smallest acceptable next bid over the current one.
func MinimumBid(current int64) int64 {
	ratio := int64(math.Floor(float64(current) * BidRatio))
	increment := current + MinBidIncrement
	if ratio > increment {
		return ratio
	}
	return increment
}

// Start converts an owned item into a running auction.
func (m *Manager) Start(ctx context.Context, itemID int64, sellerID string, startPrice int64, duration time.Duration) (*models.MarketItem, error) {
	if startPrice < MinStartPrice {
		return nil, ErrInvalidStart
	}
	if duration < MinDuration || duration > MaxDuration {
		return nil, ErrInvalidDuration
	}

	var started *models.MarketItem

	err := m.items.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		item := new(models.MarketItem)
		err := tx.NewSelect().
			Model(item).
			Where("mi.id = ?", itemID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repositories.ErrItemNotFound
			}
			return err
		}

		if item.BuyerID != sellerID ||
			(item.Status != models.ItemStatusOwned && item.Status != models.ItemStatusSold) {
			return ErrNotOwner
		}

		endTime := time.Now().Add(duration)
		res, err := tx.NewUpdate().
			Model((*models.MarketItem)(nil)).
			Set("status = ?", models.ItemStatusOnAuction).
			Set("seller_id = ?", sellerID).
			Set("current_bid = ?", startPrice).
			Set("top_bidder_id = ?", "").
			Set("auction_end_time = ?", endTime).
			Set("updated_at = ?", time.Now()).
			Where("id = ? AND buyer_id = ? AND status IN (?)",
				itemID, sellerID, bun.In([]string{models.ItemStatusOwned, models.ItemStatusSold})).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConflict
		}

		item.Status = models.ItemStatusOnAuction
		item.SellerID = sellerID
		item.CurrentBid = startPrice
		item.TopBidderID = ""
		item.AuctionEndTime = endTime
		started = item
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start auction: %w", err)
	}

	slog.Info("Auction started",
		slog.String("type", "market"),
		slog.Int64("item_id", started.ID),
		slog.String("seller_id", sellerID),
		slog.Int64("start_price", startPrice),
		slog.Time("ends_at", started.AuctionEndTime))

	return started, nil
}

// PlaceBid escrows the bid and refunds the previous top bidder in one
// transaction. Bids inside the anti-snipe window extend the auction once
// per bid.
func (m *Manager) PlaceBid(ctx context.Context, itemID int64, bidderID string, amount int64) (*models.MarketItem, error) {
	var (
		placed   *models.MarketItem
		extended bool
	)

	err := m.items.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		item := new(models.MarketItem)
		err := tx.NewSelect().
			Model(item).
			Where("mi.id = ?", itemID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repositories.ErrItemNotFound
			}
			return err
		}

		now := time.Now()
		if item.Status != models.ItemStatusOnAuction || !item.AuctionEndTime.After(now) {
			return ErrNotRunning
		}
		if bidderID == item.SellerID {
			return ErrSelfBid
		}
		if bidderID == item.TopBidderID {
			return ErrAlreadyTopBidder
		}
		if amount < MinimumBid(item.CurrentBid) {
			return ErrBidTooLow
		}

		if err := m.ledger.WithdrawTx(ctx, tx, bidderID, item.GuildID, amount); err != nil {
			return err
		}

		// Refund the outbid participant; their account may not exist
		// anymore, DepositTx recreates it.
		if item.TopBidderID != "" {
			if err := m.ledger.DepositTx(ctx, tx, item.TopBidderID, item.GuildID, item.CurrentBid); err != nil {
				return err
			}
		}

		endTime := item.AuctionEndTime
		if endTime.Sub(now) < AntiSnipeWindow {
			endTime = now.Add(AntiSnipeWindow)
			extended = true
		}

		res, err := tx.NewUpdate().
			Model((*models.MarketItem)(nil)).
			Set("current_bid = ?", amount).
			Set("top_bidder_id = ?", bidderID).
			Set("auction_end_time = ?", endTime).
			Set("updated_at = ?", now).
			Where("id = ? AND status = ? AND current_bid = ?",
				itemID, models.ItemStatusOnAuction, item.CurrentBid).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConflict
		}

		item.CurrentBid = amount
		item.TopBidderID = bidderID
		item.AuctionEndTime = endTime
		placed = item
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place bid: %w", err)
	}

	slog.Info("Bid placed",
		slog.String("type", "market"),
		slog.Int64("item_id", placed.ID),
		slog.String("bidder_id", bidderID),
		slog.Int64("amount", amount),
		slog.Bool("extended", extended))

	if m.notifier != nil {
		m.notifier.AnnounceBid(placed, bidderID, amount, extended)
	}

	return placed, nil
}

// SettleExpired finalizes every auction past its end time. Each item
// settles in its own transaction; a concurrent bid that extended the
// auction makes its guard miss and the item is skipped.
func (m *Manager) SettleExpired(ctx context.Context) (int, error) {
	expired, err := m.items.GetExpiredAuctions(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query expired auctions: %w", err)
	}

	settled := 0
	for _, item := range expired {
		if err := m.settleOne(ctx, item.ID); err != nil {
			slog.Error("Failed to settle auction",
				slog.Int64("item_id", item.ID),
				slog.Any("error", err))
			continue
		}
		settled++
	}
	return settled, nil
}

func (m *Manager) settleOne(ctx context.Context, itemID int64) error {
	var (
		settledItem *models.MarketItem
		winnerID    string
		winningBid  int64
	)

	err := m.items.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		item := new(models.MarketItem)
		err := tx.NewSelect().
			Model(item).
			Where("mi.id = ?", itemID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repositories.ErrItemNotFound
			}
			return err
		}

		now := time.Now()
		if item.Status != models.ItemStatusOnAuction || item.AuctionEndTime.After(now) {
			// Extended or already settled by another sweep
			return nil
		}

		if item.TopBidderID != "" {
			proceeds := item.CurrentBid - int64(math.Floor(float64(item.CurrentBid)*AuctionTaxRate))
			if err := m.ledger.DepositTx(ctx, tx, item.SellerID, item.GuildID, proceeds); err != nil {
				return err
			}
		}

		// A won item changes hands with price, bid, bidder and end time
		// cleared; an unbid item keeps its price and reverts to the owner.
		newOwner := item.BuyerID
		finalPrice := item.Price
		if item.TopBidderID != "" {
			newOwner = item.TopBidderID
			finalPrice = 0
		}

		res, err := tx.NewUpdate().
			Model((*models.MarketItem)(nil)).
			Set("status = ?", models.ItemStatusOwned).
			Set("buyer_id = ?", newOwner).
			Set("price = ?", finalPrice).
			Set("auction_end_time = NULL").
			Set("current_bid = ?", 0).
			Set("top_bidder_id = ?", "").
			Set("updated_at = ?", now).
			Where("id = ? AND status = ? AND current_bid = ?",
				itemID, models.ItemStatusOnAuction, item.CurrentBid).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrConflict
		}

		winnerID = item.TopBidderID
		winningBid = item.CurrentBid
		item.Status = models.ItemStatusOwned
		item.BuyerID = newOwner
		item.Price = finalPrice
		settledItem = item
		return nil
	})
	if err != nil {
		return err
	}
	if settledItem == nil {
		return nil
	}

	if winnerID != "" {
		slog.Info("Auction settled",
			slog.String("type", "market"),
			slog.Int64("item_id", settledItem.ID),
			slog.String("winner_id", winnerID),
			slog.Int64("winning_bid", winningBid))
		if m.notifier != nil {
			m.notifier.AnnounceSettlement(settledItem, winnerID, winningBid)
		}
	} else {
		slog.Info("Auction expired without bids",
			slog.String("type", "market"),
			slog.Int64("item_id", settledItem.ID))
		if m.notifier != nil {
			m.notifier.AnnounceExpired(settledItem)
		}
	}

	return nil
}

// StartSweeper runs the settlement loop until Shutdown or ctx cancel.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		defer close(m.done)

		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := m.SettleExpired(sweepCtx); err != nil {
					slog.Error("Auction sweep failed", slog.Any("error", err))
				}
				cancel()
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
	}
}
