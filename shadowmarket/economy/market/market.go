// Package market owns the item catalog state machine: house listings,
// direct buys and resales. Auctions live in economy/auction and hand
// items back to this state machine when they settle.
package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/uptrace/bun"
)

const (
	ResaleTaxRate  = 0.20
	MinResalePrice = 100
)

var (
	ErrNotForSale = errors.New("item is not for sale")
	ErrOwnListing = errors.New("cannot buy your own listing")
	ErrNotOwner   = errors.New("item is not owned by you")
	ErrMinPrice   = errors.New("price is below the minimum")
	ErrConflict   = errors.New("item was modified concurrently")
)

// Announcer receives post-commit sale notifications. Implementations must
// not block; failures are the implementation's problem.
type Announcer interface {
	AnnounceSale(item *models.MarketItem, buyerID string)
}

// ImpulseSink receives demand signals for the tags of traded items.
type ImpulseSink interface {
	ApplyPurchaseImpulses(ctx context.Context, tags []string)
}

type Market struct {
	items     repositories.ItemRepository
	ledger    *ledger.Ledger
	impulses  ImpulseSink
	announcer Announcer
	houseID   string
}

func New(items repositories.ItemRepository, l *ledger.Ledger, impulses ImpulseSink) *Market {
	return &Market{
		items:    items,
		ledger:   l,
		impulses: impulses,
	}
}

// SetHouseID registers the house account. Sales by the house pay nobody;
// the submitter was already paid at listing time.
func (m *Market) SetHouseID(id string) {
	m.houseID = id
}

func (m *Market) HouseID() string {
	return m.houseID
}

func (m *Market) SetAnnouncer(a Announcer) {
	m.announcer = a
}

func (m *Market) Listings(ctx context.Context, limit int) ([]*models.MarketItem, error) {
	return m.items.GetByStatus(ctx, models.ItemStatusOnSale, limit)
}

func (m *Market) Inventory(ctx context.Context, userID string) ([]*models.MarketItem, error) {
	return m.items.GetOwnedBy(ctx, userID)
}

func (m *Market) Item(ctx context.Context, id int64) (*models.MarketItem, error) {
	return m.items.GetByID(ctx, id)
}

// Buy purchases a listed item. Payment, seller proceeds and the ownership
// flip commit together; a concurrent buyer loses on the guarded update
// and their money never leaves.
func (m *Market) Buy(ctx context.Context, itemID int64, buyerID string) (*models.MarketItem, error) {
	var bought *models.MarketItem

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

		if item.Status != models.ItemStatusOnSale {
			return ErrNotForSale
		}
		if item.SellerID == buyerID {
			return ErrOwnListing
		}

		if err := m.ledger.WithdrawTx(ctx, tx, buyerID, item.GuildID, item.Price); err != nil {
			return err
		}

		// House listings already paid the submitter when they were
		// brokered; only resales credit the seller, minus tax.
		if item.SellerID != m.houseID {
			proceeds := item.Price - int64(math.Floor(float64(item.Price)*ResaleTaxRate))
			if err := m.ledger.DepositTx(ctx, tx, item.SellerID, item.GuildID, proceeds); err != nil {
				return err
			}
		}

		res, err := tx.NewUpdate().
			Model((*models.MarketItem)(nil)).
			Set("status = ?", models.ItemStatusSold).
			Set("buyer_id = ?", buyerID).
			Set("updated_at = ?", time.Now()).
			Where("id = ? AND status = ?", itemID, models.ItemStatusOnSale).
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

		item.Status = models.ItemStatusSold
		item.BuyerID = buyerID
		bought = item
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("buy failed: %w", err)
	}

	slog.Info("Item sold",
		slog.String("type", "market"),
		slog.Int64("item_id", bought.ID),
		slog.String("buyer_id", buyerID),
		slog.String("seller_id", bought.SellerID),
		slog.Int64("price", bought.Price))

	if m.impulses != nil {
		m.impulses.ApplyPurchaseImpulses(ctx, bought.Tags)
	}
	if m.announcer != nil {
		m.announcer.AnnounceSale(bought, buyerID)
	}

	return bought, nil
}

// Resell relists an owned item at a caller-chosen price.
func (m *Market) Resell(ctx context.Context, itemID int64, ownerID string, price int64) (*models.MarketItem, error) {
	if price < MinResalePrice {
		return nil, ErrMinPrice
	}

	var relisted *models.MarketItem

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

		if item.BuyerID != ownerID ||
			(item.Status != models.ItemStatusOwned && item.Status != models.ItemStatusSold) {
			return ErrNotOwner
		}

		res, err := tx.NewUpdate().
			Model((*models.MarketItem)(nil)).
			Set("seller_id = ?", ownerID).
			Set("buyer_id = ?", "").
			Set("status = ?", models.ItemStatusOnSale).
			Set("price = ?", price).
			Set("updated_at = ?", time.Now()).
			Where("id = ? AND buyer_id = ? AND status IN (?)",
				itemID, ownerID, bun.In([]string{models.ItemStatusOwned, models.ItemStatusSold})).
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

		item.SellerID = ownerID
		item.BuyerID = ""
		item.Status = models.ItemStatusOnSale
		item.Price = price
		relisted = item
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resell failed: %w", err)
	}

	slog.Info("Item relisted",
		slog.String("type", "market"),
		slog.Int64("item_id", relisted.ID),
		slog.String("seller_id", ownerID),
		slog.Int64("price", price))

	return relisted, nil
}
