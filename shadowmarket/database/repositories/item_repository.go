package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/uptrace/bun"
)

var ErrItemNotFound = errors.New("market item not found")

// Fingerprint is the duplicate-detection projection of a market item.
type Fingerprint struct {
	ID          int64  `bun:"id"`
	ContentURL  string `bun:"content_url"`
	ContentHash string `bun:"content_hash"`
}

type ItemRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, item *models.MarketItem) error
	CreateWithTx(ctx context.Context, tx bun.IDB, item *models.MarketItem) error
	GetByID(ctx context.Context, id int64) (*models.MarketItem, error)
	GetByStatus(ctx context.Context, status string, limit int) ([]*models.MarketItem, error)
	GetOwnedBy(ctx context.Context, userID string) ([]*models.MarketItem, error)
	GetExpiredAuctions(ctx context.Context, now time.Time) ([]*models.MarketItem, error)
	Fingerprints(ctx context.Context) ([]Fingerprint, error)
	SetPresentationRef(ctx context.Context, id int64, channelID, messageID string) error
}

type itemRepository struct {
	db *bun.DB
}

func NewItemRepository(db *bun.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) DB() *bun.DB {
	return r.db
}

func (r *itemRepository) Create(ctx context.Context, item *models.MarketItem) error {
	return r.CreateWithTx(ctx, r.db, item)
}

func (r *itemRepository) CreateWithTx(ctx context.Context, tx bun.IDB, item *models.MarketItem) error {
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	_, err := tx.NewInsert().Model(item).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert market item: %w", err)
	}
	return nil
}

func (r *itemRepository) GetByID(ctx context.Context, id int64) (*models.MarketItem, error) {
	item := new(models.MarketItem)
	err := r.db.NewSelect().
		Model(item).
		Where("mi.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (r *itemRepository) GetByStatus(ctx context.Context, status string, limit int) ([]*models.MarketItem, error) {
	var items []*models.MarketItem
	q := r.db.NewSelect().
		Model(&items).
		Where("mi.status = ?", status).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *itemRepository) GetOwnedBy(ctx context.Context, userID string) ([]*models.MarketItem, error) {
	var items []*models.MarketItem
	err := r.db.NewSelect().
		Model(&items).
		Where("mi.buyer_id = ?", userID).
		Where("mi.status IN (?)", bun.In([]string{models.ItemStatusOwned, models.ItemStatusSold})).
		Order("id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *itemRepository) GetExpiredAuctions(ctx context.Context, now time.Time) ([]*models.MarketItem, error) {
	var items []*models.MarketItem
	err := r.db.NewSelect().
		Model(&items).
		Where("mi.status = ?", models.ItemStatusOnAuction).
		Where("mi.auction_end_time <= ?", now).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *itemRepository) Fingerprints(ctx context.Context) ([]Fingerprint, error) {
	var prints []Fingerprint
	err := r.db.NewSelect().
		Model((*models.MarketItem)(nil)).
		Column("id", "content_url", "content_hash").
		Scan(ctx, &prints)
	if err != nil {
		return nil, err
	}
	return prints, nil
}

func (r *itemRepository) SetPresentationRef(ctx context.Context, id int64, channelID, messageID string) error {
	_, err := r.db.NewUpdate().
		Model((*models.MarketItem)(nil)).
		Set("channel_id = ?", channelID).
		Set("message_id = ?", messageID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
