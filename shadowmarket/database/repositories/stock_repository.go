package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/uptrace/bun"
)

type StockRepository interface {
	DB() *bun.DB
	Get(ctx context.Context, idb bun.IDB, tag string) (*models.TagStock, error)
	// Ensure returns the stock row, creating it at the listing price when
	// the tag has never traded.
	Ensure(ctx context.Context, idb bun.IDB, tag string) (*models.TagStock, error)
	SetPrice(ctx context.Context, idb bun.IDB, tag string, price float64, volumeDelta int64) error
	All(ctx context.Context) ([]*models.TagStock, error)
	GetHolding(ctx context.Context, idb bun.IDB, userID, tag string) (*models.Holding, error)
	UpsertHolding(ctx context.Context, idb bun.IDB, holding *models.Holding) error
	DeleteHolding(ctx context.Context, idb bun.IDB, userID, tag string) error
	HoldingsFor(ctx context.Context, userID string) ([]*models.Holding, error)
}

const initialStockPrice = 100.0

type stockRepository struct {
	db *bun.DB
}

func NewStockRepository(db *bun.DB) StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) DB() *bun.DB {
	return r.db
}

func (r *stockRepository) Get(ctx context.Context, idb bun.IDB, tag string) (*models.TagStock, error) {
	stock := new(models.TagStock)
	err := idb.NewSelect().
		Model(stock).
		Where("ts.tag_name = ?", tag).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return stock, nil
}

func (r *stockRepository) Ensure(ctx context.Context, idb bun.IDB, tag string) (*models.TagStock, error) {
	stock, err := r.Get(ctx, idb, tag)
	if err != nil {
		return nil, err
	}
	if stock != nil {
		return stock, nil
	}

	stock = &models.TagStock{
		TagName:      tag,
		CurrentPrice: initialStockPrice,
		UpdatedAt:    time.Now(),
	}
	_, err = idb.NewInsert().
		Model(stock).
		On("CONFLICT (tag_name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, idb, tag)
}

func (r *stockRepository) SetPrice(ctx context.Context, idb bun.IDB, tag string, price float64, volumeDelta int64) error {
	_, err := idb.NewUpdate().
		Model((*models.TagStock)(nil)).
		Set("current_price = ?", price).
		Set("total_volume = total_volume + ?", volumeDelta).
		Set("updated_at = ?", time.Now()).
		Where("tag_name = ?", tag).
		Exec(ctx)
	return err
}

func (r *stockRepository) All(ctx context.Context) ([]*models.TagStock, error) {
	var stocks []*models.TagStock
	err := r.db.NewSelect().
		Model(&stocks).
		Order("total_volume DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return stocks, nil
}

func (r *stockRepository) GetHolding(ctx context.Context, idb bun.IDB, userID, tag string) (*models.Holding, error) {
	holding := new(models.Holding)
	err := idb.NewSelect().
		Model(holding).
		Where("h.user_id = ? AND h.tag_name = ?", userID, tag).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return holding, nil
}

func (r *stockRepository) UpsertHolding(ctx context.Context, idb bun.IDB, holding *models.Holding) error {
	holding.UpdatedAt = time.Now()
	_, err := idb.NewInsert().
		Model(holding).
		On("CONFLICT (user_id, tag_name) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Set("average_cost = EXCLUDED.average_cost").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *stockRepository) DeleteHolding(ctx context.Context, idb bun.IDB, userID, tag string) error {
	_, err := idb.NewDelete().
		Model((*models.Holding)(nil)).
		Where("user_id = ? AND tag_name = ?", userID, tag).
		Exec(ctx)
	return err
}

func (r *stockRepository) HoldingsFor(ctx context.Context, userID string) ([]*models.Holding, error) {
	var holdings []*models.Holding
	err := r.db.NewSelect().
		Model(&holdings).
		Where("h.user_id = ?", userID).
		Order("tag_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return holdings, nil
}
