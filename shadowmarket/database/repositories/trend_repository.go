package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/uptrace/bun"
)

type TrendRepository interface {
	DB() *bun.DB
	IncrementSaturation(ctx context.Context, tx bun.IDB, tags []string) error
	GetSaturation(ctx context.Context, tags []string) (map[string]int64, error)
	GetDailyTrend(ctx context.Context, dateKey string) (*models.DailyTrend, error)
	InsertDailyTrend(ctx context.Context, trend *models.DailyTrend) error
	GetFrequency(ctx context.Context, tag string) (*models.TagFrequency, error)
	SaveFrequency(ctx context.Context, freq *models.TagFrequency) error
}

type trendRepository struct {
	db *bun.DB
}

func NewTrendRepository(db *bun.DB) TrendRepository {
	return &trendRepository{db: db}
}

func (r *trendRepository) DB() *bun.DB {
	return r.db
}

func (r *trendRepository) IncrementSaturation(ctx context.Context, tx bun.IDB, tags []string) error {
	now := time.Now()
	for _, tag := range tags {
		trend := &models.TagTrend{
			TagName:    tag,
			Saturation: 1,
			UpdatedAt:  now,
		}
		_, err := tx.NewInsert().
			Model(trend).
			On("CONFLICT (tag_name) DO UPDATE").
			Set("saturation = tt.saturation + 1").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *trendRepository) GetSaturation(ctx context.Context, tags []string) (map[string]int64, error) {
	result := make(map[string]int64, len(tags))
	if len(tags) == 0 {
		return result, nil
	}

	var trends []*models.TagTrend
	err := r.db.NewSelect().
		Model(&trends).
		Where("tt.tag_name IN (?)", bun.In(tags)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range trends {
		result[t.TagName] = t.Saturation
	}
	return result, nil
}

func (r *trendRepository) GetDailyTrend(ctx context.Context, dateKey string) (*models.DailyTrend, error) {
	trend := new(models.DailyTrend)
	err := r.db.NewSelect().
		Model(trend).
		Where("dt.date_key = ?", dateKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return trend, nil
}

func (r *trendRepository) InsertDailyTrend(ctx context.Context, trend *models.DailyTrend) error {
	// Concurrent callers race to create the day's row; the first insert wins
	_, err := r.db.NewInsert().
		Model(trend).
		On("CONFLICT (date_key) DO NOTHING").
		Exec(ctx)
	return err
}

func (r *trendRepository) GetFrequency(ctx context.Context, tag string) (*models.TagFrequency, error) {
	freq := new(models.TagFrequency)
	err := r.db.NewSelect().
		Model(freq).
		Where("tf.tag_name = ?", tag).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return freq, nil
}

func (r *trendRepository) SaveFrequency(ctx context.Context, freq *models.TagFrequency) error {
	_, err := r.db.NewInsert().
		Model(freq).
		On("CONFLICT (tag_name) DO UPDATE").
		Set("post_count = EXCLUDED.post_count").
		Set("fetched_at = EXCLUDED.fetched_at").
		Exec(ctx)
	return err
}
