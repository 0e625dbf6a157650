package pricing

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

// Oracle resolves a tag to its global post count. Implementations must
// return a large sentinel count on failure rather than an error that
// would block a valuation.
type Oracle interface {
	PostCount(ctx context.Context, tag string) (int64, error)
}

// Appraiser turns an inference result into a priced quote by combining
// the pure calculator with saturation, daily trend and rarity state.
type Appraiser struct {
	calc   *Calculator
	trends repositories.TrendRepository
	oracle Oracle
	pools  Pools

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAppraiser(calc *Calculator, trends repositories.TrendRepository, oracle Oracle, pools Pools) *Appraiser {
	return &Appraiser{
		calc:   calc,
		trends: trends,
		oracle: oracle,
		pools:  pools,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *Appraiser) Calculator() *Calculator {
	return a.calc
}

// Appraise prices one submission. Oracle failures degrade to a neutral
// rarity for the affected tag; the quote itself always succeeds once the
// database state is readable.
func (a *Appraiser) Appraise(ctx context.Context, score float64, tags, characters []string) (Quote, error) {
	saturation, err := a.trends.GetSaturation(ctx, tags)
	if err != nil {
		return Quote{}, err
	}

	trend, err := a.EnsureDailyTrend(ctx)
	if err != nil {
		return Quote{}, err
	}

	counts := a.rarityCounts(ctx, tags, characters)

	quote := a.calc.Quote(Input{
		Score:        score,
		Tags:         tags,
		Characters:   characters,
		Saturation:   saturation,
		RarityCounts: counts,
		Trend:        trend,
	})

	slog.Info("Submission appraised",
		slog.String("type", "market"),
		slog.Float64("score", quote.Score),
		slog.String("grade", quote.Grade),
		slog.Int64("final_price", quote.FinalPrice),
		slog.Float64("tag_multiplier", quote.TagMultiplier),
		slog.Float64("rarity_multiplier", quote.RarityMultiplier),
		slog.Int("trend_matches", quote.TrendMatches))

	return quote, nil
}

func (a *Appraiser) rarityCounts(ctx context.Context, tags, characters []string) map[string]int64 {
	eligible := a.calc.EligibleRarityTags(tags, characters)
	if len(eligible) == 0 {
		return nil
	}

	var mu sync.Mutex
	counts := make(map[string]int64, len(eligible))

	g, gctx := errgroup.WithContext(ctx)
	for _, tag := range eligible {
		g.Go(func() error {
			count, err := a.oracle.PostCount(gctx, tag)
			if err != nil {
				slog.Warn("Rarity lookup failed, treating tag as common",
					slog.String("tag", tag),
					slog.Any("error", err))
				return nil
			}
			mu.Lock()
			counts[tag] = count
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return counts
}

// EnsureDailyTrend returns today's trend row, sampling and persisting one
// if this is the first valuation of the day.
func (a *Appraiser) EnsureDailyTrend(ctx context.Context) (*models.DailyTrend, error) {
	dateKey := time.Now().Format("2006-01-02")

	trend, err := a.trends.GetDailyTrend(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	if trend != nil {
		return trend, nil
	}

	a.mu.Lock()
	sampled := a.pools.Sample(a.rnd, dateKey)
	a.mu.Unlock()

	if err := a.trends.InsertDailyTrend(ctx, sampled); err != nil {
		return nil, err
	}

	// Re-read so concurrent creators all see the winning row
	trend, err = a.trends.GetDailyTrend(ctx, dateKey)
	if err != nil {
		return nil, err
	}

	slog.Info("Daily trend selected",
		slog.String("type", "market"),
		slog.String("date", dateKey),
		slog.String("pose", trend.Pose),
		slog.String("costume", trend.Costume),
		slog.String("body", trend.Body))

	return trend, nil
}

// RunDailyMaintenance selects the day's trend and decays all saturation
// counters. Called by the daily scheduler.
func (a *Appraiser) RunDailyMaintenance(ctx context.Context) error {
	if _, err := a.EnsureDailyTrend(ctx); err != nil {
		return err
	}

	decayed := 0
	err := a.trends.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var trends []*models.TagTrend
		if err := tx.NewSelect().Model(&trends).Where("saturation > 0").Scan(ctx); err != nil {
			return err
		}

		for _, t := range trends {
			next := DecaySaturation(t.Saturation)
			if next == t.Saturation {
				continue
			}
			_, err := tx.NewUpdate().
				Model((*models.TagTrend)(nil)).
				Set("saturation = ?", next).
				Set("updated_at = ?", time.Now()).
				Where("tag_name = ?", t.TagName).
				Exec(ctx)
			if err != nil {
				return err
			}
			decayed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Saturation decay applied",
		slog.String("type", "market"),
		slog.Int("tags_decayed", decayed))
	return nil
}
