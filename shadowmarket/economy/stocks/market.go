// Package stocks implements the tag equity market: every tag is a
// tradable symbol whose price reacts to marketplace activity.
package stocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/uptrace/bun"
)

const (
	priceFloor        = 1.0
	submissionImpulse = 0.995
	highScoreImpulse  = 1.02
	highScoreCutoff   = 9.0
	purchaseImpulse   = 1.01
	orderImpulseRate  = 0.0001
	orderImpulseCap   = 100
	volatilityMin     = 0.95
	volatilityMax     = 1.05
)

var (
	ErrInvalidShares      = errors.New("share amount must be positive")
	ErrInsufficientShares = errors.New("not enough shares held")
)

// Trade summarizes one executed buy or sell order.
type Trade struct {
	Tag           string
	Shares        int64
	PricePerShare float64
	Total         int64
	Profit        int64 // sell orders only
	NewPrice      float64
	NewAmount     int64
}

type Market struct {
	stocks repositories.StockRepository
	ledger *ledger.Ledger

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(stocks repositories.StockRepository, l *ledger.Ledger) *Market {
	return &Market{
		stocks: stocks,
		ledger: l,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Price returns the current quote, listing the symbol at the initial
// price if it has never traded.
func (m *Market) Price(ctx context.Context, tag string) (float64, error) {
	stock, err := m.stocks.Ensure(ctx, m.stocks.DB(), tag)
	if err != nil {
		return 0, err
	}
	return stock.CurrentPrice, nil
}

func (m *Market) All(ctx context.Context) ([]*models.TagStock, error) {
	return m.stocks.All(ctx)
}

func (m *Market) Holdings(ctx context.Context, userID string) ([]*models.Holding, error) {
	return m.stocks.HoldingsFor(ctx, userID)
}

// ApplyImpulse nudges one symbol's price by a multiplier, respecting the
// floor. The symbol is created first if needed so impulses from fresh
// submissions are never lost.
func (m *Market) ApplyImpulse(ctx context.Context, tag string, mult float64) error {
	return m.stocks.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		stock, err := m.stocks.Ensure(ctx, tx, tag)
		if err != nil {
			return err
		}
		next := math.Max(priceFloor, stock.CurrentPrice*mult)
		return m.stocks.SetPrice(ctx, tx, tag, next, 0)
	})
}

// ApplySubmissionImpulses dilutes every tag on an accepted submission.
// Exceptional scores counteract the dilution with a quality bump.
func (m *Market) ApplySubmissionImpulses(ctx context.Context, tags []string, score float64) {
	mult := submissionImpulse
	if score >= highScoreCutoff {
		mult *= highScoreImpulse
	}
	for _, tag := range tags {
		if err := m.ApplyImpulse(ctx, tag, mult); err != nil {
			slog.Warn("Submission impulse failed",
				slog.String("tag", tag),
				slog.Any("error", err))
		}
	}
}

// ApplyPurchaseImpulses rewards the tags of a sold item with demand.
func (m *Market) ApplyPurchaseImpulses(ctx context.Context, tags []string) {
	for _, tag := range tags {
		if err := m.ApplyImpulse(ctx, tag, purchaseImpulse); err != nil {
			slog.Warn("Purchase impulse failed",
				slog.String("tag", tag),
				slog.Any("error", err))
		}
	}
}

func orderImpulse(shares int64) float64 {
	capped := shares
	if capped > orderImpulseCap {
		capped = orderImpulseCap
	}
	return orderImpulseRate * float64(capped)
}

// Buy executes a market buy: funds leave the ledger, the position's
// average cost is reweighted, and the order itself pushes the price up.
func (m *Market) Buy(ctx context.Context, userID, guildID, tag string, shares int64) (*Trade, error) {
	if shares <= 0 {
		return nil, ErrInvalidShares
	}

	var trade *Trade
	err := m.stocks.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		stock, err := m.stocks.Ensure(ctx, tx, tag)
		if err != nil {
			return err
		}

		price := stock.CurrentPrice
		cost := int64(math.Floor(price * float64(shares)))

		if err := m.ledger.WithdrawTx(ctx, tx, userID, guildID, cost); err != nil {
			return err
		}

		holding, err := m.stocks.GetHolding(ctx, tx, userID, tag)
		if err != nil {
			return err
		}
		if holding == nil {
			holding = &models.Holding{UserID: userID, TagName: tag}
		}

		oldValue := holding.AverageCost * float64(holding.Amount)
		holding.Amount += shares
		holding.AverageCost = (oldValue + price*float64(shares)) / float64(holding.Amount)
		if err := m.stocks.UpsertHolding(ctx, tx, holding); err != nil {
			return err
		}

		newPrice := math.Max(priceFloor, price*(1+orderImpulse(shares)))
		if err := m.stocks.SetPrice(ctx, tx, tag, newPrice, shares); err != nil {
			return err
		}

		trade = &Trade{
			Tag:           tag,
			Shares:        shares,
			PricePerShare: price,
			Total:         cost,
			NewPrice:      newPrice,
			NewAmount:     holding.Amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Stock order executed",
		slog.String("type", "market"),
		slog.String("side", "buy"),
		slog.String("tag", tag),
		slog.Int64("shares", shares),
		slog.Int64("cost", trade.Total))
	return trade, nil
}

// Sell executes a market sell. The position is deleted at zero shares so
// average cost starts fresh on the next entry.
func (m *Market) Sell(ctx context.Context, userID, guildID, tag string, shares int64) (*Trade, error) {
	if shares <= 0 {
		return nil, ErrInvalidShares
	}

	var trade *Trade
	err := m.stocks.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		holding, err := m.stocks.GetHolding(ctx, tx, userID, tag)
		if err != nil {
			return err
		}
		if holding == nil || holding.Amount < shares {
			return ErrInsufficientShares
		}

		stock, err := m.stocks.Ensure(ctx, tx, tag)
		if err != nil {
			return err
		}

		price := stock.CurrentPrice
		payout := int64(math.Floor(price * float64(shares)))
		costBasis := int64(math.Floor(holding.AverageCost * float64(shares)))

		if err := m.ledger.DepositTx(ctx, tx, userID, guildID, payout); err != nil {
			return err
		}

		holding.Amount -= shares
		if holding.Amount == 0 {
			if err := m.stocks.DeleteHolding(ctx, tx, userID, tag); err != nil {
				return err
			}
		} else {
			if err := m.stocks.UpsertHolding(ctx, tx, holding); err != nil {
				return err
			}
		}

		newPrice := math.Max(priceFloor, price*(1-orderImpulse(shares)))
		if err := m.stocks.SetPrice(ctx, tx, tag, newPrice, shares); err != nil {
			return err
		}

		trade = &Trade{
			Tag:           tag,
			Shares:        shares,
			PricePerShare: price,
			Total:         payout,
			Profit:        payout - costBasis,
			NewPrice:      newPrice,
			NewAmount:     holding.Amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Stock order executed",
		slog.String("type", "market"),
		slog.String("side", "sell"),
		slog.String("tag", tag),
		slog.Int64("shares", shares),
		slog.Int64("payout", trade.Total),
		slog.Int64("profit", trade.Profit))
	return trade, nil
}

// VolatilityPass applies one round of random drift to every symbol.
// Runs hourly from the scheduler.
func (m *Market) VolatilityPass(ctx context.Context) error {
	stocks, err := m.stocks.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stocks: %w", err)
	}

	for _, stock := range stocks {
		m.mu.Lock()
		mult := volatilityMin + m.rnd.Float64()*(volatilityMax-volatilityMin)
		m.mu.Unlock()

		next := math.Max(priceFloor, stock.CurrentPrice*mult)
		if err := m.stocks.SetPrice(ctx, m.stocks.DB(), stock.TagName, next, 0); err != nil {
			return err
		}
	}

	slog.Info("Volatility pass completed",
		slog.String("type", "market"),
		slog.Int("symbols", len(stocks)))
	return nil
}
