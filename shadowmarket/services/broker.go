package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/uptrace/bun"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/dedup"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/pricing"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/valuation"
)

const (
	// JoinBonus seeds a first-time account so new members can trade
	// immediately.
	JoinBonus = 3000

	maxDownloadBytes = 10 << 20

	downloadTimeout = 30 * time.Second
)

var (
	ErrNotImage      = errors.New("content is not a decodable image")
	ErrContentTooBig = errors.New("content exceeds the size limit")
	ErrFetchFailed   = errors.New("failed to fetch content")
)

// FingerprintSource feeds the duplicate detector from market_items.
type FingerprintSource struct {
	items repositories.ItemRepository
}

func NewFingerprintSource(items repositories.ItemRepository) *FingerprintSource {
	return &FingerprintSource{items: items}
}

func (s *FingerprintSource) AllFingerprints(ctx context.Context) ([]dedup.Fingerprint, error) {
	rows, err := s.items.Fingerprints(ctx)
	if err != nil {
		return nil, err
	}
	prints := make([]dedup.Fingerprint, 0, len(rows))
	for _, r := range rows {
		hash, ok := dedup.ParseHash(r.ContentHash)
		prints = append(prints, dedup.Fingerprint{
			ItemID:  r.ID,
			URL:     r.ContentURL,
			Hash:    hash,
			HasHash: ok,
		})
	}
	return prints, nil
}

// ImpulseSink receives demand signals after a submission clears.
type ImpulseSink interface {
	ApplySubmissionImpulses(ctx context.Context, tags []string, score float64)
}

// Archiver stores accepted content somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, hashHex string, contentType string, data []byte) (string, error)
}

// ListingAnnouncer presents a fresh listing to the outside world.
type ListingAnnouncer interface {
	AnnounceListing(item *models.MarketItem, quote pricing.Quote)
}

// Submission is the result of one cleared pipeline run.
type Submission struct {
	Item  *models.MarketItem
	Quote pricing.Quote
}

// Broker runs the submission pipeline: fetch, fingerprint, duplicate
// check, valuation, then a single transaction that lists the item,
// credits the submitter and bumps tag saturation.
type Broker struct {
	items     repositories.ItemRepository
	trends    repositories.TrendRepository
	ledger    *ledger.Ledger
	detector  *dedup.Detector
	queue     *valuation.Queue
	appraiser *pricing.Appraiser
	impulses  ImpulseSink
	client    *http.Client

	mu        sync.RWMutex
	houseID   string
	store     Archiver
	announcer ListingAnnouncer
}

func NewBroker(
	items repositories.ItemRepository,
	trends repositories.TrendRepository,
	l *ledger.Ledger,
	detector *dedup.Detector,
	queue *valuation.Queue,
	appraiser *pricing.Appraiser,
	impulses ImpulseSink,
) *Broker {
	return &Broker{
		items:     items,
		trends:    trends,
		ledger:    l,
		detector:  detector,
		queue:     queue,
		appraiser: appraiser,
		impulses:  impulses,
		client:    &http.Client{Timeout: downloadTimeout},
	}
}

// SetHouseID records the account freshly brokered items are listed
// under. Known only after login.
func (b *Broker) SetHouseID(id string) {
	b.mu.Lock()
	b.houseID = id
	b.mu.Unlock()
}

func (b *Broker) SetArchiver(a Archiver) {
	b.mu.Lock()
	b.store = a
	b.mu.Unlock()
}

func (b *Broker) SetAnnouncer(a ListingAnnouncer) {
	b.mu.Lock()
	b.announcer = a
	b.mu.Unlock()
}

// Join opens an account with the joining bonus. Returns false when the
// account already existed; the bonus is never paid twice.
func (b *Broker) Join(ctx context.Context, userID, guildID string) (bool, error) {
	created, err := b.ledger.EnsureAccount(ctx, userID, guildID, JoinBonus)
	if err != nil {
		return false, err
	}
	if created {
		slog.Info("Account opened",
			slog.String("type", "market"),
			slog.String("user_id", userID),
			slog.String("guild_id", guildID),
			slog.Int("bonus", JoinBonus))
	}
	return created, nil
}

// Submit runs the full pipeline for one piece of content. The returned
// error is one of the sentinel errors above, a dedup.DuplicateError, or
// a storage failure.
func (b *Broker) Submit(ctx context.Context, userID, guildID, sourceURL string) (*Submission, error) {
	data, contentType, err := b.fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	hash, err := dedup.HashImage(img)
	if err != nil {
		return nil, err
	}

	if err := b.detector.Check(ctx, sourceURL, hash); err != nil {
		return nil, err
	}

	tags, characters := b.queue.TagImage(ctx, data)
	score := b.queue.ScoreImage(ctx, data)

	quote, err := b.appraiser.Appraise(ctx, score, tags, characters)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	houseID := b.houseID
	b.mu.RUnlock()

	item := &models.MarketItem{
		SellerID:    houseID,
		GuildID:     guildID,
		ContentURL:  sourceURL,
		ContentHash: dedup.FormatHash(hash),
		Score:       quote.Score,
		Price:       b.appraiser.Calculator().ListingPrice(quote.FinalPrice),
		Status:      models.ItemStatusOnSale,
		Grade:       quote.Grade,
		Tags:        tags,
		Characters:  characters,
	}

	err = b.items.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := b.items.CreateWithTx(ctx, tx, item); err != nil {
			return err
		}
		if err := b.ledger.DepositTx(ctx, tx, userID, guildID, quote.FinalPrice); err != nil {
			return err
		}
		return b.trends.IncrementSaturation(ctx, tx, tags)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}

	b.detector.Add(sourceURL, hash)
	b.impulses.ApplySubmissionImpulses(ctx, tags, quote.Score)
	b.archive(ctx, item, contentType, data)

	slog.Info("Submission brokered",
		slog.String("type", "market"),
		slog.Int64("item_id", item.ID),
		slog.String("user_id", userID),
		slog.String("grade", quote.Grade),
		slog.Int64("payout", quote.FinalPrice),
		slog.Int64("listing_price", item.Price))

	b.mu.RLock()
	announcer := b.announcer
	b.mu.RUnlock()
	if announcer != nil {
		announcer.AnnounceListing(item, quote)
	}

	return &Submission{Item: item, Quote: quote}, nil
}

func (b *Broker) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(data) > maxDownloadBytes {
		return nil, "", ErrContentTooBig
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// archive is best effort; a dead bucket never fails a submission.
func (b *Broker) archive(ctx context.Context, item *models.MarketItem, contentType string, data []byte) {
	b.mu.RLock()
	store := b.store
	b.mu.RUnlock()
	if store == nil {
		return
	}

	archivedURL, err := store.Archive(ctx, item.ContentHash, contentType, data)
	if err != nil {
		slog.Warn("Failed to archive content",
			slog.String("type", "sys"),
			slog.Int64("item_id", item.ID),
			slog.Any("error", err))
		return
	}

	slog.Info("Content archived",
		slog.String("type", "sys"),
		slog.Int64("item_id", item.ID),
		slog.String("url", archivedURL))
}
