package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/dbtest"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/dedup"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/pricing"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/stocks"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/valuation"
)

const (
	testGuild = "guild-1"
	houseID   = "house-bot"
)

type stubModel struct {
	score   float64
	general []valuation.Prediction
	chars   []valuation.Prediction
}

func (m *stubModel) Score(_ context.Context, _ []byte) (float64, error) {
	return m.score, nil
}

func (m *stubModel) Tags(_ context.Context, _ []byte) ([]valuation.Prediction, []valuation.Prediction, error) {
	return m.general, m.chars, nil
}

type stubOracle struct {
	count int64
}

func (o stubOracle) PostCount(_ context.Context, _ string) (int64, error) {
	return o.count, nil
}

type brokerFixture struct {
	broker *Broker
	ledger *ledger.Ledger
	items  repositories.ItemRepository
	trends repositories.TrendRepository
	queue  *valuation.Queue
}

func newBrokerFixture(t *testing.T, model valuation.Client) *brokerFixture {
	db := dbtest.New(t)
	items := repositories.NewItemRepository(db)
	trends := repositories.NewTrendRepository(db)
	l := ledger.New(db)
	sm := stocks.New(repositories.NewStockRepository(db), l)

	// Pools that never collide with the stub model's tags, so trend
	// bonuses stay out of the arithmetic.
	pools := pricing.Pools{
		Pose:    []string{"test_pose"},
		Costume: []string{"test_costume"},
		Body:    []string{"test_body"},
	}
	appraiser := pricing.NewAppraiser(
		pricing.NewCalculator(pricing.DefaultConfig()), trends, stubOracle{count: UnknownPostCount}, pools)

	detector := dedup.NewDetector(NewFingerprintSource(items))
	queue := valuation.NewQueue(model)
	t.Cleanup(queue.Shutdown)

	b := NewBroker(items, trends, l, detector, queue, appraiser, sm)
	b.SetHouseID(houseID)

	return &brokerFixture{broker: b, ledger: l, items: items, trends: trends, queue: queue}
}

func servePNG(t *testing.T) *httptest.Server {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), uint8((x + y) * 2), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJoinPaysBonusOnce(t *testing.T) {
	ctx := context.Background()
	f := newBrokerFixture(t, &stubModel{score: 5.0})

	created, err := f.broker.Join(ctx, "alice", testGuild)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.broker.Join(ctx, "alice", testGuild)
	require.NoError(t, err)
	assert.False(t, created)

	balance, err := f.ledger.GetBalance(ctx, "alice", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(JoinBonus), balance)
}

func TestSubmitHappyPath(t *testing.T) {
	ctx := context.Background()
	model := &stubModel{
		score: 5.0,
		general: []valuation.Prediction{
			{Label: "cat_ears", Confidence: 0.9},
			{Label: "solo", Confidence: 0.8},
		},
	}
	f := newBrokerFixture(t, model)
	srv := servePNG(t)

	sub, err := f.broker.Submit(ctx, "alice", testGuild, srv.URL+"/a.png")
	require.NoError(t, err)

	// Clean first submission: no saturation, no rarity, no bonuses
	assert.Equal(t, int64(25000), sub.Quote.FinalPrice)
	assert.Equal(t, "B", sub.Quote.Grade)

	item, err := f.items.GetByID(ctx, sub.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusOnSale, item.Status)
	assert.Equal(t, houseID, item.SellerID)
	assert.Equal(t, testGuild, item.GuildID)
	assert.Equal(t, int64(37500), item.Price)
	assert.Equal(t, []string{"cat_ears", "solo"}, item.Tags)

	_, ok := dedup.ParseHash(item.ContentHash)
	assert.True(t, ok)

	balance, err := f.ledger.GetBalance(ctx, "alice", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), balance)

	sat, err := f.trends.GetSaturation(ctx, []string{"cat_ears", "solo"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), sat["cat_ears"])
	assert.Equal(t, int64(1), sat["solo"])
}

func TestSubmitDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	model := &stubModel{score: 5.0}
	f := newBrokerFixture(t, model)
	srv := servePNG(t)

	_, err := f.broker.Submit(ctx, "alice", testGuild, srv.URL+"/a.png")
	require.NoError(t, err)

	before, err := f.ledger.GetBalance(ctx, "alice", testGuild)
	require.NoError(t, err)

	_, err = f.broker.Submit(ctx, "bob", testGuild, srv.URL+"/a.png")
	assert.ErrorIs(t, err, dedup.ErrDuplicate)

	after, err := f.ledger.GetBalance(ctx, "alice", testGuild)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	bobBal, err := f.ledger.GetBalance(ctx, "bob", testGuild)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bobBal)
}

func TestSubmitNotImage(t *testing.T) {
	ctx := context.Background()
	f := newBrokerFixture(t, &stubModel{score: 5.0})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("definitely not an image"))
	}))
	t.Cleanup(srv.Close)

	_, err := f.broker.Submit(ctx, "alice", testGuild, srv.URL+"/a.txt")
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestSubmitFetchFailure(t *testing.T) {
	ctx := context.Background()
	f := newBrokerFixture(t, &stubModel{score: 5.0})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := f.broker.Submit(ctx, "alice", testGuild, srv.URL+"/gone.png")
	assert.ErrorIs(t, err, ErrFetchFailed)
}
