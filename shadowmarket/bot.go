package shadowmarket

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/dedup"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/auction"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/market"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/pricing"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/stocks"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/notifier"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/services"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/valuation"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
	}
}

type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string

	DB              *database.DB
	ItemRepository  repositories.ItemRepository
	TrendRepository repositories.TrendRepository
	StockRepository repositories.StockRepository

	Ledger         *ledger.Ledger
	Market         *market.Market
	AuctionManager *auction.Manager
	StockMarket    *stocks.Market
	Appraiser      *pricing.Appraiser
	Detector       *dedup.Detector
	Broker         *services.Broker
	ContentStore   *services.ContentStore
	Oracle         *services.FrequencyOracle
	ValuationQueue *valuation.Queue
	Notifier       *notifier.Notifier
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds, gateway.IntentGuildMessages, gateway.IntentMessageContent)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	return nil
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("Shadow Market is now open",
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	// The house account is the application itself; brokered items are
	// listed and sold under it.
	houseID := b.Client.ApplicationID().String()
	b.Market.SetHouseID(houseID)
	b.Broker.SetHouseID(houseID)
	b.Notifier.SetClient(b.Client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithListeningActivity("the rustle of contraband"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}
