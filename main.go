package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/commands"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/repositories"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/dedup"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/auction"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/ledger"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/market"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/pricing"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/economy/stocks"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/handlers"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/logger"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/notifier"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/services"
	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/valuation"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting Shadow Market",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := shadowmarket.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dbConfig := database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	}

	db, err := database.New(ctx, dbConfig)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	slog.Info("Initializing database schema...")
	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	defer db.Close()

	b := shadowmarket.New(*cfg, version, commit)
	b.DB = db

	// Repositories
	b.ItemRepository = repositories.NewItemRepository(db.BunDB())
	b.TrendRepository = repositories.NewTrendRepository(db.BunDB())
	b.StockRepository = repositories.NewStockRepository(db.BunDB())

	// Economy core
	b.Ledger = ledger.New(db.BunDB())
	b.StockMarket = stocks.New(b.StockRepository, b.Ledger)
	b.Market = market.New(b.ItemRepository, b.Ledger, b.StockMarket)
	b.AuctionManager = auction.NewManager(b.ItemRepository, b.Ledger)

	// Valuation pipeline
	pools := pricing.DefaultPools().Merge(cfg.Market.PosePool, cfg.Market.CostumePool, cfg.Market.BodyPool)
	b.Oracle = services.NewFrequencyOracle(cfg.Oracle.BaseURL, b.TrendRepository)
	b.Appraiser = pricing.NewAppraiser(
		pricing.NewCalculator(pricing.DefaultConfig()),
		b.TrendRepository,
		b.Oracle,
		pools,
	)
	b.ValuationQueue = valuation.NewQueue(
		valuation.NewHTTPClient(cfg.Inference.ScoreURL, cfg.Inference.TagURL, cfg.Inference.Token))
	defer b.ValuationQueue.Shutdown()

	b.Detector = dedup.NewDetector(services.NewFingerprintSource(b.ItemRepository))
	if err := b.Detector.Rebuild(ctx); err != nil {
		slog.Error("Failed to rebuild duplicate filter",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}

	b.Broker = services.NewBroker(
		b.ItemRepository, b.TrendRepository, b.Ledger,
		b.Detector, b.ValuationQueue, b.Appraiser, b.StockMarket)

	if cfg.Spaces.Key != "" {
		b.ContentStore = services.NewContentStore(
			cfg.Spaces.Key, cfg.Spaces.Secret,
			cfg.Spaces.Region, cfg.Spaces.Bucket, cfg.Spaces.ContentRoot)
		b.Broker.SetArchiver(b.ContentStore)
	}

	// Outbound announcements
	b.Notifier = notifier.New(cfg.Market.GalleryChannel, cfg.Market.TrendChannel)
	b.Market.SetAnnouncer(b.Notifier)
	b.AuctionManager.SetNotifier(b.Notifier)
	b.Broker.SetAnnouncer(b.Notifier)

	h := handler.New()

	// Account commands
	h.Command("/join", handlers.WrapWithLogging("join", commands.JoinHandler(b)))
	h.Command("/balance", handlers.WrapWithLogging("balance", commands.BalanceHandler(b)))
	h.Command("/pay", handlers.WrapWithLogging("pay", commands.PayHandler(b)))

	// Broker pipeline; submit defers and paces itself
	h.Command("/submit", commands.SubmitHandler(b))

	// Marketplace commands
	h.Command("/market", handlers.WrapWithLogging("market", commands.MarketHandler(b)))
	h.Command("/buy", handlers.WrapWithLogging("buy", commands.BuyHandler(b)))
	h.Command("/resell", handlers.WrapWithLogging("resell", commands.ResellHandler(b)))
	h.Command("/inventory", handlers.WrapWithLogging("inventory", commands.InventoryHandler(b)))
	h.Component("/buy/{id}", handlers.WrapComponentWithLogging("buy-button", commands.BuyButtonHandler(b)))

	// Auction commands
	h.Command("/auction", handlers.WrapWithLogging("auction", commands.AuctionHandler(b)))

	// Tag exchange commands
	h.Command("/stock", handlers.WrapWithLogging("stock", commands.StockHandler(b)))
	h.Command("/portfolio", handlers.WrapWithLogging("portfolio", commands.PortfolioHandler(b)))
	h.Command("/trends", handlers.WrapWithLogging("trends", commands.TrendsHandler(b)))

	if err = b.SetupBot(h, bot.NewListenerFunc(b.OnReady)); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("error_details", fmt.Sprintf("%+v", err)),
			slog.String("component", "bot_setup"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds),
		)
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err),
				slog.String("component", "command_sync"),
				slog.String("status", "failed"),
			)
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = b.Client.OpenGateway(ctx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("component", "gateway"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	// Background loops
	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()

	b.AuctionManager.StartSweeper(loopCtx)
	defer b.AuctionManager.Shutdown()

	go runVolatilityLoop(loopCtx, b.StockMarket)
	go runDailyMaintenanceLoop(loopCtx, b)

	slog.Info("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down bot...")
}

func runVolatilityLoop(ctx context.Context, sm *stocks.Market) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if err := sm.VolatilityPass(passCtx); err != nil {
				slog.Error("Volatility pass failed",
					slog.String("type", "market"),
					slog.String("error", err.Error()))
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// runDailyMaintenanceLoop fires at 06:00 local time: trend rotation,
// saturation decay, and the trend announcement.
func runDailyMaintenanceLoop(ctx context.Context, b *shadowmarket.Bot) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		slog.Info("Next daily maintenance scheduled",
			slog.String("type", "sys"),
			slog.Time("at", next))

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return
		}

		runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		if err := b.Appraiser.RunDailyMaintenance(runCtx); err != nil {
			slog.Error("Daily maintenance failed",
				slog.String("type", "sys"),
				slog.String("error", err.Error()))
			cancel()
			continue
		}

		if trend, err := b.Appraiser.EnsureDailyTrend(runCtx); err == nil {
			b.Notifier.AnnounceTrend(trend)
		}
		cancel()
	}
}
