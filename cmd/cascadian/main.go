// Cascadian - Prediction-market intelligence core
//
// Runs the copy-trade engine over a stream of source-wallet trade events,
// the price monitor over the resulting paper positions, and serves the
// leaderboard refresh and read APIs.
//
// Architecture: Ingress → Consensus → Execution → Positions → Monitor
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/cascadian/copytrade"
	"github.com/Scotty108/cascadian/execution"
	"github.com/Scotty108/cascadian/feeds"
	"github.com/Scotty108/cascadian/internal/api"
	"github.com/Scotty108/cascadian/internal/config"
	"github.com/Scotty108/cascadian/internal/database"
	"github.com/Scotty108/cascadian/internal/marketdata"
	"github.com/Scotty108/cascadian/internal/notifier"
	"github.com/Scotty108/cascadian/internal/olap"
	"github.com/Scotty108/cascadian/leaderboard"
	"github.com/Scotty108/cascadian/monitor"
	"github.com/Scotty108/cascadian/stores"
)

const version = "1.2.0"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Msg("🚀 Cascadian starting...")

	// Shared in-memory stores.
	logStore := stores.NewLogStore(stores.DefaultLogCapacity)
	alerts := stores.NewAlertStore(stores.DefaultAlertCapacity)
	positions := stores.NewPositionStore()

	// Price monitor over the position store.
	monitorCfg := monitor.Config{
		PollInterval:          cfg.Monitor.PollInterval(),
		DefaultPriceTargetPct: decimal.NewFromFloat(cfg.Monitor.DefaultPriceTargetPct),
		DefaultStopLossPct:    decimal.NewFromFloat(cfg.Monitor.DefaultStopLossPct),
		FollowWalletExits:     cfg.Monitor.FollowWalletExits,
	}
	prices := marketdata.NewClient(cfg.Monitor.MarketDataURL)
	mon := monitor.New(monitorCfg, positions, alerts, prices)

	// Copy-trade engine.
	engineCfg := copytrade.Config{
		Wallets:              cfg.CopyTrade.Wallets,
		ConsensusMode:        copytrade.ConsensusMode(cfg.CopyTrade.ConsensusMode),
		NRequired:            cfg.CopyTrade.NRequired,
		MinSourceNotionalUsd: cfg.CopyTrade.MinNotional(),
		MaxCopyPerTradeUsd:   cfg.CopyTrade.MaxPerTrade(),
		DryRun:               cfg.CopyTrade.DryRun,
		EnableLogging:        cfg.CopyTrade.EnableLogging,
		ConditionAllowList:   cfg.CopyTrade.ConditionAllowList,
		Monitor:              monitorCfg,
	}

	var engine *copytrade.Engine
	if len(engineCfg.Wallets) > 0 {
		engine, err = copytrade.New(engineCfg, execution.New(engineCfg.DryRun), logStore, alerts, positions, mon)
		if err != nil {
			log.Error().Err(err).Msg("Copy-trade engine disabled")
		}
	} else {
		log.Warn().Msg("No watched wallets configured, copy-trade engine disabled")
	}

	// Durable archive (optional).
	if engine != nil && cfg.Archive.Path != "" {
		archive, err := database.New(cfg.Archive.Path)
		if err != nil {
			log.Error().Err(err).Msg("Archive unavailable, continuing without persistence")
		} else {
			defer archive.Close()
			engine.SetArchive(archive)
		}
	}

	// Telegram notifier (optional).
	var tg *notifier.Telegram
	if cfg.Telegram.Token != "" {
		tg, err = notifier.New(cfg.Telegram.Token, cfg.Telegram.ChatID, mon)
		if err != nil {
			log.Error().Err(err).Msg("Telegram notifier unavailable")
		} else {
			alerts.SetSink(tg)
			tg.Start()
		}
	}

	// OLAP-backed leaderboard pipeline (optional).
	var refresher api.Refresher
	if dsn := cfg.OLAP.ResolveDSN(); dsn != "" {
		store, err := olap.Open(dsn)
		if err != nil {
			log.Error().Err(err).Msg("OLAP store unavailable, leaderboard refresh disabled")
		} else {
			defer store.Close()
			refresher = leaderboard.New(store, store)
		}
	} else {
		log.Warn().Msg("No OLAP DSN configured, leaderboard refresh disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Trade-event ingress.
	var stream *feeds.TradeStream
	if engine != nil && cfg.Feed.URL != "" {
		stream = feeds.NewTradeStream(cfg.Feed.URL)
		stream.Start()
		go engine.Run(ctx, stream.Events())
	}

	// HTTP surface.
	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(cfg.API.Port, api.Deps{
			LogStore:   logStore,
			Alerts:     alerts,
			Positions:  positions,
			Monitor:    mon,
			Engine:     engine,
			Refresher:  refresher,
			CronSecret: os.Getenv("CRON_SECRET"),
		})
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("API server stopped")
			}
		}()
	}

	log.Info().Msg("✅ All services started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down...")

	cancel()
	if stream != nil {
		stream.Stop()
	}
	mon.Stop()
	if tg != nil {
		tg.Stop()
	}
	if server != nil {
		server.Stop()
	}

	log.Info().Msg("👋 Goodbye!")
}
