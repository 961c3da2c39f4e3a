package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"empirechat/internal/api"
	"empirechat/internal/bot"
	"empirechat/internal/chat"
	"empirechat/internal/config"
	"empirechat/internal/db"
	"empirechat/internal/economy"
	"empirechat/internal/files"
	"empirechat/internal/ledger"
	"empirechat/internal/market"
	"empirechat/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var store ledger.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := ledger.NewPostgres(pool)
		if err := pg.InitSchema(ctx); err != nil {
			logger.Error("schema init failed", "err", err)
			os.Exit(1)
		}
		store = pg
		logger.Info("ledger backed by postgres")
	} else {
		store = ledger.NewMemory()
		logger.Warn("DATABASE_URL not set, ledger lives in memory only")
	}

	fileStore, err := files.NewStore(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		logger.Error("upload store init failed", "err", err)
		os.Exit(1)
	}

	mkt := market.New(map[string]int64{"BTC": 50_000_000})
	collector := metrics.New()
	hub := chat.NewHub(store, cfg.ReplayLast, logger, collector)
	farm := economy.NewRegistry(ctx, store, hub, cfg.FarmEvery, cfg.FarmReward, logger, collector)
	ranks := economy.NewRankTable(cfg.RankNotable, cfg.RankElite, cfg.RankTranscendent)

	var completer economy.Completer
	if cfg.GeminiAPIKey != "" {
		completer = bot.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	} else {
		logger.Warn("GEMINI_API_KEY not set, !ask is disabled")
	}

	dispatcher := economy.NewDispatcher(economy.Deps{
		Store:   store,
		Market:  mkt,
		Farm:    farm,
		Ranks:   ranks,
		Out:     hub,
		Bot:     completer,
		Archive: fileStore,
		Metrics: collector,
		Logger:  logger,
	}, economy.Rules{
		RewardBase:    cfg.RewardBase,
		RewardPerChar: cfg.RewardPerChar,
		LargeMsgChars: cfg.LargeMsgChars,
		TopN:          cfg.RankingTop,
	})
	hub.SetHandler(dispatcher)

	scheduler := economy.NewScheduler(store, mkt, hub, cfg.TickEvery, cfg.InterestRate, cfg.MarketLow, cfg.MarketHigh, logger, collector)
	go scheduler.Run(ctx)

	server := api.New(logger, hub, store, mkt, ranks, fileStore, collector, cfg.RankingTop)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("empirechat listening", "addr", cfg.Addr, "tick_every", cfg.TickEvery.String())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("empirechat shut down")
}
