package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Ur1k/SFP-Strategy-Bot/internal/config"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/exchange"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/health"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/ledger"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/notify"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/signals"
	"github.com/Ur1k/SFP-Strategy-Bot/internal/trader"
	"github.com/Ur1k/SFP-Strategy-Bot/pkg/utils"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Logger needs the config for its file path, so bootstrap errors go to
		// a bare stderr logger.
		utils.NewLogger("sfp-bot", "").WithError(err).Fatal("Invalid configuration")
	}

	logger := utils.NewLogger("sfp-bot", cfg.LogFile)
	logger.WithFields(map[string]interface{}{
		"symbol":    cfg.Symbol,
		"timeframe": cfg.Timeframe,
		"leverage":  cfg.Leverage,
	}).Info("Starting SFP trading bot")

	client := exchange.NewClient(cfg.Exchange, cfg.MarginCoin, logger)
	notifier := notify.NewTelegram(cfg.Telegram, logger)

	book, err := ledger.New(cfg.LedgerFile, cfg.Symbol, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open trade ledger")
	}

	healthChecker := health.NewHealthChecker(logger)
	healthServer := healthChecker.StartServer(cfg.HealthPort)

	engine := trader.NewEngine(trader.Config{
		Symbol:            cfg.Symbol,
		Timeframe:         cfg.Timeframe,
		Leverage:          cfg.Leverage,
		CandleLimit:       cfg.CandleLimit,
		PollInterval:      cfg.PollInterval,
		EntryAllocation:   cfg.EntryAllocation,
		DailyReportHour:   cfg.DailyReportHourUTC,
		DailyReportMinute: cfg.DailyReportMinuteUTC,
	}, client, book, notifier, signals.NewEngine(signals.DefaultParams()), logger)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("Trading engine stopped with error")
		}
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigC

	logger.WithField("signal", sig.String()).Info("Shutting down")
	notifier.Send(ctx, "🛑 SFP bot shutting down. Open positions are NOT closed automatically.")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Health server shutdown failed")
	}

	// Give the loop a moment to finish the in-flight tick.
	time.Sleep(2 * time.Second)
	logger.Info("Shutdown complete")
}
