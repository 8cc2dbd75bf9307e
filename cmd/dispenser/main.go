package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icefez/dispenser/internal/config"
	"github.com/icefez/dispenser/internal/db"
	"github.com/icefez/dispenser/internal/discord"
	"github.com/icefez/dispenser/internal/dispenser/service"
	sqlitestore "github.com/icefez/dispenser/internal/dispenser/store/sqlite"
	"github.com/icefez/dispenser/internal/httpapi"
)

func main() {
	logger := log.New(os.Stdout, "dispenser ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.BotToken == "" {
		logger.Fatal("DISPENSER_BOT_TOKEN is required")
	}
	if len(cfg.Owners) == 0 {
		logger.Fatal("DISPENSER_OWNERS is required (comma-separated user ids)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, conn); err != nil {
			logger.Printf("seed dev: %v", err)
		}
	}

	writer := db.NewWriter(conn)
	defer writer.Close()

	// Stores
	ledgerStore := sqlitestore.NewLedgerStore(conn, writer)
	grantStore := sqlitestore.NewGrantStore(conn, writer)
	historyStore := sqlitestore.NewHistoryStore(conn, writer)

	// Services
	access := service.NewAccessService(cfg.Owners, grantStore, nil)
	notifier := discord.NewOwnerNotifier(cfg.Owners, logger)
	engine := service.NewEngine(ledgerStore, historyStore, service.EngineConfig{
		CooldownWindow:    time.Duration(cfg.CooldownSeconds) * time.Second,
		LowStockThreshold: cfg.LowStockThreshold,
	}, notifier, logger)

	janitor := service.NewJanitor(ledgerStore, service.JanitorConfig{
		RetentionDays: cfg.RetentionDays,
		IntervalHours: cfg.JanitorIntervalHrs,
	}, logger)
	janitor.Start(ctx)
	defer janitor.Stop()

	// Discord
	bot, err := discord.New(discord.Dependencies{
		Logger:   logger,
		Token:    cfg.BotToken,
		GuildID:  cfg.GuildID,
		Engine:   engine,
		Access:   access,
		Notifier: notifier,
	})
	if err != nil {
		logger.Fatalf("discord: %v", err)
	}
	if err := bot.Open(); err != nil {
		logger.Fatalf("discord open: %v", err)
	}
	defer bot.Close()

	// Ops HTTP API
	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(httpapi.Dependencies{
			Logger: logger,
			Addr:   cfg.HTTPAddr,
			Engine: engine,
			Access: access,
		})

		go func() {
			logger.Printf("ops api listening on %s", cfg.HTTPAddr)
			if err := srv.Start(); err != nil {
				logger.Printf("ops api error: %v", err)
				stop()
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Printf("shutting down")
}
