package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"vpsbot/internal/chat"
	"vpsbot/internal/config"
	"vpsbot/internal/db"
	"vpsbot/internal/ledger"
	"vpsbot/internal/logger"
	"vpsbot/internal/notify"
	"vpsbot/internal/payment"
	"vpsbot/internal/provision"
	"vpsbot/internal/qris"
	"vpsbot/internal/server"
	"vpsbot/internal/settlement"
)

// demoQRIS is a syntactically valid static payload used when simulation runs
// without merchant data.
const demoQRIS = "000201010211520454995303360" + "5802ID" + "5907VPS BOT" + "6007JAKARTA" + "63040000"

type stores struct {
	ledger    ledger.Repository
	payments  payment.Repository
	resources provision.Repository
	db        *sqlx.DB
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Storage == "memory" {
		logger.Warn("using in-memory storage, nothing survives a restart")
		return &stores{
			ledger:    ledger.NewMemoryRepository(),
			payments:  payment.NewMemoryRepository(),
			resources: provision.NewMemoryRepository(),
		}, nil
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		database.Close()
		return nil, err
	}
	logger.Info("Migrations completed")

	return &stores{
		ledger:    ledger.NewRepository(database),
		payments:  payment.NewRepository(database),
		resources: provision.NewRepository(database),
		db:        database,
	}, nil
}

func main() {
	logger.Init()
	logger.Info("Starting vpsbot")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	st, err := openStores(cfg)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	if st.db != nil {
		defer st.db.Close()
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	var transport notify.Transport = notify.LogTransport{}
	if cfg.ChatWebhookURL != "" {
		transport = notify.NewWebhookTransport(cfg.ChatWebhookURL, 10*time.Second)
	}
	queue := notify.New(rdb, transport)
	logger.Info("Notification queue initialized", "redis", cfg.RedisAddr)

	var (
		feed      settlement.Feed
		simulator *settlement.SimulatedFeed
	)
	if cfg.Payment.UseSimulation {
		simulator = settlement.NewSimulatedFeed()
		feed = simulator
		logger.Warn("payment simulation enabled, transfers come from /admin/simulator/pay")
	} else {
		feed = settlement.NewGatewayFeed(settlement.GatewayConfig{
			CallbackURL: cfg.Payment.CallbackURL,
			MerchantID:  cfg.Payment.MerchantID,
			APIKey:      cfg.Payment.APIKey,
			Timeout:     cfg.Payment.FeedTimeout,
		})
	}

	payload := cfg.Payment.QRISData
	if payload == "" {
		payload = demoQRIS
	}
	var renderer qris.Renderer
	if cfg.Payment.RenderLocal {
		renderer = qris.NewLocalRenderer(payload)
	} else {
		renderer = qris.NewHTTPRenderer(cfg.Payment.QRISURL, payload, 30*time.Second)
	}

	ledgerService := ledger.NewService(st.ledger)
	for _, id := range cfg.BotAdmins {
		if err := ledgerService.SetAdmin(context.Background(), id, true); err != nil {
			logger.Debug("bot admin not registered yet", "user_id", id)
		}
	}

	payments := payment.NewService(payment.Config{
		MinAmount:     cfg.Payment.MinAmount,
		TTL:           cfg.Payment.ExpireTime,
		CheckInterval: cfg.Payment.CheckInterval,
		SweepInterval: cfg.Payment.SweepInterval,
		FeedTimeout:   cfg.Payment.FeedTimeout,
		Currency:      cfg.Payment.Currency,
	}, payment.Deps{
		Ledger:   st.ledger,
		Store:    st.payments,
		Feed:     feed,
		Renderer: renderer,
		Sender:   queue,
	})

	accounts := make(map[string]provision.Client, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts[a.Name] = provision.NewDigitalOceanClient(a.Token)
	}
	provisioning := provision.NewService(st.ledger, st.resources, accounts)
	provisioning.SetCreateTimeout(cfg.ProvisionTimeout)
	logger.Info("Provider accounts loaded", "count", len(accounts))

	router := chat.NewRouter(chat.Config{
		BotName:   cfg.BotName,
		Currency:  cfg.Payment.Currency,
		MultiUser: cfg.MultiUser,
		IsAdmin:   cfg.IsAdmin,
	}, ledgerService, payments, provisioning)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restored, err := payments.Restore(ctx)
	if err != nil {
		logger.Error("Failed to restore payment intents", "error", err)
	}
	logger.Info("Payment intents restored", "count", restored)

	checks := map[string]server.Check{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if st.db != nil {
		checks["postgres"] = func(ctx context.Context) error { return st.db.PingContext(ctx) }
	}

	srv := server.New(cfg, server.Deps{
		Ledger:    ledgerService,
		Payments:  payments,
		Provision: provisioning,
		Chat:      router,
		Outbox:    queue,
		Simulator: simulator,
		Checks:    checks,
	})

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		payments.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		queue.Start(ctx)
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	cancel()
	workers.Wait()

	logger.Info("Server stopped")
}
