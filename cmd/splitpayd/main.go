// Package main runs the splitpay escrow ledger server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	app "github.com/R3E-Network/splitpay/internal/app"
	"github.com/R3E-Network/splitpay/internal/app/events"
	"github.com/R3E-Network/splitpay/internal/app/httpapi"
	"github.com/R3E-Network/splitpay/internal/app/metrics"
	"github.com/R3E-Network/splitpay/internal/app/storage/postgres"
	"github.com/R3E-Network/splitpay/internal/chain"
	"github.com/R3E-Network/splitpay/internal/config"
	"github.com/R3E-Network/splitpay/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	log := logger.NewDefault("splitpayd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load configuration")
	}

	opts := app.Options{SweepInterval: cfg.SweepInterval}

	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Fatal("open postgres")
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.WithError(err).Fatal("ping postgres")
		}
		if err := postgres.Migrate(db); err != nil {
			log.WithError(err).Fatal("run migrations")
		}
		opts.Stores.Splits = postgres.New(db)
		log.Info("using postgres split store")
	}

	if cfg.Chain.RPCURL != "" {
		ledger, err := buildChainLedger(cfg.Chain, log)
		if err != nil {
			log.WithError(err).Fatal("configure chain ledger")
		}
		opts.Ledger = ledger
		log.WithField("rpc_url", cfg.Chain.RPCURL).Info("using on-chain settlement")
	}

	notifiers := events.Fanout{events.NewLogNotifier(log)}
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("parse redis url")
		}
		publisher := events.NewRedisPublisher(redis.NewClient(redisOpts), cfg.EventChannel, log)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
		log.WithField("channel", cfg.EventChannel).Info("publishing events to redis")
	}
	opts.Notifier = notifiers

	application, err := app.New(opts, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start application")
	}

	limiter := httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	handler := limiter.Handler(metrics.InstrumentHandler(httpapi.NewHandler(application)))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("splitpay API listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("application stop")
	}

	log.Info("stopped")
}

func buildChainLedger(cfg config.ChainConfig, log *logger.Logger) (*chain.NEP17Ledger, error) {
	client, err := chain.NewClient(chain.Config{
		RPCURL:    cfg.RPCURL,
		NetworkID: cfg.NetworkID,
	})
	if err != nil {
		return nil, err
	}

	escrow, err := chain.AccountFromPrivateKey(cfg.EscrowKeyHex)
	if err != nil {
		return nil, err
	}

	resolver, err := chain.NewStaticKeyResolver(cfg.CustodialKeys)
	if err != nil {
		return nil, err
	}

	return chain.NewNEP17Ledger(client, escrow, resolver, log), nil
}
