package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"zonechain-engine/config"
	"zonechain-engine/internal/auditsink"
	"zonechain-engine/internal/auth"
	"zonechain-engine/internal/cache"
	"zonechain-engine/internal/candles"
	"zonechain-engine/internal/chain"
	"zonechain-engine/internal/decision"
	"zonechain-engine/internal/events"
	"zonechain-engine/internal/exchange"
	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/scheduler"
	"zonechain-engine/internal/vaultsecrets"

	apiserver "zonechain-engine/internal/api"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("failed to load configuration", "error", err)
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		Component:   "engine",
		IncludeFile: cfg.Logging.IncludeFile,
		JSONFormat:  cfg.Logging.JSONFormat,
	}))
	log := logging.Default().WithComponent("bootstrap")
	log.Info("starting zonechain-engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secretsProvider, err := vaultsecrets.New(vaultsecrets.Config{
		Enabled:           cfg.Vault.Enabled,
		Address:           cfg.Vault.Address,
		Token:             cfg.Vault.Token,
		MountPath:         cfg.Vault.MountPath,
		SecretPath:        cfg.Vault.SecretPath,
		FallbackAPIKey:    cfg.Binance.APIKey,
		FallbackSecretKey: cfg.Binance.SecretKey,
	})
	if err != nil {
		log.WithError(err).Fatal("secrets provider unavailable")
	}

	creds, err := secretsProvider.Resolve(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to resolve exchange credentials")
	}

	exchangeClient := exchange.NewHTTPClient(cfg.Binance.FutureURL, cfg.Binance.FutureURLV2, creds)
	if _, err := exchangeClient.ServerTimeOffset(ctx); err != nil {
		log.WithError(err).Warn("server time offset calibration failed, proceeding uncalibrated")
	}

	bus := events.New()

	auditMirror, err := auditsink.New(ctx, cfg.Postgres.Enabled, cfg.Postgres.DSN)
	if err != nil {
		log.WithError(err).Warn("audit mirror unavailable, continuing without it")
		auditMirror = &auditsink.Sink{}
	}
	defer auditMirror.Close()
	bus.Subscribe(func(evt events.Event) {
		if evt.Kind != events.ChainAdmitted {
			return
		}
		go auditMirror.Mirror(ctx, evt.Symbol, evt.Block)
	})

	store := chain.New(cfg.Chain.SymbolCapacity, cfg.Chain.ChainCapacity, bus)

	candleCache := cache.New(cfg.Redis.Enabled, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	baseSource := candles.NewHTTPSource(cfg.Binance.BaseURL)
	source := cache.NewCachedSource(candleCache, baseSource)

	decisionMapper := decision.New(exchangeClient, bus, cfg.Binance.OrderQty)

	watchlist := cfg.Binance.Cryptos
	if !cfg.Binance.Spy {
		watchlist = []string{cfg.Binance.Symbol}
	}

	sched := scheduler.New(scheduler.Config{
		Watchlist:      watchlist,
		Interval:       cfg.Binance.Interval,
		Limit:          cfg.Binance.Limit,
		SymbolCapacity: cfg.Chain.SymbolCapacity,
	}, source, store, decisionMapper, bus)

	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		authManager = auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.APIKeyHash)
	}

	server := apiserver.New(store, sched, exchangeClient, bus, authManager, cfg.Binance.Leverage, "*")

	if cfg.Binance.Decide {
		sched.Start()
	}

	go func() {
		addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
		log.WithField("addr", addr).Info("control surface listening")
		if err := server.Run(addr); err != nil {
			log.WithError(err).Fatal("control surface exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received")
	sched.Stop()
	cancel()
	log.Info("shutdown complete")
}
