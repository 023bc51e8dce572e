package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"upirails/internal/config"
	"upirails/internal/escrow"
	"upirails/internal/idempotency"
	"upirails/internal/lifecycle"
	"upirails/internal/metadata"
	"upirails/internal/oracle"
	"upirails/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	var ledger escrow.Client
	if cfg.Chain.PrivateKey != "" {
		ethClient, err := escrow.NewEthClient(ctx, escrow.EthClientConfig{
			RPCURL:        cfg.Chain.RPCURL,
			PrivateKeyHex: cfg.Chain.PrivateKey,
			Contracts:     cfg.Chain.Contracts,
		})
		if err != nil {
			log.Fatalf("escrow client error: %v", err)
		}
		ledger = ethClient
	} else {
		log.Printf("no private key configured, using in-memory ledger")
		ledger = escrow.NewFakeClient("", cfg.CommitTimeout())
	}

	var meta metadata.Store
	switch cfg.Metadata.Mode {
	case "http":
		meta = metadata.NewHTTPStore(cfg.Metadata.BaseURL)
	case "postgres":
		pgMeta, err := metadata.NewPostgresStore(ctx, cfg.Metadata.DSN)
		if err != nil {
			log.Fatalf("metadata store error: %v", err)
		}
		defer pgMeta.Close()
		meta = pgMeta
	default:
		meta = metadata.NewMemoryStore()
	}

	var store idempotency.Store
	if cfg.Server.IdempotencyDSN != "" {
		pgStore, err := idempotency.NewPostgresStore(ctx, cfg.Server.IdempotencyDSN)
		if err != nil {
			log.Fatalf("idempotency store error: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
	} else {
		fileStore, err := idempotency.NewFileStore(cfg.Server.IdempotencyStorePath)
		if err != nil {
			log.Fatalf("idempotency store error: %v", err)
		}
		store = fileStore
	}

	prices := oracle.New(oracle.Config{
		BaseURL:        cfg.Oracle.BaseURL,
		Currency:       cfg.Oracle.Currency,
		CacheTTL:       cfg.OracleCacheTTL(),
		StableToken:    cfg.Oracle.StableToken,
		StableChainID:  cfg.Oracle.StableChainID,
		FallbackNative: cfg.Oracle.FallbackNativeINR,
		FallbackStable: cfg.Oracle.FallbackStableINR,
	})

	svc := lifecycle.New(lifecycle.Config{
		Ledger:        ledger,
		Metadata:      meta,
		CommitTimeout: cfg.CommitTimeout(),
		FallbackUPIID: cfg.Platform.UPIID,
		PlatformName:  cfg.Platform.Name,
	})

	apiServer := server.NewServer(cfg, svc, ledger, prices, store, meta)

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go apiServer.NewRateRefresher(cfg.OracleRefreshInterval()).Run(refreshCtx)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	stopRefresh()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}
