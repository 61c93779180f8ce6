package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DavidAGInnovation/dogg-tap-api/internal/api"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/auth"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/config"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/idempotency"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/ledger"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/quota"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/ratelimit"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/settlement"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/store"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx := context.Background()

	// ── Keyed atomic store ────────────────────────────────────────────────────
	var st store.Store
	if cfg.Redis.UseInMemory {
		log.Info("using in-memory store")
		st = store.NewMemoryStore()
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis ping failed", zap.Error(err))
		}
		st = store.NewRedisStore(rdb)
	}

	// ── Durable ledger (best-effort) ──────────────────────────────────────────
	var led ledger.Store = ledger.Noop{}
	if !cfg.Ledger.Skip && cfg.Ledger.MySQLDSN != "" {
		gs, err := ledger.Open(cfg.Ledger.MySQLDSN)
		if err != nil {
			log.Fatal("ledger open failed", zap.Error(err))
		}
		led = gs
	} else {
		log.Info("durable ledger disabled")
	}

	// ── Settlement collaborator ───────────────────────────────────────────────
	var sender settlement.Sender
	if cfg.Settlement.DryRun {
		log.Info("settlement in dry-run mode")
		sender = settlement.NewDryRunSender(cfg.Settlement.NFTContract != "")
	} else {
		sender, err = settlement.NewEVMSender(settlement.EVMConfig{
			RPCURL:      cfg.Settlement.RPCURL,
			PrivateKey:  cfg.Settlement.PrivateKey,
			ChainID:     cfg.Settlement.ChainID,
			NFTContract: cfg.Settlement.NFTContract,
		})
		if err != nil {
			log.Fatal("settlement client init failed", zap.Error(err))
		}
	}

	payoutWei, ok := new(big.Int).SetString(cfg.Settlement.PayoutAmountWei, 10)
	if !ok {
		log.Fatal("invalid PAYOUT_AMOUNT_WEI")
	}

	// ── Request pipeline ──────────────────────────────────────────────────────
	handler := api.NewHandler(api.Options{
		Store: st,
		Quota: quota.NewTransactor(st, quota.Config{
			DailyCap:   cfg.Rules.DailyCap,
			AwardEvery: cfg.Rules.AwardEvery,
		}),
		Idem:         idempotency.NewCache(st, log),
		Ledger:       led,
		Sender:       sender,
		Log:          log,
		MaxBatchTaps: cfg.Rules.MaxBatchTaps,
		IdemTapTTL:   time.Duration(cfg.Rules.IdemTapTTL) * time.Second,
		IdemPayTTL:   time.Duration(cfg.Rules.IdemPayTTL) * time.Second,
		PayoutWei:    payoutWei,
	})

	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(log), cors.Default())
	handler.RegisterHealth(r)

	limiter := ratelimit.NewLimiter(st, cfg.RateLimit.Max,
		time.Duration(cfg.RateLimit.WindowSec)*time.Second, log)
	grp := r.Group("/",
		auth.Middleware(cfg.Server.HMACSecret, time.Duration(cfg.Rules.TSSkewSec)*time.Second),
		limiter.Middleware(),
	)
	handler.Register(grp)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
