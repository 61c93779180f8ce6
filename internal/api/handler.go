// Package api exposes the tap, payout, and health endpoints.
package api

import (
	"context"
	"encoding/json"
	"math"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DavidAGInnovation/dogg-tap-api/internal/auth"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/idempotency"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/ledger"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/quota"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/settlement"
	"github.com/DavidAGInnovation/dogg-tap-api/internal/store"
)

// Options bundles the collaborators and rule knobs of the HTTP surface.
type Options struct {
	Store        store.Store
	Quota        *quota.Transactor
	Idem         *idempotency.Cache
	Ledger       ledger.Store
	Sender       settlement.Sender
	Log          *zap.Logger
	MaxBatchTaps int64
	IdemTapTTL   time.Duration
	IdemPayTTL   time.Duration
	PayoutWei    *big.Int
	LedgerWait   time.Duration // best-effort ledger write deadline
}

// Handler wires the request pipeline onto a Gin engine.
type Handler struct {
	o Options
}

func NewHandler(o Options) *Handler {
	if o.LedgerWait <= 0 {
		o.LedgerWait = 5 * time.Second
	}
	if o.PayoutWei == nil {
		o.PayoutWei = big.NewInt(0)
	}
	return &Handler{o: o}
}

// Register mounts the authenticated routes. The auth and idempotency
// middlewares already ran by the time a handler executes.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/tap", h.o.Idem.Middleware(), h.handleTap)
	rg.POST("/payout", h.o.Idem.Middleware(), h.handlePayout)
}

// RegisterHealth mounts the unauthenticated liveness probe.
func (h *Handler) RegisterHealth(r gin.IRoutes) {
	r.GET("/health", h.handleHealth)
}

// ── Tap ──────────────────────────────────────────────────────────────────────

// tapRequest decodes taps as float64 so a fractional count is reported as
// invalid_taps rather than a decode failure.
type tapRequest struct {
	UserID int64    `json:"userId"`
	Taps   *float64 `json:"taps"`
	TS     int64    `json:"ts"`
	Nonce  string   `json:"nonce"`
}

type tapResponse struct {
	UserID       int64 `json:"userId"`
	AcceptedTaps int64 `json:"acceptedTaps"`
	TapsToday    int64 `json:"tapsToday"`
	NewRewards   int64 `json:"newRewards"`
	DoggBalance  int64 `json:"doggBalance"`
	DailyCap     int64 `json:"dailyCap"`
	AwardEvery   int64 `json:"awardEvery"`
}

func (h *Handler) handleTap(c *gin.Context) {
	var req tapRequest
	if err := json.Unmarshal(auth.RawBody(c), &req); err != nil || req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_userId"})
		return
	}
	if req.Taps == nil || *req.Taps != math.Trunc(*req.Taps) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_taps"})
		return
	}
	taps := int64(*req.Taps)
	if taps < 1 || taps > h.o.MaxBatchTaps {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_taps"})
		return
	}

	res, err := h.o.Quota.Tap(c.Request.Context(), req.UserID, taps)
	if err != nil {
		h.o.Log.Error("tap transact failed", zap.Int64("user", req.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	// Durable ledger writes are fire-and-forget; the atomic decision above
	// is already final.
	day := h.o.Quota.Day()
	go h.persistTap(req.UserID, day, res)

	payload, err := json.Marshal(tapResponse{
		UserID:       req.UserID,
		AcceptedTaps: res.Accepted,
		TapsToday:    res.TapsToday,
		NewRewards:   res.NewRewards,
		DoggBalance:  res.Balance,
		DailyCap:     h.o.Quota.DailyCap(),
		AwardEvery:   h.o.Quota.AwardEvery(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	h.o.Idem.Save(c.Request.Context(), c, payload, h.o.IdemTapTTL)
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *Handler) persistTap(userID int64, day int, res quota.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), h.o.LedgerWait)
	defer cancel()

	if err := h.o.Ledger.EnsureUser(ctx, userID); err != nil {
		h.o.Log.Warn("ledger ensure user", zap.Int64("user", userID), zap.Error(err))
		return
	}
	if res.Accepted > 0 {
		if err := h.o.Ledger.AddDailyTaps(ctx, userID, day, res.Accepted); err != nil {
			h.o.Log.Warn("ledger daily taps", zap.Int64("user", userID), zap.Error(err))
		}
	}
	if res.NewRewards > 0 {
		if err := h.o.Ledger.AddBalance(ctx, userID, res.NewRewards); err != nil {
			h.o.Log.Warn("ledger balance", zap.Int64("user", userID), zap.Error(err))
		}
		if err := h.o.Ledger.RecordTransaction(ctx, userID, "tap_reward", float64(res.NewRewards), nil); err != nil {
			h.o.Log.Warn("ledger transaction", zap.Int64("user", userID), zap.Error(err))
		}
	}
}

// ── Payout ───────────────────────────────────────────────────────────────────

type payoutRequest struct {
	UserID    int64               `json:"userId"`
	ToAddress string              `json:"toAddress"`
	TS        int64               `json:"ts"`
	Nonce     string              `json:"nonce"`
	MintNFT   bool                `json:"mintNft"`
	Dog       *settlement.NFTMeta `json:"dog"`
}

type nftResult struct {
	OK     bool   `json:"ok"`
	TxHash string `json:"txHash,omitempty"`
	Error  string `json:"error,omitempty"`
}

type payoutResponse struct {
	OK     bool       `json:"ok"`
	DryRun bool       `json:"dryRun"`
	TxHash string     `json:"txHash"`
	NFT    *nftResult `json:"nft,omitempty"`
}

func (h *Handler) handlePayout(c *gin.Context) {
	var req payoutRequest
	if err := json.Unmarshal(auth.RawBody(c), &req); err != nil || req.UserID <= 0 || req.ToAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	txHash, err := h.o.Sender.Transfer(c.Request.Context(), req.ToAddress, h.o.PayoutWei, "DOGG payout")
	if err != nil {
		h.o.Log.Error("payout transfer failed", zap.Int64("user", req.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payout_failed"})
		return
	}

	resp := payoutResponse{OK: true, DryRun: h.o.Sender.DryRun(), TxHash: txHash}

	// The issuance leg fails independently: a bad mint never sinks an
	// already-executed payout.
	if req.MintNFT {
		var meta settlement.NFTMeta
		if req.Dog != nil {
			meta = *req.Dog
		}
		mintHash, mintErr := h.o.Sender.MintNFT(c.Request.Context(), req.ToAddress, meta)
		if mintErr != nil {
			h.o.Log.Warn("nft mint failed", zap.Int64("user", req.UserID), zap.Error(mintErr))
			resp.NFT = &nftResult{OK: false, Error: mintErr.Error()}
		} else {
			resp.NFT = &nftResult{OK: true, TxHash: mintHash}
		}
	}

	go h.persistPayout(req.UserID, txHash)

	payload, err := json.Marshal(resp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	h.o.Idem.Save(c.Request.Context(), c, payload, h.o.IdemPayTTL)
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *Handler) persistPayout(userID int64, txHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.o.LedgerWait)
	defer cancel()

	if err := h.o.Ledger.EnsureUser(ctx, userID); err != nil {
		h.o.Log.Warn("ledger ensure user", zap.Int64("user", userID), zap.Error(err))
		return
	}
	// Record the configured payout amount in whole tokens, not wei.
	amount, _ := new(big.Float).Quo(new(big.Float).SetInt(h.o.PayoutWei), big.NewFloat(1e18)).Float64()
	if err := h.o.Ledger.RecordTransaction(ctx, userID, "payout", amount, &txHash); err != nil {
		h.o.Log.Warn("ledger payout record", zap.Int64("user", userID), zap.Error(err))
	}
}

// ── Health ───────────────────────────────────────────────────────────────────

func (h *Handler) handleHealth(c *gin.Context) {
	if err := h.o.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
