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

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/udao-org/udao-voucher/internal/api"
	"github.com/udao-org/udao-voucher/internal/auth"
	"github.com/udao-org/udao-voucher/internal/chain"
	"github.com/udao-org/udao-voucher/internal/config"
	"github.com/udao-org/udao-voucher/internal/keys"
	"github.com/udao-org/udao-voucher/internal/ledger"
	"github.com/udao-org/udao-voucher/internal/voucher"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Chain client (only needed when the chain id is discovered) ────────────
	var verifiers verifierSource
	if cfg.Chain.ChainID == 0 {
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			log.Fatal("chain client init failed", zap.Error(err))
		}
		defer client.Close()
		verifiers = client
	}

	// ── Signing key ───────────────────────────────────────────────────────────
	key, err := keys.Load(cfg.Signer)
	if err != nil {
		log.Fatal("signing key load failed", zap.Error(err))
	}
	log.Info("signing key loaded", zap.String("address", key.Address().Hex()))

	// ── Voucher signers ───────────────────────────────────────────────────────
	signers, err := buildSigners(cfg, verifiers, key, log)
	if err != nil {
		log.Fatal("voucher signers init failed", zap.Error(err))
	}
	warmDomains(ctx, signers, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	admins := make([]common.Address, len(cfg.API.AdminAddresses))
	for i, a := range cfg.API.AdminAddresses {
		admins[i] = common.HexToAddress(a)
	}
	ttl := time.Duration(cfg.API.LedgerTTLSec) * time.Second
	access := api.Access{Admins: admins, SelfService: cfg.SelfServiceFamilies()}
	if len(access.Admins) == 0 && len(access.SelfService) == 0 {
		log.Warn("no ADMIN_ADDRESSES and no self-service family; nobody can issue vouchers")
	}
	h := api.NewHandler(signers, ledger.New(rdb, ttl), access, log)
	r := newRouter(h, auth.NewRedisNonces(rdb), log)

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
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// verifierSource is satisfied by *chain.Client.
type verifierSource interface {
	Verifier(addr common.Address, source string) (voucher.Verifier, error)
}

// buildSigners creates one signer per enabled family. A non-zero CHAIN_ID
// pins every domain and verifiers may be nil.
func buildSigners(cfg *config.Config, verifiers verifierSource, key voucher.Key, log *zap.Logger) ([]*voucher.Signer, error) {
	families := cfg.EnabledFamilies()
	for _, pair := range voucher.DomainCollisions(families) {
		log.Warn("voucher families share a signing domain; only the type hash tells them apart",
			zap.String("family", pair[0]),
			zap.String("other", pair[1]))
	}

	signers := make([]*voucher.Signer, 0, len(families))
	for _, f := range families {
		addr := common.HexToAddress(cfg.Families[f.ID].Contract)

		var ver voucher.Verifier
		if cfg.Chain.ChainID != 0 {
			ver = chain.NewStaticVerifier(addr, big.NewInt(cfg.Chain.ChainID))
		} else {
			if verifiers == nil {
				return nil, fmt.Errorf("%s: no chain client to discover the chain id", f.ID)
			}
			v, err := verifiers.Verifier(addr, cfg.Chain.ChainIDSource)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.ID, err)
			}
			ver = v
		}

		signers = append(signers, voucher.NewSigner(f, ver, key))
		log.Info("voucher family enabled",
			zap.String("family", f.ID),
			zap.String("domain", f.DomainName+"/"+f.DomainVersion),
			zap.String("contract", addr.Hex()),
			zap.Bool("self_service", cfg.Families[f.ID].SelfService))
	}
	return signers, nil
}

// warmDomains resolves every signer's domain up front so the first request
// does not pay for the chain-id query. Failures are retried lazily.
func warmDomains(ctx context.Context, signers []*voucher.Signer, log *zap.Logger) {
	for _, s := range signers {
		d, err := s.Domain(ctx)
		if err != nil {
			log.Warn("domain not resolved yet",
				zap.String("family", s.Family().ID),
				zap.Error(err))
			continue
		}
		log.Info("domain resolved",
			zap.String("family", s.Family().ID),
			zap.String("chain_id", d.ChainID.String()),
			zap.String("separator", d.Separator().Hex()))
	}
}

func newRouter(h *api.Handler, nonces auth.NonceStore, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	h.RegisterPublic(r.Group("/api"))
	h.Register(r.Group("/api", auth.Middleware(nonces, log)))
	return r
}
