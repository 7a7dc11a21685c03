package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"agent-pricing-engine/internal/api"
	"agent-pricing-engine/internal/campaign"
	"agent-pricing-engine/internal/catalog"
	"agent-pricing-engine/internal/config"
	"agent-pricing-engine/internal/listener"
)

func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Campaign store
	store, err := campaign.NewPostgresStore(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init campaign store")
	}
	defer store.Close()

	// Optional snapshot persistence for cold starts
	var snapshotStore catalog.SnapshotStore
	if cfg.Catalog.RedisAddr != "" {
		client, err := catalog.NewRedisClient(rootCtx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without snapshot persistence")
		} else {
			defer client.Close()
			snapshotStore = catalog.NewRedisSnapshotStore(client, cfg.Catalog.SnapshotKey)
		}
	}

	// Catalog cache
	cache := catalog.NewCache(catalog.NewShopifyClient(cfg), snapshotStore, cfg.CatalogTTL())
	if err := cache.Warm(rootCtx); err != nil {
		// Cold start with no data: keep serving; tool calls report
		// catalog_unavailable until a refresh succeeds.
		log.Error().Err(err).Msg("catalog warmup failed")
	}
	go cache.Run(rootCtx)

	// Refresh on campaign changes
	go listener.ListenAndRefresh(rootCtx, store.Pool(), cache, cfg.Listener.Channel, cfg.Backoff())

	// HTTP
	h := api.NewHandler(store, cache)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Router(h),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	waitForSignal()
	log.Info().Msg("shutdown...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
