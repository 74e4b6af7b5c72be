package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mselser95/crossvenue-arb/internal/arbitrage"
	"github.com/mselser95/crossvenue-arb/internal/execution"
	"github.com/mselser95/crossvenue-arb/internal/orderbook"
	"github.com/mselser95/crossvenue-arb/internal/resolver"
	"github.com/mselser95/crossvenue-arb/internal/storage"
	"github.com/mselser95/crossvenue-arb/internal/venueapi"
	"github.com/mselser95/crossvenue-arb/pkg/cache"
	"github.com/mselser95/crossvenue-arb/pkg/config"
	"github.com/mselser95/crossvenue-arb/pkg/eventbus"
	"github.com/mselser95/crossvenue-arb/pkg/healthprobe"
	"github.com/mselser95/crossvenue-arb/pkg/httpserver"
	"github.com/mselser95/crossvenue-arb/pkg/types"
	"github.com/mselser95/crossvenue-arb/pkg/venue"
)

// New creates a fully wired application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New("crossvenue-arb",
		compStorage, compVenueAStream, compVenueBStream)

	marketCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		marketCache.Close()
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	healthChecker.SetReady(compStorage, true)

	apiClientA := setupVenueAPIClient(cfg, types.VenueA, logger)
	apiClientB := setupVenueAPIClient(cfg, types.VenueB, logger)

	marketResolver := resolver.New(&resolver.Config{
		VenueA:              apiClientA,
		VenueB:              apiClientB,
		Store:               store,
		Cache:               marketCache,
		SimilarityThreshold: cfg.SimilarityThreshold,
		ListingCacheTTL:     cfg.ListingCacheTTL,
		SyncInterval:        cfg.SyncInterval,
		Logger:              logger,
	})

	venueClientA := setupVenueClient(cfg, venue.DialectA{}, cfg.VenueA, logger)
	venueClientB := setupVenueClient(cfg, venue.DialectB{}, cfg.VenueB, logger)

	bookStore := orderbook.New(&orderbook.Config{
		Logger: logger,
		Feeds:  []<-chan *types.OrderBook{venueClientA.Books(), venueClientB.Books()},
	})

	bus := eventbus.New(logger)

	detector := arbitrage.New(arbitrage.Config{
		ArbThreshold:    cfg.ArbThreshold,
		MinLiquidity:    cfg.MinLiquidity,
		MaxPositionSize: cfg.MaxPositionSize,
		VenueAFeeRate:   cfg.VenueA.FeeRate,
		VenueBFeeRate:   cfg.VenueB.FeeRate,
		Logger:          logger,
	}, marketResolver, store, bus, bookStore.Updates())

	coordinator := execution.New(&execution.Config{
		VenueA:          apiClientA,
		VenueB:          apiClientB,
		Storage:         store,
		Bus:             bus,
		MaxPositionSize: cfg.MaxPositionSize,
		AutoExecute:     cfg.AutoExecute,
		Logger:          logger,
	})

	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		AppConfig:     cfg,
		Storage:       store,
		Executor:      coordinator,
		Syncer:        marketResolver,
		Bus:           bus,
		HealthChecker: healthChecker,
		Logger:        logger,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		venueClientA:  venueClientA,
		venueClientB:  venueClientB,
		bookStore:     bookStore,
		resolver:      marketResolver,
		detector:      detector,
		coordinator:   coordinator,
		bus:           bus,
		storage:       store,
		marketCache:   marketCache,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupCache(logger *zap.Logger) (*cache.ListingCache, error) {
	return cache.NewListingCache(&cache.ListingCacheConfig{
		NumCounters: 10000,
		MaxCost:     10000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (*storage.PostgresStorage, error) {
	pg, err := storage.NewPostgresStorage(&storage.PostgresConfig{
		URL:    cfg.DatabaseURL,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres storage: %w", err)
	}

	err = pg.EnsureSchema(context.Background())
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return pg, nil
}

func setupVenueAPIClient(cfg *config.Config, v types.Venue, logger *zap.Logger) *venueapi.Client {
	vc := cfg.VenueFor(string(v))
	return venueapi.NewClient(&venueapi.Config{
		Venue:          v,
		BaseURL:        vc.APIURL,
		APIKey:         vc.APIKey,
		Secret:         vc.PrivateKey,
		ConnectTimeout: cfg.APIConnectTimeout,
		RequestTimeout: cfg.APIRequestTimeout,
		Logger:         logger,
	})
}

func setupVenueClient(cfg *config.Config, dialect venue.Dialect, vc config.VenueConfig, logger *zap.Logger) *venue.Client {
	return venue.New(venue.Config{
		URL:          vc.WSURL,
		APIKey:       vc.APIKey,
		Dialect:      dialect,
		DialTimeout:  cfg.WSDialTimeout,
		PingInterval: cfg.WSPingInterval,
		AuthTimeout:  cfg.WSAuthTimeout,
		Reconnect: venue.ReconnectPolicy{
			InitialDelay: cfg.WSReconnectInitialDelay,
			MaxDelay:     cfg.WSReconnectMaxDelay,
			Multiplier:   2,
			MaxAttempts:  cfg.WSReconnectMaxAttempts,
		},
		MessageBufferSize: cfg.WSMessageBufferSize,
		Logger:            logger,
	})
}
