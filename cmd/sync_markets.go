package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mselser95/crossvenue-arb/internal/resolver"
	"github.com/mselser95/crossvenue-arb/internal/storage"
	"github.com/mselser95/crossvenue-arb/internal/venueapi"
	"github.com/mselser95/crossvenue-arb/pkg/config"
	"github.com/mselser95/crossvenue-arb/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var syncMarketsCmd = &cobra.Command{
	Use:   "sync-markets",
	Short: "Run one market identity sync and exit",
	Long: `Fetches the active market listing from both venues, matches markets
that refer to the same real-world event, persists the canonical mappings,
and exits. Useful for seeding the mapping table before the first run.`,
	RunE: syncMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(syncMarketsCmd)
}

func syncMarkets(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.NewPostgresStorage(&storage.PostgresConfig{
		URL:    cfg.DatabaseURL,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	err = store.EnsureSchema(ctx)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	newAPIClient := func(v types.Venue, vc config.VenueConfig) *venueapi.Client {
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

	marketResolver := resolver.New(&resolver.Config{
		VenueA:              newAPIClient(types.VenueA, cfg.VenueA),
		VenueB:              newAPIClient(types.VenueB, cfg.VenueB),
		Store:               store,
		SimilarityThreshold: cfg.SimilarityThreshold,
		ListingCacheTTL:     cfg.ListingCacheTTL,
		SyncInterval:        cfg.SyncInterval,
		Logger:              logger,
	})

	err = marketResolver.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync markets: %w", err)
	}

	fmt.Printf("synced %d mappings\n", len(marketResolver.Mappings()))
	return nil
}
