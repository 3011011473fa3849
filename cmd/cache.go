package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guestlens/guestlens/internal/config"
	"github.com/guestlens/guestlens/internal/store"
	"github.com/guestlens/guestlens/internal/store/postgres"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Embedding cache management commands",
	Long: `Commands for managing the PostgreSQL embedding cache.

The cache stores face extractions keyed by image content, provider
model and fidelity, so repeated runs over the same dump skip the
expensive extraction step. Requires DATABASE_URL.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show embedding cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached extractions",
	RunE:  runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// requireCache connects to the configured cache or fails with a clear error.
func requireCache() (store.Cache, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return store.GetCache()
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cache, err := requireCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	stats, err := cache.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	fmt.Printf("Cached extractions: %d\n", stats.Extractions)
	fmt.Printf("Stored faces:       %d\n", stats.Faces)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cache, err := requireCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.Clear(context.Background()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Println("Embedding cache cleared")
	return nil
}
