package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"distributor.app/internal/auth"
	"distributor.app/internal/config"
	"distributor.app/internal/store"
	"distributor.app/internal/sweeper"
)

func newRevokedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoked",
		Short: "Maintain the revoked token ledger.",
	}
	var (
		backend  string
		redisURL string
	)
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete revocation entries older than the retention window.",
		Long:  "Runs one sweep immediately, the same as the API's daily sweeper.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Config{
				Store:             config.BackendMemory,
				RevocationBackend: backend,
				PostgresDSN:       dsnFlag,
				RedisURL:          redisURL,
				RoleCacheSize:     1,
			}
			switch backend {
			case config.BackendPostgres:
				if _, err := requireDSN(); err != nil {
					return err
				}
			case config.BackendRedis:
				if redisURL == "" {
					return fmt.Errorf("missing redis URL: provide via --redis-url or %sREDIS_URL", envPrefix)
				}
			default:
				return fmt.Errorf("unsupported backend %q", backend)
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()
			backends, err := store.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer backends.Close()

			ledger := auth.NewRevocationLedger(backends.Revocation, time.Now)
			n, err := sweeper.New(ledger, config.RevocationRetention, config.SweepInterval).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d revoked tokens\n", n)
			return nil
		},
	}
	def := os.Getenv(envPrefix + "REVOCATION_BACKEND")
	if def == "" {
		def = config.BackendPostgres
	}
	purge.Flags().StringVar(&backend, "backend", def, "revocation backend: postgres or redis")
	purge.Flags().StringVar(&redisURL, "redis-url", os.Getenv(envPrefix+"REDIS_URL"), "redis URL for the redis backend")

	cmd.AddCommand(purge)
	return cmd
}
