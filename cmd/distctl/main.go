// Command distctl administers the distributor gateway: schema migrations,
// bootstrap accounts and roles, and revocation ledger maintenance.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"distributor.app/internal/obs"
)

const envPrefix = "DISTRIBUTOR_"

var (
	dsnFlag     string
	timeoutFlag time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "distctl",
		Short:         "Administer the distributor API gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if lvl := os.Getenv(envPrefix + "LOG_LEVEL"); lvl != "" {
				return obs.SetLevel(lvl)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dsnFlag, "dsn", os.Getenv(envPrefix+"PG_DSN"), "PostgreSQL DSN (default $DISTRIBUTOR_PG_DSN)")
	root.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(newMigrateCmd(), newUserCmd(), newRoleCmd(), newRevokedCmd())
	return root
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeoutFlag)
}

func requireDSN() (string, error) {
	dsn := strings.TrimSpace(dsnFlag)
	if dsn == "" {
		return "", fmt.Errorf("missing DSN: provide via --dsn or %sPG_DSN", envPrefix)
	}
	return dsn, nil
}
