package cmd

import (
	"fmt"
	"time"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/db"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// purgeTokensCmd deletes blacklist rows whose token has expired anyway.
var purgeTokensCmd = &cobra.Command{
	Use:   "purgetokens",
	Short: "Delete expired entries from the refresh token blacklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)
		defer logger.Sync()

		if cfg.Auth.RevocationBackend != config.RevocationPostgres {
			logger.Info("nothing to purge", zap.String("revocation_backend", cfg.Auth.RevocationBackend))
			return nil
		}

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		purged, err := store.NewRevokedTokenRepository(dbConn).PurgeExpired(cmd.Context(), time.Now().UTC())
		if err != nil {
			return err
		}
		logger.Info("purged expired revoked tokens", zap.Int64("count", purged))
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired tokens\n", purged)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeTokensCmd)
}
