package cmd

import (
	"context"
	"time"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/logging"
	"github.com/cinequiz/apiserver/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the cinequiz API server",
	Long: `Starts the cinequiz API server. Usage:

	cinequiz server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)
		defer logger.Sync()

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logging.Error(logger, "failed to start server", err)
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			_ = srv.Shutdown(context.Background())
			return err
		case <-cmd.Context().Done():
		}

		logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
