package cmd

import (
	"context"
	"errors"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/db"
	"github.com/cinequiz/apiserver/internal/logging"
	"github.com/cinequiz/apiserver/internal/mq"
	"github.com/cinequiz/apiserver/internal/services"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd consumes game results and updates user progression.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume game results and award points",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)
		defer logger.Sync()
		ctx := cmd.Context()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			logging.Error(logger, "failed to connect to database", err)
			return err
		}
		defer dbConn.Close()

		backend, err := mq.NewBackend(ctx, cfg.MQ)
		if err != nil {
			logging.Error(logger, "failed to connect to broker", err, zap.String("backend", cfg.MQ.Backend))
			return err
		}
		queue := mq.NewGameResultQueue(backend, cfg.MQ.GameResultsChannel)
		defer queue.Close()

		progression := services.NewProgressionService(store.NewUserRepository(dbConn), logger)

		logger.Info("worker started",
			zap.String("backend", cfg.MQ.Backend),
			zap.String("channel", cfg.MQ.GameResultsChannel),
			zap.String("dead_letter_channel", mq.DeadLetterChannel(cfg.MQ.GameResultsChannel, cfg.MQ.DeadLetterSuffix)),
		)
		err = queue.Consume(ctx, progression.HandleGameResult)
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error(logger, "worker stopped", err)
			return err
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
