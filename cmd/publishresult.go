package cmd

import (
	"errors"
	"fmt"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/mq"
	"github.com/cinequiz/apiserver/types"
	"github.com/spf13/cobra"
)

var publishResult types.GameResult

// publishResultCmd enqueues a game result for the worker.
var publishResultCmd = &cobra.Command{
	Use:   "publish-result",
	Short: "Publish a game result to the game results channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		result := publishResult
		if result.UserID < 1 || !result.Kind.Valid() || result.Points < 0 {
			return errors.New("invalid game result: --user must be positive, --kind must be game or quiz, --points must not be negative")
		}

		cfg := config.LoadConfig()
		backend, err := mq.NewBackend(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		queue := mq.NewGameResultQueue(backend, cfg.MQ.GameResultsChannel)
		defer queue.Close()

		id, err := queue.Publish(cmd.Context(), result)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishResultCmd)

	publishResultCmd.Flags().Int64Var(&publishResult.UserID, "user", 0, "user id")
	publishResultCmd.Flags().StringVar((*string)(&publishResult.Kind), "kind", string(types.GameKindGame), "game or quiz")
	publishResultCmd.Flags().IntVar(&publishResult.Points, "points", 0, "points earned")
	publishResultCmd.Flags().StringSliceVar(&publishResult.Badges, "badge", nil, "badge earned (repeatable)")
}
