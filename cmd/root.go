package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "cinequiz",
	Short:         "cinequiz account and progression backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Commands get a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *zap.Logger {
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
