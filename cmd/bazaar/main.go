package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bazaar/internal/infra/config"
	"bazaar/internal/infra/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFiles []string
	root := &cobra.Command{
		Use:           "bazaar",
		Short:         "Buyer and seller conversations, offers and moderation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files loaded before the environment (default .env)")

	load := func(cmd *cobra.Command) (config.Config, error) {
		cfg, err := config.Load(envFiles...)
		if err != nil {
			obs.NewLogger("dev").Error("config load failed", "error", err)
			return config.Config{}, err
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCommand(load),
		newRelayCommand(load),
		newDispatchCommand(load),
		newTokenCommand(load),
	)
	return root
}

type configLoader func(cmd *cobra.Command) (config.Config, error)
