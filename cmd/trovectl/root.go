package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trove/internal/app"
	"trove/internal/config"
)

// cli holds state shared by subcommands. The app is opened lazily so that
// commands such as token work without any backend.
type cli struct {
	logger zerolog.Logger
	cfg    *config.Config
	app    *app.App
}

func newRootCmd(logger zerolog.Logger) *cobra.Command {
	c := &cli{logger: logger}

	root := &cobra.Command{
		Use:   "trovectl",
		Short: "Operator tooling for the Trove catalog",
		Long: `trovectl runs the usage reconcile worker and performs one-off
maintenance against the same backends as the API server.

Examples:
  # Drain the reconcile queue until interrupted
  trovectl reconcile

  # Recompute one user's counters
  trovectl recount 6f1c...

  # Move a user to the pro tier
  trovectl set-tier 6f1c... pro --source support`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			c.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}

	root.AddCommand(
		c.reconcileCmd(),
		c.recountCmd(),
		c.setTierCmd(),
		c.templatesCmd(),
		c.tokenCmd(),
		c.pubsubSetupCmd(),
		c.jwksToPEMCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := app.Open(cmd.Context(), c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// signalContext cancels the command context on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) func() {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	cmd.SetContext(ctx)
	return stop
}
