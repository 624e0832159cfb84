package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trove/internal/orchestrator/reconcile"
	"trove/internal/pubsub"
	"trove/internal/util"
)

func (c *cli) reconcileCmd() *cobra.Command {
	var visibility int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the usage reconcile worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stop := signalContext(cmd)
			defer stop()

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			if a.Queue == nil {
				return errors.New("reconcile worker requires DB_CONNECTION_STRING")
			}
			return reconcile.Run(cmd.Context(), c.logger, a.Queue, a.Reconcile, reconcile.Options{
				Queue:       c.cfg.ReconcileQueueName,
				PollTimeout: c.cfg.ReconcilePollTimeoutSec,
				MaxMessages: c.cfg.ReconcilePollMaxMsg,
				Visibility:  visibility,
			})
		},
	}
	cmd.Flags().IntVar(&visibility, "visibility", 60, "Seconds a read job stays hidden before redelivery")
	return cmd
}

func (c *cli) recountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recount <user-id>",
		Short: "Recompute a user's usage counters from live documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			usage, err := a.Reconcile.Recount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collections=%d total_items=%d storage_used_mb=%.2f\n",
				usage.Collections, usage.TotalItems, usage.StorageUsedMB)
			return nil
		},
	}
}

func (c *cli) setTierCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "set-tier <user-id> <tier>",
		Short: "Change a user's tier and record a subscription event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			u, err := a.Users.SetTier(cmd.Context(), args[0], args[1], source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now on %s\n", u.UserID, u.Tier)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "admin", "Origin recorded on the subscription event")
	return cmd
}

func (c *cli) templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect the template registry",
	}

	var includeInactive bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in and custom templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			ts, err := a.Templates.ListAll(cmd.Context(), includeInactive)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFIELDS\tBUILT-IN\tUSAGE\tSTATE")
			for _, t := range ts {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%d\t%s\n", t.ID, t.Name, len(t.Fields), t.IsBuiltIn, t.UsageCount, t.State)
			}
			return w.Flush()
		},
	}
	list.Flags().BoolVar(&includeInactive, "include-inactive", false, "Include soft-deleted templates")

	analytics := &cobra.Command{
		Use:   "analytics",
		Short: "Count templates and show the most used custom template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			stats, err := a.Templates.Analytics(cmd.Context())
			if err != nil {
				return err
			}
			mostUsed := "-"
			if stats.MostUsed != nil {
				mostUsed = fmt.Sprintf("%s (%s, %d uses)", stats.MostUsed.Name, stats.MostUsed.ID, stats.MostUsed.UsageCount)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "BUILT-IN\t%d\n", stats.BuiltIn)
			fmt.Fprintf(w, "CUSTOM\t%d\n", stats.Custom)
			fmt.Fprintf(w, "MOST USED\t%s\n", mostUsed)
			return w.Flush()
		},
	}
	cmd.AddCommand(list, analytics)
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an HS256 bearer token signed with JWT_SECRET (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			tok, err := util.SignHS256(c.cfg.JWTSecret, args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func (c *cli) pubsubSetupCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "pubsub-setup",
		Short: "Create the domain event topic and subscription on the Pub/Sub emulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return pubsub.SetupLocal(ctx, pubsub.SetupOptions{
				ProjectID:    c.cfg.GCPProjectID,
				EmulatorHost: c.cfg.PubSubEmulatorHost,
				Topic:        c.cfg.PubSubEventsTopic,
				Reset:        reset,
			}, c.logger)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete all topics and subscriptions first")
	return cmd
}

func (c *cli) jwksToPEMCmd() *cobra.Command {
	var url, kid string
	cmd := &cobra.Command{
		Use:   "jwks-to-pem",
		Short: "Print an identity provider's signing key as PEM for JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jwks, err := util.FetchJWKS(cmd.Context(), url)
			if err != nil {
				return err
			}
			key := jwks.Keys[0]
			if kid != "" {
				found := false
				for _, k := range jwks.Keys {
					if k.Kid == kid {
						key, found = k, true
						break
					}
				}
				if !found {
					return fmt.Errorf("no key with kid %q", kid)
				}
			}
			pemKey, err := key.PEM()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), pemKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:54321/auth/v1/.well-known/jwks.json", "JWKS endpoint")
	cmd.Flags().StringVar(&kid, "kid", "", "Key id to export (default first key)")
	return cmd
}
