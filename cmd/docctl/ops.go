package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"

	"docchat/internal/auth"
	"docchat/internal/config"
	"docchat/internal/workflows"
)

func retryCMD() *cobra.Command {
	var limit, children int
	cmd := &cobra.Command{
		Use:   "retry-failed",
		Short: "Start a workflow that re-embeds failed namespaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.TemporalAddress == "" {
				return fmt.Errorf("DOCCHAT_TEMPORAL_ADDRESS is not set")
			}
			c, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
			if err != nil {
				return err
			}
			defer c.Close()
			if children <= 0 {
				children = cfg.RetryMaxChildren
			}
			id, runID, err := workflows.NewScheduler(c, cfg.TemporalTaskQueue).ScheduleRetry(cmd.Context(), workflows.RetryFailedInput{
				Limit:                 limit,
				MaxConcurrentChildren: children,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s run=%s\n", id, runID)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum namespaces to retry")
	cmd.Flags().IntVar(&children, "children", 0, "concurrent documents (default DOCCHAT_RETRY_MAX_CHILDREN)")
	return cmd
}

func tokenCMD() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a development access token for the api",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return fmt.Errorf("DOCCHAT_JWT_SECRET is not set")
			}
			tok, err := auth.SignToken(cfg.JWTSecret, args[0], auth.SupabaseAudience, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
