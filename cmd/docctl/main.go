package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/config"
)

func main() {
	_ = godotenv.Load(".env")
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Operate the docchat document pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCMD(), ingestCMD(), embedCMD(), retrieveCMD(), contextCMD(), retryCMD(), tokenCMD())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp builds the pipeline for one command invocation.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	log := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	ctx := cmd.Context()
	buildCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	a, err := app.Build(buildCtx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
