package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docchat/internal/config"
	"docchat/internal/storage"
)

func migrateCMD() *cobra.Command {
	var direction string
	var steps int
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = config.Load().PostgresURL
			}
			if err := storage.Migrate(dsn, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", direction)
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres url (default DOCCHAT_POSTGRES_URL)")
	return cmd
}
