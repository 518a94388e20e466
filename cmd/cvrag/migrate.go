package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cvrag/internal/vectorstore/pgvector"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var steps int
	migrate := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Run pgvector schema migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			if direction != "up" && direction != "down" {
				return fmt.Errorf("unknown direction %q (up or down)", direction)
			}
			dsn, err := cfg.VectorStore.Pgvector.DSN()
			if err != nil {
				return err
			}
			if err := pgvector.Migrate(dsn, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", direction)
			return nil
		},
	}
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
