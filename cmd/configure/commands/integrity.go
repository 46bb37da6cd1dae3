package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskfence/taskfence/internal/config"
	"github.com/taskfence/taskfence/internal/database"
)

// NewIntegrityCmd creates the integrity command
func NewIntegrityCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Check storage integrity",
		Long:  "Verify the expected tables are present and readable; --repair recreates missing schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			ctx := context.Background()
			healthy, err := db.CheckIntegrity(ctx)
			if healthy {
				fmt.Println("Storage integrity: OK")
				return nil
			}

			fmt.Printf("Storage integrity: FAILED (%v)\n", err)
			if !repair {
				return fmt.Errorf("run again with --repair to recreate missing schema")
			}

			fmt.Println("Repairing schema...")
			if err := db.Repair(ctx); err != nil {
				return fmt.Errorf("repair failed: %w", err)
			}

			healthy, err = db.CheckIntegrity(ctx)
			if !healthy {
				return fmt.Errorf("integrity still failing after repair: %w", err)
			}
			fmt.Println("Repair complete, storage integrity: OK")
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Recreate missing schema")
	return cmd
}
