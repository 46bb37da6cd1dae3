package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskfence/taskfence/internal/config"
	"github.com/taskfence/taskfence/internal/database"
)

// NewHistoryCmd creates the history command with its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the notification audit log",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryClearCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notification history, newest first",
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

			repo := database.NewNotificationHistoryRepository(db)
			entries, err := repo.List(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("failed to list notification history: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No notification history")
				return nil
			}
			for _, entry := range entries {
				fmt.Printf("%s  [%s] %s  geofence=%s  %s\n",
					entry.Timestamp.Format("2006-01-02 15:04:05"),
					entry.EventType,
					entry.TaskName,
					entry.GeofenceID,
					entry.Body,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show (0 = all)")
	return cmd
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all notification history",
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

			repo := database.NewNotificationHistoryRepository(db)
			cleared, err := repo.Clear(context.Background())
			if err != nil {
				return fmt.Errorf("failed to clear notification history: %w", err)
			}
			fmt.Printf("Cleared %d entries\n", cleared)
			return nil
		},
	}
}
