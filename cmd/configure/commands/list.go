package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskfence/taskfence/internal/config"
	"github.com/taskfence/taskfence/internal/database"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var includeCompleted bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks and geofences",
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
			taskRepo := database.NewTaskRepository(db)
			fenceRepo := database.NewGeofenceRepository(db)

			tasks, err := taskRepo.List(ctx, includeCompleted)
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}
			fences, err := fenceRepo.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list geofences: %w", err)
			}

			if len(tasks) == 0 {
				fmt.Println("No tasks")
			} else {
				fmt.Printf("Tasks (%d):\n", len(tasks))
				for _, task := range tasks {
					status := "open"
					if task.IsCompleted {
						status = "done"
					}
					fmt.Printf("  - [%s] %s (priority %d)\n", status, task.Name, task.Priority)
					if task.GeofenceID != nil {
						fmt.Printf("    Geofence: %s\n", *task.GeofenceID)
					}
					if task.ScheduledDate != nil {
						fmt.Printf("    Scheduled: %s\n", task.ScheduledDate.Format("2006-01-02"))
					}
					if task.IsRecurring && task.Recurrence != nil {
						fmt.Printf("    Recurs: %s\n", task.Recurrence.Type)
					}
				}
			}

			if len(fences) == 0 {
				fmt.Println("No geofences")
				return nil
			}
			fmt.Printf("Geofences (%d):\n", len(fences))
			for _, fence := range fences {
				fmt.Printf("  - %s (%.5f, %.5f) r=%.0fm\n", fence.ID, fence.Latitude, fence.Longitude, fence.RadiusMeters)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeCompleted, "include-completed", false, "Include completed tasks")
	return cmd
}
