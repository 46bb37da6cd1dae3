package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskfence/taskfence/internal/config"
	"github.com/taskfence/taskfence/internal/database"
	"github.com/taskfence/taskfence/internal/models"
)

// fenceFile is the YAML document exchanged by export/import.
type fenceFile struct {
	Geofences []fenceEntry `yaml:"geofences"`
}

type fenceEntry struct {
	ID           string  `yaml:"id"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	RadiusMeters float64 `yaml:"radius_meters"`
	FillColor    string  `yaml:"fill_color,omitempty"`
	FillOpacity  float64 `yaml:"fill_opacity,omitempty"`
	StrokeColor  string  `yaml:"stroke_color,omitempty"`
	StrokeWidth  float64 `yaml:"stroke_width,omitempty"`
}

// NewFencesCmd creates the fences command with export and import subcommands.
func NewFencesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fences",
		Short: "Export or import geofences as YAML",
	}
	cmd.AddCommand(newFencesExportCmd())
	cmd.AddCommand(newFencesImportCmd())
	return cmd
}

func newFencesExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all geofences to a YAML file (or stdout)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			fences, err := database.NewGeofenceRepository(db).List(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list geofences: %w", err)
			}

			doc := fenceFile{}
			for _, fence := range fences {
				doc.Geofences = append(doc.Geofences, fenceEntry{
					ID:           fence.ID,
					Latitude:     fence.Latitude,
					Longitude:    fence.Longitude,
					RadiusMeters: fence.RadiusMeters,
					FillColor:    fence.FillColor,
					FillOpacity:  fence.FillOpacity,
					StrokeColor:  fence.StrokeColor,
					StrokeWidth:  fence.StrokeWidth,
				})
			}

			out, err := yaml.Marshal(&doc)
			if err != nil {
				return fmt.Errorf("failed to marshal geofences: %w", err)
			}

			if outPath == "" {
				fmt.Print(string(out))
				return nil
			}
			if err := os.WriteFile(outPath, out, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Printf("Exported %d geofences to %s\n", len(doc.Geofences), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newFencesImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update geofences from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			var doc fenceFile
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}
			if len(doc.Geofences) == 0 {
				return fmt.Errorf("%s contains no geofences", args[0])
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			repo := database.NewGeofenceRepository(db)
			ctx := context.Background()

			created, updated := 0, 0
			for _, entry := range doc.Geofences {
				fence := &models.Geofence{
					ID:           entry.ID,
					Latitude:     entry.Latitude,
					Longitude:    entry.Longitude,
					RadiusMeters: entry.RadiusMeters,
					FillColor:    entry.FillColor,
					FillOpacity:  entry.FillOpacity,
					StrokeColor:  entry.StrokeColor,
					StrokeWidth:  entry.StrokeWidth,
				}
				if err := fence.Validate(); err != nil {
					return fmt.Errorf("invalid geofence %q: %w", entry.ID, err)
				}

				if _, err := repo.GetByID(ctx, fence.ID); err == nil {
					if err := repo.Update(ctx, fence); err != nil {
						return fmt.Errorf("failed to update geofence %q: %w", fence.ID, err)
					}
					updated++
					continue
				}
				if err := repo.Create(ctx, fence); err != nil {
					return fmt.Errorf("failed to create geofence %q: %w", fence.ID, err)
				}
				created++
			}

			fmt.Printf("Imported geofences: %d created, %d updated\n", created, updated)
			return nil
		},
	}

	return cmd
}
