package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-moments/internal/config"
	"github.com/kozaktomas/photo-moments/internal/database/postgres"
)

var classificationsCmd = &cobra.Command{
	Use:   "classifications",
	Short: "Manage stored prompt classifications",
	Long: `Stored classifications let prompt filtering skip images that were already
labeled. They live in PostgreSQL (DATABASE_URL).`,
}

var classificationsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored classifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClassifications(cmd.Context(), func(ctx context.Context, repo *postgres.ClassificationRepository) error {
			n, err := repo.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d stored classifications\n", n)
			return nil
		})
	},
}

var classificationsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored classifications",
	Long:  "Delete all stored classifications, e.g. after switching the label provider.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !mustGetBool(cmd, "yes") {
			return errors.New("refusing to delete classifications without --yes")
		}
		return withClassifications(cmd.Context(), func(ctx context.Context, repo *postgres.ClassificationRepository) error {
			n, err := repo.DeleteAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d classifications\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(classificationsCmd)
	classificationsCmd.AddCommand(classificationsCountCmd)
	classificationsCmd.AddCommand(classificationsClearCmd)

	classificationsClearCmd.Flags().Bool("yes", false, "Confirm deletion")
}

func withClassifications(ctx context.Context, fn func(context.Context, *postgres.ClassificationRepository) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, postgres.NewClassificationRepository(pool))
}
