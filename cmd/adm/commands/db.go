// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"collegefeedback/internal/config"
	"collegefeedback/internal/database"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	"collegefeedback/internal/services"
	contextutils "collegefeedback/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(dbManager *database.Manager, categories serviceinterfaces.CategoryServiceInterface, cleanup *services.CleanupService, logger *observability.Logger, db *sql.DB, databaseURL string) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the feedback service.

Available commands:
  migrate          - Apply pending schema migrations
  status           - Show the schema migration version
  seed-categories  - Insert the default categories that are missing
  stats            - Show table row counts
  cleanup          - Purge old read notifications and orphaned attachments`,
	}

	dbCmd.AddCommand(migrateCmd(dbManager, logger, databaseURL))
	dbCmd.AddCommand(statusCmd(dbManager, databaseURL))
	dbCmd.AddCommand(seedCategoriesCmd(categories, logger))
	dbCmd.AddCommand(statsCmd(logger, db, databaseURL))
	dbCmd.AddCommand(cleanupCmd(cleanup, logger))

	return dbCmd
}

func migrateCmd(dbManager *database.Manager, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			logger.Info(ctx, "Running migrations", map[string]interface{}{"database": maskDatabaseURL(databaseURL)})
			if err := dbManager.RunMigrations(databaseURL); err != nil {
				return contextutils.WrapError(err, "migration failed")
			}
			status, err := dbManager.Status(databaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", status.Version)
			return nil
		},
	}
}

func statusCmd(dbManager *database.Manager, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the schema migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := dbManager.Status(databaseURL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n", database.DatabaseName(databaseURL))
			if !status.Applied {
				fmt.Fprintln(out, "No migrations applied")
				return nil
			}
			fmt.Fprintf(out, "Version: %d\nDirty: %s\n", status.Version, yesNo(status.Dirty))
			return nil
		},
	}
}

func seedCategoriesCmd(categories serviceinterfaces.CategoryServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-categories",
		Short: "Insert the default categories that are missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			added, err := categories.SeedDefaults(ctx)
			if err != nil {
				return contextutils.WrapError(err, "failed to seed categories")
			}
			logger.Info(ctx, "Seeded default categories", map[string]interface{}{"added": added})
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d categories\n", added)
			return nil
		},
	}
}

// statTables is the fixed set of tables reported by db stats
var statTables = []string{"users", "categories", "feedback", "comments", "feedback_history", "notifications", "attachments"}

func statsCmd(logger *observability.Logger, db *sql.DB, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show table row counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			logger.Info(ctx, "Diagnostic info", map[string]interface{}{
				"config_file": os.Getenv("FEEDBACK_CONFIG_FILE"),
				"database":    maskDatabaseURL(databaseURL),
			})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, getDatabaseInfo(db))
			for _, table := range statTables {
				var n int
				// Table names come from statTables, never from input
				if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
					return contextutils.WrapErrorf(err, "failed to count %s", table)
				}
				fmt.Fprintf(out, "%-18s %d\n", table, n)
			}

			var open int
			if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback WHERE status IN ('pending', 'in_progress')").Scan(&open); err != nil {
				return contextutils.WrapError(err, "failed to count open feedback")
			}
			fmt.Fprintf(out, "%-18s %d\n", "open feedback", open)
			return nil
		},
	}
}

func cleanupCmd(cleanup *services.CleanupService, logger *observability.Logger) *cobra.Command {
	var statsOnly bool
	var notificationRetention, attachmentAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge old read notifications and orphaned attachments",
		Long: `Run database cleanup operations to remove old data.

This command will:
- Remove read notifications older than --notification-retention
- Remove uploads never attached to a ticket or comment within --attachment-age

Use --stats flag to see what would be cleaned up without actually performing the cleanup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			out := cmd.OutOrStdout()

			stats, err := cleanup.GetCleanupStats(ctx, notificationRetention, attachmentAge)
			if err != nil {
				return contextutils.WrapError(err, "failed to get cleanup stats")
			}
			fmt.Fprintf(out, "Read notifications: %d\nOrphaned attachments: %d\n", stats.ReadNotifications, stats.OrphanedAttachments)
			if statsOnly {
				return nil
			}
			if stats.Total() == 0 {
				fmt.Fprintln(out, "No cleanup needed")
				return nil
			}

			if err := cleanup.RunFullCleanup(ctx, notificationRetention, attachmentAge); err != nil {
				logger.Error(ctx, "Cleanup failed", err, map[string]interface{}{"service": "cleanup"})
				return contextutils.WrapError(err, "cleanup failed")
			}
			fmt.Fprintln(out, "Cleanup completed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Only show cleanup statistics, don't perform cleanup")
	cmd.Flags().DurationVar(&notificationRetention, "notification-retention", config.DefaultNotificationRetention, "age after which read notifications are removed")
	cmd.Flags().DurationVar(&attachmentAge, "attachment-age", config.DefaultOrphanAttachmentAge, "age after which unreferenced uploads are removed")
	return cmd
}
