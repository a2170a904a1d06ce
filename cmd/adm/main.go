// Package main provides the entry point for the feedback service admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"collegefeedback/cmd/adm/commands"
	"collegefeedback/internal/config"
	"collegefeedback/internal/database"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/services"
	"collegefeedback/internal/version"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	if os.Getenv("FEEDBACK_CONFIG_FILE") == "" {
		for _, path := range []string{"config.yaml", "../config.yaml", "../../config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv("FEEDBACK_CONFIG_FILE", path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set FEEDBACK_CONFIG_FILE environment variable: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The admin tool talks to the database directly and exports no telemetry
	cfg.Server.LogLevel = "error"
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "feedback-admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithoutMigrations(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_name": database.DatabaseName(cfg.Database.URL)})
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	userService := services.NewUserServiceWithLogger(db, cfg, logger)
	categoryService := services.NewCategoryService(db, logger)

	blobs, err := services.NewBlobStore(ctx, cfg.Attachments)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open attachment store: %v\n", err)
		os.Exit(1)
	}
	cleanupService := services.NewCleanupServiceWithLogger(db, blobs, logger)

	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Feedback service administration tool",
		Long: `Feedback service administration tool

Manages accounts, categories and the database schema without going through the HTTP API.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get("feedback-adm"))
		},
	})
	rootCmd.AddCommand(commands.UserCommands(userService, logger))
	rootCmd.AddCommand(commands.CategoryCommands(categoryService, logger))
	rootCmd.AddCommand(commands.DatabaseCommands(dbManager, categoryService, cleanupService, logger, db, cfg.Database.URL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
