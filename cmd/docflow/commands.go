package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/service"
	"github.com/garyjia/barangay-docflow/internal/config"
	"github.com/garyjia/barangay-docflow/internal/container"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/pkg/database"
	"github.com/garyjia/barangay-docflow/pkg/utils"
)

const version = "1.0.0"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "docflow",
		Short:         "Barangay document request workflow service",
		Long:          "Configure per-document-type approval workflows and move resident requests through them",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newSyncCmd(&configPath),
		newExportCmd(&configPath),
		newMigrateCmd(&configPath),
		newResetCmd(&configPath),
	)
	return root
}

// bootstrap loads configuration and builds the root logger
func bootstrap(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(container.LoggerConfig(cfg.Logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// startContainer bootstraps and starts a container; the caller closes it
func startContainer(ctx context.Context, configPath string) (*container.Container, error) {
	cfg, logger, err := bootstrap(configPath)
	if err != nil {
		return nil, err
	}

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := startContainer(ctx, *configPath)
			if err != nil {
				return err
			}
			defer c.Close()
			logger := c.Logger()
			defer logger.Sync()

			logger.Info("Starting barangay document workflow service",
				zap.String("version", version),
				zap.Int("port", c.Config().Server.Port))

			if err := c.RunWorkers(ctx); err != nil {
				logger.Error("Failed to start workers", zap.Error(err))
			}

			return c.HTTPServer().Start(ctx)
		},
	}
}

func newSyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile approver assignments and the fallback cache once",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := startContainer(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := c.Services().Sync.SyncAssignments(cmd.Context(), service.SyncTriggerManual)
			if err != nil {
				return err
			}
			c.Dispatcher().Wait()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newExportCmd(configPath *string) *cobra.Command {
	var out string
	var documentTypes []string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export workflow definitions to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := startContainer(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer c.Close()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer f.Close()

			if err := c.Services().Export.ExportWorkflows(cmd.Context(), documentTypes, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflows exported to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "workflows.xlsx", "output file")
	cmd.Flags().StringSliceVarP(&documentTypes, "document-type", "d", nil, "document types to export (default all)")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			dbCfg := cfg.Database
			dbCfg.AutoMigrate = false
			bundle, err := container.ProvideDatabase(cmd.Context(), dbCfg, logger)
			if err != nil {
				return err
			}
			defer bundle.Conn.Close()

			migrator := database.NewMigrator(bundle.Conn, logger)
			if dryRun {
				pending, err := migrator.Pending(cmd.Context())
				if err != nil {
					return err
				}
				for _, m := range pending {
					fmt.Fprintf(cmd.OutOrStdout(), "pending %03d_%s\n", m.Version, m.Name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d pending migrations\n", len(pending))
				return nil
			}

			applied, err := migrator.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migrations\n", applied)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

func newResetCmd(configPath *string) *cobra.Command {
	var confirm bool
	var actorID string

	cmd := &cobra.Command{
		Use:   "reset DOCUMENT_TYPE",
		Short: "Replace a document type's steps with the default template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := startContainer(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := entity.ContextWithActor(cmd.Context(), entity.Actor{ID: actorID, Role: entity.RoleAdmin})
			def, err := c.Services().Workflows.ResetToDefault(ctx, args[0], confirm)
			if err != nil {
				return err
			}
			c.Dispatcher().Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s to %d default steps (version %d)\n", def.DocumentTypeID, len(def.Steps), def.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm replacing the configured steps")
	cmd.Flags().StringVar(&actorID, "actor", "cli", "user id recorded as the author of the change")
	return cmd
}
