package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage/memory"
	"github.com/chainmint/issuer/internal/infra/storage/postgres"
	"github.com/chainmint/issuer/internal/issuance/audit"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <deployment-id>",
	Short: "Export a deployment's audit trail to stdout",
	Args:  cobra.ExactArgs(1),
	Run:   runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format (json or csv)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("export command requires a database URL")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	// One-shot invocation, no caching wanted.
	svc := audit.NewService(postgres.NewDeploymentRepo(db), memory.NewIdempotencyStore(), slog.Default())
	result, err := svc.ExportAuditTrails(ctx, audit.ExportRequest{
		DeploymentID: args[0],
		Format:       domain.ExportFormat(exportFormat),
	})
	if err != nil {
		slog.Error("Export failed", "deployment_id", args[0], "error", err)
		os.Exit(1)
	}
	if !result.Success {
		slog.Error("Export rejected", "deployment_id", args[0], "reason", result.ErrorMessage)
		os.Exit(1)
	}

	_, _ = os.Stdout.Write(result.Data)
}
