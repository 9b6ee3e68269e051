package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainmint/issuer/internal/core/domain"
	"github.com/chainmint/issuer/internal/infra/storage/postgres"
	"github.com/chainmint/issuer/internal/issuance/status"
)

var retryCmd = &cobra.Command{
	Use:   "retry <deployment-id>",
	Short: "Requeue a retryably failed deployment",
	Args:  cobra.ExactArgs(1),
	Run:   runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("retry command requires a database URL")
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

	svc := status.NewService(postgres.NewDeploymentRepo(db), nil, slog.Default())
	requeued, err := svc.UpdateStatus(ctx, args[0], domain.StatusQueued, status.UpdateParams{
		Message: "requeued by operator",
	})
	if err != nil {
		slog.Error("Requeue failed", "deployment_id", args[0], "error", err)
		os.Exit(1)
	}
	if !requeued {
		slog.Error("Deployment is not in a retryable failed state", "deployment_id", args[0])
		os.Exit(1)
	}

	fmt.Printf("Deployment %s requeued\n", args[0])
}
