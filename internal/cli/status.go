package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainmint/issuer/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status <deployment-id>",
	Short: "Show a deployment's status history",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("status command requires a database URL")
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

	repo := postgres.NewDeploymentRepo(db)
	dep, err := repo.GetDeploymentByID(ctx, args[0])
	if err != nil {
		slog.Error("Failed to load deployment", "deployment_id", args[0], "error", err)
		os.Exit(1)
	}

	fmt.Printf("Deployment %s\n", dep.DeploymentID)
	fmt.Printf("  Token:   %s (%s) on %s\n", dep.TokenName, dep.TokenType, dep.Network)
	fmt.Printf("  Status:  %s\n", dep.CurrentStatus)
	if dep.AssetIdentifier != "" {
		fmt.Printf("  Asset:   %s\n", dep.AssetIdentifier)
	}
	if dep.TransactionHash != "" {
		fmt.Printf("  TxHash:  %s\n", dep.TransactionHash)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tTIMESTAMP\tMESSAGE")
	for _, e := range dep.StatusHistory {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Status, e.Timestamp.Format(time.RFC3339), e.Message)
	}
	_ = w.Flush()
}
