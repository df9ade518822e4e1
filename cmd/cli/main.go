package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nimasrn/support-inbox/internal/config"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/internal/services"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/spf13/cobra"
)

const commandTimeout = time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inboxctl",
		Short:         "Maintenance commands for the support inbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("env")
			if path != "" {
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("env file: %w", err)
				}
			}
			return config.Load(path)
		},
	}
	root.PersistentFlags().String("env", defaultEnvPath(), "path to an env file")

	root.AddCommand(newMigrateCmd(), newReconcileCmd(), newCountsCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if _, err := os.Stat(dir); err != nil {
				return fmt.Errorf("migrations dir: %w", err)
			}
			return pg.Migrate(config.Get().PostgresWrite(), dir)
		},
	}
	cmd.Flags().String("dir", "./migrations", "directory holding the goose migrations")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the per-status counters from the messages table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMessageService(cmd, func(ctx context.Context, svc *services.MessageService) error {
				counts, err := svc.ReconcileCounters(ctx)
				if err != nil {
					return err
				}
				return printCounts(cmd, counts)
			})
		},
	}
}

func newCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Print the per-status message counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMessageService(cmd, func(ctx context.Context, svc *services.MessageService) error {
				counts, err := svc.Counts(ctx)
				if err != nil {
					return err
				}
				return printCounts(cmd, counts)
			})
		},
	}
}

func withMessageService(cmd *cobra.Command, fn func(ctx context.Context, svc *services.MessageService) error) error {
	cfg := config.Get()
	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), false)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	svc := services.NewMessageService(
		repository.NewMessageRepository(db),
		repository.NewStatusCounterRepository(db),
		repository.NewReplyRepository(db),
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	return fn(ctx, svc)
}

func printCounts(cmd *cobra.Command, counts model.StatusCounts) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Counts model.StatusCounts `json:"counts"`
		Total  int64              `json:"total"`
	}{counts, counts.Total()})
}

func defaultEnvPath() string {
	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}
	return ""
}
