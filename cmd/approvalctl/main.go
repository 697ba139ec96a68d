// approvalctl is a small operator CLI for inspecting and administering the
// approval-workflow tables directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"approvalflow/backend/internal/config"
	"approvalflow/backend/internal/repository"
	"approvalflow/backend/internal/tasks"
	"approvalflow/backend/pkg/models"
)

func main() {
	root := &cobra.Command{
		Use:          "approvalctl",
		Short:        "Administer the approval-workflow service",
		SilenceUsage: true,
	}

	root.AddCommand(templatesCmd(), instancesCmd(), grantCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*pgxpool.Pool, *repository.PostgresStore, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}
	return pool, repository.NewPostgresStore(pool), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func templatesCmd() *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Work with workflow templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List templates, optionally filtered by content type",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, store, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			templates, err := store.ListTemplates(ctx, contentType)
			if err != nil {
				return err
			}
			return printJSON(templates)
		},
	}
	list.Flags().StringVar(&contentType, "content-type", "", "filter by content type tag")

	cmd.AddCommand(list)
	return cmd
}

func instancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Work with workflow instances",
	}

	show := &cobra.Command{
		Use:   "show <instance-id>",
		Short: "Show an instance with its stage and assignment history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, store, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			detail, err := tasks.NewService(store).InstanceState(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(detail)
		},
	}

	cmd.AddCommand(show)
	return cmd
}

func grantCmd() *cobra.Command {
	var grantedBy string

	cmd := &cobra.Command{
		Use:   "grant <user-id> <permission-type> <resource-type>",
		Short: "Grant a permission to a user (idempotent)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, store, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			grant := &models.PermissionGrant{
				ID:             uuid.New().String(),
				UserID:         args[0],
				PermissionType: args[1],
				ResourceType:   args[2],
				GrantedBy:      grantedBy,
				GrantedAt:      time.Now().UTC(),
			}
			if err := store.GrantPermission(ctx, grant); err != nil {
				return err
			}
			fmt.Printf("granted %s on %s to %s\n", args[1], args[2], args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&grantedBy, "granted-by", "approvalctl", "audit identity recorded on the grant")

	return cmd
}
