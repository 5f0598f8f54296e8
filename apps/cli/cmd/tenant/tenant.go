package tenantcmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/domains/tenants/be/repo"
	"github.com/storeline-hq/storeline-core/domains/tenants/be/service"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// Command groups tenant registry helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant registry utilities (create/list/status)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(listCommand())
	cmd.AddCommand(statusCommand())
	return cmd
}

// withService opens the master pool and hands a registry service to fn. The
// CLI runs no router or resolver, so cache invalidation is a no-op here; a
// running API notices registry changes when its directory entry expires.
func withService(databaseURL string, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := context.Background()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return fmt.Errorf("init pool: %w", err)
	}
	defer persistence.ClosePool(pool)

	store, err := persistence.NewTenantStore(pool)
	if err != nil {
		return fmt.Errorf("init tenant store: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	svc := service.New(repo.NewPostgresRepository(store), nil, nil, logger)
	return fn(ctx, svc)
}

func createCommand() *cobra.Command {
	var (
		databaseURL string
		slug        string
		dbName      string
		dbServer    string
		plan        string
		activate    bool
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Register a tenant database in the master registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(databaseURL, func(ctx context.Context, svc *service.Service) error {
				rec, err := svc.Create(ctx, service.CreateInput{
					Slug:             slug,
					DatabaseName:     dbName,
					DatabaseServer:   dbServer,
					SubscriptionPlan: plan,
				})
				if err != nil {
					return err
				}

				if activate {
					if rec, err = svc.Activate(ctx, rec.ID); err != nil {
						return err
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s registered: %s (%s on %s)\n",
					rec.Slug, rec.ID, rec.DatabaseName, rec.DatabaseServer)
				return nil
			})
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "master database connection string")
	c.Flags().StringVar(&slug, "slug", "", "unique tenant slug")
	c.Flags().StringVar(&dbName, "db-name", "", "tenant database name (defaults to tenant_<slug>)")
	c.Flags().StringVar(&dbServer, "db-server", "", "host:port of the server holding the tenant database")
	c.Flags().StringVar(&plan, "plan", "", "subscription plan label")
	c.Flags().BoolVar(&activate, "activate", false, "activate immediately instead of leaving the tenant pending")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("slug")
	_ = c.MarkFlagRequired("db-server")

	return c
}

func listCommand() *cobra.Command {
	var (
		databaseURL string
		status      string
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(databaseURL, func(ctx context.Context, svc *service.Service) error {
				opts := service.ListOptions{PageSize: 100}
				if status != "" {
					s := tenant.StatusFromString(status)
					opts.Status = &s
				}

				result, err := svc.List(ctx, opts)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSLUG\tSTATUS\tDATABASE\tSERVER")
				for _, rec := range result.Tenants {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						rec.ID, rec.Slug, rec.Status, rec.DatabaseName, rec.DatabaseServer)
				}
				return w.Flush()
			})
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "master database connection string")
	c.Flags().StringVar(&status, "status", "", "filter by status (pending|active|suspended|deleted)")

	_ = c.MarkFlagRequired("database-url")

	return c
}

func statusCommand() *cobra.Command {
	var (
		databaseURL string
		tenantID    string
		target      string
	)

	c := &cobra.Command{
		Use:   "status",
		Short: "Move a tenant between lifecycle statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant-id: %w", err)
			}

			return withService(databaseURL, func(ctx context.Context, svc *service.Service) error {
				var rec tenant.Record
				switch tenant.StatusFromString(target) {
				case tenant.StatusActive:
					rec, err = svc.Activate(ctx, id)
				case tenant.StatusSuspended:
					rec, err = svc.Suspend(ctx, id)
				case tenant.StatusDeleted:
					err = svc.Delete(ctx, id)
					rec = tenant.Record{ID: id, Status: tenant.StatusDeleted}
				default:
					return fmt.Errorf("unsupported target status %q", target)
				}
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s is now %s.\n", rec.ID, rec.Status)
				return nil
			})
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "master database connection string")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "tenant id (uuid)")
	c.Flags().StringVar(&target, "set", "", "target status (active|suspended|deleted)")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("tenant-id")
	_ = c.MarkFlagRequired("set")

	return c
}
