package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	authservice "github.com/storeline-hq/storeline-core/domains/auth/be/service"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
)

// Notes/constraints:
// - `bootstrap master` assumes the database itself already exists; it only
//   applies the embedded DDL and optionally seeds the first owner account.
// - `bootstrap tenant` runs against an individual tenant database and is
//   idempotent: every statement uses IF NOT EXISTS.

// Command groups schema bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Apply embedded database schemas",
		Long:  "Apply the embedded master or tenant DDL to a database, optionally seeding an initial owner account.",
	}

	cmd.AddCommand(masterCommand())
	cmd.AddCommand(tenantCommand())
	return cmd
}

func masterCommand() *cobra.Command {
	var (
		databaseURL   string
		ownerEmail    string
		ownerPassword string
	)

	c := &cobra.Command{
		Use:   "master",
		Short: "Apply the master schema (tenant registry, users, sessions)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapMasterSchema(ctx, pool); err != nil {
				return fmt.Errorf("apply master schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Master schema applied.")

			if ownerEmail == "" {
				return nil
			}
			if ownerPassword == "" {
				return fmt.Errorf("--owner-password is required when seeding an owner")
			}
			if err := seedOwner(ctx, pool, ownerEmail, ownerPassword); err != nil {
				return fmt.Errorf("seed owner: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Owner account %s ready.\n", ownerEmail)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "master database connection string")
	c.Flags().StringVar(&ownerEmail, "owner-email", "", "seed an owner account with this email")
	c.Flags().StringVar(&ownerPassword, "owner-password", "", "password for the seeded owner")

	_ = c.MarkFlagRequired("database-url")

	return c
}

func tenantCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "tenant",
		Short: "Apply the tenant schema (users, sessions, store scoping)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapTenantSchema(ctx, pool); err != nil {
				return fmt.Errorf("apply tenant schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant schema applied.")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "tenant database connection string")
	_ = c.MarkFlagRequired("database-url")

	return c
}

// seedOwner inserts or refreshes a master-database owner account.
func seedOwner(ctx context.Context, db persistence.DB, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("owner email is required")
	}

	hash, err := authservice.HashPassword(password, authservice.MinHashCost)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, email, password_hash, role, status)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT DO NOTHING
    `, persistence.UsersTable), uuid.New(), email, hash, authz.RoleOwner, persistence.AccountStatusActive)
	return err
}
