package persistence

import (
	"context"
	"fmt"
	"strings"

	sqlassets "github.com/storeline-hq/storeline-core/database"
)

// BootstrapMasterSchema applies the master-registry DDL: the admin schema
// with the tenant registry, plus the login accounts and legacy sessions
// tables. Statements are idempotent, so the helper is safe to re-run; it is
// intended for CLI bootstrap and integration tests.
func BootstrapMasterSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("bootstrap master schema: db is required")
	}
	return applyStatements(ctx, db,
		sqlassets.MasterTenantsSQL,
		sqlassets.MasterUsersSQL,
		sqlassets.MasterSessionsSQL,
	)
}

// BootstrapTenantSchema applies the per-tenant DDL (users, sessions and
// store-scoping tables) to a freshly provisioned tenant database.
func BootstrapTenantSchema(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("bootstrap tenant schema: db is required")
	}
	return applyStatements(ctx, db,
		sqlassets.TenantUsersSQL,
		sqlassets.TenantSessionsSQL,
		sqlassets.TenantStoreAccessSQL,
	)
}

func applyStatements(ctx context.Context, db DB, assets ...string) error {
	for _, asset := range assets {
		for _, stmt := range splitStatements(asset) {
			if _, err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply ddl: %w", err)
			}
		}
	}
	return nil
}

// splitStatements splits embedded DDL on statement boundaries. The bootstrap
// assets contain no string literals with semicolons, so a plain split holds.
func splitStatements(ddl string) []string {
	raw := strings.Split(ddl, ";")
	statements := make([]string, 0, len(raw))
	for _, candidate := range raw {
		stmt := strings.TrimSpace(candidate)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
