package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
)

// Store-scoping tables in each tenant database.
const (
	StoreAssignmentsTable = "store_assignments"
	StorePermissionsTable = "store_permissions"
)

// StoreAssignment links a user to a store, optionally overriding role or
// permissions inside that store.
type StoreAssignment struct {
	UserID         uuid.UUID
	StoreID        uuid.UUID
	RoleOverride   *string
	RawPermissions []byte // serialized module→actions blob, may be empty
}

// StorePermission is one store-scoped module grant.
type StorePermission struct {
	StoreID    uuid.UUID
	Module     string
	RawActions []byte // serialized action list
}

// StoreAccessStore exposes persistence helpers for store scoping rows.
type StoreAccessStore struct {
	db DB
}

// NewStoreAccessStore wraps a tenant pool.
func NewStoreAccessStore(db DB) (*StoreAccessStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &StoreAccessStore{db: db}, nil
}

// ListAssignments returns every store assignment for the user.
func (s *StoreAccessStore) ListAssignments(ctx context.Context, userID uuid.UUID) ([]StoreAssignment, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
        SELECT user_id, store_id, role_override, permissions
        FROM %s
        WHERE user_id = $1
        ORDER BY store_id
    `, StoreAssignmentsTable), userID)
	if err != nil {
		return nil, fmt.Errorf("list store assignments: %w", err)
	}
	defer rows.Close()

	var assignments []StoreAssignment
	for rows.Next() {
		var a StoreAssignment
		if err := rows.Scan(&a.UserID, &a.StoreID, &a.RoleOverride, &a.RawPermissions); err != nil {
			return nil, fmt.Errorf("scan store assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store assignments: %w", err)
	}

	return assignments, nil
}

// ListStorePermissions returns the store-scoped module grants for the stores.
func (s *StoreAccessStore) ListStorePermissions(ctx context.Context, storeIDs []uuid.UUID) ([]StorePermission, error) {
	if len(storeIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
        SELECT store_id, module, actions
        FROM %s
        WHERE store_id = ANY($1)
        ORDER BY store_id, module
    `, StorePermissionsTable), storeIDs)
	if err != nil {
		return nil, fmt.Errorf("list store permissions: %w", err)
	}
	defer rows.Close()

	var perms []StorePermission
	for rows.Next() {
		var p StorePermission
		if err := rows.Scan(&p.StoreID, &p.Module, &p.RawActions); err != nil {
			return nil, fmt.Errorf("scan store permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store permissions: %w", err)
	}

	return perms, nil
}

// UpsertAssignment creates or replaces the user→store assignment row.
func (s *StoreAccessStore) UpsertAssignment(ctx context.Context, a StoreAssignment) error {
	var perms any
	if a.RawPermissions != nil {
		perms = string(a.RawPermissions)
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, store_id, role_override, permissions)
        VALUES ($1, $2, $3, $4::jsonb)
        ON CONFLICT (user_id, store_id)
        DO UPDATE SET role_override = EXCLUDED.role_override, permissions = EXCLUDED.permissions
    `, StoreAssignmentsTable), a.UserID, a.StoreID, a.RoleOverride, perms)
	if err != nil {
		return fmt.Errorf("upsert store assignment: %w", err)
	}
	return nil
}

// DeleteAssignment removes the user→store assignment if present.
func (s *StoreAccessStore) DeleteAssignment(ctx context.Context, userID, storeID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
        DELETE FROM %s
        WHERE user_id = $1 AND store_id = $2
    `, StoreAssignmentsTable), userID, storeID)
	if err != nil {
		return fmt.Errorf("delete store assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: assignment", apperrors.ErrNotFound)
	}
	return nil
}

// HasAssignment reports whether an explicit assignment row links user→store.
func (s *StoreAccessStore) HasAssignment(ctx context.Context, userID, storeID uuid.UUID) (bool, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (
            SELECT 1 FROM %s WHERE user_id = $1 AND store_id = $2
        )
    `, StoreAssignmentsTable), userID, storeID)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check store assignment: %w", err)
	}
	return exists, nil
}
