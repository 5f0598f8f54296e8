package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// UsersTable holds login accounts in the master database and tenant-scoped
// user rows in each tenant database; both share this shape.
const UsersTable = "users"

// Account statuses.
const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
	AccountStatusLocked   = "locked"
)

// Account represents a row in the users table.
type Account struct {
	UserID              uuid.UUID
	TenantID            *uuid.UUID // nil for legacy single-tenant accounts
	Email               string
	PasswordHash        string
	Role                string
	RawPermissions      []byte // serialized module→actions blob, may be empty
	Status              string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
}

// AccountStore exposes persistence helpers for the users table.
type AccountStore struct {
	db DB
}

// NewAccountStore wraps a pool; works against the master or a tenant database.
func NewAccountStore(db DB) (*AccountStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &AccountStore{db: db}, nil
}

const accountColumns = `u.user_id, u.tenant_id, u.email, u.password_hash, u.role, u.permissions,
        u.status, u.failed_login_attempts, u.locked_until, u.last_login_at`

// FindLoginAccount looks up a login account by email together with its tenant
// registry row. Legacy accounts carry no tenant.
func (s *AccountStore) FindLoginAccount(ctx context.Context, email string) (Account, *tenant.Record, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s,
            t.tenant_id, t.slug, t.status, t.database_name, t.database_server, t.subscription_plan
        FROM %s u
        LEFT JOIN %s t ON t.tenant_id = u.tenant_id
        WHERE lower(u.email) = lower($1)
    `, accountColumns, UsersTable, TenantsTable), strings.TrimSpace(email))

	var acc Account
	var tenantID *uuid.UUID
	var slug, status, dbName, dbServer, plan *string

	err := row.Scan(
		&acc.UserID, &acc.TenantID, &acc.Email, &acc.PasswordHash, &acc.Role, &acc.RawPermissions,
		&acc.Status, &acc.FailedLoginAttempts, &acc.LockedUntil, &acc.LastLoginAt,
		&tenantID, &slug, &status, &dbName, &dbServer, &plan,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, nil, fmt.Errorf("%w: account", apperrors.ErrNotFound)
		}
		return Account{}, nil, fmt.Errorf("find login account: %w", err)
	}

	if tenantID == nil {
		return acc, nil, nil
	}

	rec := tenant.Record{
		ID:     *tenantID,
		Status: tenant.StatusFromString(derefString(status)),
	}
	rec.Slug = derefString(slug)
	rec.DatabaseName = derefString(dbName)
	rec.DatabaseServer = derefString(dbServer)
	rec.SubscriptionPlan = derefString(plan)
	return acc, &rec, nil
}

// GetAccount fetches one user row by id.
func (s *AccountStore) GetAccount(ctx context.Context, userID uuid.UUID) (Account, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s
        FROM %s u
        WHERE u.user_id = $1
    `, accountColumns, UsersTable), userID)

	var acc Account
	err := row.Scan(
		&acc.UserID, &acc.TenantID, &acc.Email, &acc.PasswordHash, &acc.Role, &acc.RawPermissions,
		&acc.Status, &acc.FailedLoginAttempts, &acc.LockedUntil, &acc.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
		}
		return Account{}, fmt.Errorf("get account: %w", err)
	}

	return acc, nil
}

// ListAccounts pages through the users table ordered by email, returning the
// page and the total row count.
func (s *AccountStore) ListAccounts(ctx context.Context, limit, offset int) ([]Account, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, UsersTable)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
        SELECT %s
        FROM %s u
        ORDER BY u.email
        LIMIT $1 OFFSET $2
    `, accountColumns, UsersTable), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(
			&acc.UserID, &acc.TenantID, &acc.Email, &acc.PasswordHash, &acc.Role, &acc.RawPermissions,
			&acc.Status, &acc.FailedLoginAttempts, &acc.LockedUntil, &acc.LastLoginAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, total, nil
}

// UpdateRole replaces the user's role.
func (s *AccountStore) UpdateRole(ctx context.Context, userID uuid.UUID, role string) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET role = $2
        WHERE user_id = $1
    `, UsersTable), userID, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
	}
	return nil
}

// UpdatePermissions replaces the user's custom module→actions blob. A nil raw
// value clears the custom layer back to role defaults.
func (s *AccountStore) UpdatePermissions(ctx context.Context, userID uuid.UUID, raw []byte) error {
	var arg any
	if raw != nil {
		arg = string(raw)
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET permissions = $2::jsonb
        WHERE user_id = $1
    `, UsersTable), userID, arg)
	if err != nil {
		return fmt.Errorf("update permissions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
	}
	return nil
}

// UpdateAccountStatus moves the account between active and inactive.
func (s *AccountStore) UpdateAccountStatus(ctx context.Context, userID uuid.UUID, status string) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $2
        WHERE user_id = $1
    `, UsersTable), userID, status)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
	}
	return nil
}

// IncrementFailedAttempts bumps the counter in a single statement so two
// simultaneous bad-password attempts cannot lose an increment. When the new
// count reaches maxAttempts the row is locked until lockUntil. The updated
// counter and lock are returned.
func (s *AccountStore) IncrementFailedAttempts(ctx context.Context, userID uuid.UUID, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET failed_login_attempts = failed_login_attempts + 1,
            locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
            status = CASE WHEN failed_login_attempts + 1 >= $2 THEN '%s' ELSE status END
        WHERE user_id = $1
        RETURNING failed_login_attempts, locked_until
    `, UsersTable, AccountStatusLocked), userID, maxAttempts, lockUntil)

	var attempts int
	var lockedUntil *time.Time
	if err := row.Scan(&attempts, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
		}
		return 0, nil, fmt.Errorf("increment failed attempts: %w", err)
	}

	return attempts, lockedUntil, nil
}

// RecordSuccessfulLogin resets the failure counter and the lock in the same
// statement, reactivates the account and stamps the last login.
func (s *AccountStore) RecordSuccessfulLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET failed_login_attempts = 0,
            locked_until = NULL,
            status = '%s',
            last_login_at = $2
        WHERE user_id = $1
    `, UsersTable, AccountStatusActive), userID, at)
	if err != nil {
		return fmt.Errorf("record successful login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
	}
	return nil
}

// ResetLock clears an expired lock before the next password evaluation.
func (s *AccountStore) ResetLock(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET failed_login_attempts = 0,
            locked_until = NULL,
            status = '%s'
        WHERE user_id = $1
    `, UsersTable, AccountStatusActive), userID)
	if err != nil {
		return fmt.Errorf("reset lock: %w", err)
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
