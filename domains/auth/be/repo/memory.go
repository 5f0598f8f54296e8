package repo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// MemoryRepository is a simple in-memory implementation suitable for tests
// and early development.
type MemoryRepository struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]persistence.Account
	tenants     map[uuid.UUID]tenant.Record
	sessions    map[uuid.UUID]persistence.Session
	assignments map[uuid.UUID][]persistence.StoreAssignment
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:    make(map[uuid.UUID]persistence.Account),
		tenants:     make(map[uuid.UUID]tenant.Record),
		sessions:    make(map[uuid.UUID]persistence.Session),
		assignments: make(map[uuid.UUID][]persistence.StoreAssignment),
	}
}

// PutAccount seeds an account, and its tenant when rec is non-zero.
func (r *MemoryRepository) PutAccount(acc persistence.Account, rec *tenant.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.UserID] = acc
	if rec != nil {
		r.tenants[rec.ID] = *rec
	}
}

// PutAssignment seeds a store assignment for the user.
func (r *MemoryRepository) PutAssignment(a persistence.StoreAssignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[a.UserID] = append(r.assignments[a.UserID], a)
}

// Account returns the stored account for assertions.
func (r *MemoryRepository) Account(userID uuid.UUID) (persistence.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[userID]
	return acc, ok
}

// SessionIDs lists stored session ids for assertions.
func (r *MemoryRepository) SessionIDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Session returns the stored session for assertions.
func (r *MemoryRepository) Session(sessionID uuid.UUID) (persistence.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	return sess, ok
}

func (r *MemoryRepository) FindLoginAccount(ctx context.Context, email string) (persistence.Account, *tenant.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, acc := range r.accounts {
		if strings.EqualFold(acc.Email, email) {
			if acc.TenantID != nil {
				rec, ok := r.tenants[*acc.TenantID]
				if !ok {
					return persistence.Account{}, nil, fmt.Errorf("%w: tenant", apperrors.ErrNotFound)
				}
				return acc, &rec, nil
			}
			return acc, nil, nil
		}
	}
	return persistence.Account{}, nil, fmt.Errorf("%w: account", apperrors.ErrNotFound)
}

func (r *MemoryRepository) IncrementFailedAttempts(ctx context.Context, userID uuid.UUID, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
	}

	acc.FailedLoginAttempts++
	if acc.FailedLoginAttempts >= maxAttempts {
		until := lockUntil
		acc.LockedUntil = &until
		acc.Status = persistence.AccountStatusLocked
	}
	r.accounts[userID] = acc
	return acc.FailedLoginAttempts, acc.LockedUntil, nil
}

func (r *MemoryRepository) RecordSuccessfulLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
	}

	acc.FailedLoginAttempts = 0
	acc.LockedUntil = nil
	acc.Status = persistence.AccountStatusActive
	stamp := at
	acc.LastLoginAt = &stamp
	r.accounts[userID] = acc
	return nil
}

func (r *MemoryRepository) ResetLock(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.accounts[userID]
	if !ok {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, userID)
	}

	acc.FailedLoginAttempts = 0
	acc.LockedUntil = nil
	acc.Status = persistence.AccountStatusActive
	r.accounts[userID] = acc
	return nil
}

func (r *MemoryRepository) ListStoreAssignments(ctx context.Context, tenantID *uuid.UUID, userID uuid.UUID) ([]persistence.StoreAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]persistence.StoreAssignment, len(r.assignments[userID]))
	copy(out, r.assignments[userID])
	return out, nil
}

func (r *MemoryRepository) CreateSession(ctx context.Context, tenantID *uuid.UUID, sess persistence.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.SessionID] = sess
	return nil
}

func (r *MemoryRepository) RevokeSession(ctx context.Context, tenantID *uuid.UUID, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	now := time.Now()
	sess.RevokedAt = &now
	r.sessions[sessionID] = sess
	return nil
}
