// Package service implements the login workflow and its brute-force lockout
// state machine, shared by the legacy and multi-tenant authentication paths.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/auth"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// Lockout constants. A lock auto-expires: it is reset lazily by the next
// authentication attempt at/after the deadline, never by a background timer.
const (
	MaxFailedAttempts = 5
	LockoutDuration   = 15 * time.Minute
)

// InvalidCredentialsError is the generic, non-enumerating login failure.
// AttemptsRemaining is negative when the counter was not touched.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e *InvalidCredentialsError) Error() string {
	if e.AttemptsRemaining >= 0 {
		return fmt.Sprintf("invalid email or password (%d attempts remaining)", e.AttemptsRemaining)
	}
	return "invalid email or password"
}

func (e *InvalidCredentialsError) Unwrap() error {
	return apperrors.ErrAuthentication
}

// LockedError reports a locked account with the exact remaining minutes.
type LockedError struct {
	RetryAfterMinutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account is locked; try again in %d minute(s)", e.RetryAfterMinutes)
}

func (e *LockedError) Unwrap() error {
	return apperrors.ErrForbidden
}

// Domain sentinel errors for the non-counter failure branches.
var (
	ErrTenantNotActive = fmt.Errorf("%w: account's tenant is suspended", apperrors.ErrForbidden)
	ErrUserInactive    = fmt.Errorf("%w: account is inactive", apperrors.ErrForbidden)
)

// Repository abstracts the account and session rows the guard reads and
// mutates. The failed-attempt increment must be atomic in the store.
type Repository interface {
	FindLoginAccount(ctx context.Context, email string) (persistence.Account, *tenant.Record, error)
	IncrementFailedAttempts(ctx context.Context, userID uuid.UUID, maxAttempts int, lockUntil time.Time) (int, *time.Time, error)
	RecordSuccessfulLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
	ResetLock(ctx context.Context, userID uuid.UUID) error
	ListStoreAssignments(ctx context.Context, tenantID *uuid.UUID, userID uuid.UUID) ([]persistence.StoreAssignment, error)
	CreateSession(ctx context.Context, tenantID *uuid.UUID, sess persistence.Session) error
	RevokeSession(ctx context.Context, tenantID *uuid.UUID, sessionID uuid.UUID) error
}

// LoginResult is the resolved user/tenant context plus the minted token.
type LoginResult struct {
	Token          string
	UserID         uuid.UUID
	SessionID      uuid.UUID
	Role           string
	Email          string
	Tenant         *tenant.Record
	AssignedStores []uuid.UUID
	ExpiresAt      time.Time
}

// Service is the account guard.
type Service struct {
	repo   Repository
	issuer *auth.TokenIssuer
	logger *zap.Logger
	now    func() time.Time
}

// New constructs the guard.
func New(repo Repository, issuer *auth.TokenIssuer, logger *zap.Logger) *Service {
	if repo == nil {
		panic("auth repository is required")
	}
	if issuer == nil {
		panic("token issuer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, issuer: issuer, logger: logger, now: time.Now}
}

// WithClock overrides the time source (used by tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Authenticate runs the login state machine:
//
//	Active(count) → Active(count+1) on a failed password check,
//	→ Locked(until) once count+1 reaches MaxFailedAttempts,
//	→ Active(0) on success or lazily on the first attempt after until.
func (s *Service) Authenticate(ctx context.Context, email, password string) (LoginResult, error) {
	now := s.now()

	account, tenantRec, err := s.repo.FindLoginAccount(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return LoginResult{}, &InvalidCredentialsError{AttemptsRemaining: -1}
		}
		return LoginResult{}, err
	}

	// Tenant and user status are terminal failures; the counter stays put.
	if tenantRec != nil && !tenantRec.Active() {
		return LoginResult{}, ErrTenantNotActive
	}
	if account.Status == persistence.AccountStatusInactive {
		return LoginResult{}, ErrUserInactive
	}

	if account.LockedUntil != nil {
		if account.LockedUntil.After(now) {
			return LoginResult{}, &LockedError{RetryAfterMinutes: remainingMinutes(*account.LockedUntil, now)}
		}
		// Lock expired: reset before evaluating the new password.
		if err := s.repo.ResetLock(ctx, account.UserID); err != nil {
			return LoginResult{}, err
		}
		account.FailedLoginAttempts = 0
	}

	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		return LoginResult{}, s.recordFailure(ctx, account.UserID, now)
	}

	if err := s.repo.RecordSuccessfulLogin(ctx, account.UserID, now); err != nil {
		return LoginResult{}, err
	}

	return s.openSession(ctx, account, tenantRec, now)
}

func (s *Service) recordFailure(ctx context.Context, userID uuid.UUID, now time.Time) error {
	attempts, lockedUntil, err := s.repo.IncrementFailedAttempts(ctx, userID, MaxFailedAttempts, now.Add(LockoutDuration))
	if err != nil {
		return err
	}

	if attempts >= MaxFailedAttempts && lockedUntil != nil {
		s.logger.Warn("account locked after repeated failures",
			zap.String("user_id", userID.String()),
			zap.Int("attempts", attempts),
		)
		return &LockedError{RetryAfterMinutes: remainingMinutes(*lockedUntil, now)}
	}

	return &InvalidCredentialsError{AttemptsRemaining: MaxFailedAttempts - attempts}
}

func (s *Service) openSession(ctx context.Context, account persistence.Account, tenantRec *tenant.Record, now time.Time) (LoginResult, error) {
	sessionID := uuid.New()
	var tenantID *uuid.UUID
	if tenantRec != nil {
		tenantID = &tenantRec.ID
	}

	sess := persistence.Session{
		SessionID: sessionID,
		UserID:    account.UserID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.issuer.TTL()),
	}
	if err := s.repo.CreateSession(ctx, tenantID, sess); err != nil {
		return LoginResult{}, err
	}

	// The token carries the explicit store-assignment list so store scoping
	// can restrict the session without a per-request lookup. Owner and
	// company manager bypass store checks, so the query is skipped for them.
	var assigned []uuid.UUID
	if account.Role != authz.RoleOwner && account.Role != authz.RoleCompanyManager {
		assignments, err := s.repo.ListStoreAssignments(ctx, tenantID, account.UserID)
		if err != nil {
			return LoginResult{}, err
		}
		for _, a := range assignments {
			assigned = append(assigned, a.StoreID)
		}
	}

	claims := auth.Claims{
		UserID:         account.UserID,
		SessionID:      sessionID,
		TenantID:       tenantID,
		Role:           account.Role,
		Email:          account.Email,
		AssignedStores: assigned,
	}
	token, err := s.issuer.Mint(claims, now)
	if err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("login succeeded",
		zap.String("user_id", account.UserID.String()),
		zap.Bool("multi_tenant", tenantID != nil),
	)

	return LoginResult{
		Token:          token,
		UserID:         account.UserID,
		SessionID:      sessionID,
		Role:           account.Role,
		Email:          account.Email,
		Tenant:         tenantRec,
		AssignedStores: assigned,
		ExpiresAt:      sess.ExpiresAt,
	}, nil
}

// Logout revokes the principal's session.
func (s *Service) Logout(ctx context.Context, principal *auth.Principal) error {
	if principal == nil {
		return fmt.Errorf("%w: missing principal", apperrors.ErrAuthentication)
	}
	return s.repo.RevokeSession(ctx, principal.TenantID, principal.SessionID)
}

// remainingMinutes rounds up so "14m30s left" reports 15, never 14.
func remainingMinutes(until, now time.Time) int {
	mins := int(math.Ceil(until.Sub(now).Minutes()))
	if mins < 1 {
		mins = 1
	}
	return mins
}
