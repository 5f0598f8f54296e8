package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
)

const testSecret = "unit-test-secret"

func signClaims(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier("")
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = NewTokenVerifier("   ")
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestMintAndVerifyRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)

	tenantID := uuid.New()
	tenantUserID := uuid.New()
	storeA := uuid.New()
	storeB := uuid.New()
	claims := Claims{
		UserID:         uuid.New(),
		SessionID:      uuid.New(),
		TenantID:       &tenantID,
		TenantUserID:   &tenantUserID,
		Role:           "salesperson",
		Email:          "clerk@acme.example",
		AssignedStores: []uuid.UUID{storeA, storeB},
	}

	now := time.Now()
	token, err := issuer.Mint(claims, now)
	require.NoError(t, err)

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, claims.UserID, got.UserID)
	require.Equal(t, claims.SessionID, got.SessionID)
	require.NotNil(t, got.TenantID)
	require.Equal(t, tenantID, *got.TenantID)
	require.NotNil(t, got.TenantUserID)
	require.Equal(t, tenantUserID, *got.TenantUserID)
	require.Equal(t, "salesperson", got.Role)
	require.Equal(t, "clerk@acme.example", got.Email)
	require.Equal(t, []uuid.UUID{storeA, storeB}, got.AssignedStores)
	require.WithinDuration(t, now.Add(time.Hour), got.ExpiresAt, time.Second)

	// The tenant-scoped id is the one tenant databases know the user by.
	require.Equal(t, tenantUserID, got.SubjectUserID())
}

func TestVerifyLegacyClaimNames(t *testing.T) {
	verifier, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)

	userID := uuid.New()
	sessionID := uuid.New()
	token := signClaims(t, testSecret, jwt.MapClaims{
		"userId":    userID.String(),
		"sessionId": sessionID.String(),
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, userID, got.UserID)
	require.Equal(t, sessionID, got.SessionID)
	require.Nil(t, got.TenantID)
	require.Equal(t, userID, got.SubjectUserID())
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, err := NewTokenIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)

	token, err := issuer.Mint(Claims{UserID: uuid.New(), SessionID: uuid.New()}, time.Now())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)
	verifier, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)

	token, err := issuer.Mint(Claims{UserID: uuid.New(), SessionID: uuid.New()}, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	verifier, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)

	token := signClaims(t, testSecret, jwt.MapClaims{
		"sub":        uuid.New().String(),
		"session_id": uuid.New().String(),
	})

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestVerifyRejectsMissingIdentity(t *testing.T) {
	verifier, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)

	exp := time.Now().Add(time.Hour).Unix()

	// No user id at all.
	token := signClaims(t, testSecret, jwt.MapClaims{
		"session_id": uuid.New().String(),
		"exp":        exp,
	})
	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)

	// User id present but no session id.
	token = signClaims(t, testSecret, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": exp,
	})
	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestVerifyRejectsUnexpectedAlgorithm(t *testing.T) {
	verifier, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":        uuid.New().String(),
		"session_id": uuid.New().String(),
		"exp":        time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = verifier.Verify(unsigned)
	require.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestVerifySkipsMalformedStoreEntries(t *testing.T) {
	verifier, err := NewTokenVerifier(testSecret)
	require.NoError(t, err)

	storeID := uuid.New()
	token := signClaims(t, testSecret, jwt.MapClaims{
		"sub":        uuid.New().String(),
		"session_id": uuid.New().String(),
		"exp":        time.Now().Add(time.Hour).Unix(),
		"stores":     []any{storeID.String(), "not-a-uuid", 42},
	})

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{storeID}, got.AssignedStores)
}

func TestNewTokenIssuerValidation(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour)
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = NewTokenIssuer(testSecret, 0)
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	issuer, err := NewTokenIssuer(testSecret, 30*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, issuer.TTL())
}
