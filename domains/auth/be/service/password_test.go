package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hashed, err := HashPassword("correct horse battery", MinHashCost)
	require.NoError(t, err)

	require.NoError(t, VerifyPassword(hashed, "correct horse battery"))
	require.Error(t, VerifyPassword(hashed, "wrong horse"))
}

func TestHashPasswordFloorsCost(t *testing.T) {
	hashed, err := HashPassword("pw", 4)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hashed))
	require.NoError(t, err)
	require.Equal(t, MinHashCost, cost)
}
