package service

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinHashCost is the floor for the adaptive hash work factor.
const MinHashCost = 10

// HashPassword hashes with bcrypt at the given cost, floored at MinHashCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < MinHashCost {
		cost = MinHashCost
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword compares a stored hash against a candidate password.
func VerifyPassword(hashed, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}
