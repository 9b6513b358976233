package utils

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinKeyLength is the shortest operator key HashKey accepts.
const MinKeyLength = 24

// HashKey returns the bcrypt hash of an operator API key, for the
// ADMIN_KEY_HASH setting.  cost <= 0 means bcrypt.DefaultCost.
func HashKey(plain string, cost int) (string, error) {
	if len(strings.TrimSpace(plain)) < MinKeyLength {
		return "", errors.New("admin key is too short")
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyKey compares a presented key against its bcrypt hash in constant
// time.
func VerifyKey(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
