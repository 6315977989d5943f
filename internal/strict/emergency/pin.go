package emergency

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrPINTooShort is returned by HashPIN for PINs below MinPINLength.
var ErrPINTooShort = errors.New("emergency PIN is too short")

// MinPINLength is the shortest accepted PIN.
const MinPINLength = 4

// HashPIN returns the bcrypt hash stored in settings.
func HashPIN(pin string) (string, error) {
	pin = strings.TrimSpace(pin)
	if len(pin) < MinPINLength {
		return "", ErrPINTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash emergency PIN: %w", err)
	}
	return string(hash), nil
}

// VerifyPIN reports whether pin matches hash. An empty hash never matches.
func VerifyPIN(hash, pin string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(pin))) == nil
}
