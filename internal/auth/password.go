package auth

import (
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account locked due to too many failed login attempts")
	ErrAccountInactive    = errors.New("account deactivated")
)

var (
	hasUpper   = regexp.MustCompile(`[A-Z]`).MatchString
	hasLower   = regexp.MustCompile(`[a-z]`).MatchString
	hasNumber  = regexp.MustCompile(`[0-9]`).MatchString
	hasSpecial = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>_\-+=]`).MatchString
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength checks password complexity.
func ValidatePasswordStrength(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}

	checks := 0
	for _, ok := range []bool{hasUpper(password), hasLower(password), hasNumber(password), hasSpecial(password)} {
		if ok {
			checks++
		}
	}

	if checks < 3 {
		return errors.New("password must contain at least 3 of: uppercase, lowercase, numbers, special characters")
	}

	return nil
}
