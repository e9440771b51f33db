package auth

import (
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	MaxFailedLoginAttempts = 10
	AccountLockoutDuration = 15 * time.Minute
)

// IncrementFailedLoginAttempts increments the failed login counter and locks
// the account once MaxFailedLoginAttempts is reached.
func IncrementFailedLoginAttempts(db *sqlx.DB, username string) error {
	lockUntil := time.Now().UTC().Add(AccountLockoutDuration).Format("2006-01-02 15:04:05")
	_, err := db.Exec(`
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= ? THEN ?
		        ELSE locked_until
		    END
		WHERE username = ?`, MaxFailedLoginAttempts, lockUntil, username)
	return err
}

// ResetFailedLoginAttempts resets the failed login counter after successful login.
func ResetFailedLoginAttempts(db *sqlx.DB, username string) error {
	_, err := db.Exec(`
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE username = ?`, username)
	return err
}

// IsAccountLocked checks if an account is currently locked.
func IsAccountLocked(db *sqlx.DB, username string) (bool, error) {
	var lockedUntil *string
	err := db.Get(&lockedUntil, "SELECT locked_until FROM users WHERE username = ?", username)
	if err != nil {
		return false, err
	}

	if lockedUntil == nil {
		return false, nil
	}

	lockTime, err := time.Parse("2006-01-02 15:04:05", *lockedUntil)
	if err != nil {
		return false, nil
	}

	if time.Now().UTC().Before(lockTime) {
		return true, nil
	}

	return false, ResetFailedLoginAttempts(db, username)
}
