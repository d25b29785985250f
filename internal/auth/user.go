package auth

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role gates what an account may do: admins manage users and settings,
// operators may clear telemetry and edit columns, viewers only read.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// ValidRoles is the set of roles accepted on user create and update.
var ValidRoles = map[Role]bool{
	RoleAdmin:    true,
	RoleOperator: true,
	RoleViewer:   true,
}

// minPasswordLen is the shortest password accepted at setup or change.
const minPasswordLen = 8

// User is an operator account on the dashboard.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never leaves the server
	Role         Role      `json:"role"`
	AuthProvider string    `json:"auth_provider"`
	OIDCSubject  string    `json:"oidc_subject,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login,omitempty"`
	Disabled     bool      `json:"disabled"`

	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	TOTPEnabled         bool       `json:"totp_enabled"`
	TOTPVerified        bool       `json:"-"`
}

// HashPassword bcrypt-hashes a password. A cost of zero selects
// bcrypt.DefaultCost; tests pass a low cost to stay fast.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces the minimum password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return nil
}
