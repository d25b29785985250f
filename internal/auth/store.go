package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// UserStore persists accounts, refresh tokens, lockout state, and the
// MFA tables in the shared SQLite database.
type UserStore struct {
	db *sql.DB
}

// NewUserStore runs the auth migrations and wraps the shared handle.
func NewUserStore(ctx context.Context, store plugin.Store) (*UserStore, error) {
	if err := store.Migrate(ctx, "auth", migrations); err != nil {
		return nil, fmt.Errorf("auth migrations: %w", err)
	}
	return &UserStore{db: store.DB()}, nil
}

// exec runs a statement and wraps its error with op for context.
func (s *UserStore) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RefreshToken is a stored session token. Only the hash of the value the
// client holds is persisted.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// userColumns is the column list every user SELECT shares, in scanUser
// order.
const userColumns = `id, username, email, password_hash, role, auth_provider, oidc_subject,
	created_at, last_login, disabled, failed_login_attempts, locked_until, totp_enabled, totp_verified`

func (s *UserStore) CreateUser(ctx context.Context, u *User) error {
	return s.exec(ctx, "create user", `
		INSERT INTO auth_users (id, username, email, password_hash, role, auth_provider, oidc_subject, created_at, disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role),
		u.AuthProvider, u.OIDCSubject, u.CreatedAt, u.Disabled,
	)
}

func (s *UserStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM auth_users WHERE id = ?`, id))
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM auth_users WHERE username = ?`, username))
}

// ListUsers returns every account, oldest first.
func (s *UserStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM auth_users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser writes the admin-editable fields. Username and credentials
// have their own paths.
func (s *UserStore) UpdateUser(ctx context.Context, u *User) error {
	return s.exec(ctx, "update user",
		`UPDATE auth_users SET email = ?, role = ?, disabled = ? WHERE id = ?`,
		u.Email, string(u.Role), u.Disabled, u.ID,
	)
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, userID string) error {
	return s.exec(ctx, "update last login",
		`UPDATE auth_users SET last_login = ? WHERE id = ?`,
		time.Now().UTC(), userID,
	)
}

// DeleteUser removes an account. Returns sql.ErrNoRows when the ID does
// not exist so handlers can answer 404.
func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountUsers is used to detect the first-run state (zero accounts).
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_users`).Scan(&count)
	return count, err
}

func (s *UserStore) SaveRefreshToken(ctx context.Context, id, userID, tokenHash string, expiresAt time.Time) error {
	return s.exec(ctx, "save refresh token", `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, userID, tokenHash, expiresAt, time.Now().UTC(),
	)
}

func (s *UserStore) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var rt RefreshToken
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at, revoked
		FROM auth_refresh_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt, &rt.Revoked)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *UserStore) RevokeRefreshToken(ctx context.Context, id string) error {
	return s.exec(ctx, "revoke refresh token",
		`UPDATE auth_refresh_tokens SET revoked = 1 WHERE id = ?`, id)
}

// RevokeUserRefreshTokens kills every session for one account, used on
// disable and password change.
func (s *UserStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return s.exec(ctx, "revoke user sessions",
		`UPDATE auth_refresh_tokens SET revoked = 1 WHERE user_id = ?`, userID)
}

// CleanExpiredTokens drops dead rows; called from the maintenance loop.
func (s *UserStore) CleanExpiredTokens(ctx context.Context) error {
	return s.exec(ctx, "clean expired tokens",
		`DELETE FROM auth_refresh_tokens WHERE expires_at < ? OR revoked = 1`,
		time.Now().UTC(),
	)
}

// RecordFailedLogin bumps the failure counter and returns the new count
// so the service can decide whether to lock.
func (s *UserStore) RecordFailedLogin(ctx context.Context, userID string) (attempts int, err error) {
	err = s.exec(ctx, "record failed login",
		`UPDATE auth_users SET failed_login_attempts = failed_login_attempts + 1 WHERE id = ?`,
		userID)
	if err != nil {
		return 0, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT failed_login_attempts FROM auth_users WHERE id = ?`, userID).Scan(&attempts)
	return attempts, err
}

func (s *UserStore) LockAccount(ctx context.Context, userID string, lockedUntil time.Time) error {
	return s.exec(ctx, "lock account",
		`UPDATE auth_users SET locked_until = ? WHERE id = ?`,
		lockedUntil, userID)
}

// ClearFailedLogins resets the counter and lifts any lock, on successful
// login.
func (s *UserStore) ClearFailedLogins(ctx context.Context, userID string) error {
	return s.exec(ctx, "clear failed logins",
		`UPDATE auth_users SET failed_login_attempts = 0, locked_until = NULL WHERE id = ?`,
		userID)
}

// GetTOTPSecret returns the stored (encrypted) secret, empty when the
// account has none.
func (s *UserStore) GetTOTPSecret(ctx context.Context, userID string) (string, error) {
	var secret sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT totp_secret FROM auth_users WHERE id = ?`, userID).Scan(&secret)
	if err != nil {
		return "", fmt.Errorf("get TOTP secret: %w", err)
	}
	return secret.String, nil
}

func (s *UserStore) SetTOTPSecret(ctx context.Context, userID, encryptedSecret string) error {
	return s.exec(ctx, "set TOTP secret",
		`UPDATE auth_users SET totp_secret = ? WHERE id = ?`,
		encryptedSecret, userID)
}

func (s *UserStore) EnableTOTP(ctx context.Context, userID string) error {
	return s.exec(ctx, "enable TOTP",
		`UPDATE auth_users SET totp_enabled = 1, totp_verified = 1 WHERE id = ?`,
		userID)
}

// DisableTOTP removes the second factor entirely: flags, secret, and any
// remaining recovery codes.
func (s *UserStore) DisableTOTP(ctx context.Context, userID string) error {
	err := s.exec(ctx, "disable TOTP",
		`UPDATE auth_users SET totp_enabled = 0, totp_verified = 0, totp_secret = NULL WHERE id = ?`,
		userID)
	if err != nil {
		return err
	}
	return s.exec(ctx, "delete recovery codes",
		`DELETE FROM auth_recovery_codes WHERE user_id = ?`, userID)
}

// SaveRecoveryCodes replaces the account's recovery codes with a fresh
// set of hashes.
func (s *UserStore) SaveRecoveryCodes(ctx context.Context, userID string, codeHashes []string) error {
	err := s.exec(ctx, "clear old recovery codes",
		`DELETE FROM auth_recovery_codes WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	for _, hash := range codeHashes {
		err := s.exec(ctx, "save recovery code",
			`INSERT INTO auth_recovery_codes (id, user_id, code_hash) VALUES (?, ?, ?)`,
			uuid.New().String(), userID, hash)
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateRecoveryCode reports whether the hash matches an unused code
// for the account.
func (s *UserStore) ValidateRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_recovery_codes WHERE user_id = ? AND code_hash = ? AND used = 0`,
		userID, codeHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("validate recovery code: %w", err)
	}
	return count > 0, nil
}

func (s *UserStore) MarkRecoveryCodeUsed(ctx context.Context, codeHash string) error {
	return s.exec(ctx, "mark recovery code used",
		`UPDATE auth_recovery_codes SET used = 1 WHERE code_hash = ?`, codeHash)
}

// SaveMFAToken records an issued challenge token so it can be revoked
// after one use.
func (s *UserStore) SaveMFAToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	return s.exec(ctx, "save MFA token",
		`INSERT INTO auth_mfa_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		tokenHash, userID, expiresAt)
}

// GetMFAToken resolves a challenge token hash to its user, refusing
// expired entries.
func (s *UserStore) GetMFAToken(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM auth_mfa_tokens WHERE token_hash = ?`,
		tokenHash).Scan(&userID, &expiresAt)
	if err != nil {
		return "", fmt.Errorf("get MFA token: %w", err)
	}
	if expiresAt.Before(time.Now()) {
		return "", fmt.Errorf("MFA token expired")
	}
	return userID, nil
}

func (s *UserStore) RevokeMFAToken(ctx context.Context, tokenHash string) error {
	return s.exec(ctx, "revoke MFA token",
		`DELETE FROM auth_mfa_tokens WHERE token_hash = ?`, tokenHash)
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner) (*User, error) {
	var (
		u            User
		role         string
		lastLogin    sql.NullTime
		lockedUntil  sql.NullTime
		passwordHash sql.NullString
		oidcSubject  sql.NullString
	)

	err := sc.Scan(&u.ID, &u.Username, &u.Email, &passwordHash, &role,
		&u.AuthProvider, &oidcSubject, &u.CreatedAt, &lastLogin, &u.Disabled,
		&u.FailedLoginAttempts, &lockedUntil, &u.TOTPEnabled, &u.TOTPVerified)
	if err != nil {
		return nil, err
	}

	u.Role = Role(role)
	u.PasswordHash = passwordHash.String
	u.OIDCSubject = oidcSubject.String
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	return &u, nil
}

var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "user accounts",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE auth_users (
					id            TEXT PRIMARY KEY,
					username      TEXT NOT NULL UNIQUE,
					email         TEXT NOT NULL UNIQUE,
					password_hash TEXT,
					role          TEXT NOT NULL DEFAULT 'viewer',
					auth_provider TEXT NOT NULL DEFAULT 'local',
					oidc_subject  TEXT,
					created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					last_login    DATETIME,
					disabled      INTEGER NOT NULL DEFAULT 0
				)`)
			return err
		},
	},
	{
		Version:     2,
		Description: "refresh token sessions",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE auth_refresh_tokens (
					id         TEXT PRIMARY KEY,
					user_id    TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					token_hash TEXT NOT NULL UNIQUE,
					expires_at DATETIME NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					revoked    INTEGER NOT NULL DEFAULT 0
				)`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`CREATE INDEX idx_refresh_tokens_user ON auth_refresh_tokens(user_id)`)
			return err
		},
	},
	{
		Version:     3,
		Description: "brute-force lockout columns",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE auth_users ADD COLUMN failed_login_attempts INTEGER NOT NULL DEFAULT 0`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`ALTER TABLE auth_users ADD COLUMN locked_until DATETIME`)
			return err
		},
	},
	{
		Version:     4,
		Description: "TOTP second factor",
		Up: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				`ALTER TABLE auth_users ADD COLUMN totp_secret TEXT`,
				`ALTER TABLE auth_users ADD COLUMN totp_enabled INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE auth_users ADD COLUMN totp_verified INTEGER NOT NULL DEFAULT 0`,
				`CREATE TABLE auth_recovery_codes (
					id         TEXT PRIMARY KEY,
					user_id    TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
					code_hash  TEXT NOT NULL,
					used       INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_recovery_codes_user ON auth_recovery_codes(user_id)`,
				`CREATE TABLE auth_mfa_tokens (
					token_hash TEXT PRIMARY KEY,
					user_id    TEXT NOT NULL,
					expires_at DATETIME NOT NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
