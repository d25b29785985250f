package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sentinel errors handlers map onto HTTP statuses.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrUserExists         = errors.New("username or email already exists")
	ErrSetupComplete      = errors.New("setup already completed")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrMFANotConfigured   = errors.New("MFA is not configured for this account")
	ErrInvalidMFACode     = errors.New("invalid MFA code")
)

// Account lockout policy.
const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
	mfaTokenTTL     = 5 * time.Minute
	recoveryCodeCnt = 10
)

// MFARequiredError signals that password authentication succeeded but a
// TOTP code must be supplied to complete the login. The embedded token is
// exchanged together with the code via VerifyMFA.
type MFARequiredError struct {
	MFAToken string
}

func (e *MFARequiredError) Error() string { return "multi-factor authentication required" }

// TokenPair is what a successful login or refresh hands the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // access token TTL in seconds
}

// Service ties password checks, token issuance, TOTP, and the user
// store together behind the auth endpoints.
type Service struct {
	store  *UserStore
	tokens *TokenService
	totp   *TOTPService
	logger *zap.Logger
}

func NewService(store *UserStore, tokens *TokenService, totp *TOTPService, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		totp:   totp,
		logger: logger,
	}
}

// Tokens hands the middleware the token validator.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Login authenticates a user and returns a token pair. Accounts with TOTP
// enabled get a *MFARequiredError carrying a short-lived MFA token instead;
// the login completes via VerifyMFA.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.Disabled {
		return nil, ErrUserDisabled
	}
	if user.LockedUntil != nil && user.LockedUntil.After(time.Now()) {
		return nil, ErrAccountLocked
	}

	if !CheckPassword(user.PasswordHash, password) {
		attempts, recordErr := s.store.RecordFailedLogin(ctx, user.ID)
		if recordErr == nil && attempts >= maxFailedLogins {
			_ = s.store.LockAccount(ctx, user.ID, time.Now().Add(lockoutDuration))
			s.logger.Warn("account locked after repeated failures", zap.String("user_id", user.ID))
		}
		return nil, ErrInvalidCredentials
	}

	_ = s.store.ClearFailedLogins(ctx, user.ID)

	if user.TOTPEnabled && user.TOTPVerified {
		mfaToken, err := s.beginMFAChallenge(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return nil, &MFARequiredError{MFAToken: mfaToken}
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	_ = s.store.UpdateLastLogin(ctx, user.ID)
	s.logger.Info("user logged in", zap.String("username", username), zap.String("user_id", user.ID))
	return pair, nil
}

// beginMFAChallenge issues a short-lived MFA token and records its hash so
// it can only be redeemed once.
func (s *Service) beginMFAChallenge(ctx context.Context, userID string) (string, error) {
	token, err := s.totp.IssueMFAToken(userID, mfaTokenTTL)
	if err != nil {
		return "", err
	}
	if err := s.store.SaveMFAToken(ctx, HashToken(token), userID, time.Now().Add(mfaTokenTTL)); err != nil {
		return "", fmt.Errorf("save MFA token: %w", err)
	}
	return token, nil
}

// VerifyMFA completes an MFA login: validates the MFA token, then the TOTP
// code (or an unused recovery code), and returns a token pair.
func (s *Service) VerifyMFA(ctx context.Context, mfaToken, code string) (*TokenPair, error) {
	userID, err := s.totp.ValidateMFAToken(mfaToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	tokenHash := HashToken(mfaToken)
	storedUserID, err := s.store.GetMFAToken(ctx, tokenHash)
	if err != nil || storedUserID != userID {
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user for MFA: %w", err)
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}

	if !s.checkMFACode(ctx, user, code) {
		return nil, ErrInvalidMFACode
	}

	_ = s.store.RevokeMFAToken(ctx, tokenHash)
	_ = s.store.UpdateLastLogin(ctx, user.ID)

	s.logger.Info("user completed MFA login", zap.String("user_id", user.ID))
	return s.issueTokenPair(ctx, user)
}

// checkMFACode validates a TOTP code, falling back to single-use recovery codes.
func (s *Service) checkMFACode(ctx context.Context, user *User, code string) bool {
	encrypted, err := s.store.GetTOTPSecret(ctx, user.ID)
	if err == nil && encrypted != "" {
		secret, err := s.totp.Decrypt(encrypted)
		if err == nil && s.totp.Validate(code, secret) {
			return true
		}
	}

	codeHash := HashToken(code)
	ok, err := s.store.ValidateRecoveryCode(ctx, user.ID, codeHash)
	if err != nil || !ok {
		return false
	}
	_ = s.store.MarkRecoveryCodeUsed(ctx, codeHash)
	return true
}

// SetupTOTP generates a TOTP secret for a user and stores it encrypted.
// The secret and otpauth URL are returned so the user can enroll an
// authenticator app. TOTP stays inactive until ActivateTOTP confirms a code.
func (s *Service) SetupTOTP(ctx context.Context, userID string) (secret, otpauthURL string, err error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrUserNotFound
		}
		return "", "", err
	}

	secret, otpauthURL, err = s.totp.GenerateSecret(user.Username, "HashFleet")
	if err != nil {
		return "", "", err
	}

	encrypted, err := s.totp.Encrypt(secret)
	if err != nil {
		return "", "", err
	}
	if err := s.store.SetTOTPSecret(ctx, userID, encrypted); err != nil {
		return "", "", err
	}

	return secret, otpauthURL, nil
}

// ActivateTOTP verifies a code against the pending secret, enables TOTP for
// the account, and returns freshly generated recovery codes in plaintext.
func (s *Service) ActivateTOTP(ctx context.Context, userID, code string) ([]string, error) {
	encrypted, err := s.store.GetTOTPSecret(ctx, userID)
	if err != nil {
		return nil, err
	}
	if encrypted == "" {
		return nil, ErrMFANotConfigured
	}

	secret, err := s.totp.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt TOTP secret: %w", err)
	}
	if !s.totp.Validate(code, secret) {
		return nil, ErrInvalidMFACode
	}

	if err := s.store.EnableTOTP(ctx, userID); err != nil {
		return nil, err
	}

	plain, hashed, err := s.totp.GenerateRecoveryCodes(recoveryCodeCnt)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRecoveryCodes(ctx, userID, hashed); err != nil {
		return nil, err
	}

	s.logger.Info("TOTP enabled", zap.String("user_id", userID))
	return plain, nil
}

// DeactivateTOTP disables TOTP for a user after validating a current code
// or recovery code.
func (s *Service) DeactivateTOTP(ctx context.Context, userID, code string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if !user.TOTPEnabled {
		return ErrMFANotConfigured
	}
	if !s.checkMFACode(ctx, user, code) {
		return ErrInvalidMFACode
	}

	s.logger.Info("TOTP disabled", zap.String("user_id", userID))
	return s.store.DisableTOTP(ctx, userID)
}

// Setup creates the first admin account. Refused once any user exists.
func (s *Service) Setup(ctx context.Context, username, email, password string) (*User, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil, ErrSetupComplete
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password, 0)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		AuthProvider: "local",
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("initial admin account created", zap.String("username", username))
	return user, nil
}

// Refresh rotates a refresh token: the presented token is revoked and
// a new pair issued, so a replayed token fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tokenHash := HashToken(refreshToken)
	rt, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if rt.Revoked || rt.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidToken
	}

	_ = s.store.RevokeRefreshToken(ctx, rt.ID)

	user, err := s.store.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user for refresh: %w", err)
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}

	return s.issueTokenPair(ctx, user)
}

// Logout revokes a session's refresh token. Unknown tokens succeed
// silently so logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := HashToken(refreshToken)
	rt, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	return s.store.RevokeRefreshToken(ctx, rt.ID)
}

// NeedsSetup reports the first-run state: no accounts yet.
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// GetUser fetches one account, translating a missing row into
// ErrUserNotFound for the handler's 404.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser changes an account's email, role, and disabled flag.
// Disabling an account also kills its open sessions.
func (s *Service) UpdateUser(ctx context.Context, id, email string, role Role, disabled bool) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	user.Email = email
	user.Role = role
	user.Disabled = disabled

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	if disabled {
		_ = s.store.RevokeUserRefreshTokens(ctx, id)
	}

	return user, nil
}

// DeleteUser removes an account.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// issueTokenPair signs an access token and persists the hash of a new
// refresh token.
func (s *Service) issueTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	rawRefresh, hashRefresh, expiresAt, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	tokenID := uuid.New().String()
	if err := s.store.SaveRefreshToken(ctx, tokenID, user.ID, hashRefresh, expiresAt); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresIn:    int(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}
