package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashfleet/hashfleet/internal/store"
	"github.com/pquerna/otp/totp"
)

const (
	adminName  = "fleetadmin"
	adminEmail = "ops@farm.example"
	adminPass  = "belt-3-hashboard"
)

// authStack wires a Service against an in-memory store with the auth
// migrations applied.
type authStack struct {
	users *UserStore
	svc   *Service
}

func newAuthStack(t *testing.T) *authStack {
	t.Helper()

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users, err := NewUserStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}

	key := []byte("test-secret-key-32bytes-long!!")
	tokens := NewTokenService(key, 15*time.Minute, 7*24*time.Hour)
	svc := NewService(users, tokens, NewTOTPService(key), testLogger())
	return &authStack{users: users, svc: svc}
}

// seedAdmin runs first-time setup and returns the created account.
func (a *authStack) seedAdmin(t *testing.T) *User {
	t.Helper()
	user, err := a.svc.Setup(context.Background(), adminName, adminEmail, adminPass)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return user
}

func TestSetup_CreatesFirstAdmin(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	needs, err := a.svc.NeedsSetup(ctx)
	if err != nil {
		t.Fatalf("NeedsSetup: %v", err)
	}
	if !needs {
		t.Fatal("fresh install should report NeedsSetup=true")
	}

	user := a.seedAdmin(t)
	if user.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", user.Role, RoleAdmin)
	}
	if user.Username != adminName {
		t.Errorf("Username = %q, want %q", user.Username, adminName)
	}

	needs, err = a.svc.NeedsSetup(ctx)
	if err != nil {
		t.Fatalf("NeedsSetup after setup: %v", err)
	}
	if needs {
		t.Error("NeedsSetup should be false once an account exists")
	}
}

func TestSetup_RefusedOnceAnAccountExists(t *testing.T) {
	a := newAuthStack(t)
	a.seedAdmin(t)

	_, err := a.svc.Setup(context.Background(), "second", "second@farm.example", adminPass)
	if !errors.Is(err, ErrSetupComplete) {
		t.Errorf("second Setup err = %v, want ErrSetupComplete", err)
	}
}

func TestSetup_RejectsShortPassword(t *testing.T) {
	a := newAuthStack(t)

	_, err := a.svc.Setup(context.Background(), adminName, adminEmail, "tiny!")
	if err == nil {
		t.Error("a five-character password should be rejected")
	}
}

func TestLogin_IssuesTokenPair(t *testing.T) {
	a := newAuthStack(t)
	a.seedAdmin(t)

	pair, err := a.svc.Login(context.Background(), adminName, adminPass)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("token pair is incomplete")
	}
	if pair.ExpiresIn <= 0 {
		t.Errorf("ExpiresIn = %d, want > 0", pair.ExpiresIn)
	}
}

func TestLogin_RejectionsShareOneError(t *testing.T) {
	a := newAuthStack(t)
	a.seedAdmin(t)

	// Wrong password and unknown username must be indistinguishable.
	if _, err := a.svc.Login(context.Background(), adminName, "not-the-passphrase"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := a.svc.Login(context.Background(), "ghost", adminPass); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	user := a.seedAdmin(t)
	user.Disabled = true
	if err := a.users.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if _, err := a.svc.Login(ctx, adminName, adminPass); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("Login err = %v, want ErrUserDisabled", err)
	}
}

func TestRefresh_RotatesAndRevokes(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	a.seedAdmin(t)
	first, err := a.svc.Login(ctx, adminName, adminPass)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	second, err := a.svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("Refresh handed back the same refresh token")
	}

	// The rotated-out token is dead.
	if _, err := a.svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("replayed token err = %v, want ErrInvalidToken", err)
	}

	// The current token still works.
	third, err := a.svc.Refresh(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh with current token: %v", err)
	}
	if third.AccessToken == "" {
		t.Error("rotation produced an empty access token")
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	a := newAuthStack(t)

	_, err := a.svc.Refresh(context.Background(), "not-a-token-we-issued")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Refresh err = %v, want ErrInvalidToken", err)
	}
}

func TestLogout_KillsTheSession(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	a.seedAdmin(t)
	pair, err := a.svc.Login(ctx, adminName, adminPass)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := a.svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := a.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Refresh after logout err = %v, want ErrInvalidToken", err)
	}
}

func TestLogout_UnknownTokenIsFine(t *testing.T) {
	a := newAuthStack(t)

	if err := a.svc.Logout(context.Background(), "never-issued"); err != nil {
		t.Errorf("Logout of unknown token: %v", err)
	}
}

func TestAccountLifecycle(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	admin := a.seedAdmin(t)

	listed, err := a.svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("account count = %d, want 1", len(listed))
	}

	got, err := a.svc.GetUser(ctx, admin.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != adminName {
		t.Errorf("Username = %q, want %q", got.Username, adminName)
	}

	updated, err := a.svc.UpdateUser(ctx, admin.ID, "night-shift@farm.example", RoleViewer, false)
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Email != "night-shift@farm.example" {
		t.Errorf("Email = %q after update", updated.Email)
	}
	if updated.Role != RoleViewer {
		t.Errorf("Role = %q, want %q", updated.Role, RoleViewer)
	}

	if err := a.svc.DeleteUser(ctx, admin.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := a.svc.GetUser(ctx, admin.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser after delete err = %v, want ErrUserNotFound", err)
	}
}

func TestDeleteUser_Unknown(t *testing.T) {
	a := newAuthStack(t)

	if err := a.svc.DeleteUser(context.Background(), "u-404"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("DeleteUser err = %v, want ErrUserNotFound", err)
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()
	a.seedAdmin(t)

	for i := 0; i < maxFailedLogins; i++ {
		if _, err := a.svc.Login(ctx, adminName, "not-the-passphrase"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	// The right passphrase is rejected while the lock holds.
	if _, err := a.svc.Login(ctx, adminName, adminPass); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("Login while locked err = %v, want ErrAccountLocked", err)
	}
}

func TestLogin_SuccessClearsFailureCount(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()
	a.seedAdmin(t)

	failBelowThreshold := func() {
		for i := 0; i < maxFailedLogins-1; i++ {
			a.svc.Login(ctx, adminName, "not-the-passphrase")
		}
	}

	failBelowThreshold()
	if _, err := a.svc.Login(ctx, adminName, adminPass); err != nil {
		t.Fatalf("Login below threshold: %v", err)
	}

	// The earlier failures no longer count against the account.
	failBelowThreshold()
	if _, err := a.svc.Login(ctx, adminName, adminPass); err != nil {
		t.Errorf("Login after counter reset: %v", err)
	}
}

// enrollTOTP walks the full enrollment: setup, confirm with a live code,
// collect recovery codes.
func enrollTOTP(t *testing.T, svc *Service, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	secret, url, err := svc.SetupTOTP(ctx, userID)
	if err != nil {
		t.Fatalf("SetupTOTP: %v", err)
	}
	if secret == "" || url == "" {
		t.Fatal("SetupTOTP returned an empty secret or otpauth URL")
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	codes, err := svc.ActivateTOTP(ctx, userID, code)
	if err != nil {
		t.Fatalf("ActivateTOTP: %v", err)
	}
	if len(codes) != recoveryCodeCnt {
		t.Fatalf("recovery code count = %d, want %d", len(codes), recoveryCodeCnt)
	}
	return secret, codes
}

func TestLogin_TOTPChallengeFlow(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	admin := a.seedAdmin(t)
	secret, _ := enrollTOTP(t, a.svc, admin.ID)

	_, err := a.svc.Login(ctx, adminName, adminPass)
	var mfaErr *MFARequiredError
	if !errors.As(err, &mfaErr) {
		t.Fatalf("Login err = %v, want MFARequiredError", err)
	}
	if mfaErr.MFAToken == "" {
		t.Fatal("challenge carries no MFA token")
	}

	code, _ := totp.GenerateCode(secret, time.Now())
	pair, err := a.svc.VerifyMFA(ctx, mfaErr.MFAToken, code)
	if err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("VerifyMFA returned an incomplete token pair")
	}

	// The challenge token cannot be redeemed twice.
	code2, _ := totp.GenerateCode(secret, time.Now())
	if _, err := a.svc.VerifyMFA(ctx, mfaErr.MFAToken, code2); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("redeemed challenge err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyMFA_WrongCode(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	admin := a.seedAdmin(t)
	enrollTOTP(t, a.svc, admin.ID)

	_, err := a.svc.Login(ctx, adminName, adminPass)
	var mfaErr *MFARequiredError
	if !errors.As(err, &mfaErr) {
		t.Fatalf("Login err = %v, want MFARequiredError", err)
	}

	if _, err := a.svc.VerifyMFA(ctx, mfaErr.MFAToken, "000000"); !errors.Is(err, ErrInvalidMFACode) {
		t.Errorf("VerifyMFA err = %v, want ErrInvalidMFACode", err)
	}
}

func TestVerifyMFA_RecoveryCodeBurnsOnUse(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	admin := a.seedAdmin(t)
	_, recovery := enrollTOTP(t, a.svc, admin.ID)

	_, err := a.svc.Login(ctx, adminName, adminPass)
	var mfaErr *MFARequiredError
	if !errors.As(err, &mfaErr) {
		t.Fatalf("Login err = %v, want MFARequiredError", err)
	}

	pair, err := a.svc.VerifyMFA(ctx, mfaErr.MFAToken, recovery[0])
	if err != nil {
		t.Fatalf("VerifyMFA with recovery code: %v", err)
	}
	if pair.AccessToken == "" {
		t.Error("recovery login produced an empty access token")
	}

	_, err = a.svc.Login(ctx, adminName, adminPass)
	if !errors.As(err, &mfaErr) {
		t.Fatalf("second Login err = %v, want MFARequiredError", err)
	}
	if _, err := a.svc.VerifyMFA(ctx, mfaErr.MFAToken, recovery[0]); !errors.Is(err, ErrInvalidMFACode) {
		t.Errorf("burned recovery code err = %v, want ErrInvalidMFACode", err)
	}
}

func TestDeactivateTOTP_RestoresPasswordOnlyLogin(t *testing.T) {
	a := newAuthStack(t)
	ctx := context.Background()

	admin := a.seedAdmin(t)
	secret, _ := enrollTOTP(t, a.svc, admin.ID)

	code, _ := totp.GenerateCode(secret, time.Now())
	if err := a.svc.DeactivateTOTP(ctx, admin.ID, code); err != nil {
		t.Fatalf("DeactivateTOTP: %v", err)
	}

	pair, err := a.svc.Login(ctx, adminName, adminPass)
	if err != nil {
		t.Fatalf("Login after disable: %v", err)
	}
	if pair.AccessToken == "" {
		t.Error("empty access token once TOTP is off")
	}
}
