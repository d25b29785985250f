package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func newTestTOTPService() *TOTPService {
	return NewTOTPService([]byte("unit-test-signing-key-0123456789"))
}

func TestGenerateSecret(t *testing.T) {
	svc := newTestTOTPService()

	secret, url, err := svc.GenerateSecret("ops@farm.example", "HashFleet")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if secret == "" {
		t.Error("empty secret")
	}
	if !strings.HasPrefix(url, "otpauth://") {
		t.Errorf("URL = %q, want otpauth:// scheme", url)
	}
	if !strings.Contains(url, "HashFleet") {
		t.Errorf("URL %q does not carry the issuer", url)
	}
}

func TestValidateTOTP(t *testing.T) {
	svc := newTestTOTPService()

	secret, _, err := svc.GenerateSecret("fleetops", "HashFleet")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	if !svc.Validate(code, secret) {
		t.Error("current code rejected")
	}
	if svc.Validate("000000", secret) {
		t.Error("bogus code accepted")
	}
	if svc.Validate("", secret) {
		t.Error("empty code accepted")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	svc := newTestTOTPService()

	for _, plaintext := range []string{
		"JBSWY3DPEHPK3PXP", // a typical base32 secret
		"",
		"p@$$w0rd!#%^&*()",
	} {
		sealed, err := svc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if sealed == plaintext {
			t.Errorf("ciphertext equals plaintext %q", plaintext)
		}

		got, err := svc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip = %q, want %q", got, plaintext)
		}
	}
}

func TestEncrypt_RandomNonce(t *testing.T) {
	svc := newTestTOTPService()

	c1, err := svc.Encrypt("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	c2, err := svc.Encrypt("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if c1 == c2 {
		t.Error("identical ciphertexts for the same plaintext")
	}
}

func TestDecrypt_InvalidInput(t *testing.T) {
	svc := newTestTOTPService()

	for name, ciphertext := range map[string]string{
		"not base64":             "not-valid-base64!@#",
		"shorter than the nonce": "aGVsbG8=",
	} {
		if _, err := svc.Decrypt(ciphertext); err == nil {
			t.Errorf("%s: Decrypt accepted %q", name, ciphertext)
		}
	}

	// Sealed under a different key.
	other := NewTOTPService([]byte("another-signing-key-9876543210ab"))
	sealed, err := other.Encrypt("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := svc.Decrypt(sealed); err == nil {
		t.Error("decrypted a ciphertext sealed under a different key")
	}
}

func TestGenerateRecoveryCodes(t *testing.T) {
	svc := newTestTOTPService()

	plain, hashed, err := svc.GenerateRecoveryCodes(10)
	if err != nil {
		t.Fatalf("GenerateRecoveryCodes: %v", err)
	}
	if len(plain) != 10 || len(hashed) != 10 {
		t.Fatalf("got %d plain / %d hashed, want 10 each", len(plain), len(hashed))
	}

	seen := make(map[string]bool)
	for i, code := range plain {
		if len(code) != recoveryCodeLen {
			t.Errorf("code %q length = %d, want %d", code, len(code), recoveryCodeLen)
		}
		if seen[code] {
			t.Errorf("duplicate code %q", code)
		}
		seen[code] = true

		if hashed[i] != HashToken(code) {
			t.Errorf("hash for %q does not match its storage form", code)
		}
	}
}

func TestMFAToken_RoundTrip(t *testing.T) {
	svc := newTestTOTPService()

	token, err := svc.IssueMFAToken("u-42", 5*time.Minute)
	if err != nil {
		t.Fatalf("IssueMFAToken: %v", err)
	}

	userID, err := svc.ValidateMFAToken(token)
	if err != nil {
		t.Fatalf("ValidateMFAToken: %v", err)
	}
	if userID != "u-42" {
		t.Errorf("userID = %q, want u-42", userID)
	}
}

func TestMFAToken_Expired(t *testing.T) {
	svc := newTestTOTPService()

	token, err := svc.IssueMFAToken("u-42", -time.Second)
	if err != nil {
		t.Fatalf("IssueMFAToken: %v", err)
	}
	if _, err := svc.ValidateMFAToken(token); err == nil {
		t.Error("expired challenge token validated")
	}
}

func TestMFAToken_RejectsAccessToken(t *testing.T) {
	// An ordinary access token signed with the same secret must not pass
	// the challenge step; the mfa claim is required.
	secret := []byte("unit-test-signing-key-0123456789")
	ts := NewTokenService(secret, 15*time.Minute, time.Hour)
	svc := NewTOTPService(secret)

	access, err := ts.IssueAccessToken(&User{ID: "u-42", Username: "fleetops", Role: RoleViewer})
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := svc.ValidateMFAToken(access); err == nil {
		t.Error("access token accepted as an MFA challenge token")
	}
}

func TestMFAToken_Garbage(t *testing.T) {
	if _, err := newTestTOTPService().ValidateMFAToken("totally-invalid-token"); err == nil {
		t.Error("garbage challenge token validated")
	}
}
