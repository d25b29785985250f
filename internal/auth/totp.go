package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
)

const (
	mfaIssuer       = "hashfleet-mfa"
	recoveryCodeLen = 8
	recoveryCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// TOTPService covers the second factor: enrollment secrets, code checks,
// at-rest encryption of secrets, recovery codes, and the short-lived
// challenge token handed out between password and code verification.
type TOTPService struct {
	key    []byte // AES-256-GCM key, SHA-256 of the JWT secret
	secret []byte // JWT secret, signs challenge tokens
}

// NewTOTPService derives the encryption key from the JWT secret so a
// single configured secret covers both concerns.
func NewTOTPService(jwtSecret []byte) *TOTPService {
	h := sha256.Sum256(jwtSecret)
	return &TOTPService{key: h[:], secret: jwtSecret}
}

// GenerateSecret mints a fresh enrollment secret and its otpauth URL
// for the QR code.
func (t *TOTPService) GenerateSecret(accountName, issuer string) (secret, otpauthURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Validate checks a six-digit code against a secret.
func (t *TOTPService) Validate(code, secret string) bool {
	return totp.Validate(code, secret)
}

func (t *TOTPService) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(t.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with AES-256-GCM, nonce prepended, base64 out.
// TOTP secrets are stored in this form.
func (t *TOTPService) Encrypt(plaintext string) (string, error) {
	gcm, err := t.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (t *TOTPService) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	gcm, err := t.gcm()
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateRecoveryCodes mints n single-use codes. The plaintext is shown
// to the user once; only the hashes are stored.
func (t *TOTPService) GenerateRecoveryCodes(n int) (plain, hashed []string, err error) {
	plain = make([]string, n)
	hashed = make([]string, n)

	for i := range plain {
		b := make([]byte, recoveryCodeLen)
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			return nil, nil, fmt.Errorf("generate recovery code: %w", err)
		}
		for j := range b {
			b[j] = recoveryCharset[b[j]%byte(len(recoveryCharset))]
		}
		plain[i] = string(b)
		h := sha256.Sum256(b)
		hashed[i] = hex.EncodeToString(h[:])
	}
	return plain, hashed, nil
}

// mfaClaims is the payload of the challenge token issued after a correct
// password when the account has TOTP enabled.
type mfaClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	MFA    bool   `json:"mfa"`
}

// IssueMFAToken signs a challenge token. It proves the password step
// passed and nothing more.
func (t *TOTPService) IssueMFAToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := mfaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    mfaIssuer,
		},
		UserID: userID,
		MFA:    true,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign MFA token: %w", err)
	}
	return signed, nil
}

// ValidateMFAToken checks a challenge token and returns the user it was
// issued for. A plain access token is rejected here; the mfa claim must
// be present.
func (t *TOTPService) ValidateMFAToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &mfaClaims{}, func(_ *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse MFA token: %w", err)
	}

	claims, ok := token.Claims.(*mfaClaims)
	if !ok || !token.Valid || !claims.MFA {
		return "", errors.New("invalid MFA token claims")
	}
	return claims.UserID, nil
}
