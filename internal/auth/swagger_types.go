package auth

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"fleetadmin"`
	Password string `json:"password" example:"belt-3-hashboard"`
}

// RefreshRequest is the request body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" example:"ZmxlZXQtc2Vzc2lvbi10b2tlbg..."`
}

// LogoutRequest is the request body for POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" example:"ZmxlZXQtc2Vzc2lvbi10b2tlbg..."`
}

// SetupRequest is the request body for POST /auth/setup.
type SetupRequest struct {
	Username string `json:"username" example:"fleetadmin"`
	Email    string `json:"email" example:"ops@farm.example"`
	Password string `json:"password" example:"belt-3-hashboard"`
}

// UpdateUserRequest is the request body for PUT /users/{id}.
type UpdateUserRequest struct {
	Email    string `json:"email" example:"night-shift@farm.example"`
	Role     string `json:"role" example:"operator"`
	Disabled bool   `json:"disabled" example:"false"`
}

// SetupStatusResponse is the response body for GET /auth/setup/status.
type SetupStatusResponse struct {
	SetupRequired bool   `json:"setup_required" example:"true"`
	Version       string `json:"version" example:"1.2.0"`
}

// MFAVerifyRequest is the request body for POST /auth/mfa/verify.
type MFAVerifyRequest struct {
	MFAToken string `json:"mfa_token" example:"eyJhbGciOiJIUzI1..."`
	Code     string `json:"code" example:"123456"`
}

// MFARequiredResponse is returned by POST /auth/login when TOTP is enabled.
type MFARequiredResponse struct {
	MFARequired bool   `json:"mfa_required" example:"true"`
	MFAToken    string `json:"mfa_token" example:"eyJhbGciOiJIUzI1..."`
}

// MFASetupResponse is the response body for POST /auth/mfa/setup.
type MFASetupResponse struct {
	Secret     string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	OTPAuthURL string `json:"otpauth_url" example:"otpauth://totp/HashFleet:admin?secret=..."`
}

// MFAActivateResponse is the response body for POST /auth/mfa/activate.
type MFAActivateResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}
