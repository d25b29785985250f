package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/internal/version"
	_ "github.com/hashfleet/hashfleet/pkg/models" // swagger type reference
)

// Handler exposes the authentication and user-management endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the auth endpoints. The login, refresh, logout,
// setup, and MFA verify paths must stay in sync with the middleware's
// public-path list.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.handleLogout)
	mux.HandleFunc("POST /api/v1/auth/setup", h.handleSetup)
	mux.HandleFunc("GET /api/v1/auth/setup/status", h.handleSetupStatus)
	mux.HandleFunc("POST /api/v1/auth/mfa/verify", h.handleMFAVerify)

	// Second-factor management for the logged-in user.
	mux.HandleFunc("POST /api/v1/auth/mfa/setup", h.handleMFASetup)
	mux.HandleFunc("POST /api/v1/auth/mfa/activate", h.handleMFAActivate)
	mux.HandleFunc("POST /api/v1/auth/mfa/disable", h.handleMFADisable)

	// User management. The middleware guarantees a valid token; the
	// admin-role check happens per handler.
	mux.HandleFunc("GET /api/v1/users", h.handleListUsers)
	mux.HandleFunc("GET /api/v1/users/{id}", h.handleGetUser)
	mux.HandleFunc("PUT /api/v1/users/{id}", h.handleUpdateUser)
	mux.HandleFunc("DELETE /api/v1/users/{id}", h.handleDeleteUser)
}

// Middleware returns the token-checking middleware for the whole API.
func (h *Handler) Middleware() func(http.Handler) http.Handler {
	return AuthMiddleware(h.service.Tokens())
}

// decodeBody unmarshals the request body into dst, answering 400 on
// malformed JSON. Callers still validate required fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// handleLogin exchanges credentials for a token pair, or an MFA
// challenge when the account has a second factor enabled.
//
//	@Summary		Login
//	@Description	Authenticate with username and password to receive a JWT token pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Login credentials"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	models.APIProblem
//	@Failure		401		{object}	models.APIProblem
//	@Failure		500		{object}	models.APIProblem
//	@Router			/auth/login [post]
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		var mfaErr *MFARequiredError
		switch {
		case errors.As(err, &mfaErr):
			writeJSON(w, http.StatusOK, MFARequiredResponse{
				MFARequired: true,
				MFAToken:    mfaErr.MFAToken,
			})
		case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserDisabled):
			// One message for bad password, unknown user, and disabled
			// account, so responses cannot be used to probe usernames.
			writeAuthError(w, http.StatusUnauthorized, "invalid username or password")
		case errors.Is(err, ErrAccountLocked):
			writeAuthError(w, http.StatusTooManyRequests, "account temporarily locked, try again later")
		default:
			h.logger.Error("login handler failed", zap.Error(err))
			writeAuthError(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates a refresh token into a fresh pair.
//
//	@Summary		Refresh tokens
//	@Description	Exchange a valid refresh token for a new token pair (token rotation).
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	models.APIProblem
//	@Failure		401		{object}	models.APIProblem
//	@Failure		500		{object}	models.APIProblem
//	@Router			/auth/refresh [post]
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeAuthError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrUserDisabled) {
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.logger.Error("refresh handler failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not refresh session")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the session's refresh token. Revoking an already
// revoked token still answers 204.
//
//	@Summary		Logout
//	@Description	Revoke a refresh token to end a session.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	LogoutRequest	true	"Refresh token to revoke"
//	@Success		204		"No Content"
//	@Failure		400		{object}	models.APIProblem
//	@Failure		500		{object}	models.APIProblem
//	@Router			/auth/logout [post]
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeAuthError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("logout handler failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not end session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSetup creates the first admin account on a fresh install.
//
//	@Summary		Initial setup
//	@Description	Create the first admin account. Only works when no users exist.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SetupRequest	true	"Admin account details"
//	@Success		201		{object}	User
//	@Failure		400		{object}	models.APIProblem
//	@Failure		409		{object}	models.APIProblem
//	@Router			/auth/setup [post]
func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	user, err := h.service.Setup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrSetupComplete) {
			writeAuthError(w, http.StatusConflict, "setup already completed")
			return
		}
		writeAuthError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleSetupStatus tells the dashboard whether to show the first-run
// setup screen.
//
//	@Summary		Check setup status
//	@Description	Returns whether initial admin setup is needed and the server version.
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	SetupStatusResponse
//	@Router			/auth/setup/status [get]
func (h *Handler) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	needed, err := h.service.NeedsSetup(r.Context())
	if err != nil {
		h.logger.Error("setup status lookup failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not determine setup status")
		return
	}
	writeJSON(w, http.StatusOK, SetupStatusResponse{
		SetupRequired: needed,
		Version:       version.Short(),
	})
}

// handleListUsers lists every account.
//
//	@Summary		List users
//	@Description	Returns all user accounts. Requires admin role.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		User
//	@Failure		401	{object}	models.APIProblem
//	@Failure		403	{object}	models.APIProblem
//	@Failure		500	{object}	models.APIProblem
//	@Router			/users [get]
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("account listing failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not list accounts")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// handleGetUser looks up one account by ID.
//
//	@Summary		Get user
//	@Description	Returns a single user by ID. Requires admin role.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	User
//	@Failure		401	{object}	models.APIProblem
//	@Failure		403	{object}	models.APIProblem
//	@Failure		404	{object}	models.APIProblem
//	@Failure		500	{object}	models.APIProblem
//	@Router			/users/{id} [get]
func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	user, err := h.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("account lookup failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not load account")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser changes an account's email, role, or disabled flag.
//
//	@Summary		Update user
//	@Description	Update a user's email, role, or disabled status. Requires admin role.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"User ID"
//	@Param			request	body		UpdateUserRequest	true	"Updated user fields"
//	@Success		200		{object}	User
//	@Failure		400		{object}	models.APIProblem
//	@Failure		401		{object}	models.APIProblem
//	@Failure		403		{object}	models.APIProblem
//	@Failure		404		{object}	models.APIProblem
//	@Failure		500		{object}	models.APIProblem
//	@Router			/users/{id} [put]
func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req struct {
		Email    string `json:"email"`
		Role     string `json:"role"`
		Disabled bool   `json:"disabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	role := Role(req.Role)
	if !ValidRoles[role] {
		writeAuthError(w, http.StatusBadRequest, "invalid role: must be admin, operator, or viewer")
		return
	}

	user, err := h.service.UpdateUser(r.Context(), r.PathValue("id"), req.Email, role, req.Disabled)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("account update failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not update account")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes an account.
//
//	@Summary		Delete user
//	@Description	Delete a user account by ID. Requires admin role.
//	@Tags			users
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204	"No Content"
//	@Failure		401	{object}	models.APIProblem
//	@Failure		403	{object}	models.APIProblem
//	@Failure		404	{object}	models.APIProblem
//	@Failure		500	{object}	models.APIProblem
//	@Router			/users/{id} [delete]
func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	if err := h.service.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeAuthError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("account delete failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not delete account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMFAVerify finishes a challenged login with a TOTP or recovery
// code.
//
//	@Summary		Verify MFA code
//	@Description	Exchange an MFA token plus a TOTP or recovery code for a JWT token pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		MFAVerifyRequest	true	"MFA token and code"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	models.APIProblem
//	@Failure		401		{object}	models.APIProblem
//	@Router			/auth/mfa/verify [post]
func (h *Handler) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MFAToken string `json:"mfa_token"`
		Code     string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MFAToken == "" || req.Code == "" {
		writeAuthError(w, http.StatusBadRequest, "mfa_token and code are required")
		return
	}

	pair, err := h.service.VerifyMFA(r.Context(), req.MFAToken, req.Code)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInvalidMFACode) || errors.Is(err, ErrUserDisabled) {
			writeAuthError(w, http.StatusUnauthorized, "invalid MFA token or code")
			return
		}
		h.logger.Error("MFA verify error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "MFA verification failed")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleMFASetup starts TOTP enrollment. The secret stays inactive
// until the user confirms a code via activate.
//
//	@Summary		Begin MFA setup
//	@Description	Generate a TOTP secret for the authenticated user. Inactive until activated.
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	MFASetupResponse
//	@Failure		401	{object}	models.APIProblem
//	@Failure		500	{object}	models.APIProblem
//	@Router			/auth/mfa/setup [post]
func (h *Handler) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	claims := h.requireUser(w, r)
	if claims == nil {
		return
	}

	secret, url, err := h.service.SetupTOTP(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("MFA setup error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not begin MFA enrollment")
		return
	}

	writeJSON(w, http.StatusOK, MFASetupResponse{Secret: secret, OTPAuthURL: url})
}

// handleMFAActivate confirms enrollment and hands out the one-time
// recovery codes.
//
//	@Summary		Activate MFA
//	@Description	Confirm a TOTP code to enable MFA. Returns one-time recovery codes.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	MFAActivateResponse
//	@Failure		400	{object}	models.APIProblem
//	@Failure		401	{object}	models.APIProblem
//	@Router			/auth/mfa/activate [post]
func (h *Handler) handleMFAActivate(w http.ResponseWriter, r *http.Request) {
	claims := h.requireUser(w, r)
	if claims == nil {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeAuthError(w, http.StatusBadRequest, "code is required")
		return
	}

	codes, err := h.service.ActivateTOTP(r.Context(), claims.UserID, req.Code)
	if err != nil {
		if errors.Is(err, ErrInvalidMFACode) || errors.Is(err, ErrMFANotConfigured) {
			writeAuthError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("MFA activate error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not activate MFA")
		return
	}

	writeJSON(w, http.StatusOK, MFAActivateResponse{RecoveryCodes: codes})
}

// handleMFADisable turns the second factor off after one last code
// check.
//
//	@Summary		Disable MFA
//	@Description	Disable MFA after validating a current TOTP or recovery code.
//	@Tags			auth
//	@Accept			json
//	@Security		BearerAuth
//	@Success		204	"No Content"
//	@Failure		400	{object}	models.APIProblem
//	@Failure		401	{object}	models.APIProblem
//	@Router			/auth/mfa/disable [post]
func (h *Handler) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	claims := h.requireUser(w, r)
	if claims == nil {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeAuthError(w, http.StatusBadRequest, "code is required")
		return
	}

	if err := h.service.DeactivateTOTP(r.Context(), claims.UserID, req.Code); err != nil {
		if errors.Is(err, ErrInvalidMFACode) || errors.Is(err, ErrMFANotConfigured) {
			writeAuthError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("MFA disable error", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not disable MFA")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requireUser answers 401 and returns nil when the request carries no
// authenticated user.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) *Claims {
	claims := UserFromContext(r.Context())
	if claims == nil {
		writeAuthError(w, http.StatusUnauthorized, "authentication required")
	}
	return claims
}

// requireAdmin answers 401 or 403 and returns false unless the caller
// is an admin.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user := UserFromContext(r.Context())
	if user == nil {
		writeAuthError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if Role(user.Role) != RoleAdmin {
		writeAuthError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAuthError answers in the RFC 7807 problem shape the rest of the
// API uses.
func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://hashfleet.io/problems/auth-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
