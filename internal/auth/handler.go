package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/driftwatch/driftwatch/internal/version"
	"go.uber.org/zap"
)

// Handler serves the auth endpoints and hands out the JWT middleware that
// guards the rest of the API.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an auth Handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the auth surface on the mux. The /auth/ group is
// public; the /users/ group goes through the middleware like any other API
// route and each handler checks the admin role itself.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.handleLogout)
	mux.HandleFunc("POST /api/v1/auth/setup", h.handleSetup)
	mux.HandleFunc("GET /api/v1/auth/setup/status", h.handleSetupStatus)

	mux.HandleFunc("GET /api/v1/users", h.handleListUsers)
	mux.HandleFunc("GET /api/v1/users/{id}", h.handleGetUser)
	mux.HandleFunc("PUT /api/v1/users/{id}", h.handleUpdateUser)
	mux.HandleFunc("DELETE /api/v1/users/{id}", h.handleDeleteUser)
}

// Middleware returns the bearer-token gate for the rest of the API.
func (h *Handler) Middleware() func(http.Handler) http.Handler {
	return AuthMiddleware(h.svc.Tokens())
}

// handleLogin opens a session.
//
//	@Summary		Log in
//	@Description	Exchange a username and password for an access/refresh token pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	map[string]any
//	@Failure		401		{object}	map[string]any
//	@Failure		500		{object}	map[string]any
//	@Router			/auth/login [post]
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	tokens, err := h.svc.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserDisabled):
		// One response for every credential failure, so the endpoint reveals
		// nothing about which accounts exist or their state.
		writeAuthError(w, http.StatusUnauthorized, "invalid username or password")
	case err != nil:
		h.logger.Error("login failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "login failed")
	default:
		writeJSON(w, http.StatusOK, tokens)
	}
}

// handleRefresh rotates a token pair.
//
//	@Summary		Rotate tokens
//	@Description	Trade a one-time refresh token for a fresh access/refresh pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Current refresh token"
//	@Success		200		{object}	TokenPair
//	@Failure		400		{object}	map[string]any
//	@Failure		401		{object}	map[string]any
//	@Failure		500		{object}	map[string]any
//	@Router			/auth/refresh [post]
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeAuthError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserDisabled):
		writeAuthError(w, http.StatusUnauthorized, "invalid or expired refresh token")
	case err != nil:
		h.logger.Error("token refresh failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "refresh failed")
	default:
		writeJSON(w, http.StatusOK, tokens)
	}
}

// handleLogout ends a session.
//
//	@Summary		Log out
//	@Description	Revoke the presented refresh token and end its session.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	LogoutRequest	true	"Session refresh token"
//	@Success		204		"No Content"
//	@Failure		400		{object}	map[string]any
//	@Failure		500		{object}	map[string]any
//	@Router			/auth/logout [post]
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeAuthError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not revoke session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSetup creates the first admin account.
//
//	@Summary		First-boot setup
//	@Description	Create the initial admin account. Returns 409 once any account exists.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SetupRequest	true	"First admin account"
//	@Success		201		{object}	User
//	@Failure		400		{object}	map[string]any
//	@Failure		409		{object}	map[string]any
//	@Router			/auth/setup [post]
func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req SetupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeAuthError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	u, err := h.svc.Setup(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, ErrSetupComplete):
		writeAuthError(w, http.StatusConflict, "setup already completed")
	case err != nil:
		// Mostly password-policy rejections; the message is safe to show.
		writeAuthError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusCreated, u)
	}
}

// handleSetupStatus reports whether first-boot setup is still open.
//
//	@Summary		Setup status
//	@Description	Reports whether the instance still needs its first admin, plus the server version.
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	SetupStatusResponse
//	@Router			/auth/setup/status [get]
func (h *Handler) handleSetupStatus(w http.ResponseWriter, r *http.Request) {
	needed, err := h.svc.NeedsSetup(r.Context())
	if err != nil {
		h.logger.Error("setup status lookup failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not read setup status")
		return
	}
	writeJSON(w, http.StatusOK, SetupStatusResponse{SetupRequired: needed, Version: version.Short()})
}

// handleListUsers returns every account.
//
//	@Summary		List accounts
//	@Description	Returns every account. Admin only.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		User
//	@Failure		401	{object}	map[string]any
//	@Failure		403	{object}	map[string]any
//	@Failure		500	{object}	map[string]any
//	@Router			/users [get]
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAdmin(w, r) {
		return
	}

	accounts, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("user list failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not list users")
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

// handleGetUser returns one account.
//
//	@Summary		Get an account
//	@Description	Returns one account by ID. Admin only.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	User
//	@Failure		401	{object}	map[string]any
//	@Failure		403	{object}	map[string]any
//	@Failure		404	{object}	map[string]any
//	@Failure		500	{object}	map[string]any
//	@Router			/users/{id} [get]
func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAdmin(w, r) {
		return
	}

	u, err := h.svc.GetUser(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, ErrUserNotFound):
		writeAuthError(w, http.StatusNotFound, "user not found")
	case err != nil:
		h.logger.Error("user lookup failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not load user")
	default:
		writeJSON(w, http.StatusOK, u)
	}
}

// handleUpdateUser rewrites an account's email, role, and disabled flag.
//
//	@Summary		Update an account
//	@Description	Rewrite an account's email, role, and disabled flag. Admin only.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"User ID"
//	@Param			request	body		UpdateUserRequest	true	"New field values"
//	@Success		200		{object}	User
//	@Failure		400		{object}	map[string]any
//	@Failure		401		{object}	map[string]any
//	@Failure		403		{object}	map[string]any
//	@Failure		404		{object}	map[string]any
//	@Failure		500		{object}	map[string]any
//	@Router			/users/{id} [put]
func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAdmin(w, r) {
		return
	}

	var req UpdateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role := Role(req.Role)
	if !role.Valid() {
		writeAuthError(w, http.StatusBadRequest, "invalid role: must be admin, operator, or viewer")
		return
	}

	u, err := h.svc.UpdateUser(r.Context(), r.PathValue("id"), req.Email, role, req.Disabled)
	switch {
	case errors.Is(err, ErrUserNotFound):
		writeAuthError(w, http.StatusNotFound, "user not found")
	case err != nil:
		h.logger.Error("user update failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not update user")
	default:
		writeJSON(w, http.StatusOK, u)
	}
}

// handleDeleteUser removes an account.
//
//	@Summary		Delete an account
//	@Description	Remove an account permanently. Admin only.
//	@Tags			users
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204	"No Content"
//	@Failure		401	{object}	map[string]any
//	@Failure		403	{object}	map[string]any
//	@Failure		404	{object}	map[string]any
//	@Failure		500	{object}	map[string]any
//	@Router			/users/{id} [delete]
func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAdmin(w, r) {
		return
	}

	err := h.svc.DeleteUser(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, ErrUserNotFound):
		writeAuthError(w, http.StatusNotFound, "user not found")
	case err != nil:
		h.logger.Error("user delete failed", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "could not delete user")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ensureAdmin answers 401 or 403 and returns false unless the request
// carries admin claims.
func (h *Handler) ensureAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims := UserFromContext(r.Context())
	if claims == nil {
		writeAuthError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if Role(claims.Role) != RoleAdmin {
		writeAuthError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

// decodeBody parses the JSON request body into dst and answers 400 itself
// when the body does not parse. Callers just return on false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// problem is the RFC 7807 body every auth error uses.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// writeAuthError writes an RFC 7807 problem response.
func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{
		Type:   "https://driftwatch.io/problems/auth-error",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// Request and response bodies for the endpoints above. The example tags feed
// the generated API docs.

// LoginRequest carries the credentials for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"admin"`
	Password string `json:"password" example:"orbit-manatee-52"`
}

// RefreshRequest carries the spent token for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" example:"8c2e4f0a1d9b7c35..."`
}

// LogoutRequest carries the token to revoke for POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" example:"8c2e4f0a1d9b7c35..."`
}

// SetupRequest carries the first admin account for POST /auth/setup.
type SetupRequest struct {
	Username string `json:"username" example:"admin"`
	Email    string `json:"email" example:"admin@driftwatch.local"`
	Password string `json:"password" example:"orbit-manatee-52"`
}

// UpdateUserRequest carries the new field values for PUT /users/{id}.
type UpdateUserRequest struct {
	Email    string `json:"email" example:"ops@driftwatch.local"`
	Role     string `json:"role" example:"viewer"`
	Disabled bool   `json:"disabled" example:"false"`
}

// SetupStatusResponse answers GET /auth/setup/status.
type SetupStatusResponse struct {
	SetupRequired bool   `json:"setup_required"`
	Version       string `json:"version" example:"0.1.0"`
}
