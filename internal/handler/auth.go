package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"postboard/internal/httputil"
	"postboard/internal/model"
	"postboard/internal/service"
)

// AuthHandler groups auth-related HTTP endpoints and their dependencies.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler wires dependencies for authentication endpoints.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register handles user sign-up
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	user, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		if writeAccountError(w, err) {
			return
		}
		log.Printf("[ERROR] Register handler: username=%s err=%v", req.Username, err)
		httputil.WriteInternalError(w, "Failed to register")
		return
	}

	h.writeSession(w, http.StatusCreated, user)
}

// Login handles user login
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "Username and password are required")
		return
	}

	user, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			httputil.WriteUnauthorized(w, "Invalid username or password")
			return
		}
		httputil.WriteInternalError(w, "Failed to login")
		return
	}

	h.writeSession(w, http.StatusOK, user)
}

// Logout clears the session cookie. The response body is fixed.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	httputil.WriteJSON(w, http.StatusOK, h.authService.Logout())
}

// writeSession issues an access token for user, sets it as a cookie for
// browsers and returns it in the body for other clients.
func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, user *model.User) {
	token, err := h.authService.IssueToken(user.ID)
	if err != nil {
		log.Printf("[ERROR] Issue token: user=%d err=%v", user.ID, err)
		httputil.WriteInternalError(w, "Failed to generate token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		MaxAge:   h.authService.TokenMaxAge(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	httputil.WriteJSON(w, status, model.AuthResponse{
		User:        user,
		AccessToken: token,
		ExpiresIn:   h.authService.TokenMaxAge(),
	})
}

// writeAccountError maps validation and uniqueness errors shared by sign-up
// and account update. It reports whether a response was written.
func writeAccountError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, model.ErrUsernameExists):
		httputil.WriteConflict(w, "Username already exists")
	case errors.Is(err, model.ErrUsernameRequired):
		httputil.WriteBadRequest(w, "Username is required")
	case errors.Is(err, model.ErrPasswordTooShort):
		httputil.WriteBadRequestWithCode(w, model.CodePasswordTooShort, "Password must be at least 8 characters")
	case errors.Is(err, model.ErrPasswordTooLong):
		httputil.WriteBadRequestWithCode(w, model.CodePasswordTooLong, "Password must be at most 72 bytes")
	default:
		return false
	}
	return true
}
