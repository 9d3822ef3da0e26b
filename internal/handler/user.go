package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"postboard/internal/httputil"
	"postboard/internal/model"
	"postboard/internal/service"
	"postboard/internal/transport/http/middleware"
)

// UserHandler serves the authenticated user's own account.
type UserHandler struct {
	authService *service.AuthService
	postService *service.PostService
}

func NewUserHandler(authService *service.AuthService, postService *service.PostService) *UserHandler {
	return &UserHandler{
		authService: authService,
		postService: postService,
	}
}

// Me returns the currently authenticated user
// GET /me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	user, err := h.authService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteNotFound(w, "User not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to get user")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// UpdateMe replaces username and password
// PATCH /me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req model.UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	user, err := h.authService.UpdateAccount(r.Context(), userID, &req)
	if err != nil {
		if writeAccountError(w, err) {
			return
		}
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteNotFound(w, "User not found")
			return
		}
		log.Printf("[ERROR] UpdateMe handler: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to update account")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// DeleteMe removes the account. Posts are kept unless delete_posts=true.
// DELETE /me
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	deletePosts := r.URL.Query().Get("delete_posts") == "true"

	// Posts go first so a failed cascade leaves the account in place to retry.
	var removed int64
	if deletePosts {
		n, err := h.postService.DeleteAllByAuthor(r.Context(), userID)
		if err != nil {
			log.Printf("[ERROR] DeleteMe cascade: user=%d err=%v", userID, err)
			httputil.WriteInternalError(w, "Failed to delete posts; account kept")
			return
		}
		removed = n
	}

	if err := h.authService.DeleteAccount(r.Context(), userID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			httputil.WriteNotFound(w, "User not found")
			return
		}
		log.Printf("[ERROR] DeleteMe handler: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to delete account")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "account deleted",
		"posts_deleted": removed,
	})
}
