package handler

import (
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"postboard/internal/httputil"
	"postboard/internal/model"
	"postboard/internal/service"
	"postboard/internal/transport/http/middleware"
)

// maxUploadSize bounds a whole multipart post body, attachment included.
const maxUploadSize = 10 << 20

type PostHandler struct {
	postService *service.PostService
}

func NewPostHandler(postService *service.PostService) *PostHandler {
	return &PostHandler{
		postService: postService,
	}
}

// Create handles POST /posts
// multipart/form-data with a "content" field and an optional "image" file.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	if !parseForm(w, r) {
		return
	}

	att, closeFile, err := formAttachment(r)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid image upload")
		return
	}
	defer closeFile()

	post, err := h.postService.CreatePost(r.Context(), userID, r.FormValue("content"), att)
	if err != nil {
		if errors.Is(err, model.ErrEmptyContent) {
			httputil.WriteBadRequestWithCode(w, model.CodeEmptyContent, "Content must not be empty")
			return
		}
		log.Printf("[ERROR] Create post handler: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to create post")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}

// GetByID handles GET /posts/{id}
func (h *PostHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")

	post, err := h.postService.GetByID(r.Context(), postID)
	if err != nil {
		if errors.Is(err, model.ErrPostNotFound) {
			httputil.WriteNotFound(w, "Post not found")
			return
		}
		log.Printf("[ERROR] Get post handler: post=%s err=%v", postID, err)
		httputil.WriteInternalError(w, "Failed to get post")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// Update handles PATCH /posts/{id}
// multipart/form-data; any of "content", "image" and "remove_image=true".
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	postID := chi.URLParam(r, "id")

	if !parseForm(w, r) {
		return
	}

	att, closeFile, err := formAttachment(r)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid image upload")
		return
	}
	defer closeFile()

	upd := model.PostUpdate{
		Attachment:  att,
		RemoveImage: r.FormValue("remove_image") == "true",
	}
	if _, present := r.MultipartForm.Value["content"]; present {
		content := r.FormValue("content")
		upd.Content = &content
	}

	post, err := h.postService.EditPost(r.Context(), postID, userID, upd)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPostNotFound):
			httputil.WriteNotFound(w, "Post not found")
		case errors.Is(err, model.ErrNotPostOwner):
			httputil.WriteForbidden(w, "You can only edit your own posts")
		case errors.Is(err, model.ErrEmptyContent):
			httputil.WriteBadRequestWithCode(w, model.CodeEmptyContent, "Content must not be empty")
		default:
			log.Printf("[ERROR] Update post handler: user=%d post=%s err=%v", userID, postID, err)
			httputil.WriteInternalError(w, "Failed to update post")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// Delete handles DELETE /posts/{id}
// Only the author can delete.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	postID := chi.URLParam(r, "id")

	err := h.postService.DeletePost(r.Context(), userID, postID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPostNotFound):
			httputil.WriteNotFound(w, "Post not found")
		case errors.Is(err, model.ErrNotPostOwner):
			httputil.WriteForbidden(w, "You can only delete your own posts")
		default:
			log.Printf("[ERROR] Delete post handler: user=%d post=%s err=%v", userID, postID, err)
			httputil.WriteInternalError(w, "Failed to delete post")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Post deleted successfully",
	})
}

// GetUserPosts handles GET /users/{id}/posts
// Returns every post by the user, newest first.
func (h *PostHandler) GetUserPosts(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid user ID")
		return
	}

	posts, err := h.postService.ListByAuthor(r.Context(), userID)
	if err != nil {
		log.Printf("[ERROR] Get user posts handler: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to get user posts")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"posts": posts,
	})
}

// ServeImage handles GET /images/{filename}
func (h *PostHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		httputil.WriteNotFound(w, "Image not found")
		return
	}
	if _, ok := model.ImageExtension(filename); !ok {
		httputil.WriteNotFound(w, "Image not found")
		return
	}

	path := h.postService.ImagePath(filename)
	if _, err := os.Stat(path); err != nil {
		httputil.WriteNotFound(w, "Image not found")
		return
	}
	http.ServeFile(w, r, path)
}

// parseForm reads a bounded multipart body. It writes the error response and
// returns false on failure.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrNotMultipart):
			httputil.WriteBadRequest(w, "Content-Type must be multipart/form-data")
		case errors.As(err, &tooLarge):
			httputil.WriteBadRequest(w, "Upload exceeds 10MB limit")
		default:
			httputil.WriteBadRequest(w, "Invalid form data")
		}
		return false
	}
	return true
}

// formAttachment returns the "image" file if one was sent. The returned
// close func is always safe to call.
func formAttachment(r *http.Request) (*model.Attachment, func(), error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	return attachmentFrom(file, header), func() { file.Close() }, nil
}

func attachmentFrom(file multipart.File, header *multipart.FileHeader) *model.Attachment {
	return &model.Attachment{Filename: header.Filename, Body: file}
}
