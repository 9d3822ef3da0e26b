package handler

import (
	"log"
	"net/http"
	"strconv"

	"postboard/internal/httputil"
	"postboard/internal/service"
)

type FeedHandler struct {
	postService *service.PostService
}

func NewFeedHandler(postService *service.PostService) *FeedHandler {
	return &FeedHandler{
		postService: postService,
	}
}

// GetFeed handles GET /feed
// Returns one page of every post, newest first.
//
// Query params:
//   - page: optional, 1-based page number (default 1)
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "Invalid page parameter")
			return
		}
		page = parsed
	}

	feed, err := h.postService.ListFeed(r.Context(), page, 0)
	if err != nil {
		log.Printf("[ERROR] GetFeed handler: page=%d err=%v", page, err)
		httputil.WriteInternalError(w, "Failed to get feed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, feed)
}
