package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"postboard/internal/handler"
	"postboard/internal/httputil"
	authmw "postboard/internal/transport/http/middleware"
	"postboard/internal/worker"
)

// QueueMonitor exposes image queue occupancy for health checks.
type QueueMonitor interface {
	Depth() int
	Capacity() int
	Stats() worker.Stats
}

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	AuthHandler *handler.AuthHandler
	UserHandler *handler.UserHandler
	FeedHandler *handler.FeedHandler
	PostHandler *handler.PostHandler
	ImageQueue  QueueMonitor
	JWTSecret   string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "ok"}
		if cfg.ImageQueue != nil {
			body["image_queue"] = map[string]interface{}{
				"depth":    cfg.ImageQueue.Depth(),
				"capacity": cfg.ImageQueue.Capacity(),
				"stats":    cfg.ImageQueue.Stats(),
			}
		}
		httputil.WriteJSON(w, http.StatusOK, body)
	})

	// Public routes - no authentication required
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", cfg.AuthHandler.Register)
		r.Post("/login", cfg.AuthHandler.Login)
	})

	r.Get("/feed", cfg.FeedHandler.GetFeed)
	r.Get("/users/{id}/posts", cfg.PostHandler.GetUserPosts)
	r.Get("/posts/{id}", cfg.PostHandler.GetByID)
	r.Get("/images/{filename}", cfg.PostHandler.ServeImage)

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/auth/logout", cfg.AuthHandler.Logout)

		r.Get("/me", cfg.UserHandler.Me)
		r.Patch("/me", cfg.UserHandler.UpdateMe)
		r.Delete("/me", cfg.UserHandler.DeleteMe)

		r.Post("/posts", cfg.PostHandler.Create)
		r.Patch("/posts/{id}", cfg.PostHandler.Update)
		r.Delete("/posts/{id}", cfg.PostHandler.Delete)
	})

	return r
}
