package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postboard/internal/config"
	"postboard/internal/database"
	"postboard/internal/docstore"
	"postboard/internal/handler"
	"postboard/internal/repository"
	"postboard/internal/service"
	"postboard/internal/storage"
	"postboard/internal/worker"
)

// App bundles the wired services. Both the HTTP server and the admin CLI
// build one.
type App struct {
	Config      *config.Config
	Store       *docstore.Store
	Users       repository.UserRepository
	Posts       repository.PostRepository
	AuthService *service.AuthService
	PostService *service.PostService
	ImageQueue  *worker.ImageQueue
}

// NewApp opens the database and wires repositories, services and the image
// queue. The queue is not started.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg.DBPath, cfg.DBBusyTimeoutMS)
	if err != nil {
		return nil, err
	}

	store, err := docstore.New(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init document store: %w", err)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	var mirror *storage.R2Mirror
	if cfg.R2Configured() {
		mirror, err = storage.NewR2Mirror(ctx, cfg)
		if err != nil {
			store.Close()
			return nil, err
		}
		log.Printf("[App] R2 mirror enabled: bucket=%s", cfg.R2BucketName)
	}

	// A nil *R2Mirror must not reach the Mirror interface.
	processor := worker.NewResizeProcessor(nil)
	if mirror != nil {
		processor = worker.NewResizeProcessor(mirror)
	}
	imageQueue := worker.NewImageQueue(processor, worker.QueueConfig{
		WorkerCount: cfg.ImageWorkers,
		QueueSize:   cfg.ImageQueueSize,
	})

	users := repository.NewUserRepository(store)
	posts := repository.NewPostRepository(store)

	postService := service.NewPostService(posts, users, imageQueue, service.PostServiceConfig{
		UploadDir: cfg.UploadDir,
		ImageSize: worker.Size{Width: cfg.ImageTargetWidth, Height: cfg.ImageTargetHeight},
		PageSize:  cfg.FeedPageSize,
	})
	if mirror != nil {
		postService.SetMirror(mirror)
	}

	return &App{
		Config:      cfg,
		Store:       store,
		Users:       users,
		Posts:       posts,
		AuthService: service.NewAuthService(users, cfg),
		PostService: postService,
		ImageQueue:  imageQueue,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}

// Handler builds the HTTP router over the app's services.
func (a *App) Handler() stdhttp.Handler {
	return NewRouter(RouterConfig{
		AuthHandler: handler.NewAuthHandler(a.AuthService),
		UserHandler: handler.NewUserHandler(a.AuthService, a.PostService),
		FeedHandler: handler.NewFeedHandler(a.PostService),
		PostHandler: handler.NewPostHandler(a.PostService),
		ImageQueue:  a.ImageQueue,
		JWTSecret:   a.Config.JWTSecret,
	})
}

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Wire store, services and workers
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	app.ImageQueue.Start()

	// 3. Serve
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, stdhttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
