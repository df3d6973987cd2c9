package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/userhub-api/backend/config"
	"github.com/userhub-api/backend/internal/auth"
	"github.com/userhub-api/backend/internal/db"
	"github.com/userhub-api/backend/internal/handlers"
	"github.com/userhub-api/backend/internal/mq"
	"github.com/userhub-api/backend/internal/services"
	"github.com/userhub-api/backend/internal/store"
	"github.com/userhub-api/backend/internal/tasks"
)

// Server wraps the HTTP server and its collaborators.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	rdb        *redis.Client
}

// New constructs a Server with basic middleware and defaults. The token
// service is built here so a bad signing configuration fails startup,
// not the first request.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokenService, err := auth.NewTokenService(cfg.JWT)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	backend, err := mq.NewBackend(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	queue := mq.New(backend)

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	userRepo := store.NewUserRepository(dbConn)
	userService := services.NewUserService(userRepo)
	authService := auth.NewService(tokenService, userRepo)
	guard := auth.NewGuard(tokenService, userRepo)
	enqueuer := tasks.NewEnqueuer(queue)
	results := tasks.NewResultStore(rdb)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(dbConn, rdb))
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService)
	})
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService, guard)
	})
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, enqueuer, results)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		rdb:        rdb,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	return s.httpServer.Close()
}
