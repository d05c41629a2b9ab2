package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hongminglow/contacts-be/internal/auth"
	"github.com/hongminglow/contacts-be/internal/config"
	apihandlers "github.com/hongminglow/contacts-be/internal/http/handlers"
	"github.com/hongminglow/contacts-be/internal/http/respond"
	"github.com/hongminglow/contacts-be/internal/middleware"
	"github.com/hongminglow/contacts-be/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New ensures the store's indexes, wires up middleware and routes, and
// returns a ready server.
func New(ctx context.Context, cfg config.Config, store storage.DocumentStore, logger zerolog.Logger) (*Server, error) {
	if err := store.EnsureIndexes(ctx, storage.Indexes); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	apihandlers.NewHealthHandler(time.Now(), store).Register(router)

	hasher := auth.BcryptHasher{Cost: cfg.BcryptCost}
	var tokens *auth.TokenManager
	if cfg.TokensEnabled() {
		tokens = auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	}
	authn, err := auth.NewAuthenticator(store.Collection(storage.UsersCollection), hasher, tokens)
	if err != nil {
		return nil, err
	}
	if tokens != nil {
		apihandlers.NewAuthHandler(authn, tokens).Register(router)
	}

	api, err := apihandlers.NewAPI(store, hasher, nil)
	if err != nil {
		return nil, fmt.Errorf("build api: %w", err)
	}
	if err := api.Register(router); err != nil {
		return nil, fmt.Errorf("mount api: %w", err)
	}

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(middleware.RecoveryLogger{Logger: logger}),
		handlers.PrintRecoveryStack(true),
	)
	// /health answers GET and /login POST on top of the API tree.
	corsMethods := append(api.Methods(), http.MethodGet, http.MethodPost)
	handler := middleware.Logging(logger,
		recovery(middleware.CORS(cfg.CORSOrigins, corsMethods, authn.Middleware(router))))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}, nil
}

// Handler exposes the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.inner.Handler
}

// Addr reports the listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
