// Package server wires the HTTP router: middleware, routes and the
// services behind them.
//
// DEPENDENCY FLOW:
//
//	config.Config ──► sqlite.DB ──► repositories ──► services ──► handlers ──► routes
//
// New is the composition root. Handlers only see services, services only
// see repository interfaces, and nothing outside this package knows that
// the repositories are backed by SQLite.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/foodgram/internal/auth"
	"github.com/sakif/foodgram/internal/config"
	"github.com/sakif/foodgram/internal/handler"
	"github.com/sakif/foodgram/internal/middleware"
	sqliteRepo "github.com/sakif/foodgram/internal/repository/sqlite"
	"github.com/sakif/foodgram/internal/service"
	"github.com/sakif/foodgram/internal/storage"
)

// Server owns the router, the database and the image store.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	images storage.ImageStore

	// passwords is swapped for a cheaper bcrypt cost in tests.
	passwords *auth.PasswordService
}

// Option customises a Server before its routes are built.
type Option func(*Server)

// WithPasswordService replaces the default bcrypt cost.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(s *Server) { s.passwords = p }
}

// New opens the database and builds the router. The caller keeps ownership
// of images; the Server owns the database and closes it in Close.
func New(cfg *config.Config, images storage.ImageStore, logger *slog.Logger, opts ...Option) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		db:        db,
		images:    images,
		passwords: auth.NewPasswordService(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures middleware and routes.
//
// Paths are registered without a trailing slash and StripSlashes makes
// "/api/recipes/" and "/api/recipes" equivalent.
//
// ROUTES (under /api unless noted):
//
//	POST   /auth/token/login                  login
//	POST   /auth/token/logout           auth  logout
//	GET    /auth/github/login                 GitHub sign-in (when configured)
//	GET    /auth/github/callback              GitHub callback (when configured)
//	POST   /users                             register
//	GET    /users                             list users
//	GET    /users/{id}                        user profile
//	GET    /users/me                    auth  current user
//	POST   /users/set_password          auth  change password
//	PUT    /users/me/avatar             auth  set avatar
//	DELETE /users/me/avatar             auth  delete avatar
//	GET    /users/subscriptions         auth  followed authors
//	POST   /users/{id}/subscribe        auth  follow
//	DELETE /users/{id}/subscribe        auth  unfollow
//	GET    /ingredients                       search ingredients
//	GET    /ingredients/{id}                  ingredient
//	GET    /recipes                           list recipes
//	POST   /recipes                     auth  create recipe
//	GET    /recipes/download_shopping_cart auth shopping list
//	GET    /recipes/{id}                      recipe
//	PATCH  /recipes/{id}                auth  update recipe (author)
//	DELETE /recipes/{id}                auth  delete recipe (author)
//	GET    /recipes/{id}/get-link             short link
//	POST   /recipes/{id}/favorite       auth  add favorite
//	DELETE /recipes/{id}/favorite       auth  remove favorite
//	POST   /recipes/{id}/shopping_cart  auth  add to cart
//	DELETE /recipes/{id}/shopping_cart  auth  remove from cart
//
//	GET    /s/{code}      (root) short link redirect
//	GET    /healthz       (root) database health
//	GET    /metrics       (root) Prometheus metrics
//	GET    /media/*       (root) local image files
//
// chi matches static segments before parameters, so /users/me never
// reaches the {id} route.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.StripSlashes)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if limit := s.config.Server.RateLimitPerMinute; limit > 0 {
		s.router.Use(httprate.LimitByIP(limit, time.Minute))
	}

	// === Services ===
	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	users := s.db.Users()
	recipes := s.db.Recipes()
	ingredients := s.db.Ingredients()

	authService := service.NewAuthService(users, tokens, s.passwords, s.logger)
	userService := service.NewUserService(users, recipes, s.db.Subscriptions(), s.passwords, s.images, s.logger)
	ingredientService := service.NewIngredientService(ingredients, s.logger)
	recipeService := service.NewRecipeService(recipes, ingredients, s.db.Favorites(), s.db.ShoppingCart(), s.images, s.logger)
	shortLinkService, err := service.NewShortLinkService(s.db.ShortLinks(), recipes, s.config.ShortLinks.CacheSize, s.logger)
	if err != nil {
		return fmt.Errorf("creating short link service: %w", err)
	}

	// === Handlers ===
	baseURL := s.config.Server.BaseURL

	var github *auth.GitHubProvider
	if s.config.Auth.GitHubEnabled() {
		github = auth.NewGitHubProvider(
			s.config.Auth.GitHubClientID,
			s.config.Auth.GitHubClientSecret,
			s.config.Auth.GitHubCallbackURL,
		)
	} else {
		s.logger.Info("GitHub sign-in disabled: client id or secret not set")
	}

	authHandler := handler.NewAuthHandler(authService, github, tokens.TTL(), s.logger)
	userHandler := handler.NewUserHandler(userService, s.images, baseURL)
	ingredientHandler := handler.NewIngredientHandler(ingredientService)
	recipeHandler := handler.NewRecipeHandler(recipeService, shortLinkService, s.images, baseURL, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		// Public routes. A valid token still identifies the viewer so that
		// is_subscribed, is_favorited and is_in_shopping_cart are filled in.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)

			r.Post("/auth/token/login", authHandler.HandleLogin)
			if github != nil {
				r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
				r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
			}

			r.Post("/users", userHandler.HandleRegister)
			r.Get("/users", userHandler.HandleList)
			r.Get("/users/{id}", userHandler.HandleGet)

			r.Get("/ingredients", ingredientHandler.HandleList)
			r.Get("/ingredients/{id}", ingredientHandler.HandleGet)

			r.Get("/recipes", recipeHandler.HandleList)
			r.Get("/recipes/{id}", recipeHandler.HandleGet)
			r.Get("/recipes/{id}/get-link", recipeHandler.HandleGetLink)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/auth/token/logout", authHandler.HandleLogout)

			r.Get("/users/me", userHandler.HandleMe)
			r.Post("/users/set_password", userHandler.HandleSetPassword)
			r.Put("/users/me/avatar", userHandler.HandleSetAvatar)
			r.Delete("/users/me/avatar", userHandler.HandleDeleteAvatar)
			r.Get("/users/subscriptions", userHandler.HandleSubscriptions)
			r.Post("/users/{id}/subscribe", userHandler.HandleSubscribe)
			r.Delete("/users/{id}/subscribe", userHandler.HandleUnsubscribe)

			r.Post("/recipes", recipeHandler.HandleCreate)
			r.Get("/recipes/download_shopping_cart", recipeHandler.HandleDownloadShoppingList)
			r.Patch("/recipes/{id}", recipeHandler.HandleUpdate)
			r.Delete("/recipes/{id}", recipeHandler.HandleDelete)
			r.Post("/recipes/{id}/favorite", recipeHandler.HandleFavorite)
			r.Delete("/recipes/{id}/favorite", recipeHandler.HandleUnfavorite)
			r.Post("/recipes/{id}/shopping_cart", recipeHandler.HandleAddToCart)
			r.Delete("/recipes/{id}/shopping_cart", recipeHandler.HandleRemoveFromCart)
		})
	})

	// === Root routes ===
	s.router.Get("/s/{code}", recipeHandler.HandleShortRedirect)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// Local images are served by the API itself; S3 images are served by
	// the bucket's public URL.
	if local, ok := s.images.(*storage.LocalStore); ok {
		fileServer := http.FileServer(http.Dir(local.Root()))
		s.router.Handle("/media/*", http.StripPrefix("/media/", fileServer))
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests
// for up to ShutdownTimeout and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", s.config.Server.BaseURL),
			slog.String("database", s.config.Database.Path),
			slog.String("media", s.config.Media.Backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
