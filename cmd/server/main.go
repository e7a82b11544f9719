// Physics Experiment Helper server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/physics-lab/internal/agent"
	"github.com/ashureev/physics-lab/internal/api"
	"github.com/ashureev/physics-lab/internal/config"
	"github.com/ashureev/physics-lab/internal/export"
	"github.com/ashureev/physics-lab/internal/imagegen"
	"github.com/ashureev/physics-lab/internal/middleware"
	"github.com/ashureev/physics-lab/internal/search"
	"github.com/ashureev/physics-lab/internal/store"
	"github.com/ashureev/physics-lab/internal/stream"
	"github.com/ashureev/physics-lab/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.Store.Kind)

	// Initialize dependencies.
	sessions, err := store.Open(cfg.Store.Kind, cfg.Store.DBPath)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := sessions.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}

	searcher := search.NewService(search.Config{
		SerpAPIKey: cfg.Search.SerpAPIKey,
		TavilyKey:  cfg.Search.TavilyKey,
		Timeout:    cfg.HTTPTimeout,
	}, logger)

	images := imagegen.New(imagegen.Config{
		Token:       cfg.Images.ReplicateToken,
		Model:       cfg.Images.Model,
		Dir:         cfg.Images.Dir,
		HTTPTimeout: cfg.HTTPTimeout,
	}, logger)
	if !images.Available() {
		slog.Warn("Image generation disabled (REPLICATE_API_TOKEN not set)")
	}

	factory := agent.NewFantasyFactory(agent.LLMConfig{
		OpenAIKey:    cfg.LLM.OpenAIKey,
		AnthropicKey: cfg.LLM.AnthropicKey,
		GoogleKey:    cfg.LLM.GoogleKey,
		BaseURL:      cfg.LLM.BaseURL,
		Provider:     cfg.LLM.Provider,
		MaxTokens:    cfg.Agent.MaxTokens,
	})
	runner := agent.NewRunner(factory, searcher, images, agent.RunnerConfig{
		RecursionLimit: cfg.Agent.RecursionLimit,
		MaxTokens:      cfg.Agent.MaxTokens,
		SubAgents:      agent.DefaultSubAgents(),
	}, logger)
	pool := agent.NewPool(cfg.Agent.Workers, cfg.Agent.QueueTimeout)
	experiments := agent.NewService(runner, sessions, pool, cfg.DefaultModel, logger)
	slog.Info("Agent initialized", "workers", pool.Size(), "recursion_limit", cfg.Agent.RecursionLimit)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Close()

	// Initialize handlers.
	apiHandler := api.NewHandler(experiments, images, export.NewBundler(cfg.HTTPTimeout, logger),
		api.WithRateLimit(limiter.Limit),
		api.WithLogger(logger),
	)
	healthHandler := api.NewHealthHandler(sessions, 5*time.Second)
	wsHandler := stream.NewWebSocketHandler(experiments, cfg.FrontendURL, cfg.IsDevelopment(), logger)

	allowedOrigins := []string{"*"}
	if !cfg.IsDevelopment() {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))

	healthHandler.RegisterHealth(r)
	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/generate-experiment", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Generation can take minutes, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
