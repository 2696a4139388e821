package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/fitmind/internal/api"
	"github.com/ashureev/fitmind/internal/chat"
	"github.com/ashureev/fitmind/internal/completion"
	"github.com/ashureev/fitmind/internal/config"
	"github.com/ashureev/fitmind/internal/events"
	"github.com/ashureev/fitmind/internal/health"
	"github.com/ashureev/fitmind/internal/identity"
	"github.com/ashureev/fitmind/internal/logging"
	"github.com/ashureev/fitmind/internal/middleware"
	"github.com/ashureev/fitmind/internal/store"
	"github.com/ashureev/fitmind/internal/trigger"
	"github.com/ashureev/fitmind/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.Setup(cfg.Log)

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"provider", cfg.Completion.Provider,
		"encoding", cfg.Completion.Encoding,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	di := newInjector(ctx, cfg, logger)
	defer func() {
		if err := di.Shutdown(); err != nil {
			slog.Warn("Service shutdown reported errors", "error", err)
		}
	}()

	repo, err := do.Invoke[*store.SQLiteStore](di)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	chats, err := do.Invoke[*chat.Manager](di)
	if err != nil {
		return err
	}
	sink := do.MustInvoke[events.Sink](di)
	defer func() {
		if closeErr := sink.Close(); closeErr != nil {
			slog.Warn("Failed to flush event sinks", "error", closeErr)
		}
	}()
	if c, ok := do.MustInvoke[completion.Client](di).(interface{ Close() error }); ok {
		defer func() {
			if closeErr := c.Close(); closeErr != nil {
				slog.Warn("Failed to close completion client", "error", closeErr)
			}
		}()
	}
	evaluator := do.MustInvoke[*trigger.Evaluator](di)

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	conns := api.NewConnections()
	verifier := identity.NewVerifier(cfg.Auth.JWTSecret)
	if verifier == nil {
		slog.Info("AUTH_JWT_SECRET not set, every visitor chats as a guest")
	}

	base := api.NewHandler(chats, limiter, conns, api.Options{
		Encoding:      evaluator.Encoding(),
		AuthEnabled:   verifier != nil,
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, verifier, cfg.IsDevelopment()))

	api.NewChatHandler(base).RegisterRoutes(r)
	r.Get("/ws/chat", api.NewChatSocketHandler(base).ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: WebSocket connections are long lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		conns.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error { return chats.RunSweeper(gctx, cfg.SessionTTL) })
	g.Go(func() error { return limiter.Run(gctx) })

	if cfg.GRPCHealthPort != "" {
		hs := health.New(repo, 0, logger)
		g.Go(func() error { return hs.Serve(gctx, ":"+cfg.GRPCHealthPort) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}
