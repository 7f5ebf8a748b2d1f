package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/course"
	"github.com/p-n-ai/pai-quiz/internal/notify"
	"github.com/p-n-ai/pai-quiz/internal/platform/cache"
	"github.com/p-n-ai/pai-quiz/internal/platform/config"
	"github.com/p-n-ai/pai-quiz/internal/platform/database"
	"github.com/p-n-ai/pai-quiz/internal/platform/logging"
	"github.com/p-n-ai/pai-quiz/internal/progress"
	"github.com/p-n-ai/pai-quiz/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app holds the wired components and the resources to release on exit.
type app struct {
	handler http.Handler
	manager *server.Manager
	closers []func()
}

func (a *app) close() {
	a.manager.CloseAll()
	a.release()
}

// newApp wires sources, the committer and the HTTP server from cfg. Without a
// database only the guest catalog can be served.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	checks := map[string]server.Checker{}

	guest, err := course.NewGuestSource()
	if err != nil {
		return nil, fmt.Errorf("load guest catalog: %w", err)
	}

	var (
		store   course.Source
		sink    progress.Sink
		events  progress.EventLogger = progress.NopEventLogger{}
		claimer progress.Claimer
	)

	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				a.release()
				return nil, err
			}
		}

		pgSource, err := course.NewPostgresSource(db.Pool)
		if err != nil {
			a.release()
			return nil, err
		}
		pgSink, err := progress.NewPostgresSink(db.Pool)
		if err != nil {
			a.release()
			return nil, err
		}
		store = pgSource
		sink = pgSink
		events = progress.NewPostgresEventLogger(db.Pool)
	} else {
		slog.Warn("database disabled, serving guest catalog only")
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.release()
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("cache close failed", "error", err)
			}
		})
		checks["cache"] = c
		claimer = c
		if store != nil {
			store = course.NewCachedSource(store, c, cfg.Cache.QuestionTTL)
		}
	}

	messages, err := notify.NewMessages(cfg.Quiz.Locale)
	if err != nil {
		a.release()
		return nil, err
	}

	hub := server.NewHub()
	gateway := notify.NewGateway()
	gateway.Register("log", notify.LogChannel{Logger: logger})
	gateway.Register("stream", hub)

	committer, err := progress.NewCommitter(progress.CommitterConfig{
		Sink:     sink,
		Notifier: gateway,
		Messages: messages,
		Events:   events,
		Claimer:  claimer,
		ClaimTTL: cfg.Cache.CommitTTL,
		Timeout:  cfg.Quiz.CommitTimeout,
	})
	if err != nil {
		a.release()
		return nil, err
	}

	a.manager, err = server.NewManager(server.ManagerConfig{
		Source:           course.NewResolver(guest, store),
		Committer:        committer,
		Notifier:         gateway,
		Messages:         messages,
		Hub:              hub,
		RevealInterval:   cfg.Quiz.RevealInterval,
		PointsPerCorrect: cfg.Quiz.PointsPerCorrect,
		SessionTTL:       cfg.Quiz.SessionTTL,
	})
	if err != nil {
		a.release()
		return nil, err
	}

	a.handler = server.New(a.manager, checks).Handler()
	slog.Info("quiz service wired",
		"database", cfg.Database.Enabled,
		"cache", cfg.Cache.Enabled,
		"locale", messages.Locale(),
	)
	return a, nil
}

func (a *app) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
