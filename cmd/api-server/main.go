package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medivault/internal/config"
	"medivault/internal/domain"
	"medivault/internal/handler"
	"medivault/internal/jobs"
	"medivault/internal/messaging"
	"medivault/internal/middleware"
	"medivault/internal/notification"
	"medivault/internal/observability"
	"medivault/internal/push"
	"medivault/internal/ratelimit"
	"medivault/internal/session"
	"medivault/internal/store"
	"medivault/internal/token"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting api server")

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	st, err := store.NewRedisStore(connCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Error("failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("connected to redis", slog.String("addr", cfg.RedisAddr))

	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer rmqCancel()

		rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		slog.Info("connected to rabbitmq")
	} else {
		slog.Info("RABBITMQ_URL not set, job event publishing disabled")
	}

	sessions := session.NewManager(st, session.Config{
		TTL:        cfg.SessionTTL,
		MaxPerUser: cfg.MaxSessions,
	})
	resolver := session.NewResolver(token.NewVerifier(cfg.SessionSecret))

	hub := push.NewHub()
	publisher := notification.NewPublisher(st, hub)

	queue := jobs.NewQueue(st)

	var events jobs.EventPublisher
	if rmq != nil {
		events = rmq
	}
	processor := jobs.NewProcessor(queue, jobs.Config{
		PollInterval:  cfg.PollInterval,
		MaxConcurrent: cfg.MaxConcurrent,
	}, events)
	registerJobHandlers(processor, publisher, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		slog.Error("failed to start job processor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	go startSessionCleanup(ctx, sessions)
	slog.Info("session cleanup task started")

	adminHandler := handler.NewAdminHandler(sessions, queue, processor, st)
	jobHandler := handler.NewJobHandler(queue)
	notificationHandler := handler.NewNotificationHandler(publisher, hub)

	adminThrottle := middleware.NewThrottle(5, 10)
	defer adminThrottle.Stop()

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())
	r.Use(middleware.Session(sessions, resolver))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(st, rmq))

	r.Group(func(r chi.Router) {
		r.Use(adminThrottle.Middleware())
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)
			r.Use(middleware.RateLimit(ratelimit.ForCategory(st, "api"), "api"))

			r.Get("/notifications", notificationHandler.List)
			r.Get("/jobs/{jobID}", jobHandler.Status)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Use(adminThrottle.Middleware())
			r.Use(middleware.RateLimit(ratelimit.ForCategory(st, "admin"), "admin"))

			r.Get("/admin/stats", adminHandler.Stats)
			r.Post("/admin/sessions/cleanup", adminHandler.CleanupSessions)
			r.Post("/jobs", jobHandler.Enqueue)
		})
	})

	// session resolution happens in middleware; the handler rejects
	// unauthenticated upgrades itself
	r.Get("/ws/notifications", notificationHandler.Stream)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	processor.Stop()
	hub.Shutdown()
	cancel()

	slog.Info("server stopped gracefully")
}

// registerJobHandlers binds the background job types. Document
// processing and entity extraction hand off to the ingestion pipeline,
// which reports progress through its own channel; here they acknowledge
// receipt.
func registerJobHandlers(processor *jobs.Processor, publisher *notification.Publisher, sessions *session.Manager) {
	processor.Register("notification", func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		var req struct {
			UserID  string         `json:"user_id"`
			Type    string         `json:"type"`
			Message string         `json:"message"`
			Data    map[string]any `json:"data"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		if req.Type == "" {
			req.Type = "message"
		}

		n, err := publisher.Publish(ctx, req.UserID, &domain.Notification{
			Type:    req.Type,
			Message: req.Message,
			Data:    req.Data,
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"notification_id": n.ID})
	})

	processor.Register("cleanup", func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		cleaned, err := sessions.CleanupExpired(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int64{"cleaned": cleaned})
	})

	for _, jobType := range []string{"document_processing", "entity_extraction"} {
		jt := jobType
		processor.Register(jt, func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
			observability.FromContext(ctx).Info("dispatched to ingestion pipeline",
				"job_type", jt)
			return json.Marshal(map[string]string{"dispatched": jt})
		})
	}
}

// startSessionCleanup sweeps expired sessions periodically.
func startSessionCleanup(ctx context.Context, sessions *session.Manager) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := sessions.CleanupExpired(cleanupCtx)
			if err != nil {
				slog.Error("session cleanup failed", slog.String("error", err.Error()))
			} else {
				slog.Info("session cleanup completed",
					slog.Int64("sessions_cleaned", count))
			}
			cancel()
		}
	}
}
