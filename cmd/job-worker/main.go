// The job-worker binary runs the background processor without the HTTP
// surface, for deployments that scale request handling and job
// processing independently. Both binaries share the same queues; only
// one poll loop per queue item wins the dequeue.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medivault/internal/config"
	"medivault/internal/domain"
	"medivault/internal/jobs"
	"medivault/internal/messaging"
	"medivault/internal/notification"
	"medivault/internal/observability"
	"medivault/internal/session"
	"medivault/internal/store"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting job worker")

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	st, err := store.NewRedisStore(connCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Error("failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("connected to redis", slog.String("addr", cfg.RedisAddr))

	var events jobs.EventPublisher
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer rmqCancel()

		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		events = rmq
		slog.Info("connected to rabbitmq")
	}

	sessions := session.NewManager(st, session.Config{
		TTL:        cfg.SessionTTL,
		MaxPerUser: cfg.MaxSessions,
	})
	// no push hub in the worker; notifications are stored only and picked
	// up by connected clients through the api server
	publisher := notification.NewPublisher(st, nil)

	queue := jobs.NewQueue(st)
	processor := jobs.NewProcessor(queue, jobs.Config{
		PollInterval:  cfg.PollInterval,
		MaxConcurrent: cfg.MaxConcurrent,
	}, events)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		slog.Error("failed to start job processor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("job worker ready",
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Int("max_concurrent", cfg.MaxConcurrent))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down job worker")
	processor.Stop()
	cancel()
	slog.Info("job worker stopped")
}
