package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"medivault/internal/messaging"
	"medivault/internal/store"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a dependency check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Ready reports readiness with per-dependency detail. The rmq argument
// may be nil when event publishing is disabled; it is then reported as
// skipped and does not affect readiness.
func Ready(st store.Store, rmq *messaging.RabbitMQ) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		storeResult := make(chan HealthCheckResult, 1)
		rmqResult := make(chan HealthCheckResult, 1)

		go func() {
			storeResult <- checkStore(ctx, st)
		}()

		go func() {
			rmqResult <- checkRabbitMQ(rmq)
		}()

		storeCheck := <-storeResult
		rmqCheck := <-rmqResult

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"store":    storeCheck,
				"rabbitmq": rmqCheck,
			},
		}

		allHealthy := storeCheck.Status == "up" && rmqCheck.Status != "down"

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

func checkStore(ctx context.Context, st store.Store) HealthCheckResult {
	start := time.Now()
	err := st.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	result := HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
	}
	if used, err := st.MemoryUsage(ctx); err == nil {
		result.Metadata = map[string]any{
			"memory_used_bytes": used,
		}
	}
	return result
}

func checkRabbitMQ(rmq *messaging.RabbitMQ) HealthCheckResult {
	if rmq == nil {
		return HealthCheckResult{Status: "skipped"}
	}

	start := time.Now()
	if rmq.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: time.Since(start).Milliseconds(),
	}
}
