package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskfence/taskfence/internal/database"
	"github.com/taskfence/taskfence/internal/queue"
)

// HealthChecker handles health check requests. Collaborator fields may be
// nil; a nil collaborator is simply skipped in extended mode.
type HealthChecker struct {
	db    *database.DB
	redis *redis.Client
	queue queue.EventQueue
}

// NewHealthChecker creates a health checker over the process's backends.
func NewHealthChecker(db *database.DB, redisClient *redis.Client, eventQueue queue.EventQueue) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient, queue: eventQueue}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. Basic mode only confirms the
// process is serving; ?mode=extended pings each backend.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if r.URL.Query().Get("mode") == "extended" {
		checks := make(map[string]string)

		run := func(name string, check func(context.Context) error) {
			if check == nil {
				return
			}
			if err := check(r.Context()); err != nil {
				response.Status = "unhealthy"
				checks[name] = "unhealthy: " + err.Error()
			} else {
				checks[name] = "healthy"
			}
		}
		if h.db != nil {
			run("database", h.checkDatabase)
		}
		if h.redis != nil {
			run("redis", h.checkRedis)
		}
		if h.queue != nil {
			run("queue", h.queue.HealthCheck)
		}
		response.Checks = checks
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func (h *HealthChecker) checkDatabase(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.db.PingContext(ctx)
}

func (h *HealthChecker) checkRedis(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.redis.Ping(ctx).Err()
}
