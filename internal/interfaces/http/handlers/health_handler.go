package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks map[string]Pinger
	log    logger.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler. Nil entries are skipped, so
// callers register optional backends such as Redis only when configured.
func NewHealthHandler(checks map[string]Pinger, log logger.Logger) *HealthHandler {
	live := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			live[name] = p
		}
	}
	return &HealthHandler{checks: live, log: log.WithComponent("HealthHandler"), now: time.Now}
}

// LivenessCheck reports that the process is serving.
// GET /health/live
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"version":   constants.ServiceVersion,
		"timestamp": h.now().UTC(),
	})
}

// ReadinessCheck pings every dependency concurrently and answers 503 if any fails.
// GET /health/ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := h.performChecks(ctx)

	status, httpStatus := "healthy", http.StatusOK
	for name, result := range checks {
		if result != "ok" {
			status, httpStatus = "unhealthy", http.StatusServiceUnavailable
			h.log.Warn(ctx, "readiness check failed", logger.String("dependency", name), logger.String("result", result))
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": h.now().UTC(),
		"checks":    checks,
	})
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checks))
	)
	for name, p := range h.checks {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			result := "ok"
			if err := p.Ping(ctx); err != nil {
				result = "error: " + err.Error()
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()
	return checks
}
