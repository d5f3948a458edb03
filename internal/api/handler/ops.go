// Package handler provides HTTP handlers for the gatewise API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gatewise/gatewise/internal/api/models"
	"github.com/gatewise/gatewise/internal/api/response"
)

// ReadinessChecker reports whether a dependency is ready to serve.
type ReadinessChecker func(ctx context.Context) error

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    map[string]ReadinessChecker
}

// NewOpsHandler creates a new OpsHandler. The checks map names each
// dependency probed by the readiness endpoint.
func NewOpsHandler(version, buildTime string, checks map[string]ReadinessChecker) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		checks:    checks,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. It probes
// every registered dependency and reports 503 if any of them fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ready := models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	status := http.StatusOK
	for name, check := range h.checks {
		subsystem := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err := check(r.Context()); err != nil {
			detail := err.Error()
			subsystem.Status = models.HealthStatusFail
			subsystem.Detail = &detail
			ready.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
		ready.Subsystems = append(ready.Subsystems, subsystem)
	}

	response.JSON(w, r, status, ready)
}
