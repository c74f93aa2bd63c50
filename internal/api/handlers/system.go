package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// DeviceStatus reports the capture device state: disabled, closed or open.
type DeviceStatus interface {
	Status() string
}

type SystemHandler struct {
	checks map[string]Pinger
	device DeviceStatus
}

// NewSystemHandler takes the dependencies readiness depends on, by name.
// Nil entries are skipped.
func NewSystemHandler(checks map[string]Pinger, device DeviceStatus) *SystemHandler {
	filtered := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			filtered[name] = p
		}
	}
	return &SystemHandler{checks: filtered, device: device}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz pings every dependency. The capture device is reported but does
// not affect readiness, since it is opened lazily.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}
	if h.device != nil {
		checks["camera"] = h.device.Status()
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
