package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"seatsync/internal/services"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service      *services.HealthService
	billingURL   string
	directoryURL string
	logger       *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService, billingURL, directoryURL string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service:      service,
		billingURL:   billingURL,
		directoryURL: directoryURL,
		logger:       logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.GetHealthStatus(r.Context(), h.billingURL, h.directoryURL))
}
