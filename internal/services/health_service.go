package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Partners  map[string]PartnerInfo `json:"partners,omitempty"`
}

// PartnerInfo describes one configured partner endpoint. Tokens and keys
// never appear here.
type PartnerInfo struct {
	BaseURL    string `json:"base_url"`
	Configured bool   `json:"configured"`
}

// NewHealthService creates a new health service
func NewHealthService(version, buildTime string, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("HealthService initialized",
		slog.String("version", version),
		slog.String("build_time", buildTime))

	return &HealthService{
		version:   version,
		buildTime: buildTime,
		startTime: time.Now(),
		logger:    logger,
	}
}

// GetHealthStatus returns the current health status
func (h *HealthService) GetHealthStatus(ctx context.Context, billingURL, directoryURL string) *HealthStatus {
	uptime := time.Since(h.startTime)

	return &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
		Runtime: map[string]interface{}{
			"go_version":     runtime.Version(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   formatUptime(uptime),
			"build_time":     h.buildTime,
		},
		Partners: map[string]PartnerInfo{
			"billing": {
				BaseURL:    billingURL,
				Configured: billingURL != "",
			},
			"directory": {
				BaseURL:    directoryURL,
				Configured: directoryURL != "",
			},
		},
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
