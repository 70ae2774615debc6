package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"seatsync/internal/config"
	"seatsync/internal/infrastructure"
)

// Client issues subscription commands against the Paddle vendors API
type Client interface {
	UpdateSubscriptionQuantity(ctx context.Context, subscriptionID string, quantity int) error
}

// VendorClient is the HTTP implementation of Client. The vendors API is
// Paddle's legacy surface: requests are multipart form posts carrying the
// vendor credentials, responses are {"success": bool, "error": {...}}.
type VendorClient struct {
	cfg        config.PaddleConfig
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *infrastructure.RelayMetrics
}

// NewVendorClient creates a vendors API client from the Paddle config
func NewVendorClient(cfg config.PaddleConfig, logger *slog.Logger) *VendorClient {
	return &VendorClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With(slog.String("component", "paddle_client")),
	}
}

// SetMetrics sets the relay metrics for outbound call accounting
func (c *VendorClient) SetMetrics(metrics *infrastructure.RelayMetrics) {
	c.metrics = metrics
}

// vendorResponse is the vendors API response envelope
type vendorResponse struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UpdateSubscriptionQuantity sets the billed quantity on a subscription
func (c *VendorClient) UpdateSubscriptionQuantity(ctx context.Context, subscriptionID string, quantity int) error {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	fields := map[string]string{
		"subscription_id":  subscriptionID,
		"quantity":         strconv.Itoa(quantity),
		"vendor_id":        c.cfg.VendorID,
		"vendor_auth_code": c.cfg.APIKey,
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to build form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	url := c.cfg.VendorsURL + "/subscription/users/update"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	c.logger.DebugContext(ctx, "updating subscription quantity",
		slog.String("subscription_id", subscriptionID),
		slog.Int("quantity", quantity),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.PartnerCallsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("partner", "paddle"),
			attribute.String("method", http.MethodPost),
			attribute.Bool("transport_error", err != nil),
		))
	}
	if err != nil {
		infrastructure.RecordError(ctx, err)
		c.logger.ErrorContext(ctx, "vendors API request failed",
			slog.String("subscription_id", subscriptionID),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var out vendorResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !out.Success {
		msg := "unknown error"
		if out.Error != nil {
			msg = out.Error.Message
		}
		c.logger.ErrorContext(ctx, "subscription quantity update rejected",
			slog.String("subscription_id", subscriptionID),
			slog.Int("quantity", quantity),
			slog.String("error", msg),
		)
		return fmt.Errorf("subscription update rejected: %s", msg)
	}

	c.logger.InfoContext(ctx, "subscription quantity updated",
		slog.String("subscription_id", subscriptionID),
		slog.Int("quantity", quantity),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
