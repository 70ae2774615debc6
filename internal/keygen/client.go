// Package keygen implements the license directory side of the relay: an
// account-scoped JSON:API client for licenses, machines, and webhook
// events. The directory owns all state; this client only issues commands
// and reads, it never stores anything.
package keygen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"seatsync/internal/config"
	apierrors "seatsync/internal/errors"
	"seatsync/internal/infrastructure"
)

const contentType = "application/vnd.api+json"

// Client abstracts the directory operations the reconciler needs
type Client interface {
	CreateLicense(ctx context.Context, key, policyID string, metadata map[string]string) (*License, error)
	GetLicense(ctx context.Context, idOrKey string) (*License, error)
	SuspendLicense(ctx context.Context, key string) error
	ReinstateLicense(ctx context.Context, key string) error
	RevokeLicense(ctx context.Context, key string) error
	ListMachines(ctx context.Context, licenseID string, pageSize, pageNumber int) ([]Machine, *PageLinks, error)
	GetWebhookEvent(ctx context.Context, eventID string) (*WebhookEvent, error)
}

// APIClient is the HTTP implementation of Client
type APIClient struct {
	cfg        config.KeygenConfig
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *infrastructure.RelayMetrics
}

// NewAPIClient creates a directory client from the Keygen config
func NewAPIClient(cfg config.KeygenConfig, logger *slog.Logger) *APIClient {
	return &APIClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With(slog.String("component", "keygen_client")),
	}
}

// SetMetrics sets the relay metrics for outbound call accounting
func (c *APIClient) SetMetrics(metrics *infrastructure.RelayMetrics) {
	c.metrics = metrics
}

// document is the JSON:API response envelope
type document struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorObject   `json:"errors"`
	Links  *PageLinks      `json:"links"`
}

// url builds an account-scoped API URL
func (c *APIClient) url(path string) string {
	return fmt.Sprintf("%s/accounts/%s%s", c.cfg.BaseURL, c.cfg.AccountID, path)
}

// do sends an authenticated request and decodes the JSON:API envelope.
// An empty body (204) yields an empty document, not an error.
func (c *APIClient) do(ctx context.Context, method, url string, body io.Reader) (int, *document, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.ProductToken)
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.PartnerCallsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("partner", "keygen"),
			attribute.String("method", method),
			attribute.Bool("transport_error", err != nil),
		))
	}
	if err != nil {
		infrastructure.RecordError(ctx, err)
		c.logger.ErrorContext(ctx, "directory request failed",
			slog.String("method", method),
			slog.String("url", url),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	doc := &document{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, doc); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	c.logger.DebugContext(ctx, "directory request completed",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return resp.StatusCode, doc, nil
}

// CreateLicense creates a license bound to the given policy. The derived
// key is globally unique per (email, checkout id); a replayed creation for
// the same pair fails with the directory's duplicate-key error, which is
// the replay-safety mechanism.
func (c *APIClient) CreateLicense(ctx context.Context, key, policyID string, metadata map[string]string) (*License, error) {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"type": "licenses",
			"attributes": map[string]interface{}{
				"key":      key,
				"metadata": metadata,
			},
			"relationships": map[string]interface{}{
				"policy": map[string]interface{}{
					"data": map[string]interface{}{"type": "policies", "id": policyID},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal license payload: %w", err)
	}

	status, doc, err := c.do(ctx, http.MethodPost, c.url("/licenses"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(doc.Errors) > 0 {
		return nil, &DirectoryError{StatusCode: status, Errors: doc.Errors}
	}

	var license License
	if err := json.Unmarshal(doc.Data, &license); err != nil {
		return nil, fmt.Errorf("failed to parse license: %w", err)
	}

	c.logger.InfoContext(ctx, "license created",
		slog.String("license_id", license.ID),
		slog.String("key", key),
	)
	return &license, nil
}

// GetLicense fetches a license by id or by key. A missing license is the
// benign ErrLicenseNotFound sentinel, not a directory failure.
func (c *APIClient) GetLicense(ctx context.Context, idOrKey string) (*License, error) {
	status, doc, err := c.do(ctx, http.MethodGet, c.url("/licenses/"+idOrKey), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, apierrors.ErrLicenseNotFound
	}
	if len(doc.Errors) > 0 {
		return nil, &DirectoryError{StatusCode: status, Errors: doc.Errors}
	}

	var license License
	if err := json.Unmarshal(doc.Data, &license); err != nil {
		return nil, fmt.Errorf("failed to parse license: %w", err)
	}
	return &license, nil
}

// SuspendLicense suspends the license with the given key
func (c *APIClient) SuspendLicense(ctx context.Context, key string) error {
	return c.licenseAction(ctx, http.MethodPost, key, "suspend")
}

// ReinstateLicense lifts a suspension on the license with the given key
func (c *APIClient) ReinstateLicense(ctx context.Context, key string) error {
	return c.licenseAction(ctx, http.MethodPost, key, "reinstate")
}

// RevokeLicense permanently revokes the license with the given key. The
// directory answers 204 on success; any other status is only a failure if
// the body carries error objects.
func (c *APIClient) RevokeLicense(ctx context.Context, key string) error {
	status, doc, err := c.do(ctx, http.MethodDelete, c.url("/licenses/"+key+"/actions/revoke"), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNoContent {
		c.logger.InfoContext(ctx, "license revoked", slog.String("key", key))
		return nil
	}
	if len(doc.Errors) > 0 {
		return &DirectoryError{StatusCode: status, Errors: doc.Errors}
	}
	return nil
}

// licenseAction posts a license action and surfaces any error objects
func (c *APIClient) licenseAction(ctx context.Context, method, key, action string) error {
	status, doc, err := c.do(ctx, method, c.url("/licenses/"+key+"/actions/"+action), nil)
	if err != nil {
		return err
	}
	if len(doc.Errors) > 0 {
		return &DirectoryError{StatusCode: status, Errors: doc.Errors}
	}

	c.logger.InfoContext(ctx, "license action applied",
		slog.String("key", key),
		slog.String("action", action),
	)
	return nil
}

// ListMachines fetches one page of machines for a license together with
// the pagination links, so callers can walk pages until exhausted.
func (c *APIClient) ListMachines(ctx context.Context, licenseID string, pageSize, pageNumber int) ([]Machine, *PageLinks, error) {
	url := fmt.Sprintf("%s?page[size]=%d&page[number]=%d", c.url("/licenses/"+licenseID+"/machines"), pageSize, pageNumber)
	status, doc, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	if len(doc.Errors) > 0 {
		return nil, nil, &DirectoryError{StatusCode: status, Errors: doc.Errors}
	}

	var machines []Machine
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &machines); err != nil {
			return nil, nil, fmt.Errorf("failed to parse machines: %w", err)
		}
	}

	links := doc.Links
	if links == nil {
		links = &PageLinks{}
	}
	return machines, links, nil
}

// GetWebhookEvent re-fetches a directory notification by id. Anything the
// directory does not recognize is the benign ErrEventNotFound sentinel:
// the inbound webhook body is untrusted, so an unknown id simply means the
// notification was not genuine.
func (c *APIClient) GetWebhookEvent(ctx context.Context, eventID string) (*WebhookEvent, error) {
	status, doc, err := c.do(ctx, http.MethodGet, c.url("/webhook-events/"+eventID), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || len(doc.Errors) > 0 {
		return nil, apierrors.ErrEventNotFound
	}

	var event WebhookEvent
	if err := json.Unmarshal(doc.Data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook event: %w", err)
	}
	return &event, nil
}
