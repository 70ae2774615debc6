// Package paddle implements the billing side of the relay: parsing and
// verifying Paddle's classic webhook alerts, and issuing commands against
// the Paddle vendors API.
package paddle

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Alert names the relay reconciles. Every other alert is acknowledged
// without side effects so Paddle never retries it.
const (
	AlertSubscriptionCreated   = "subscription_created"
	AlertSubscriptionUpdated   = "subscription_updated"
	AlertSubscriptionCancelled = "subscription_cancelled"
)

// Subscription statuses carried by subscription_updated alerts
const (
	StatusActive  = "active"
	StatusPastDue = "past_due"
)

// SignatureField is the payload field carrying the RSA signature
const SignatureField = "p_signature"

// Event is one parsed webhook alert. Fields preserves every raw payload
// field exactly as received, which the signature verifier needs: the
// signature covers the full field set, not just the ones the relay reads.
type Event struct {
	AlertName      string
	Email          string
	CheckoutID     string
	SubscriptionID string
	PlanID         string
	Status         string
	Fields         map[string]string
}

// EventFromFields builds an Event from the flat webhook field map
func EventFromFields(fields map[string]string) *Event {
	return &Event{
		AlertName:      fields["alert_name"],
		Email:          fields["email"],
		CheckoutID:     fields["checkout_id"],
		SubscriptionID: fields["subscription_id"],
		PlanID:         fields["subscription_plan_id"],
		Status:         fields["status"],
		Fields:         fields,
	}
}

// ParseWebhookRequest decodes a Paddle webhook body into the flat field
// map. Paddle posts url-encoded forms; JSON bodies are accepted as well
// for parity with the alert simulator.
func ParseWebhookRequest(r *http.Request) (map[string]string, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.Contains(contentType, "application/json") {
		var raw map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode webhook JSON: %w", err)
		}
		fields := make(map[string]string, len(raw))
		for k, v := range raw {
			fields[k] = stringifyField(v)
		}
		return fields, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse webhook form: %w", err)
	}
	fields := make(map[string]string, len(r.PostForm))
	for k, values := range r.PostForm {
		if len(values) > 0 {
			fields[k] = values[0]
		}
	}
	return fields, nil
}

// stringifyField renders a decoded JSON value the way it would appear in
// the url-encoded form, so signature serialization is identical either way
func stringifyField(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
