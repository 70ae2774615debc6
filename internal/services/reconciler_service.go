package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	apierrors "seatsync/internal/errors"
	"seatsync/internal/infrastructure"
	"seatsync/internal/keygen"
	"seatsync/internal/licensekey"
	"seatsync/internal/paddle"
)

// machinePageSize is the page size used when counting a license's machines
const machinePageSize = 100

// SignatureVerifier validates that an inbound billing payload was genuinely
// produced by the payment processor
type SignatureVerifier interface {
	Verify(fields map[string]string) bool
}

// Outcome pairs the HTTP acknowledgment to return immediately with an
// optional operator alarm to surface after the response is sent. The two
// partner systems share no transaction: a partner failure mid-handling
// means they may have diverged, and the alarm is the loud signal for an
// operator to reconcile by hand. The sender that is not implicated still
// gets its acknowledgment, so it never retries and duplicates side effects.
type Outcome struct {
	Status int
	Alarm  error
}

// ack acknowledges the event with no further action required
func ack() *Outcome {
	return &Outcome{Status: http.StatusOK}
}

// rejected refuses the event before any side effects were attempted
func rejected() *Outcome {
	return &Outcome{Status: http.StatusBadRequest}
}

// failed reports a partner failure to the sender and raises an alarm
func failed(alarm error) *Outcome {
	return &Outcome{Status: http.StatusInternalServerError, Alarm: alarm}
}

// ReconcilerService is the event-driven state machine that keeps license
// state synchronized with subscription state and billed seat count
// synchronized with activated machine count. It holds no state of its own:
// every decision is derived from the inbound event plus authoritative
// reads against the partner that sent it.
type ReconcilerService interface {
	// HandleBillingEvent processes one Paddle webhook payload, signature
	// verification included
	HandleBillingEvent(ctx context.Context, fields map[string]string) *Outcome

	// HandleDirectoryEvent processes one Keygen notification by id,
	// re-fetching the authoritative event record before trusting it
	HandleDirectoryEvent(ctx context.Context, eventID string) *Outcome
}

type reconcilerService struct {
	directory keygen.Client
	billing   paddle.Client
	verifier  SignatureVerifier
	policyID  string
	logger    *slog.Logger
}

// NewReconcilerService creates the reconciliation engine
func NewReconcilerService(directory keygen.Client, billing paddle.Client, verifier SignatureVerifier, policyID string, logger *slog.Logger) ReconcilerService {
	return &reconcilerService{
		directory: directory,
		billing:   billing,
		verifier:  verifier,
		policyID:  policyID,
		logger:    logger.With(slog.String("service", "reconciler")),
	}
}

func (s *reconcilerService) HandleBillingEvent(ctx context.Context, fields map[string]string) *Outcome {
	if !s.verifier.Verify(fields) {
		s.logger.WarnContext(ctx, "billing webhook rejected",
			slog.String("reason", "bad signature or public key"),
			slog.String("alert_name", fields["alert_name"]),
		)
		return rejected()
	}

	event := paddle.EventFromFields(fields)
	switch event.AlertName {
	case paddle.AlertSubscriptionCreated:
		return s.subscriptionCreated(ctx, event)
	case paddle.AlertSubscriptionUpdated:
		return s.subscriptionUpdated(ctx, event)
	case paddle.AlertSubscriptionCancelled:
		return s.subscriptionCancelled(ctx, event)
	default:
		// Acknowledge alerts we intentionally ignore so Paddle never
		// retries them
		s.logger.DebugContext(ctx, "ignoring billing alert",
			slog.String("alert_name", event.AlertName))
		return ack()
	}
}

// subscriptionCreated issues a license for the new customer. The key is
// derived, not generated, so any later event for this subscription can
// find the license again without a shared database.
func (s *reconcilerService) subscriptionCreated(ctx context.Context, event *paddle.Event) *Outcome {
	key := licensekey.Derive(event.Email, event.CheckoutID)

	metadata := map[string]string{
		"paddleCustomerEmail":  event.Email,
		"paddleSubscriptionId": event.SubscriptionID,
		"paddlePlanId":         event.PlanID,
		"paddleCheckoutId":     event.CheckoutID,
	}

	license, err := s.directory.CreateLicense(ctx, key, s.policyID, metadata)
	if err != nil {
		// The customer has been charged but holds no license. A replayed
		// delivery lands here too: the derived key is already taken, the
		// duplicate-key rejection is the replay guard.
		return failed(fmt.Errorf("license creation failed for subscription %s (customer charged, no license issued): %w",
			event.SubscriptionID, err))
	}

	s.logger.InfoContext(ctx, "license issued for new subscription",
		slog.String("license_id", license.ID),
		slog.String("key", key),
		slog.String("subscription_id", event.SubscriptionID),
	)
	return ack()
}

// subscriptionUpdated moves the license between suspended and active to
// track the subscription status. Both transitions are idempotent: a
// license already in the target state is left untouched.
func (s *reconcilerService) subscriptionUpdated(ctx context.Context, event *paddle.Event) *Outcome {
	key := licensekey.Derive(event.Email, event.CheckoutID)

	license, err := s.directory.GetLicense(ctx, key)
	if apierrors.IsNotFound(err) {
		// No license for this customer: nothing to reconcile
		s.logger.DebugContext(ctx, "no license for updated subscription",
			slog.String("key", key))
		return ack()
	}
	if err != nil {
		return failed(fmt.Errorf("license lookup failed for key %s: %w", key, err))
	}

	switch event.Status {
	case paddle.StatusPastDue:
		if license.Attributes.Suspended {
			return ack()
		}
		if err := s.directory.SuspendLicense(ctx, key); err != nil {
			// Subscription is past due but the license remains valid
			return failed(fmt.Errorf("suspension failed for key %s (delinquent customer still licensed): %w", key, err))
		}
		s.logger.InfoContext(ctx, "license suspended",
			slog.String("key", key),
			slog.String("subscription_id", event.SubscriptionID),
		)
	case paddle.StatusActive:
		if !license.Attributes.Suspended {
			return ack()
		}
		if err := s.directory.ReinstateLicense(ctx, key); err != nil {
			// Customer has paid but remains locked out
			return failed(fmt.Errorf("reinstatement failed for key %s (paying customer locked out): %w", key, err))
		}
		s.logger.InfoContext(ctx, "license reinstated",
			slog.String("key", key),
			slog.String("subscription_id", event.SubscriptionID),
		)
	}

	return ack()
}

func (s *reconcilerService) subscriptionCancelled(ctx context.Context, event *paddle.Event) *Outcome {
	key := licensekey.Derive(event.Email, event.CheckoutID)

	if err := s.directory.RevokeLicense(ctx, key); err != nil {
		// Cancelled customer may still hold a valid license
		return failed(fmt.Errorf("revocation failed for key %s (cancelled customer may still be licensed): %w", key, err))
	}

	s.logger.InfoContext(ctx, "license revoked for cancelled subscription",
		slog.String("key", key),
		slog.String("subscription_id", event.SubscriptionID),
	)
	return ack()
}

func (s *reconcilerService) HandleDirectoryEvent(ctx context.Context, eventID string) *Outcome {
	// The webhook body is untrusted; only the re-fetched record counts.
	// A fetch failure means the notification was not genuine.
	event, err := s.directory.GetWebhookEvent(ctx, eventID)
	if err != nil {
		s.logger.WarnContext(ctx, "directory event not recognized",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return ack()
	}

	switch event.Attributes.Event {
	case keygen.EventMachineCreated, keygen.EventMachineDeleted:
		return s.machineCountChanged(ctx, event)
	default:
		s.logger.DebugContext(ctx, "ignoring directory event",
			slog.String("event", event.Attributes.Event))
		return ack()
	}
}

// machineCountChanged pushes the license's current machine count to the
// billing side as the new billed quantity
func (s *reconcilerService) machineCountChanged(ctx context.Context, event *keygen.WebhookEvent) *Outcome {
	machine, err := event.MachinePayload()
	if err != nil {
		return failed(fmt.Errorf("malformed payload in directory event %s: %w", event.ID, err))
	}

	licenseID := machine.Relationships.License.Data.ID
	license, err := s.directory.GetLicense(ctx, licenseID)
	if err != nil {
		return failed(fmt.Errorf("license lookup failed for machine %s: %w", machine.ID, err))
	}

	count, err := s.countMachines(ctx, license.ID)
	if err != nil {
		return failed(fmt.Errorf("machine count failed for license %s: %w", license.ID, err))
	}
	infrastructure.AddSpanEvent(ctx, "machine_count_computed", map[string]interface{}{
		"license_id":    license.ID,
		"machine_count": count,
	})

	subscriptionID := license.Attributes.Metadata["paddleSubscriptionId"]
	if subscriptionID == "" {
		return failed(fmt.Errorf("license %s carries no billing subscription id", license.ID))
	}

	if err := s.billing.UpdateSubscriptionQuantity(ctx, subscriptionID, count); err != nil {
		// Seat count has drifted between the two systems
		return failed(fmt.Errorf("quantity update failed for subscription %s (billed seats out of sync at %d): %w",
			subscriptionID, count, err))
	}

	s.logger.InfoContext(ctx, "subscription quantity synchronized",
		slog.String("license_id", license.ID),
		slog.String("subscription_id", subscriptionID),
		slog.Int("machine_count", count),
	)
	return ack()
}

// countMachines walks every machine page for the license. Licenses with
// more than one page of machines are counted in full rather than truncated
// at the first page.
func (s *reconcilerService) countMachines(ctx context.Context, licenseID string) (int, error) {
	count := 0
	for page := 1; ; page++ {
		machines, links, err := s.directory.ListMachines(ctx, licenseID, machinePageSize, page)
		if err != nil {
			return 0, err
		}
		count += len(machines)
		if links == nil || links.Next == "" || len(machines) < machinePageSize {
			break
		}
	}
	return count, nil
}
