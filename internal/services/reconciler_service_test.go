package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "seatsync/internal/errors"
	"seatsync/internal/keygen"
)

const testPolicyID = "policy-1"

// derivedKey is the key produced for test@example.com / checkout 554433
const derivedKey = "8a01-b97b-a722-c864-eb16"

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) CreateLicense(ctx context.Context, key, policyID string, metadata map[string]string) (*keygen.License, error) {
	args := m.Called(ctx, key, policyID, metadata)
	if lic := args.Get(0); lic != nil {
		return lic.(*keygen.License), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDirectory) GetLicense(ctx context.Context, idOrKey string) (*keygen.License, error) {
	args := m.Called(ctx, idOrKey)
	if lic := args.Get(0); lic != nil {
		return lic.(*keygen.License), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDirectory) SuspendLicense(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockDirectory) ReinstateLicense(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockDirectory) RevokeLicense(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockDirectory) ListMachines(ctx context.Context, licenseID string, pageSize, pageNumber int) ([]keygen.Machine, *keygen.PageLinks, error) {
	args := m.Called(ctx, licenseID, pageSize, pageNumber)
	var machines []keygen.Machine
	if v := args.Get(0); v != nil {
		machines = v.([]keygen.Machine)
	}
	var links *keygen.PageLinks
	if v := args.Get(1); v != nil {
		links = v.(*keygen.PageLinks)
	}
	return machines, links, args.Error(2)
}

func (m *mockDirectory) GetWebhookEvent(ctx context.Context, eventID string) (*keygen.WebhookEvent, error) {
	args := m.Called(ctx, eventID)
	if ev := args.Get(0); ev != nil {
		return ev.(*keygen.WebhookEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockBilling struct {
	mock.Mock
}

func (m *mockBilling) UpdateSubscriptionQuantity(ctx context.Context, subscriptionID string, quantity int) error {
	return m.Called(ctx, subscriptionID, quantity).Error(0)
}

type stubVerifier struct {
	ok bool
}

func (v stubVerifier) Verify(fields map[string]string) bool {
	return v.ok
}

func newTestReconciler(t *testing.T, verified bool) (ReconcilerService, *mockDirectory, *mockBilling) {
	t.Helper()
	directory := new(mockDirectory)
	billing := new(mockBilling)
	svc := NewReconcilerService(directory, billing, stubVerifier{ok: verified}, testPolicyID, slog.Default())
	return svc, directory, billing
}

func billingFields(alertName string, extra map[string]string) map[string]string {
	fields := map[string]string{
		"alert_name":  alertName,
		"email":       "test@example.com",
		"checkout_id": "554433",
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

func TestHandleBillingEvent_BadSignature(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, false)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_created", nil))

	assert.Equal(t, http.StatusBadRequest, outcome.Status)
	assert.NoError(t, outcome.Alarm)
	directory.AssertNotCalled(t, "CreateLicense", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	billing.AssertExpectations(t)
}

func TestHandleBillingEvent_SubscriptionCreated(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	expectedMetadata := map[string]string{
		"paddleCustomerEmail":  "test@example.com",
		"paddleSubscriptionId": "sub-9",
		"paddlePlanId":         "plan-3",
		"paddleCheckoutId":     "554433",
	}
	directory.On("CreateLicense", mock.Anything, derivedKey, testPolicyID, expectedMetadata).
		Return(&keygen.License{ID: "lic-1"}, nil)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_created", map[string]string{
		"subscription_id":      "sub-9",
		"subscription_plan_id": "plan-3",
	}))

	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.NoError(t, outcome.Alarm)
	directory.AssertExpectations(t)
}

func TestHandleBillingEvent_CreateFailureRaisesAlarm(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	directory.On("CreateLicense", mock.Anything, derivedKey, testPolicyID, mock.Anything).
		Return(nil, errors.New("boom"))

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_created", map[string]string{
		"subscription_id": "sub-9",
	}))

	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	require.Error(t, outcome.Alarm)
	assert.Contains(t, outcome.Alarm.Error(), "sub-9")
}

func TestHandleBillingEvent_UpdatedPastDueSuspends(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	directory.On("GetLicense", mock.Anything, derivedKey).
		Return(&keygen.License{ID: "lic-1"}, nil)
	directory.On("SuspendLicense", mock.Anything, derivedKey).Return(nil)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_updated", map[string]string{
		"status": "past_due",
	}))

	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.NoError(t, outcome.Alarm)
	directory.AssertExpectations(t)
}

func TestHandleBillingEvent_UpdatedPastDueAlreadySuspended(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	suspended := &keygen.License{ID: "lic-1"}
	suspended.Attributes.Suspended = true
	directory.On("GetLicense", mock.Anything, derivedKey).Return(suspended, nil)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_updated", map[string]string{
		"status": "past_due",
	}))

	assert.Equal(t, http.StatusOK, outcome.Status)
	directory.AssertNotCalled(t, "SuspendLicense", mock.Anything, mock.Anything)
}

func TestHandleBillingEvent_UpdatedActiveReinstates(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	suspended := &keygen.License{ID: "lic-1"}
	suspended.Attributes.Suspended = true
	directory.On("GetLicense", mock.Anything, derivedKey).Return(suspended, nil)
	directory.On("ReinstateLicense", mock.Anything, derivedKey).Return(nil)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_updated", map[string]string{
		"status": "active",
	}))

	assert.Equal(t, http.StatusOK, outcome.Status)
	directory.AssertExpectations(t)
}

func TestHandleBillingEvent_UpdatedActiveNotSuspendedNoOp(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	directory.On("GetLicense", mock.Anything, derivedKey).
		Return(&keygen.License{ID: "lic-1"}, nil)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_updated", map[string]string{
		"status": "active",
	}))

	assert.Equal(t, http.StatusOK, outcome.Status)
	directory.AssertNotCalled(t, "ReinstateLicense", mock.Anything, mock.Anything)
}

func TestHandleBillingEvent_UpdatedNoLicense(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	directory.On("GetLicense", mock.Anything, derivedKey).
		Return(nil, apierrors.ErrLicenseNotFound)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_updated", map[string]string{
		"status": "past_due",
	}))

	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.NoError(t, outcome.Alarm)
	directory.AssertNotCalled(t, "SuspendLicense", mock.Anything, mock.Anything)
}

func TestHandleBillingEvent_UpdatedLookupFailure(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	directory.On("GetLicense", mock.Anything, derivedKey).
		Return(nil, errors.New("directory down"))

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_updated", map[string]string{
		"status": "past_due",
	}))

	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	require.Error(t, outcome.Alarm)
}

func TestHandleBillingEvent_SuspendFailureRaisesAlarm(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	directory.On("GetLicense", mock.Anything, derivedKey).
		Return(&keygen.License{ID: "lic-1"}, nil)
	directory.On("SuspendLicense", mock.Anything, derivedKey).
		Return(errors.New("boom"))

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_updated", map[string]string{
		"status": "past_due",
	}))

	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	require.Error(t, outcome.Alarm)
	assert.Contains(t, outcome.Alarm.Error(), derivedKey)
}

func TestHandleBillingEvent_SubscriptionCancelled(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	directory.On("RevokeLicense", mock.Anything, derivedKey).Return(nil)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_cancelled", nil))

	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.NoError(t, outcome.Alarm)
	directory.AssertExpectations(t)
}

func TestHandleBillingEvent_RevokeFailureRaisesAlarm(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	directory.On("RevokeLicense", mock.Anything, derivedKey).
		Return(errors.New("boom"))

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("subscription_cancelled", nil))

	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	require.Error(t, outcome.Alarm)
}

func TestHandleBillingEvent_UnknownAlertIgnored(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	outcome := svc.HandleBillingEvent(context.Background(), billingFields("payment_refunded", nil))

	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.NoError(t, outcome.Alarm)
	directory.AssertExpectations(t)
	billing.AssertExpectations(t)
}

func machineEvent(eventName, machineID, licenseID string) *keygen.WebhookEvent {
	ev := &keygen.WebhookEvent{ID: "evt-1"}
	ev.Attributes.Event = eventName
	ev.Attributes.Payload = `{"data":{"id":"` + machineID + `","relationships":{"license":{"data":{"type":"licenses","id":"` + licenseID + `"}}}}}`
	return ev
}

func licenseWithSubscription(id, subscriptionID string) *keygen.License {
	lic := &keygen.License{ID: id}
	lic.Attributes.Metadata = map[string]string{"paddleSubscriptionId": subscriptionID}
	return lic
}

func TestHandleDirectoryEvent_MachineCreatedUpdatesQuantity(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	directory.On("GetWebhookEvent", mock.Anything, "evt-1").
		Return(machineEvent(keygen.EventMachineCreated, "mach-1", "lic-1"), nil)
	directory.On("GetLicense", mock.Anything, "lic-1").
		Return(licenseWithSubscription("lic-1", "sub-9"), nil)
	directory.On("ListMachines", mock.Anything, "lic-1", machinePageSize, 1).
		Return(make([]keygen.Machine, 3), nil, nil)
	billing.On("UpdateSubscriptionQuantity", mock.Anything, "sub-9", 3).Return(nil)

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.NoError(t, outcome.Alarm)
	directory.AssertExpectations(t)
	billing.AssertExpectations(t)
}

func TestHandleDirectoryEvent_MachineDeletedUpdatesQuantity(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	directory.On("GetWebhookEvent", mock.Anything, "evt-1").
		Return(machineEvent(keygen.EventMachineDeleted, "mach-1", "lic-1"), nil)
	directory.On("GetLicense", mock.Anything, "lic-1").
		Return(licenseWithSubscription("lic-1", "sub-9"), nil)
	directory.On("ListMachines", mock.Anything, "lic-1", machinePageSize, 1).
		Return([]keygen.Machine{}, nil, nil)
	billing.On("UpdateSubscriptionQuantity", mock.Anything, "sub-9", 0).Return(nil)

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusOK, outcome.Status)
	billing.AssertExpectations(t)
}

func TestHandleDirectoryEvent_CountsAcrossPages(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	directory.On("GetWebhookEvent", mock.Anything, "evt-1").
		Return(machineEvent(keygen.EventMachineCreated, "mach-1", "lic-1"), nil)
	directory.On("GetLicense", mock.Anything, "lic-1").
		Return(licenseWithSubscription("lic-1", "sub-9"), nil)
	directory.On("ListMachines", mock.Anything, "lic-1", machinePageSize, 1).
		Return(make([]keygen.Machine, machinePageSize), &keygen.PageLinks{Next: "/page/2"}, nil)
	directory.On("ListMachines", mock.Anything, "lic-1", machinePageSize, 2).
		Return(make([]keygen.Machine, 37), &keygen.PageLinks{}, nil)
	billing.On("UpdateSubscriptionQuantity", mock.Anything, "sub-9", 137).Return(nil)

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusOK, outcome.Status)
	directory.AssertExpectations(t)
	billing.AssertExpectations(t)
}

func TestHandleDirectoryEvent_NotGenuine(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	directory.On("GetWebhookEvent", mock.Anything, "evt-1").
		Return(nil, apierrors.ErrEventNotFound)

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.NoError(t, outcome.Alarm)
	directory.AssertNotCalled(t, "GetLicense", mock.Anything, mock.Anything)
	billing.AssertExpectations(t)
}

func TestHandleDirectoryEvent_UnknownEventIgnored(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	ev := &keygen.WebhookEvent{ID: "evt-1"}
	ev.Attributes.Event = "license.created"
	directory.On("GetWebhookEvent", mock.Anything, "evt-1").Return(ev, nil)

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusOK, outcome.Status)
	directory.AssertNotCalled(t, "GetLicense", mock.Anything, mock.Anything)
	billing.AssertExpectations(t)
}

func TestHandleDirectoryEvent_MalformedPayload(t *testing.T) {
	svc, directory, _ := newTestReconciler(t, true)

	ev := &keygen.WebhookEvent{ID: "evt-1"}
	ev.Attributes.Event = keygen.EventMachineCreated
	ev.Attributes.Payload = "{not json"
	directory.On("GetWebhookEvent", mock.Anything, "evt-1").Return(ev, nil)

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	require.Error(t, outcome.Alarm)
}

func TestHandleDirectoryEvent_LicenseLookupFailure(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	directory.On("GetWebhookEvent", mock.Anything, "evt-1").
		Return(machineEvent(keygen.EventMachineCreated, "mach-1", "lic-1"), nil)
	directory.On("GetLicense", mock.Anything, "lic-1").
		Return(nil, apierrors.ErrLicenseNotFound)

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	require.Error(t, outcome.Alarm)
	billing.AssertNotCalled(t, "UpdateSubscriptionQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDirectoryEvent_MissingSubscriptionMetadata(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	directory.On("GetWebhookEvent", mock.Anything, "evt-1").
		Return(machineEvent(keygen.EventMachineCreated, "mach-1", "lic-1"), nil)
	directory.On("GetLicense", mock.Anything, "lic-1").
		Return(&keygen.License{ID: "lic-1"}, nil)
	directory.On("ListMachines", mock.Anything, "lic-1", machinePageSize, 1).
		Return(make([]keygen.Machine, 2), nil, nil)

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	require.Error(t, outcome.Alarm)
	billing.AssertNotCalled(t, "UpdateSubscriptionQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDirectoryEvent_QuantityUpdateFailure(t *testing.T) {
	svc, directory, billing := newTestReconciler(t, true)

	directory.On("GetWebhookEvent", mock.Anything, "evt-1").
		Return(machineEvent(keygen.EventMachineCreated, "mach-1", "lic-1"), nil)
	directory.On("GetLicense", mock.Anything, "lic-1").
		Return(licenseWithSubscription("lic-1", "sub-9"), nil)
	directory.On("ListMachines", mock.Anything, "lic-1", machinePageSize, 1).
		Return(make([]keygen.Machine, 5), nil, nil)
	billing.On("UpdateSubscriptionQuantity", mock.Anything, "sub-9", 5).
		Return(errors.New("vendor api error"))

	outcome := svc.HandleDirectoryEvent(context.Background(), "evt-1")

	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	require.Error(t, outcome.Alarm)
	assert.Contains(t, outcome.Alarm.Error(), "sub-9")
}
