// Package services implements the business logic layer of the relay.
// It provides a clean separation between HTTP handlers and partner API
// clients, ensuring that reconciliation rules are centralized and testable.
//
// # Architecture
//
// Services follow these architectural principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//	4. Domain-focused methods that encapsulate reconciliation rules
//
// # Available Services
//
// The package provides these core services:
//
//	- ReconcilerService: Drives license and seat-count reconciliation
//	- HealthService: Provides system health checks
//
// # Outcome Handling
//
// The reconciler never returns a plain error to its caller. Each handled
// event produces an Outcome that separates the HTTP status owed to the
// webhook sender from the operator alarm owed to a human:
//
//	outcome := reconciler.HandleBillingEvent(ctx, fields)
//	render.Status(r, outcome.Status)
//	// ... write response ...
//	if outcome.Alarm != nil {
//	    // surface to operators after the sender is answered
//	}
//
// # Testing
//
// Services are tested by mocking the partner clients:
//
//	directory := new(mockDirectory)
//	service := NewReconcilerService(directory, billing, verifier, policyID, logger)
//
//	directory.On("GetLicense", mock.Anything, key).Return(license, nil)
//	outcome := service.HandleBillingEvent(ctx, fields)
package services
