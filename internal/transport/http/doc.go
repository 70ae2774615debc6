// Package http implements HTTP request handlers for the relay.
// It provides a thin layer between HTTP transport and reconciliation logic,
// following the clean architecture principle of keeping handlers focused
// solely on HTTP concerns.
//
// # Architecture Principles
//
// Handlers in this package follow these principles:
//
//	1. Thin handlers - minimal logic, delegate to services
//	2. HTTP-only concerns - request parsing, response formatting
//	3. Acknowledge first - the webhook sender gets its status before
//	   operator alarms are raised
//	4. No reconciliation logic - all logic belongs in the service layer
//
// # Request Flow
//
// A typical webhook flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → ReconcilerService → Partner APIs
//	                                              ↓
//	HTTP Response ← Handler ← Outcome ←──────────┘
//	                     ↓
//	             Operator alarm (log + metric), after the response
//
// # Error Handling
//
// Request-shape errors follow RFC 7807 Problem Details:
//
//	{
//	    "type": "invalid_request",
//	    "title": "Invalid request data",
//	    "status": 400,
//	    "trace_id": "..."
//	}
//
// Partner failures never surface their detail to the webhook sender; the
// sender sees a bare status code and the detail goes to the operator alarm.
//
// # Testing
//
// Handlers are tested using httptest with a mocked ReconcilerService.
package http
