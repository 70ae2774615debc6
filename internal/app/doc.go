// Package app provides application initialization and lifecycle management
// for the relay. It handles the orchestration of all major components
// including configuration loading, partner client construction, and
// graceful shutdown procedures.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from environment and files
//	2. Initialize logging and observability
//	3. Construct the partner API clients
//	4. Wire the reconciler service with its dependencies
//	5. Set up HTTP handlers and middleware
//	6. Configure and start the HTTP server
//	7. Set up graceful shutdown handlers
package app
