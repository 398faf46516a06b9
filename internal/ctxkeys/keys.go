// Package ctxkeys provides unified context keys for the application.
package ctxkeys

// Key is the type for all context keys in the application.
// Using a dedicated type prevents collisions with keys from other packages.
type Key string

const (
	// KeyRunID carries the id of the scheduled or manual operation run.
	KeyRunID Key = "run_id"
	// KeyRequestID carries the id of a request to the operations server.
	KeyRequestID Key = "request_id"
)
