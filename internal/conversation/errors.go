// ABOUTME: Error sentinels shared by the conversation key, ledger and message service
// ABOUTME: Callers classify with errors.Is and map to transport status codes

package conversation

import "errors"

var (
	// ErrInvalidArgument reports input rejected before anything was persisted:
	// empty or oversized content, a self-addressed message, a bad page request.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound reports a referenced user or conversation that does not exist.
	ErrNotFound = errors.New("not found")
)
