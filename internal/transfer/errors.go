package transfer

import "errors"

// Domain error kinds. The HTTP layer maps these to status codes; callers
// test with errors.Is so wrapped context survives.
var (
	// ErrNotFound: referenced transfer, signal or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: caller is not a participant of the transfer, or the
	// operation is reserved for the other role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition: status change not permitted from the current
	// state, including any operation against a terminal transfer.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidRequest: direction mismatch on an offer/answer fetch,
	// malformed signal type, or out-of-range progress.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrValidation: missing or malformed required fields.
	ErrValidation = errors.New("validation failed")
	// ErrUpstream: blob store collaborator failure (CLOUD path only).
	ErrUpstream = errors.New("upstream failure")
)
