package domain

import "errors"

// Sentinel errors for the ticket lifecycle. Handlers map these to HTTP
// status codes with errors.Is; adapters may wrap them with context.
var (
	// Validation
	ErrInvalidInput = errors.New("invalid input")

	// Not found
	ErrEventNotFound  = errors.New("event not found")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTierNotFound   = errors.New("ticket tier not found")
	ErrInvalidTicket  = errors.New("invalid ticket")

	// State conflicts
	ErrEventNotAvailable      = errors.New("event not available for purchase")
	ErrEventAlreadyStarted    = errors.New("event already started")
	ErrEventNotStarted        = errors.New("event not started yet")
	ErrEventEnded             = errors.New("event ended")
	ErrInsufficientInventory  = errors.New("insufficient tickets available")
	ErrPerPersonLimitExceeded = errors.New("per-person ticket limit exceeded")
	ErrTicketNotActive        = errors.New("ticket not active")
	ErrTicketUsed             = errors.New("ticket already used")
	ErrTicketCancelled        = errors.New("ticket cancelled")
	ErrAlreadyRefunded        = errors.New("ticket already refunded")

	// Policy
	ErrRefundsDisallowed = errors.New("refunds not allowed for this event")

	// Authorization
	ErrForbidden = errors.New("forbidden")

	// Storage
	ErrSerializationFailure = errors.New("serialization failure")
	ErrConflict             = errors.New("conflict")
)
