package ticketing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

// EventFilter narrows ListEvents. Zero values mean "any".
type EventFilter struct {
	ProviderID uuid.UUID
	Status     domain.EventStatus
	Category   string
	Text       string
}

// TicketFilter narrows ListTickets. Zero values mean "any".
type TicketFilter struct {
	EventID uuid.UUID
	BuyerID uuid.UUID
	Status  domain.TicketStatus
}

// OutboxMessage is a lifecycle event written in the same transaction as the
// state change it describes, published to the broker by cmd/outbox-publisher.
type OutboxMessage struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	DedupeKey     string
}

type EventRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error)
	// UpdateEvent persists event metadata and times. Tier bookkeeping goes
	// through AdjustTierAvailability only.
	UpdateEvent(ctx context.Context, event domain.Event) error
	// UpdateEventStatus flips status only when the current status matches
	// `from`; returns domain.ErrConflict otherwise.
	UpdateEventStatus(ctx context.Context, id uuid.UUID, from, to domain.EventStatus) error
	// AdjustTierAvailability changes a tier's available count by delta.
	// A negative delta that would drop below zero returns
	// domain.ErrInsufficientInventory; a positive delta that would exceed
	// the tier total returns domain.ErrConflict. Either way nothing changes.
	AdjustTierAvailability(ctx context.Context, eventID uuid.UUID, tierName string, delta int) error
	// ListPublishedEndedBefore returns published events whose end time has
	// passed, for the completion worker.
	ListPublishedEndedBefore(ctx context.Context, t time.Time) ([]domain.Event, error)
}

type TicketRepository interface {
	CreateTickets(ctx context.Context, tickets []domain.Ticket) error
	GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	GetTicketByToken(ctx context.Context, token string) (*domain.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// CountHeldByBuyer counts the buyer's active and used tickets for one
	// tier of one event. Cancelled and refunded tickets do not count
	// against the per-person limit.
	CountHeldByBuyer(ctx context.Context, eventID, buyerID uuid.UUID, tierName string) (int, error)
	// MarkTicketUsed flips active -> used, recording usedAt. Returns
	// domain.ErrTicketNotActive when the ticket is in any other state, so
	// two racing redemptions cannot both succeed.
	MarkTicketUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
	// MarkTicketRefunded flips a refundable ticket (active or cancelled)
	// to refunded. Returns domain.ErrConflict when the ticket is already
	// used or refunded.
	MarkTicketRefunded(ctx context.Context, id uuid.UUID, refundedAt time.Time, reason string, amount float64) error
}

// Repository is the persistence contract the lifecycle engine depends on.
// WithTx runs fn atomically: every repository call made with the ctx passed
// to fn is part of one transaction, and either all effects persist or none.
type Repository interface {
	EventRepository
	TicketRepository
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertOutbox(ctx context.Context, msg OutboxMessage) error
}
