package ticketing

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

// Service is the ticket lifecycle engine. It owns every mutation of tier
// availability and ticket status; nothing else in the system touches them.
type Service struct {
	repo   Repository
	locks  TierLocker
	clock  clock.Clock
	logger observability.Logger
}

func NewService(repo Repository, locks TierLocker, clk clock.Clock, logger observability.Logger) *Service {
	return &Service{repo: repo, locks: locks, clock: clk, logger: logger}
}

type PurchaseInput struct {
	EventID       uuid.UUID
	BuyerID       uuid.UUID
	TierName      string
	Quantity      int
	PaymentMethod domain.PaymentMethod
}

type EventSummary struct {
	ID    uuid.UUID
	Title string
	Start string
	End   string
}

type PurchaseResult struct {
	Tickets     []domain.Ticket
	TotalAmount float64
	Event       EventSummary
}

// Purchase reserves quantity tickets from one tier for a buyer. Validation
// runs in a fixed order so callers get the most specific failure; the effect
// (ticket rows plus tier decrement plus outbox row) commits atomically under
// the tier lock, so concurrent purchases can never oversell.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	if in.Quantity < 1 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "quantity must be at least 1")
	}
	if in.TierName == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "tier name required")
	}
	if in.EventID == uuid.Nil || in.BuyerID == uuid.Nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "event and buyer required")
	}

	release, err := s.locks.Lock(ctx, in.EventID, in.TierName)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	var result *PurchaseResult

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.repo.GetEvent(ctx, in.EventID)
		if errors.Is(err, domain.ErrEventNotFound) {
			return domain.ErrEventNotAvailable
		}
		if err != nil {
			return err
		}
		if event.Status != domain.EventPublished {
			return errors.Wrapf(domain.ErrEventNotAvailable, "event is %s", event.Status)
		}
		if !now.Before(event.Start) {
			return domain.ErrEventAlreadyStarted
		}

		tier, err := event.Tier(in.TierName)
		if err != nil {
			return err
		}
		if tier.Available < in.Quantity {
			return errors.Wrapf(domain.ErrInsufficientInventory, "%d requested, %d available", in.Quantity, tier.Available)
		}

		held, err := s.repo.CountHeldByBuyer(ctx, in.EventID, in.BuyerID, in.TierName)
		if err != nil {
			return err
		}
		if held+in.Quantity > tier.MaxPerPerson {
			return errors.Wrapf(domain.ErrPerPersonLimitExceeded, "maximum %d tickets per person", tier.MaxPerPerson)
		}

		tickets := make([]domain.Ticket, in.Quantity)
		for i := range tickets {
			tickets[i] = domain.NewTicket(in.EventID, in.BuyerID, tier.Name, tier.Price, in.PaymentMethod, now)
		}
		if err := s.repo.CreateTickets(ctx, tickets); err != nil {
			return err
		}
		if err := s.repo.AdjustTierAvailability(ctx, in.EventID, tier.Name, -in.Quantity); err != nil {
			return err
		}

		numbers := make([]string, len(tickets))
		for i, t := range tickets {
			numbers[i] = t.Number
		}
		if err := s.insertOutbox(ctx, "ticket.purchased", in.EventID, map[string]interface{}{
			"event_id": in.EventID,
			"buyer_id": in.BuyerID,
			"tier":     tier.Name,
			"tickets":  numbers,
			"total":    tier.Price * float64(in.Quantity),
		}); err != nil {
			return err
		}

		result = &PurchaseResult{
			Tickets:     tickets,
			TotalAmount: tier.Price * float64(in.Quantity),
			Event: EventSummary{
				ID:    event.ID,
				Title: event.Title,
				Start: event.Start.Format("2006-01-02T15:04:05Z07:00"),
				End:   event.End.Format("2006-01-02T15:04:05Z07:00"),
			},
		}
		return nil
	})
	if err != nil {
		observability.PurchaseRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	observability.TicketsIssued.WithLabelValues(in.EventID.String()).Add(float64(in.Quantity))
	s.logger.WithField("event_id", in.EventID).WithField("buyer_id", in.BuyerID).
		WithField("tier", in.TierName).WithField("quantity", in.Quantity).
		Info("tickets purchased")
	return result, nil
}

// UseTicket redeems an active ticket during the event window. Only the
// event's owning provider or an admin may redeem. The transition is terminal:
// a used ticket can never be refunded or reused.
func (s *Service) UseTicket(ctx context.Context, ticketID uuid.UUID, actor domain.Identity) (*domain.Ticket, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	event, err := s.repo.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageEvent(event.ProviderID) {
		return nil, domain.ErrForbidden
	}
	if ticket.Status != domain.TicketActive {
		return nil, errors.Wrapf(domain.ErrTicketNotActive, "ticket is %s", ticket.Status)
	}

	now := s.clock.Now()
	if now.Before(event.Start) {
		return nil, domain.ErrEventNotStarted
	}
	if now.After(event.End) {
		return nil, domain.ErrEventEnded
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkTicketUsed(ctx, ticketID, now); err != nil {
			return err
		}
		return s.insertOutbox(ctx, "ticket.used", ticket.EventID, map[string]interface{}{
			"ticket": ticket.Number,
			"event":  ticket.EventID,
		})
	})
	if err != nil {
		return nil, err
	}

	observability.TicketsRedeemed.Inc()
	ticket.Status = domain.TicketUsed
	ticket.UsedAt = &now
	return ticket, nil
}

// RequestRefund refunds one ticket under the event's refund policy and
// returns its seat to the tier pool. Each ticket refunds independently.
func (s *Service) RequestRefund(ctx context.Context, ticketID uuid.UUID, reason string, actor domain.Identity) (*domain.Ticket, float64, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, 0, err
	}
	event, err := s.repo.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, 0, err
	}
	if actor.UserID != ticket.BuyerID && !actor.CanManageEvent(event.ProviderID) {
		return nil, 0, domain.ErrForbidden
	}
	if err := ticket.CanRefund(); err != nil {
		return nil, 0, err
	}

	now := s.clock.Now()
	amount, err := domain.ComputeRefundAmount(event.RefundPolicy, ticket.Price, event.Start, now)
	if err != nil {
		return nil, 0, err
	}

	release, err := s.locks.Lock(ctx, ticket.EventID, ticket.TierName)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkTicketRefunded(ctx, ticketID, now, reason, amount); err != nil {
			return err
		}
		if err := s.repo.AdjustTierAvailability(ctx, ticket.EventID, ticket.TierName, 1); err != nil {
			return err
		}
		return s.insertOutbox(ctx, "ticket.refunded", ticket.EventID, map[string]interface{}{
			"ticket": ticket.Number,
			"event":  ticket.EventID,
			"amount": amount,
			"reason": reason,
		})
	})
	if err != nil {
		return nil, 0, err
	}

	observability.TicketsRefunded.Inc()
	s.logger.WithField("ticket", ticket.Number).WithField("amount", amount).Info("ticket refunded")
	ticket.Status = domain.TicketRefunded
	ticket.RefundedAt = &now
	ticket.RefundReason = reason
	ticket.RefundAmount = amount
	return ticket, amount, nil
}

// ValidateByToken looks a ticket up by its redemption token for scanning and
// preview. It never transitions state, so scanning twice is harmless;
// consuming the ticket requires an explicit UseTicket call.
func (s *Service) ValidateByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	ticket, err := s.repo.GetTicketByToken(ctx, token)
	if errors.Is(err, domain.ErrTicketNotFound) {
		return nil, domain.ErrInvalidTicket
	}
	if err != nil {
		return nil, err
	}
	switch ticket.Status {
	case domain.TicketActive:
		return ticket, nil
	case domain.TicketUsed:
		return nil, domain.ErrTicketUsed
	case domain.TicketRefunded:
		return nil, domain.ErrAlreadyRefunded
	case domain.TicketCancelled:
		return nil, domain.ErrTicketCancelled
	default:
		return nil, errors.Wrapf(domain.ErrTicketNotActive, "ticket is %s", ticket.Status)
	}
}

// EventStats partitions an event's tickets by status. TotalRevenue excludes
// refunded tickets entirely: a refund reverses the full recognized revenue
// for that ticket, whatever the refunded amount was.
type EventStats struct {
	Total        int
	Active       int
	Used         int
	Cancelled    int
	Refunded     int
	TotalRevenue float64
}

func (s *Service) GetEventStats(ctx context.Context, eventID uuid.UUID) (*EventStats, error) {
	tickets, err := s.repo.ListTickets(ctx, TicketFilter{EventID: eventID})
	if err != nil {
		return nil, err
	}
	stats := &EventStats{Total: len(tickets)}
	for _, t := range tickets {
		switch t.Status {
		case domain.TicketActive:
			stats.Active++
		case domain.TicketUsed:
			stats.Used++
		case domain.TicketCancelled:
			stats.Cancelled++
		case domain.TicketRefunded:
			stats.Refunded++
		}
		if t.Status != domain.TicketRefunded {
			stats.TotalRevenue += t.Price
		}
	}
	return stats, nil
}

// ListBuyerTickets returns the buyer's tickets, optionally filtered by event
// or status.
func (s *Service) ListBuyerTickets(ctx context.Context, buyerID uuid.UUID, filter TicketFilter) ([]domain.Ticket, error) {
	filter.BuyerID = buyerID
	return s.repo.ListTickets(ctx, filter)
}

func (s *Service) insertOutbox(ctx context.Context, eventType string, aggregateID uuid.UUID, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.repo.InsertOutbox(ctx, OutboxMessage{
		ID:            uuid.New(),
		AggregateType: "ticket",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		DedupeKey:     uuid.New().String(),
	})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, domain.ErrPerPersonLimitExceeded):
		return "per_person_limit"
	case errors.Is(err, domain.ErrEventAlreadyStarted):
		return "event_started"
	case errors.Is(err, domain.ErrEventNotAvailable):
		return "event_not_available"
	case errors.Is(err, domain.ErrTierNotFound):
		return "tier_not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	default:
		return "other"
	}
}
