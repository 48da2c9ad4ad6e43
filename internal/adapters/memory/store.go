// Package memory implements ticketing.Repository entirely in process. It
// backs the unit tests and local demos; production wiring uses the crdb
// adapter instead.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

type txKey struct{}

type Store struct {
	mu      sync.Mutex
	events  map[uuid.UUID]*domain.Event
	tickets map[uuid.UUID]*domain.Ticket
	byToken map[string]uuid.UUID
	outbox  []ticketing.OutboxMessage
}

func NewStore() *Store {
	return &Store{
		events:  make(map[uuid.UUID]*domain.Event),
		tickets: make(map[uuid.UUID]*domain.Ticket),
		byToken: make(map[string]uuid.UUID),
	}
}

// WithTx holds the store lock for the whole of fn and restores a snapshot on
// error, so a failed multi-step effect leaves no partial state behind.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, struct{}{})); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	events  map[uuid.UUID]*domain.Event
	tickets map[uuid.UUID]*domain.Ticket
	byToken map[string]uuid.UUID
	outbox  []ticketing.OutboxMessage
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		events:  make(map[uuid.UUID]*domain.Event, len(s.events)),
		tickets: make(map[uuid.UUID]*domain.Ticket, len(s.tickets)),
		byToken: make(map[string]uuid.UUID, len(s.byToken)),
		outbox:  append([]ticketing.OutboxMessage(nil), s.outbox...),
	}
	for id, e := range s.events {
		snap.events[id] = copyEvent(e)
	}
	for id, t := range s.tickets {
		c := *t
		snap.tickets[id] = &c
	}
	for tok, id := range s.byToken {
		snap.byToken[tok] = id
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.events = snap.events
	s.tickets = snap.tickets
	s.byToken = snap.byToken
	s.outbox = snap.outbox
}

func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func copyEvent(e *domain.Event) *domain.Event {
	c := *e
	c.Tiers = append([]domain.TicketTier(nil), e.Tiers...)
	return &c
}

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	defer s.lock(ctx)()
	if _, ok := s.events[event.ID]; ok {
		return errors.Wrapf(domain.ErrConflict, "event %s exists", event.ID)
	}
	s.events[event.ID] = copyEvent(&event)
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	defer s.lock(ctx)()
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return copyEvent(e), nil
}

func (s *Store) ListEvents(ctx context.Context, filter ticketing.EventFilter) ([]domain.Event, error) {
	defer s.lock(ctx)()
	var out []domain.Event
	for _, e := range s.events {
		if filter.ProviderID != uuid.Nil && e.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.Text != "" {
			needle := strings.ToLower(filter.Text)
			if !strings.Contains(strings.ToLower(e.Title), needle) &&
				!strings.Contains(strings.ToLower(e.Description), needle) {
				continue
			}
		}
		out = append(out, *copyEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) UpdateEvent(ctx context.Context, event domain.Event) error {
	defer s.lock(ctx)()
	existing, ok := s.events[event.ID]
	if !ok {
		return domain.ErrEventNotFound
	}
	// Tier bookkeeping is owned by AdjustTierAvailability.
	event.Tiers = append([]domain.TicketTier(nil), existing.Tiers...)
	s.events[event.ID] = copyEvent(&event)
	return nil
}

func (s *Store) UpdateEventStatus(ctx context.Context, id uuid.UUID, from, to domain.EventStatus) error {
	defer s.lock(ctx)()
	e, ok := s.events[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	if e.Status != from {
		return errors.Wrapf(domain.ErrConflict, "event is %s, not %s", e.Status, from)
	}
	e.Status = to
	return nil
}

func (s *Store) AdjustTierAvailability(ctx context.Context, eventID uuid.UUID, tierName string, delta int) error {
	defer s.lock(ctx)()
	e, ok := s.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	for i := range e.Tiers {
		if e.Tiers[i].Name != tierName {
			continue
		}
		next := e.Tiers[i].Available + delta
		if next < 0 {
			return domain.ErrInsufficientInventory
		}
		if next > e.Tiers[i].Total {
			return errors.Wrapf(domain.ErrConflict, "tier %q availability above total", tierName)
		}
		e.Tiers[i].Available = next
		return nil
	}
	return domain.ErrTierNotFound
}

func (s *Store) ListPublishedEndedBefore(ctx context.Context, t time.Time) ([]domain.Event, error) {
	defer s.lock(ctx)()
	var out []domain.Event
	for _, e := range s.events {
		if e.Status == domain.EventPublished && !e.End.After(t) {
			out = append(out, *copyEvent(e))
		}
	}
	return out, nil
}

func (s *Store) CreateTickets(ctx context.Context, tickets []domain.Ticket) error {
	defer s.lock(ctx)()
	for _, t := range tickets {
		if _, ok := s.byToken[t.QRToken]; ok {
			return errors.Wrapf(domain.ErrConflict, "duplicate redemption token")
		}
	}
	for _, t := range tickets {
		c := t
		s.tickets[t.ID] = &c
		s.byToken[t.QRToken] = t.ID
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	defer s.lock(ctx)()
	t, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	c := *t
	return &c, nil
}

func (s *Store) GetTicketByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	defer s.lock(ctx)()
	id, ok := s.byToken[token]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	c := *s.tickets[id]
	return &c, nil
}

func (s *Store) ListTickets(ctx context.Context, filter ticketing.TicketFilter) ([]domain.Ticket, error) {
	defer s.lock(ctx)()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if filter.EventID != uuid.Nil && t.EventID != filter.EventID {
			continue
		}
		if filter.BuyerID != uuid.Nil && t.BuyerID != filter.BuyerID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}

func (s *Store) CountHeldByBuyer(ctx context.Context, eventID, buyerID uuid.UUID, tierName string) (int, error) {
	defer s.lock(ctx)()
	count := 0
	for _, t := range s.tickets {
		if t.EventID == eventID && t.BuyerID == buyerID && t.TierName == tierName &&
			(t.Status == domain.TicketActive || t.Status == domain.TicketUsed) {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkTicketUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	defer s.lock(ctx)()
	t, ok := s.tickets[id]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if t.Status != domain.TicketActive {
		return errors.Wrapf(domain.ErrTicketNotActive, "ticket is %s", t.Status)
	}
	t.Status = domain.TicketUsed
	at := usedAt
	t.UsedAt = &at
	return nil
}

func (s *Store) MarkTicketRefunded(ctx context.Context, id uuid.UUID, refundedAt time.Time, reason string, amount float64) error {
	defer s.lock(ctx)()
	t, ok := s.tickets[id]
	if !ok {
		return domain.ErrTicketNotFound
	}
	if t.Status == domain.TicketUsed || t.Status == domain.TicketRefunded {
		return errors.Wrapf(domain.ErrConflict, "ticket is %s", t.Status)
	}
	t.Status = domain.TicketRefunded
	at := refundedAt
	t.RefundedAt = &at
	t.RefundReason = reason
	t.RefundAmount = amount
	return nil
}

func (s *Store) InsertOutbox(ctx context.Context, msg ticketing.OutboxMessage) error {
	defer s.lock(ctx)()
	s.outbox = append(s.outbox, msg)
	return nil
}

// Outbox returns the accumulated outbox rows, oldest first. Test helper.
func (s *Store) Outbox() []ticketing.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ticketing.OutboxMessage(nil), s.outbox...)
}
