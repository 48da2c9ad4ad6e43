package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

type RefundPolicy string

const (
	RefundNone    RefundPolicy = "none"
	RefundPartial RefundPolicy = "partial"
	RefundFull    RefundPolicy = "full"
)

type Venue struct {
	Name     string
	City     string
	Capacity int
}

// TicketTier is a named class of ticket embedded in an Event. Available is
// mutated only by the lifecycle engine: decremented on purchase, incremented
// on refund, never negative and never above Total.
type TicketTier struct {
	Name         string
	Price        float64
	Total        int
	Available    int
	MaxPerPerson int
}

type Event struct {
	ID           uuid.UUID
	ProviderID   uuid.UUID
	Title        string
	Description  string
	Category     string
	Venue        Venue
	Start        time.Time
	End          time.Time
	Status       EventStatus
	RefundPolicy RefundPolicy
	Tiers        []TicketTier
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTier validates tier parameters and sets Available = Total, so a tier
// can never be constructed with inconsistent availability.
func NewTier(name string, price float64, total, maxPerPerson int) (TicketTier, error) {
	if strings.TrimSpace(name) == "" {
		return TicketTier{}, errors.Wrap(ErrInvalidInput, "tier name required")
	}
	if price < 0 {
		return TicketTier{}, errors.Wrap(ErrInvalidInput, "tier price cannot be negative")
	}
	if total < 0 {
		return TicketTier{}, errors.Wrap(ErrInvalidInput, "tier quantity cannot be negative")
	}
	if maxPerPerson < 1 {
		maxPerPerson = DefaultMaxPerPerson
	}
	return TicketTier{
		Name:         strings.TrimSpace(name),
		Price:        price,
		Total:        total,
		Available:    total,
		MaxPerPerson: maxPerPerson,
	}, nil
}

// DefaultMaxPerPerson applies when a tier does not specify its own limit.
const DefaultMaxPerPerson = 10

type TierSpec struct {
	Name         string
	Price        float64
	Total        int
	MaxPerPerson int
}

func NewEvent(providerID uuid.UUID, title, description, category string, venue Venue, start, end time.Time, policy RefundPolicy, tiers []TierSpec, now time.Time) (Event, error) {
	if strings.TrimSpace(title) == "" {
		return Event{}, errors.Wrap(ErrInvalidInput, "title required")
	}
	if !end.After(start) {
		return Event{}, errors.Wrap(ErrInvalidInput, "event end must be after start")
	}
	if len(tiers) == 0 {
		return Event{}, errors.Wrap(ErrInvalidInput, "at least one ticket tier required")
	}
	switch policy {
	case RefundNone, RefundPartial, RefundFull:
	case "":
		policy = RefundPartial
	default:
		return Event{}, errors.Wrapf(ErrInvalidInput, "unknown refund policy %q", policy)
	}

	built := make([]TicketTier, 0, len(tiers))
	seen := make(map[string]bool, len(tiers))
	for _, spec := range tiers {
		tier, err := NewTier(spec.Name, spec.Price, spec.Total, spec.MaxPerPerson)
		if err != nil {
			return Event{}, err
		}
		if seen[tier.Name] {
			return Event{}, errors.Wrapf(ErrInvalidInput, "duplicate tier name %q", tier.Name)
		}
		seen[tier.Name] = true
		built = append(built, tier)
	}

	return Event{
		ID:           uuid.New(),
		ProviderID:   providerID,
		Title:        strings.TrimSpace(title),
		Description:  description,
		Category:     category,
		Venue:        venue,
		Start:        start,
		End:          end,
		Status:       EventDraft,
		RefundPolicy: policy,
		Tiers:        built,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Tier returns the tier with the given name, or ErrTierNotFound.
func (e *Event) Tier(name string) (*TicketTier, error) {
	for i := range e.Tiers {
		if e.Tiers[i].Name == name {
			return &e.Tiers[i], nil
		}
	}
	return nil, errors.Wrapf(ErrTierNotFound, "event %s has no tier %q", e.ID, name)
}

// TicketsSold is the number of tickets taken from the pools, refunds already
// credited back.
func (e *Event) TicketsSold() int {
	sold := 0
	for _, t := range e.Tiers {
		sold += t.Total - t.Available
	}
	return sold
}
