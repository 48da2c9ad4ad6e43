package ticketing

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

type CreateEventInput struct {
	Title        string
	Description  string
	Category     string
	Venue        domain.Venue
	Start        time.Time
	End          time.Time
	RefundPolicy domain.RefundPolicy
	Tiers        []domain.TierSpec
}

// CreateEvent creates a draft event owned by the acting provider. Admins may
// create on behalf of a provider by passing its id; for providers the owner
// is always themselves.
func (s *Service) CreateEvent(ctx context.Context, actor domain.Identity, providerID uuid.UUID, in CreateEventInput) (*domain.Event, error) {
	if actor.Role == domain.RoleProvider {
		providerID = actor.UserID
	} else if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if providerID == uuid.Nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "provider required")
	}

	event, err := domain.NewEvent(providerID, in.Title, in.Description, in.Category, in.Venue, in.Start, in.End, in.RefundPolicy, in.Tiers, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	return &event, nil
}

type UpdateEventInput struct {
	Title       string
	Description string
	Category    string
	Venue       domain.Venue
	Start       time.Time
	End         time.Time
}

// UpdateEvent edits metadata and times. The tier list is deliberately not
// editable here: once tickets are sold against a tier, restructuring it
// would break availability bookkeeping.
func (s *Service) UpdateEvent(ctx context.Context, actor domain.Identity, eventID uuid.UUID, in UpdateEventInput) (*domain.Event, error) {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageEvent(event.ProviderID) {
		return nil, domain.ErrForbidden
	}
	if !in.End.After(in.Start) {
		return nil, errors.Wrap(domain.ErrInvalidInput, "event end must be after start")
	}

	if in.Title != "" {
		event.Title = in.Title
	}
	if in.Description != "" {
		event.Description = in.Description
	}
	if in.Category != "" {
		event.Category = in.Category
	}
	if in.Venue.Name != "" {
		event.Venue = in.Venue
	}
	event.Start = in.Start
	event.End = in.End
	event.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateEvent(ctx, *event); err != nil {
		return nil, err
	}
	return event, nil
}

// PublishEvent flips draft -> published, making the event purchasable.
func (s *Service) PublishEvent(ctx context.Context, actor domain.Identity, eventID uuid.UUID) error {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !actor.CanManageEvent(event.ProviderID) {
		return domain.ErrForbidden
	}
	return s.repo.UpdateEventStatus(ctx, eventID, domain.EventDraft, domain.EventPublished)
}

// CancelEvent soft-deletes: the record stays (tickets reference it), only
// the status flips to cancelled. Already-completed events cannot be
// cancelled.
func (s *Service) CancelEvent(ctx context.Context, actor domain.Identity, eventID uuid.UUID) error {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !actor.CanManageEvent(event.ProviderID) {
		return domain.ErrForbidden
	}
	switch event.Status {
	case domain.EventCompleted, domain.EventCancelled:
		return errors.Wrapf(domain.ErrConflict, "event is %s", event.Status)
	}
	return s.repo.UpdateEventStatus(ctx, eventID, event.Status, domain.EventCancelled)
}

// GetEvent returns one event. Draft events are visible only to their owner.
func (s *Service) GetEvent(ctx context.Context, actor domain.Identity, eventID uuid.UUID) (*domain.Event, error) {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == domain.EventDraft && !actor.CanManageEvent(event.ProviderID) {
		return nil, domain.ErrEventNotFound
	}
	return event, nil
}

// ListEvents browses events. Callers without management rights over the
// requested provider only see published events.
func (s *Service) ListEvents(ctx context.Context, actor domain.Identity, filter EventFilter) ([]domain.Event, error) {
	owned := filter.ProviderID != uuid.Nil && actor.CanManageEvent(filter.ProviderID)
	if !owned && !actor.IsAdmin() {
		filter.Status = domain.EventPublished
	}
	return s.repo.ListEvents(ctx, filter)
}
