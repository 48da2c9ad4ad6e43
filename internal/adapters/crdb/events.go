package crdb

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

const eventColumns = `id, provider_id, title, description, category, venue_name, venue_city, venue_capacity, start_at, end_at, status, refund_policy, created_at, updated_at`

func (r *Repository) CreateEvent(ctx context.Context, event domain.Event) error {
	q := r.q(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, event.ID, event.ProviderID, event.Title, event.Description, event.Category,
		event.Venue.Name, event.Venue.City, event.Venue.Capacity,
		event.Start, event.End, event.Status, event.RefundPolicy,
		event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for i, tier := range event.Tiers {
		_, err := q.Exec(ctx, `
			INSERT INTO tiers (event_id, name, price, total, available, max_per_person, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, event.ID, tier.Name, tier.Price, tier.Total, tier.Available, tier.MaxPerPerson, i)
		if err != nil {
			return fmt.Errorf("insert tier: %w", err)
		}
	}
	return nil
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var event domain.Event
	err := r.q(ctx).QueryRow(ctx, `
		SELECT `+eventColumns+` FROM events WHERE id = $1
	`, id).Scan(&event.ID, &event.ProviderID, &event.Title, &event.Description, &event.Category,
		&event.Venue.Name, &event.Venue.City, &event.Venue.Capacity,
		&event.Start, &event.End, &event.Status, &event.RefundPolicy,
		&event.CreatedAt, &event.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}

	tiers, err := r.eventTiers(ctx, id)
	if err != nil {
		return nil, err
	}
	event.Tiers = tiers
	return &event, nil
}

func (r *Repository) eventTiers(ctx context.Context, eventID uuid.UUID) ([]domain.TicketTier, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT name, price, total, available, max_per_person
		FROM tiers WHERE event_id = $1 ORDER BY position
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []domain.TicketTier
	for rows.Next() {
		var t domain.TicketTier
		if err := rows.Scan(&t.Name, &t.Price, &t.Total, &t.Available, &t.MaxPerPerson); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (r *Repository) ListEvents(ctx context.Context, filter ticketing.EventFilter) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ProviderID != uuid.Nil {
		query += ` AND provider_id = ` + arg(filter.ProviderID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	if filter.Category != "" {
		query += ` AND category = ` + arg(filter.Category)
	}
	if filter.Text != "" {
		p := arg("%" + filter.Text + "%")
		query += ` AND (title ILIKE ` + p + ` OR description ILIKE ` + p + `)`
	}
	query += ` ORDER BY start_at`

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(&event.ID, &event.ProviderID, &event.Title, &event.Description, &event.Category,
			&event.Venue.Name, &event.Venue.City, &event.Venue.Capacity,
			&event.Start, &event.End, &event.Status, &event.RefundPolicy,
			&event.CreatedAt, &event.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range events {
		tiers, err := r.eventTiers(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Tiers = tiers
	}
	return events, nil
}

func (r *Repository) UpdateEvent(ctx context.Context, event domain.Event) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE events SET title = $2, description = $3, category = $4,
			venue_name = $5, venue_city = $6, venue_capacity = $7,
			start_at = $8, end_at = $9, updated_at = $10
		WHERE id = $1
	`, event.ID, event.Title, event.Description, event.Category,
		event.Venue.Name, event.Venue.City, event.Venue.Capacity,
		event.Start, event.End, event.UpdatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *Repository) UpdateEventStatus(ctx context.Context, id uuid.UUID, from, to domain.EventStatus) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE events SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var current domain.EventStatus
		err := r.q(ctx).QueryRow(ctx, `SELECT status FROM events WHERE id = $1`, id).Scan(&current)
		if err == pgx.ErrNoRows {
			return domain.ErrEventNotFound
		}
		if err != nil {
			return err
		}
		return errors.Wrapf(domain.ErrConflict, "event is %s, not %s", current, from)
	}
	return nil
}

// AdjustTierAvailability is the only write path for tier availability. The
// guard rides in the UPDATE itself, so the storage layer refuses oversell
// even if a caller skips the tier lock.
func (r *Repository) AdjustTierAvailability(ctx context.Context, eventID uuid.UUID, tierName string, delta int) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE tiers SET available = available + $3
		WHERE event_id = $1 AND name = $2
		  AND available + $3 >= 0 AND available + $3 <= total
	`, eventID, tierName, delta)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		err := r.q(ctx).QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM tiers WHERE event_id = $1 AND name = $2)
		`, eventID, tierName).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrTierNotFound
		}
		if delta < 0 {
			return domain.ErrInsufficientInventory
		}
		return errors.Wrapf(domain.ErrConflict, "tier %q availability above total", tierName)
	}
	return nil
}

func (r *Repository) ListPublishedEndedBefore(ctx context.Context, t time.Time) ([]domain.Event, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+eventColumns+` FROM events WHERE status = 'published' AND end_at <= $1
	`, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(&event.ID, &event.ProviderID, &event.Title, &event.Description, &event.Category,
			&event.Venue.Name, &event.Venue.City, &event.Venue.Capacity,
			&event.Start, &event.End, &event.Status, &event.RefundPolicy,
			&event.CreatedAt, &event.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
