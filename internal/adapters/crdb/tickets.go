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
	"golang.org/x/sync/errgroup"
)

const ticketColumns = `id, number, event_id, buyer_id, tier_name, price, status, qr_token, payment_method, purchased_at, used_at, refunded_at, refund_reason, refund_amount`

func (r *Repository) CreateTickets(ctx context.Context, tickets []domain.Ticket) error {
	q := r.q(ctx)
	if tx := txFromContext(ctx); tx == nil {
		// Outside a transaction the inserts can run in parallel.
		g, gctx := errgroup.WithContext(ctx)
		for _, t := range tickets {
			t := t
			g.Go(func() error { return insertTicket(gctx, q, t) })
		}
		return g.Wait()
	}
	for _, t := range tickets {
		if err := insertTicket(ctx, q, t); err != nil {
			return err
		}
	}
	return nil
}

func insertTicket(ctx context.Context, q querier, t domain.Ticket) error {
	_, err := q.Exec(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.Number, t.EventID, t.BuyerID, t.TierName, t.Price, t.Status,
		t.QRToken, t.PaymentMethod, t.PurchasedAt, t.UsedAt, t.RefundedAt,
		nullableString(t.RefundReason), t.RefundAmount)
	return err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repository) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	return r.scanTicket(r.q(ctx).QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE id = $1
	`, id))
}

func (r *Repository) GetTicketByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	return r.scanTicket(r.q(ctx).QueryRow(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE qr_token = $1
	`, token))
}

func (r *Repository) scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	var reason *string
	var amount *float64
	err := row.Scan(&t.ID, &t.Number, &t.EventID, &t.BuyerID, &t.TierName, &t.Price, &t.Status,
		&t.QRToken, &t.PaymentMethod, &t.PurchasedAt, &t.UsedAt, &t.RefundedAt, &reason, &amount)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	if reason != nil {
		t.RefundReason = *reason
	}
	if amount != nil {
		t.RefundAmount = *amount
	}
	return &t, nil
}

func (r *Repository) ListTickets(ctx context.Context, filter ticketing.TicketFilter) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.EventID != uuid.Nil {
		query += ` AND event_id = ` + arg(filter.EventID)
	}
	if filter.BuyerID != uuid.Nil {
		query += ` AND buyer_id = ` + arg(filter.BuyerID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	query += ` ORDER BY purchased_at DESC`

	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		var reason *string
		var amount *float64
		if err := rows.Scan(&t.ID, &t.Number, &t.EventID, &t.BuyerID, &t.TierName, &t.Price, &t.Status,
			&t.QRToken, &t.PaymentMethod, &t.PurchasedAt, &t.UsedAt, &t.RefundedAt, &reason, &amount); err != nil {
			return nil, err
		}
		if reason != nil {
			t.RefundReason = *reason
		}
		if amount != nil {
			t.RefundAmount = *amount
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r *Repository) CountHeldByBuyer(ctx context.Context, eventID, buyerID uuid.UUID, tierName string) (int, error) {
	var count int
	err := r.q(ctx).QueryRow(ctx, `
		SELECT count(*) FROM tickets
		WHERE event_id = $1 AND buyer_id = $2 AND tier_name = $3
		  AND status IN ('active', 'used')
	`, eventID, buyerID, tierName).Scan(&count)
	return count, err
}

func (r *Repository) MarkTicketUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE tickets SET status = 'used', used_at = $2 WHERE id = $1 AND status = 'active'
	`, id, usedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return r.ticketStateError(ctx, id, domain.ErrTicketNotActive)
	}
	return nil
}

func (r *Repository) MarkTicketRefunded(ctx context.Context, id uuid.UUID, refundedAt time.Time, reason string, amount float64) error {
	result, err := r.q(ctx).Exec(ctx, `
		UPDATE tickets SET status = 'refunded', refunded_at = $2, refund_reason = $3, refund_amount = $4
		WHERE id = $1 AND status IN ('active', 'cancelled')
	`, id, refundedAt, nullableString(reason), amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return r.ticketStateError(ctx, id, domain.ErrConflict)
	}
	return nil
}

// ticketStateError disambiguates a zero-row conditional update: the ticket
// either does not exist or is in a state the update refuses.
func (r *Repository) ticketStateError(ctx context.Context, id uuid.UUID, kind error) error {
	var status domain.TicketStatus
	err := r.q(ctx).QueryRow(ctx, `SELECT status FROM tickets WHERE id = $1`, id).Scan(&status)
	if err == pgx.ErrNoRows {
		return domain.ErrTicketNotFound
	}
	if err != nil {
		return err
	}
	return errors.Wrapf(kind, "ticket is %s", status)
}
