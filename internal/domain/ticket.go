package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCard     PaymentMethod = "card"
	PaymentPaypal   PaymentMethod = "paypal"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCash     PaymentMethod = "cash"
)

// Ticket is an issued ticket. TierName and Price are frozen at purchase time
// and never change, even if the tier is later repriced.
type Ticket struct {
	ID            uuid.UUID
	Number        string
	EventID       uuid.UUID
	BuyerID       uuid.UUID
	TierName      string
	Price         float64
	Status        TicketStatus
	QRToken       string
	PaymentMethod PaymentMethod
	PurchasedAt   time.Time
	UsedAt        *time.Time
	RefundedAt    *time.Time
	RefundReason  string
	RefundAmount  float64
}

// NewTicket issues an active ticket with a generated number and redemption
// token, freezing the tier name and price.
func NewTicket(eventID, buyerID uuid.UUID, tierName string, price float64, method PaymentMethod, now time.Time) Ticket {
	if method == "" {
		method = PaymentCard
	}
	id := uuid.New()
	number := ticketNumber(eventID, now)
	return Ticket{
		ID:            id,
		Number:        number,
		EventID:       eventID,
		BuyerID:       buyerID,
		TierName:      tierName,
		Price:         price,
		Status:        TicketActive,
		QRToken:       RedemptionToken(number, eventID, buyerID),
		PaymentMethod: method,
		PurchasedAt:   now,
	}
}

// ticketNumber format: last 6 hex chars of the event id, purchase date, and a
// 6-char random suffix. Collisions are negligible at this scale; the storage
// layer still enforces uniqueness.
func ticketNumber(eventID uuid.UUID, now time.Time) string {
	compact := strings.ReplaceAll(eventID.String(), "-", "")
	suffix := randomSuffix(6)
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(compact[len(compact)-6:]), now.Format("20060102"), suffix)
}

const suffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(out)
}

// RedemptionToken derives the opaque QR token from the ticket number, event
// and buyer. Deterministic, so it can be recomputed for verification, but
// not forgeable without all three fields.
func RedemptionToken(number string, eventID, buyerID uuid.UUID) string {
	sum := sha256.Sum256([]byte("ticket:" + number + ":" + eventID.String() + ":" + buyerID.String()))
	return hex.EncodeToString(sum[:])
}

// CanRefund reports whether the ticket's own state permits a refund.
func (t *Ticket) CanRefund() error {
	switch t.Status {
	case TicketUsed:
		return errors.Wrapf(ErrTicketUsed, "ticket %s", t.Number)
	case TicketRefunded:
		return errors.Wrapf(ErrAlreadyRefunded, "ticket %s", t.Number)
	}
	return nil
}

// RefundAmount computes the amount returned for a ticket price under the
// given policy at the moment `now`, relative to the event start.
// Partial refunds are tiered by time remaining: under 7 days 50%, under 30
// days 80%, otherwise the full price.
func ComputeRefundAmount(policy RefundPolicy, price float64, eventStart, now time.Time) (float64, error) {
	switch policy {
	case RefundNone:
		return 0, ErrRefundsDisallowed
	case RefundFull:
		return price, nil
	case RefundPartial:
		days := eventStart.Sub(now).Hours() / 24
		switch {
		case days < 7:
			return price * 0.5, nil
		case days < 30:
			return price * 0.8, nil
		default:
			return price, nil
		}
	default:
		return 0, errors.Wrapf(ErrInvalidInput, "unknown refund policy %q", policy)
	}
}
