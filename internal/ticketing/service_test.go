package ticketing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/adapters/memory"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	svc   *ticketing.Service
}

func newFixture(clk clock.Clock) *fixture {
	store := memory.NewStore()
	svc := ticketing.NewService(store, ticketing.NewKeyedMutex(), clk, observability.NewLogger())
	return &fixture{store: store, svc: svc}
}

func provider() domain.Identity {
	return domain.Identity{UserID: uuid.New(), Role: domain.RoleProvider}
}

func buyer() domain.Identity {
	return domain.Identity{UserID: uuid.New(), Role: domain.RoleClient}
}

func (f *fixture) publishedEvent(t *testing.T, owner domain.Identity, start, end time.Time, policy domain.RefundPolicy, tiers []domain.TierSpec) *domain.Event {
	t.Helper()
	ctx := context.Background()
	event, err := f.svc.CreateEvent(ctx, owner, uuid.Nil, ticketing.CreateEventInput{
		Title:        "Test Event",
		Category:     "music",
		Venue:        domain.Venue{Name: "Hall", City: "Riga", Capacity: 1000},
		Start:        start,
		End:          end,
		RefundPolicy: policy,
		Tiers:        tiers,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.PublishEvent(ctx, owner, event.ID); err != nil {
		t.Fatal(err)
	}
	return event
}

func (f *fixture) lastOutbox(t *testing.T) ticketing.OutboxMessage {
	t.Helper()
	msgs := f.store.Outbox()
	if len(msgs) == 0 {
		t.Fatal("expected an outbox message")
	}
	return msgs[len(msgs)-1]
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(clock.NewFixed(baseTime))
	owner := provider()
	event := f.publishedEvent(t, owner, baseTime.AddDate(0, 0, 10), baseTime.AddDate(0, 0, 10).Add(4*time.Hour),
		domain.RefundPartial, []domain.TierSpec{{Name: "GA", Price: 50, Total: 100}})
	b := buyer()

	result, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{
		EventID:  event.ID,
		BuyerID:  b.UserID,
		TierName: "GA",
		Quantity: 3,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(result.Tickets))
	}
	if result.TotalAmount != 150 {
		t.Errorf("expected total 150, got %v", result.TotalAmount)
	}
	for _, ticket := range result.Tickets {
		if ticket.Status != domain.TicketActive {
			t.Errorf("expected active ticket, got %s", ticket.Status)
		}
		if ticket.Price != 50 || ticket.TierName != "GA" {
			t.Errorf("tier snapshot wrong: %q %v", ticket.TierName, ticket.Price)
		}
	}

	stored, err := f.store.GetEvent(ctx, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Tiers[0].Available != 97 {
		t.Errorf("expected availability 97, got %d", stored.Tiers[0].Available)
	}
	if msg := f.lastOutbox(t); msg.EventType != "ticket.purchased" {
		t.Errorf("expected ticket.purchased outbox message, got %s", msg.EventType)
	}
}

func TestPurchaseRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(clock.NewFixed(baseTime))
	owner := provider()

	published := f.publishedEvent(t, owner, baseTime.AddDate(0, 0, 10), baseTime.AddDate(0, 0, 10).Add(4*time.Hour),
		domain.RefundPartial, []domain.TierSpec{{Name: "GA", Price: 50, Total: 5, MaxPerPerson: 2}})

	draft, err := f.svc.CreateEvent(ctx, owner, uuid.Nil, ticketing.CreateEventInput{
		Title: "Draft", Venue: domain.Venue{Name: "Hall"},
		Start: baseTime.AddDate(0, 0, 10), End: baseTime.AddDate(0, 0, 10).Add(time.Hour),
		Tiers: []domain.TierSpec{{Name: "GA", Price: 10, Total: 5}},
	})
	if err != nil {
		t.Fatal(err)
	}

	started := f.publishedEvent(t, owner, baseTime.Add(-time.Hour), baseTime.Add(3*time.Hour),
		domain.RefundPartial, []domain.TierSpec{{Name: "GA", Price: 10, Total: 5}})

	repeat := buyer()
	if _, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: published.ID, BuyerID: repeat.UserID, TierName: "GA", Quantity: 2}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		in   ticketing.PurchaseInput
		want error
	}{
		{"zero quantity", ticketing.PurchaseInput{EventID: published.ID, BuyerID: uuid.New(), TierName: "GA"}, domain.ErrInvalidInput},
		{"missing tier name", ticketing.PurchaseInput{EventID: published.ID, BuyerID: uuid.New(), Quantity: 1}, domain.ErrInvalidInput},
		{"unknown event", ticketing.PurchaseInput{EventID: uuid.New(), BuyerID: uuid.New(), TierName: "GA", Quantity: 1}, domain.ErrEventNotAvailable},
		{"draft event", ticketing.PurchaseInput{EventID: draft.ID, BuyerID: uuid.New(), TierName: "GA", Quantity: 1}, domain.ErrEventNotAvailable},
		{"event already started", ticketing.PurchaseInput{EventID: started.ID, BuyerID: uuid.New(), TierName: "GA", Quantity: 1}, domain.ErrEventAlreadyStarted},
		{"unknown tier", ticketing.PurchaseInput{EventID: published.ID, BuyerID: uuid.New(), TierName: "Balcony", Quantity: 1}, domain.ErrTierNotFound},
		{"insufficient inventory", ticketing.PurchaseInput{EventID: published.ID, BuyerID: uuid.New(), TierName: "GA", Quantity: 4}, domain.ErrInsufficientInventory},
		{"per-person limit", ticketing.PurchaseInput{EventID: published.ID, BuyerID: repeat.UserID, TierName: "GA", Quantity: 1}, domain.ErrPerPersonLimitExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Purchase(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUseTicket(t *testing.T) {
	ctx := context.Background()
	start := baseTime.AddDate(0, 0, 10)
	end := start.Add(4 * time.Hour)
	owner := provider()
	b := buyer()

	setup := func(clk clock.Clock) (*fixture, *domain.Event, domain.Ticket) {
		f := newFixture(clock.NewFixed(baseTime))
		event := f.publishedEvent(t, owner, start, end, domain.RefundPartial,
			[]domain.TierSpec{{Name: "GA", Price: 50, Total: 10}})
		result, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: b.UserID, TierName: "GA", Quantity: 1})
		if err != nil {
			t.Fatal(err)
		}
		f.svc = ticketing.NewService(f.store, ticketing.NewKeyedMutex(), clk, observability.NewLogger())
		return f, event, result.Tickets[0]
	}

	t.Run("redeems during event window", func(t *testing.T) {
		f, _, ticket := setup(clock.NewFixed(start.Add(time.Hour)))
		used, err := f.svc.UseTicket(ctx, ticket.ID, owner)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if used.Status != domain.TicketUsed || used.UsedAt == nil {
			t.Errorf("expected used ticket with timestamp, got %+v", used)
		}
		if msg := f.lastOutbox(t); msg.EventType != "ticket.used" {
			t.Errorf("expected ticket.used outbox message, got %s", msg.EventType)
		}
	})

	t.Run("rejects double redemption", func(t *testing.T) {
		f, _, ticket := setup(clock.NewFixed(start.Add(time.Hour)))
		if _, err := f.svc.UseTicket(ctx, ticket.ID, owner); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.UseTicket(ctx, ticket.ID, owner); !errors.Is(err, domain.ErrTicketNotActive) {
			t.Errorf("expected not active, got %v", err)
		}
	})

	t.Run("rejects before event start", func(t *testing.T) {
		f, _, ticket := setup(clock.NewFixed(start.Add(-time.Minute)))
		if _, err := f.svc.UseTicket(ctx, ticket.ID, owner); !errors.Is(err, domain.ErrEventNotStarted) {
			t.Errorf("expected not started, got %v", err)
		}
	})

	t.Run("rejects after event end", func(t *testing.T) {
		f, _, ticket := setup(clock.NewFixed(end.Add(time.Minute)))
		if _, err := f.svc.UseTicket(ctx, ticket.ID, owner); !errors.Is(err, domain.ErrEventEnded) {
			t.Errorf("expected event ended, got %v", err)
		}
	})

	t.Run("rejects callers without management rights", func(t *testing.T) {
		f, _, ticket := setup(clock.NewFixed(start.Add(time.Hour)))
		for _, actor := range []domain.Identity{b, provider()} {
			if _, err := f.svc.UseTicket(ctx, ticket.ID, actor); !errors.Is(err, domain.ErrForbidden) {
				t.Errorf("expected forbidden for %s, got %v", actor.Role, err)
			}
		}
	})

	t.Run("admin may redeem", func(t *testing.T) {
		f, _, ticket := setup(clock.NewFixed(start.Add(time.Hour)))
		admin := domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin}
		if _, err := f.svc.UseTicket(ctx, ticket.ID, admin); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

func TestRequestRefund(t *testing.T) {
	ctx := context.Background()
	owner := provider()
	b := buyer()

	setup := func(policy domain.RefundPolicy, daysToStart int) (*fixture, *domain.Event, domain.Ticket) {
		f := newFixture(clock.NewFixed(baseTime))
		start := baseTime.AddDate(0, 0, daysToStart)
		event := f.publishedEvent(t, owner, start, start.Add(4*time.Hour), policy,
			[]domain.TierSpec{{Name: "GA", Price: 100, Total: 10}})
		result, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: b.UserID, TierName: "GA", Quantity: 1})
		if err != nil {
			t.Fatal(err)
		}
		return f, event, result.Tickets[0]
	}

	t.Run("partial refund close to the event", func(t *testing.T) {
		f, event, ticket := setup(domain.RefundPartial, 5)
		refunded, amount, err := f.svc.RequestRefund(ctx, ticket.ID, "cannot attend", b)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if amount != 50 {
			t.Errorf("expected refund of 50, got %v", amount)
		}
		if refunded.Status != domain.TicketRefunded || refunded.RefundAmount != 50 {
			t.Errorf("refund not recorded on ticket: %+v", refunded)
		}

		stored, err := f.store.GetEvent(ctx, event.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Tiers[0].Available != 10 {
			t.Errorf("expected seat returned to pool, availability %d", stored.Tiers[0].Available)
		}
		if msg := f.lastOutbox(t); msg.EventType != "ticket.refunded" {
			t.Errorf("expected ticket.refunded outbox message, got %s", msg.EventType)
		}
	})

	t.Run("partial refund tiers by time remaining", func(t *testing.T) {
		for _, tc := range []struct {
			days int
			want float64
		}{{5, 50}, {20, 80}, {60, 100}} {
			f, _, ticket := setup(domain.RefundPartial, tc.days)
			_, amount, err := f.svc.RequestRefund(ctx, ticket.ID, "", b)
			if err != nil {
				t.Fatal(err)
			}
			if amount != tc.want {
				t.Errorf("%d days out: expected %v, got %v", tc.days, tc.want, amount)
			}
		}
	})

	t.Run("full policy refunds everything", func(t *testing.T) {
		f, _, ticket := setup(domain.RefundFull, 5)
		_, amount, err := f.svc.RequestRefund(ctx, ticket.ID, "", b)
		if err != nil {
			t.Fatal(err)
		}
		if amount != 100 {
			t.Errorf("expected 100, got %v", amount)
		}
	})

	t.Run("none policy rejects", func(t *testing.T) {
		f, event, ticket := setup(domain.RefundNone, 60)
		if _, _, err := f.svc.RequestRefund(ctx, ticket.ID, "", b); !errors.Is(err, domain.ErrRefundsDisallowed) {
			t.Errorf("expected refunds disallowed, got %v", err)
		}
		stored, _ := f.store.GetEvent(ctx, event.ID)
		if stored.Tiers[0].Available != 9 {
			t.Errorf("rejected refund must not touch availability, got %d", stored.Tiers[0].Available)
		}
	})

	t.Run("refund is terminal", func(t *testing.T) {
		f, _, ticket := setup(domain.RefundFull, 5)
		if _, _, err := f.svc.RequestRefund(ctx, ticket.ID, "", b); err != nil {
			t.Fatal(err)
		}
		if _, _, err := f.svc.RequestRefund(ctx, ticket.ID, "", b); !errors.Is(err, domain.ErrAlreadyRefunded) {
			t.Errorf("expected already refunded, got %v", err)
		}
	})

	t.Run("used tickets cannot be refunded", func(t *testing.T) {
		f, _, ticket := setup(domain.RefundFull, 5)
		redeemAt := baseTime.AddDate(0, 0, 5).Add(time.Hour)
		redeemer := ticketing.NewService(f.store, ticketing.NewKeyedMutex(), clock.NewFixed(redeemAt), observability.NewLogger())
		if _, err := redeemer.UseTicket(ctx, ticket.ID, owner); err != nil {
			t.Fatal(err)
		}
		if _, _, err := f.svc.RequestRefund(ctx, ticket.ID, "", b); !errors.Is(err, domain.ErrTicketUsed) {
			t.Errorf("expected used error, got %v", err)
		}
	})

	t.Run("only buyer or event manager may refund", func(t *testing.T) {
		f, _, ticket := setup(domain.RefundFull, 5)
		if _, _, err := f.svc.RequestRefund(ctx, ticket.ID, "", buyer()); !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("expected forbidden for stranger, got %v", err)
		}
		if _, _, err := f.svc.RequestRefund(ctx, ticket.ID, "goodwill", owner); err != nil {
			t.Errorf("expected owning provider to refund, got %v", err)
		}
	})
}

func TestValidateByToken(t *testing.T) {
	ctx := context.Background()
	owner := provider()
	b := buyer()
	start := baseTime.AddDate(0, 0, 10)

	f := newFixture(clock.NewFixed(baseTime))
	event := f.publishedEvent(t, owner, start, start.Add(4*time.Hour), domain.RefundFull,
		[]domain.TierSpec{{Name: "GA", Price: 50, Total: 10}})
	result, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: b.UserID, TierName: "GA", Quantity: 2})
	if err != nil {
		t.Fatal(err)
	}
	active, toRefund := result.Tickets[0], result.Tickets[1]

	for i := 0; i < 2; i++ {
		got, err := f.svc.ValidateByToken(ctx, active.QRToken)
		if err != nil {
			t.Fatalf("scan %d: expected no error, got %v", i, err)
		}
		if got.Status != domain.TicketActive {
			t.Errorf("scan %d: validation must not consume the ticket, got %s", i, got.Status)
		}
	}

	if _, err := f.svc.ValidateByToken(ctx, "no-such-token"); !errors.Is(err, domain.ErrInvalidTicket) {
		t.Errorf("expected invalid ticket, got %v", err)
	}

	if _, _, err := f.svc.RequestRefund(ctx, toRefund.ID, "", b); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ValidateByToken(ctx, toRefund.QRToken); !errors.Is(err, domain.ErrAlreadyRefunded) {
		t.Errorf("expected already refunded, got %v", err)
	}

	redeemer := ticketing.NewService(f.store, ticketing.NewKeyedMutex(), clock.NewFixed(start.Add(time.Hour)), observability.NewLogger())
	if _, err := redeemer.UseTicket(ctx, active.ID, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ValidateByToken(ctx, active.QRToken); !errors.Is(err, domain.ErrTicketUsed) {
		t.Errorf("expected used error, got %v", err)
	}
}

func TestGetEventStats(t *testing.T) {
	ctx := context.Background()
	owner := provider()
	start := baseTime.AddDate(0, 0, 10)

	f := newFixture(clock.NewFixed(baseTime))
	event := f.publishedEvent(t, owner, start, start.Add(4*time.Hour), domain.RefundFull,
		[]domain.TierSpec{{Name: "GA", Price: 100, Total: 50}})

	buyers := []domain.Identity{buyer(), buyer(), buyer(), buyer()}
	var tickets []domain.Ticket
	for _, b := range buyers {
		result, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: b.UserID, TierName: "GA", Quantity: 1})
		if err != nil {
			t.Fatal(err)
		}
		tickets = append(tickets, result.Tickets[0])
	}

	if _, _, err := f.svc.RequestRefund(ctx, tickets[0].ID, "", buyers[0]); err != nil {
		t.Fatal(err)
	}
	redeemer := ticketing.NewService(f.store, ticketing.NewKeyedMutex(), clock.NewFixed(start.Add(time.Hour)), observability.NewLogger())
	if _, err := redeemer.UseTicket(ctx, tickets[1].ID, owner); err != nil {
		t.Fatal(err)
	}

	stats, err := f.svc.GetEventStats(ctx, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Active != 2 || stats.Used != 1 || stats.Refunded != 1 {
		t.Errorf("unexpected partition: %+v", stats)
	}
	if stats.TotalRevenue != 300 {
		t.Errorf("refunded tickets must not count toward revenue, got %v", stats.TotalRevenue)
	}
}

func TestPurchaseConcurrencyNoOversell(t *testing.T) {
	ctx := context.Background()
	owner := provider()
	start := baseTime.AddDate(0, 0, 10)

	f := newFixture(clock.NewFixed(baseTime))
	event := f.publishedEvent(t, owner, start, start.Add(4*time.Hour), domain.RefundFull,
		[]domain.TierSpec{{Name: "GA", Price: 25, Total: 10, MaxPerPerson: 1}})

	const attempts = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	var sold, rejected int

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{
				EventID:  event.ID,
				BuyerID:  uuid.New(),
				TierName: "GA",
				Quantity: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, domain.ErrInsufficientInventory):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sold != 10 || rejected != attempts-10 {
		t.Errorf("expected exactly 10 sales and %d rejections, got %d/%d", attempts-10, sold, rejected)
	}
	stored, err := f.store.GetEvent(ctx, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Tiers[0].Available != 0 {
		t.Errorf("expected tier sold out, availability %d", stored.Tiers[0].Available)
	}
}

func TestInventoryLifecycle(t *testing.T) {
	ctx := context.Background()
	owner := provider()
	start := baseTime.AddDate(0, 0, 10)

	f := newFixture(clock.NewFixed(baseTime))
	event := f.publishedEvent(t, owner, start, start.Add(4*time.Hour), domain.RefundFull,
		[]domain.TierSpec{{Name: "GA", Price: 30, Total: 2, MaxPerPerson: 1}})

	alice, bob, carol := buyer(), buyer(), buyer()

	first, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: alice.UserID, TierName: "GA", Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: alice.UserID, TierName: "GA", Quantity: 1}); !errors.Is(err, domain.ErrPerPersonLimitExceeded) {
		t.Fatalf("expected per-person limit for repeat buyer, got %v", err)
	}
	if _, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: bob.UserID, TierName: "GA", Quantity: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: carol.UserID, TierName: "GA", Quantity: 1}); !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("expected sold out, got %v", err)
	}

	if _, _, err := f.svc.RequestRefund(ctx, first.Tickets[0].ID, "plans changed", alice); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: carol.UserID, TierName: "GA", Quantity: 1}); err != nil {
		t.Fatalf("expected refunded seat to be purchasable again, got %v", err)
	}

	stats, err := f.svc.GetEventStats(ctx, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Active != 2 || stats.Refunded != 1 || stats.TotalRevenue != 60 {
		t.Errorf("unexpected final state: %+v", stats)
	}
}

func TestListBuyerTickets(t *testing.T) {
	ctx := context.Background()
	owner := provider()
	start := baseTime.AddDate(0, 0, 10)

	f := newFixture(clock.NewFixed(baseTime))
	event := f.publishedEvent(t, owner, start, start.Add(4*time.Hour), domain.RefundFull,
		[]domain.TierSpec{{Name: "GA", Price: 10, Total: 20}})

	alice, bob := buyer(), buyer()
	if _, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: alice.UserID, TierName: "GA", Quantity: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Purchase(ctx, ticketing.PurchaseInput{EventID: event.ID, BuyerID: bob.UserID, TierName: "GA", Quantity: 1}); err != nil {
		t.Fatal(err)
	}

	mine, err := f.svc.ListBuyerTickets(ctx, alice.UserID, ticketing.TicketFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(mine))
	}
	for _, ticket := range mine {
		if ticket.BuyerID != alice.UserID {
			t.Errorf("listing leaked another buyer's ticket")
		}
	}
}
