package stats

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

// Aggregator derives provider statistics by folding over current ticket and
// event records. Nothing is materialized, so the numbers are only as stale
// as the read itself; in-flight purchases may not be visible yet, which is
// acceptable for reporting.
type Aggregator struct {
	repo  ticketing.Repository
	clock clock.Clock
}

func NewAggregator(repo ticketing.Repository, clk clock.Clock) *Aggregator {
	return &Aggregator{repo: repo, clock: clk}
}

// SalesPoint is one bucket of a sales series; Period is "2006-01-02" for
// daily buckets and "2006-01" for monthly.
type SalesPoint struct {
	Period  string  `json:"period"`
	Tickets int     `json:"tickets"`
	Revenue float64 `json:"revenue"`
}

type ProviderStats struct {
	TotalEvents      int          `json:"total_events"`
	ActiveEvents     int          `json:"active_events"`
	TotalTicketsSold int          `json:"total_tickets_sold"`
	TotalRevenue     float64      `json:"total_revenue"`
	DailySales       []SalesPoint `json:"daily_sales"`
	MonthlySales     []SalesPoint `json:"monthly_sales"`
}

// ForProvider computes stats across every event the provider owns. Revenue
// counts the frozen price of each non-refunded ticket; refunded tickets are
// excluded entirely.
func (a *Aggregator) ForProvider(ctx context.Context, providerID uuid.UUID) (*ProviderStats, error) {
	events, err := a.repo.ListEvents(ctx, ticketing.EventFilter{ProviderID: providerID})
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	stats := &ProviderStats{TotalEvents: len(events)}
	daily := make(map[string]*SalesPoint)
	monthly := make(map[string]*SalesPoint)

	for _, event := range events {
		if event.End.After(now) {
			stats.ActiveEvents++
		}

		tickets, err := a.repo.ListTickets(ctx, ticketing.TicketFilter{EventID: event.ID})
		if err != nil {
			return nil, err
		}
		for _, t := range tickets {
			if t.Status == domain.TicketRefunded {
				continue
			}
			stats.TotalTicketsSold++
			stats.TotalRevenue += t.Price
			bump(daily, t.PurchasedAt.Format("2006-01-02"), t.Price)
			bump(monthly, t.PurchasedAt.Format("2006-01"), t.Price)
		}
	}

	stats.DailySales = sorted(daily)
	stats.MonthlySales = sorted(monthly)
	return stats, nil
}

func bump(buckets map[string]*SalesPoint, period string, price float64) {
	p, ok := buckets[period]
	if !ok {
		p = &SalesPoint{Period: period}
		buckets[period] = p
	}
	p.Tickets++
	p.Revenue += price
}

func sorted(buckets map[string]*SalesPoint) []SalesPoint {
	out := make([]SalesPoint, 0, len(buckets))
	for _, p := range buckets {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}
