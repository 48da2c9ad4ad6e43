package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewTier(t *testing.T) {
	tier, err := NewTier("VIP", 150.0, 40, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tier.Available != tier.Total {
		t.Errorf("expected available == total, got %d != %d", tier.Available, tier.Total)
	}
	if tier.MaxPerPerson != DefaultMaxPerPerson {
		t.Errorf("expected default per-person limit %d, got %d", DefaultMaxPerPerson, tier.MaxPerPerson)
	}

	if _, err := NewTier("", 10, 5, 1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input for empty name, got %v", err)
	}
	if _, err := NewTier("GA", -1, 5, 1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input for negative price, got %v", err)
	}
	if _, err := NewTier("GA", 10, -5, 1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input for negative quantity, got %v", err)
	}
}

func TestNewEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(30 * 24 * time.Hour)
	end := start.Add(4 * time.Hour)
	venue := Venue{Name: "Main Hall", City: "Riga", Capacity: 500}
	tiers := []TierSpec{
		{Name: "GA", Price: 50, Total: 100},
		{Name: "VIP", Price: 150, Total: 20, MaxPerPerson: 2},
	}

	event, err := NewEvent(uuid.New(), "Spring Concert", "desc", "music", venue, start, end, "", tiers, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.Status != EventDraft {
		t.Errorf("expected new event to be draft, got %s", event.Status)
	}
	if event.RefundPolicy != RefundPartial {
		t.Errorf("expected default refund policy partial, got %s", event.RefundPolicy)
	}
	if len(event.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(event.Tiers))
	}
	if event.Tiers[0].Available != 100 || event.Tiers[1].MaxPerPerson != 2 {
		t.Errorf("tier construction wrong: %+v", event.Tiers)
	}

	cases := []struct {
		name  string
		build func() (Event, error)
	}{
		{"empty title", func() (Event, error) {
			return NewEvent(uuid.New(), " ", "", "", venue, start, end, RefundFull, tiers, now)
		}},
		{"end before start", func() (Event, error) {
			return NewEvent(uuid.New(), "X", "", "", venue, end, start, RefundFull, tiers, now)
		}},
		{"no tiers", func() (Event, error) {
			return NewEvent(uuid.New(), "X", "", "", venue, start, end, RefundFull, nil, now)
		}},
		{"duplicate tier names", func() (Event, error) {
			return NewEvent(uuid.New(), "X", "", "", venue, start, end, RefundFull,
				[]TierSpec{{Name: "GA", Price: 1, Total: 1}, {Name: "GA", Price: 2, Total: 1}}, now)
		}},
		{"unknown refund policy", func() (Event, error) {
			return NewEvent(uuid.New(), "X", "", "", venue, start, end, "store-credit", tiers, now)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.build(); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestEventTierLookup(t *testing.T) {
	now := time.Now()
	event, err := NewEvent(uuid.New(), "X", "", "", Venue{}, now.Add(time.Hour), now.Add(2*time.Hour), RefundFull,
		[]TierSpec{{Name: "GA", Price: 10, Total: 5}}, now)
	if err != nil {
		t.Fatal(err)
	}

	tier, err := event.Tier("GA")
	if err != nil {
		t.Fatalf("expected tier, got %v", err)
	}
	if tier.Price != 10 {
		t.Errorf("expected price 10, got %v", tier.Price)
	}
	if _, err := event.Tier("Balcony"); !errors.Is(err, ErrTierNotFound) {
		t.Errorf("expected tier not found, got %v", err)
	}
}

func TestTicketsSold(t *testing.T) {
	now := time.Now()
	event, err := NewEvent(uuid.New(), "X", "", "", Venue{}, now.Add(time.Hour), now.Add(2*time.Hour), RefundFull,
		[]TierSpec{{Name: "GA", Price: 10, Total: 5}, {Name: "VIP", Price: 50, Total: 3}}, now)
	if err != nil {
		t.Fatal(err)
	}
	event.Tiers[0].Available = 2
	event.Tiers[1].Available = 3
	if sold := event.TicketsSold(); sold != 3 {
		t.Errorf("expected 3 sold, got %d", sold)
	}
}
