package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redisadapter "github.com/robertarktes/event-ticketing/internal/adapters/redis"
	"github.com/robertarktes/event-ticketing/internal/config"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/idempotency"
	"github.com/robertarktes/event-ticketing/internal/stats"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

type Handlers struct {
	cfg   *config.Config
	svc   *ticketing.Service
	agg   *stats.Aggregator
	cache *redisadapter.Cache
	idemp *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, svc *ticketing.Service, agg *stats.Aggregator, cache *redisadapter.Cache, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{cfg: cfg, svc: svc, agg: agg, cache: cache, idemp: idemp}
}

// writeError maps domain error kinds onto HTTP statuses: validation 400,
// not-found 404, ownership 403, state conflicts 409, policy 422.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrTicketNotFound),
		errors.Is(err, domain.ErrTierNotFound),
		errors.Is(err, domain.ErrInvalidTicket):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrRefundsDisallowed):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	case errors.Is(err, domain.ErrEventNotAvailable),
		errors.Is(err, domain.ErrEventAlreadyStarted),
		errors.Is(err, domain.ErrEventNotStarted),
		errors.Is(err, domain.ErrEventEnded),
		errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrPerPersonLimitExceeded),
		errors.Is(err, domain.ErrTicketNotActive),
		errors.Is(err, domain.ErrTicketUsed),
		errors.Is(err, domain.ErrTicketCancelled),
		errors.Is(err, domain.ErrAlreadyRefunded),
		errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

type ticketResponse struct {
	ID          uuid.UUID  `json:"id"`
	Number      string     `json:"number"`
	EventID     uuid.UUID  `json:"event_id"`
	Tier        string     `json:"tier"`
	Price       float64    `json:"price"`
	Status      string     `json:"status"`
	QRToken     string     `json:"qr_token"`
	PurchasedAt time.Time  `json:"purchased_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

func toTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:          t.ID,
		Number:      t.Number,
		EventID:     t.EventID,
		Tier:        t.TierName,
		Price:       t.Price,
		Status:      string(t.Status),
		QRToken:     t.QRToken,
		PurchasedAt: t.PurchasedAt,
		UsedAt:      t.UsedAt,
		RefundedAt:  t.RefundedAt,
	}
}

func (h *Handlers) Purchase(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		EventID       uuid.UUID `json:"event_id"`
		Tier          string    `json:"tier"`
		Quantity      int       `json:"quantity"`
		PaymentMethod string    `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.svc.Purchase(r.Context(), ticketing.PurchaseInput{
		EventID:       req.EventID,
		BuyerID:       identity.UserID,
		TierName:      req.Tier,
		Quantity:      req.Quantity,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	tickets := make([]ticketResponse, len(result.Tickets))
	for i, t := range result.Tickets {
		tickets[i] = toTicketResponse(t)
	}
	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"tickets":      tickets,
		"total_amount": result.TotalAmount,
		"event":        result.Event,
	})

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) UseTicket(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	ticket, err := h.svc.UseTicket(r.Context(), id, identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(*ticket))
}

func (h *Handlers) RequestRefund(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ticket, amount, err := h.svc.RequestRefund(r.Context(), id, req.Reason, identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket":        toTicketResponse(*ticket),
		"refund_amount": amount,
	})
}

func (h *Handlers) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	ticket, err := h.svc.ValidateByToken(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(*ticket))
}

func (h *Handlers) MyTickets(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	filter := ticketing.TicketFilter{Status: domain.TicketStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("event_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid event_id", http.StatusBadRequest)
			return
		}
		filter.EventID = id
	}

	tickets, err := h.svc.ListBuyerTickets(r.Context(), identity.UserID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ticketResponse, len(tickets))
	for i, t := range tickets {
		out[i] = toTicketResponse(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": out})
}

type tierRequest struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
	MaxPerPerson int     `json:"max_per_person"`
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req struct {
		ProviderID   uuid.UUID     `json:"provider_id"`
		Title        string        `json:"title"`
		Description  string        `json:"description"`
		Category     string        `json:"category"`
		Venue        domain.Venue  `json:"venue"`
		Start        time.Time     `json:"start"`
		End          time.Time     `json:"end"`
		RefundPolicy string        `json:"refund_policy"`
		Tiers        []tierRequest `json:"tiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	specs := make([]domain.TierSpec, len(req.Tiers))
	for i, t := range req.Tiers {
		specs[i] = domain.TierSpec{Name: t.Name, Price: t.Price, Total: t.Quantity, MaxPerPerson: t.MaxPerPerson}
	}

	event, err := h.svc.CreateEvent(r.Context(), identity, req.ProviderID, ticketing.CreateEventInput{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Venue:        req.Venue,
		Start:        req.Start,
		End:          req.End,
		RefundPolicy: domain.RefundPolicy(req.RefundPolicy),
		Tiers:        specs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	event, err := h.svc.GetEvent(r.Context(), identity, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	filter := ticketing.EventFilter{
		Status:   domain.EventStatus(r.URL.Query().Get("status")),
		Category: r.URL.Query().Get("category"),
		Text:     r.URL.Query().Get("q"),
	}
	if raw := r.URL.Query().Get("provider_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid provider_id", http.StatusBadRequest)
			return
		}
		filter.ProviderID = id
	}

	events, err := h.svc.ListEvents(r.Context(), identity, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Title       string       `json:"title"`
		Description string       `json:"description"`
		Category    string       `json:"category"`
		Venue       domain.Venue `json:"venue"`
		Start       time.Time    `json:"start"`
		End         time.Time    `json:"end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := h.svc.UpdateEvent(r.Context(), identity, id, ticketing.UpdateEventInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Venue:       req.Venue,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.svc.PublishEvent(r.Context(), identity, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": domain.EventPublished})
}

func (h *Handlers) CancelEvent(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.svc.CancelEvent(r.Context(), identity, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": domain.EventCancelled})
}

func (h *Handlers) EventStats(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	event, err := h.svc.GetEvent(r.Context(), identity, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !identity.CanManageEvent(event.ProviderID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	eventStats, err := h.svc.GetEventStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventStats)
}

func (h *Handlers) ProviderStats(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if !identity.CanManageEvent(id) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	cacheKey := "provider-stats:" + id.String()
	if h.cache != nil {
		var cached stats.ProviderStats
		if hit, err := h.cache.GetJSON(r.Context(), cacheKey, &cached); err == nil && hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	providerStats, err := h.agg.ForProvider(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.cache != nil {
		h.cache.SetJSON(r.Context(), cacheKey, providerStats, 30*time.Second)
	}
	writeJSON(w, http.StatusOK, providerStats)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
