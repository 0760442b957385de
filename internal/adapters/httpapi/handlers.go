package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rsvphub/internal/domain"
	"rsvphub/internal/domain/capacity"
	"rsvphub/internal/domain/entities"
	"rsvphub/internal/ports/input"
)

// Handler exposes the event and RSVP use cases over HTTP.
type Handler struct {
	events        input.EventUseCase
	rsvp          input.RSVPUseCase
	defaultLocale string
}

func NewHandler(events input.EventUseCase, rsvp input.RSVPUseCase, defaultLocale string) *Handler {
	return &Handler{events: events, rsvp: rsvp, defaultLocale: defaultLocale}
}

type createEventRequest struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	OrganizerID     string     `json:"organizerId"`
	OrganizerName   string     `json:"organizerName"`
	MaxAttendees    *int       `json:"maxAttendees"`
	WaitlistEnabled bool       `json:"waitlistEnabled"`
	WaitlistLimit   *int       `json:"waitlistLimit"`
	StartsAt        *time.Time `json:"startsAt"`
}

type updatePolicyRequest struct {
	OrganizerID     string `json:"organizerId"`
	MaxAttendees    *int   `json:"maxAttendees"`
	WaitlistEnabled bool   `json:"waitlistEnabled"`
	WaitlistLimit   *int   `json:"waitlistLimit"`
}

type rsvpRequest struct {
	UserID     string `json:"userId"`
	AttendeeID string `json:"attendeeId"`
	Status     string `json:"status"`
}

type bulkAddRequest struct {
	Attendees []bulkAttendeeItem `json:"attendees"`
}

type bulkAttendeeItem struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

type promoteRequest struct {
	OrganizerID string `json:"organizerId"`
}

type eventResponse struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	OrganizerID     string     `json:"organizerId"`
	MaxAttendees    *int       `json:"maxAttendees"`
	WaitlistEnabled bool       `json:"waitlistEnabled"`
	WaitlistLimit   *int       `json:"waitlistLimit"`
	GoingCount      int        `json:"goingCount"`
	StartsAt        *time.Time `json:"startsAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`

	Capacity *capacityResponse `json:"capacity,omitempty"`
}

type countsResponse struct {
	Going      int `json:"going"`
	NotGoing   int `json:"notGoing"`
	Pending    int `json:"pending"`
	Waitlisted int `json:"waitlisted"`
	TotalGoing int `json:"totalGoing"`
}

type capacityResponse struct {
	State              string          `json:"state"`
	Remaining          *int            `json:"remaining,omitempty"`
	Unlimited          bool            `json:"unlimited,omitempty"`
	IsAtCapacity       bool            `json:"isAtCapacity"`
	IsNearlyFull       bool            `json:"isNearlyFull"`
	CanAddMore         bool            `json:"canAddMore"`
	CanWaitlist        bool            `json:"canWaitlist"`
	WarningMessage     string          `json:"warningMessage,omitempty"`
	SlotsRemainingText string          `json:"slotsRemainingText,omitempty"`
	Counts             *countsResponse `json:"counts,omitempty"`
}

type rsvpResponse struct {
	AttendeeID       string           `json:"attendeeId"`
	UserID           string           `json:"userId"`
	AppliedStatus    string           `json:"appliedStatus"`
	WaitlistPosition *int             `json:"waitlistPosition,omitempty"`
	CascadedCount    int              `json:"cascadedCount,omitempty"`
	Message          string           `json:"message,omitempty"`
	Capacity         capacityResponse `json:"capacity"`
}

type bulkItemResponse struct {
	DisplayName   string `json:"displayName"`
	AppliedStatus string `json:"appliedStatus,omitempty"`
	Error         string `json:"error,omitempty"`
}

type attendeeResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

type waitlistEntryResponse struct {
	Position   int       `json:"position"`
	AttendeeID string    `json:"attendeeId"`
	UserID     string    `json:"userId"`
	JoinedAt   time.Time `json:"joinedAt"`
}

func toEventResponse(ev *entities.Event) eventResponse {
	resp := eventResponse{
		ID:              ev.ID,
		Title:           ev.Title,
		Description:     ev.Description,
		OrganizerID:     ev.OrganizerID,
		MaxAttendees:    ev.MaxAttendees,
		WaitlistEnabled: ev.WaitlistEnabled,
		WaitlistLimit:   ev.WaitlistLimit,
		GoingCount:      ev.GoingCount,
		CreatedAt:       ev.CreatedAt,
	}
	if !ev.StartsAt.IsZero() {
		starts := ev.StartsAt
		resp.StartsAt = &starts
	}
	return resp
}

func toCapacityResponse(st capacity.State, counts *capacity.Counts) capacityResponse {
	resp := capacityResponse{
		State:              st.State,
		Unlimited:          st.Unlimited,
		IsAtCapacity:       st.IsAtCapacity,
		IsNearlyFull:       st.IsNearlyFull,
		CanAddMore:         st.CanAddMore,
		CanWaitlist:        st.CanWaitlist,
		WarningMessage:     st.WarningMessage,
		SlotsRemainingText: st.SlotsRemainingText,
	}
	if !st.Unlimited {
		remaining := st.Remaining
		resp.Remaining = &remaining
	}
	if counts != nil {
		resp.Counts = &countsResponse{
			Going:      counts.Going,
			NotGoing:   counts.NotGoing,
			Pending:    counts.Pending,
			Waitlisted: counts.Waitlisted,
			TotalGoing: counts.TotalGoing,
		}
	}
	return resp
}

func toAttendeeResponse(a *entities.Attendee) attendeeResponse {
	return attendeeResponse{
		ID:          a.ID,
		UserID:      a.UserID,
		DisplayName: a.DisplayName,
		Type:        a.Type,
		Status:      a.Status,
		CreatedAt:   a.CreatedAt,
	}
}

func toRSVPResponse(result *input.RSVPResult) rsvpResponse {
	resp := rsvpResponse{
		AttendeeID:    result.Attendee.ID,
		UserID:        result.Attendee.UserID,
		AppliedStatus: result.AppliedStatus,
		CascadedCount: result.CascadedCount,
		Message:       result.Message,
		Capacity:      toCapacityResponse(result.State, nil),
	}
	if result.WaitlistPosition > 0 {
		pos := result.WaitlistPosition
		resp.WaitlistPosition = &pos
	}
	return resp
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := &entities.Event{
		Title:           req.Title,
		Description:     req.Description,
		OrganizerID:     req.OrganizerID,
		MaxAttendees:    req.MaxAttendees,
		WaitlistEnabled: req.WaitlistEnabled,
		WaitlistLimit:   req.WaitlistLimit,
	}
	if req.StartsAt != nil {
		ev.StartsAt = *req.StartsAt
	}

	if err := h.events.CreateEvent(r.Context(), ev, req.OrganizerName); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]eventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, toEventResponse(&events[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	ev, err := h.events.GetEvent(r.Context(), eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := toEventResponse(ev)
	st, counts, err := h.events.CapacityState(r.Context(), h.locale(r), eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	state := toCapacityResponse(st, &counts)
	resp.Capacity = &state
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req updatePolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := h.events.UpdatePolicy(r.Context(), chi.URLParam(r, "eventID"), req.OrganizerID, capacity.Policy{
		MaxAttendees:    req.MaxAttendees,
		WaitlistEnabled: req.WaitlistEnabled,
		WaitlistLimit:   req.WaitlistLimit,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *Handler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	st, counts, err := h.events.CapacityState(r.Context(), h.locale(r), chi.URLParam(r, "eventID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCapacityResponse(st, &counts))
}

func (h *Handler) SetRSVP(w http.ResponseWriter, r *http.Request) {
	var req rsvpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.rsvp.SetStatus(r.Context(), h.locale(r), chi.URLParam(r, "eventID"), req.UserID, req.AttendeeID, req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRSVPResponse(result))
}

func (h *Handler) BulkAdd(w http.ResponseWriter, r *http.Request) {
	var req bulkAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Attendees) == 0 {
		writeError(w, http.StatusBadRequest, "attendees must not be empty")
		return
	}

	items := make([]input.BulkAttendee, 0, len(req.Attendees))
	for _, a := range req.Attendees {
		items = append(items, input.BulkAttendee{
			UserID:      a.UserID,
			DisplayName: a.DisplayName,
			Type:        a.Type,
		})
	}

	results, err := h.rsvp.BulkAdd(r.Context(), h.locale(r), chi.URLParam(r, "eventID"), items)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]bulkItemResponse, 0, len(results))
	for _, res := range results {
		item := bulkItemResponse{
			DisplayName:   res.DisplayName,
			AppliedStatus: res.AppliedStatus,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	attendees, err := h.events.ListAttendees(r.Context(), chi.URLParam(r, "eventID"), r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]attendeeResponse, 0, len(attendees))
	for i := range attendees {
		resp = append(resp, toAttendeeResponse(&attendees[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	organizerID := r.URL.Query().Get("organizerId")
	if organizerID == "" {
		writeError(w, http.StatusBadRequest, "organizerId query parameter is required")
		return
	}

	if err := h.events.DeleteEvent(r.Context(), chi.URLParam(r, "eventID"), organizerID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveAttendee(w http.ResponseWriter, r *http.Request) {
	organizerID := r.URL.Query().Get("organizerId")
	if organizerID == "" {
		writeError(w, http.StatusBadRequest, "organizerId query parameter is required")
		return
	}

	err := h.events.RemoveAttendee(r.Context(), chi.URLParam(r, "eventID"), organizerID, chi.URLParam(r, "attendeeID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetWaitlist(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.rsvp.WaitlistRanking(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries := ranking.Entries()
	resp := make([]waitlistEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, waitlistEntryResponse{
			Position:   e.Position,
			AttendeeID: e.AttendeeID,
			UserID:     e.UserID,
			JoinedAt:   e.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetWaitlistPosition(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	position, ok, err := h.rsvp.WaitlistPositionForUser(r.Context(), chi.URLParam(r, "eventID"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "user is not on the waitlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"position": position})
}

func (h *Handler) PromoteNext(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.rsvp.PromoteNext(r.Context(), h.locale(r), chi.URLParam(r, "eventID"), req.OrganizerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRSVPResponse(result))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// locale extracts the preferred language from the Accept-Language header,
// falling back to the configured default.
func (h *Handler) locale(r *http.Request) string {
	header := r.Header.Get("Accept-Language")
	if header == "" {
		return h.defaultLocale
	}
	first := strings.SplitN(header, ",", 2)[0]
	first = strings.SplitN(first, ";", 2)[0]
	if tag := strings.TrimSpace(first); tag != "" {
		return tag
	}
	return h.defaultLocale
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrAttendeeNotFound),
		errors.Is(err, domain.ErrNoWaitlistedAttendee):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrWaitlistFull),
		errors.Is(err, domain.ErrDuplicatePrimary),
		errors.Is(err, domain.ErrCannotReduceCapacity),
		errors.Is(err, domain.ErrCapacityConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotOrganizer):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidAttendeeType),
		errors.Is(err, domain.ErrNotWaitlisted):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
