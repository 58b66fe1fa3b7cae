package incidents

import (
	"net/http"
	"strconv"

	"github.com/bissquit/incident-impact/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for incidents.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers read-only incident routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/incidents", h.ListIncidents)
	r.Get("/incidents/severity/{severity}", h.ListBySeverity)
	r.Get("/incidents/{id}", h.GetIncident)
	r.Get("/incidents/{id}/timeline", h.ListTimeline)
}

// RegisterResponderRoutes registers routes that mutate incidents.
func (h *Handler) RegisterResponderRoutes(r chi.Router) {
	r.Post("/incidents", h.CreateIncident)
	r.Put("/incidents/{id}", h.UpdateIncident)
	r.Post("/incidents/{id}/assign", h.Assign)
	r.Post("/incidents/{id}/status", h.UpdateStatus)
	r.Post("/incidents/{id}/notes", h.AddNote)
}

// CreateIncidentRequest represents request body for creating an incident.
type CreateIncidentRequest struct {
	Title            string   `json:"title" validate:"required,min=5,max=200"`
	Description      string   `json:"description" validate:"required,min=10"`
	Severity         string   `json:"severity"`
	AffectedServices []string `json:"affected_services" validate:"omitempty,dive,max=200"`
	ReportedBy       string   `json:"reported_by" validate:"omitempty,max=200"`
}

// UpdateIncidentRequest represents request body for a partial incident update.
type UpdateIncidentRequest struct {
	Status          *string `json:"status"`
	AssignedTo      *string `json:"assigned_to" validate:"omitempty,max=200"`
	ResolutionNotes *string `json:"resolution_notes"`
}

// AssignRequest represents request body for assigning an incident.
type AssignRequest struct {
	MemberID string `json:"member_id" validate:"required"`
}

// UpdateStatusRequest represents request body for changing incident status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

// AddNoteRequest represents request body for adding a note.
type AddNoteRequest struct {
	Note string `json:"note" validate:"required"`
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	incidents, err := h.service.ListIncidents(r.Context(), limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// ListBySeverity handles GET /incidents/severity/{severity}.
func (h *Handler) ListBySeverity(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.service.ListBySeverity(r.Context(), chi.URLParam(r, "severity"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ListTimeline handles GET /incidents/{id}/timeline.
func (h *Handler) ListTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListTimeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, events)
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), CreateIncidentInput(req), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// UpdateIncident handles PUT /incidents/{id}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req UpdateIncidentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateIncident(r.Context(), chi.URLParam(r, "id"), UpdateIncidentInput(req))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// Assign handles POST /incidents/{id}/assign.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	event, err := h.service.Assign(r.Context(), chi.URLParam(r, "id"), req.MemberID, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, event)
}

// UpdateStatus handles POST /incidents/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	event, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Notes, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, event)
}

// AddNote handles POST /incidents/{id}/notes.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req AddNoteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	event, err := h.service.AddNote(r.Context(), chi.URLParam(r, "id"), req.Note, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, event)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
	{Error: ErrUnknownMember, Status: http.StatusUnprocessableEntity},
	{Error: ErrEmptyNote, Status: http.StatusBadRequest},
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
