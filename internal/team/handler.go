package team

import (
	"net/http"

	"github.com/bissquit/incident-impact/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves the roster.
type Handler struct {
	roster *Roster
}

// NewHandler creates a new team handler.
func NewHandler(roster *Roster) *Handler {
	return &Handler{roster: roster}
}

// RegisterRoutes registers team routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/team", h.List)
	r.Get("/team/{id}", h.Get)
}

// List handles GET /team. Optional filters: status, email.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if email := q.Get("email"); email != "" {
		member, ok := h.roster.GetMemberByEmail(email)
		if !ok {
			httputil.Error(w, http.StatusNotFound, ErrMemberNotFound.Error())
			return
		}
		httputil.Success(w, http.StatusOK, member)
		return
	}

	if raw := q.Get("status"); raw != "" {
		status := ParseStatus(raw)
		if string(status) != raw {
			httputil.Error(w, http.StatusBadRequest, "invalid status")
			return
		}
		httputil.Success(w, http.StatusOK, h.roster.ListByStatus(status))
		return
	}

	httputil.Success(w, http.StatusOK, h.roster.List())
}

// Get handles GET /team/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	member, ok := h.roster.GetMember(chi.URLParam(r, "id"))
	if !ok {
		httputil.Error(w, http.StatusNotFound, ErrMemberNotFound.Error())
		return
	}
	httputil.Success(w, http.StatusOK, member)
}
