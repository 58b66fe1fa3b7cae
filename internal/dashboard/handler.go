package dashboard

import (
	"math"
	"net/http"
	"strconv"

	"github.com/bissquit/incident-impact/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves dashboard aggregates.
type Handler struct {
	service *Service
}

// NewHandler creates a new dashboard handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers dashboard routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/impact", h.Impact)
	r.Get("/stats", h.Stats)
	r.Get("/analytics", h.Analytics)
}

// Impact handles GET /impact. An unparsable hourly_revenue evaluates to zero cost.
func (h *Handler) Impact(w http.ResponseWriter, r *http.Request) {
	rate := h.service.HourlyRevenue()
	if raw := r.URL.Query().Get("hourly_revenue"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			parsed = 0
		}
		rate = parsed
	}

	report, stale, err := h.service.Report(r.Context(), rate)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respond(w, report, stale)
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, stale, err := h.service.Stats(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respond(w, stats, stale)
}

// Analytics handles GET /analytics.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	analytics, stale, err := h.service.Analytics(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respond(w, analytics, stale)
}

func respond(w http.ResponseWriter, data any, stale bool) {
	if stale {
		httputil.SuccessStale(w, http.StatusOK, data)
		return
	}
	httputil.Success(w, http.StatusOK, data)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrUnavailable, Status: http.StatusServiceUnavailable, Message: ErrUnavailable.Error()},
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
