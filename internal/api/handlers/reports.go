package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gracechapel/treasury/internal/api/middleware"
	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/report"
	"github.com/gracechapel/treasury/internal/repo"
)

// dateLayout is the wire format for report range parameters.
const dateLayout = "2006-01-02"

// ReportsHandler handles the aggregate report endpoints. Reports are
// restricted to treasurers and pastors.
type ReportsHandler struct {
	svc *report.Service
	log zerolog.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(svc *report.Service, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{svc: svc, log: log}
}

// FinancialSummary handles GET /api/reports/financial-summary.
func (h *ReportsHandler) FinancialSummary(w http.ResponseWriter, r *http.Request) {
	rng, ok := h.authorize(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.FinancialSummary(r.Context(), rng, domain.PaymentKind(r.URL.Query().Get("type")))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build financial summary")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// MemberContributions handles GET /api/reports/member-contributions.
func (h *ReportsHandler) MemberContributions(w http.ResponseWriter, r *http.Request) {
	rng, ok := h.authorize(w, r)
	if !ok {
		return
	}

	contributions, err := h.svc.MemberContributions(r.Context(), rng, intParam(r.URL.Query().Get("limit")))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build member contributions")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"contributions": contributions,
		"count":         len(contributions),
	})
}

// PaymentStatus handles GET /api/reports/payment-status.
func (h *ReportsHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	rng, ok := h.authorize(w, r)
	if !ok {
		return
	}

	rep, err := h.svc.StatusSummary(r.Context(), rng)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build status summary")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rep)
}

// DashboardStats handles GET /api/reports/dashboard-stats.
func (h *ReportsHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r); !ok {
		return
	}

	stats, err := h.svc.DashboardStats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build dashboard stats")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stats)
}

// Dashboard handles GET /api/dashboard, the all-or-nothing composite of
// every report.
func (h *ReportsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r); !ok {
		return
	}

	overview, err := h.svc.Overview(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build dashboard overview")
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, overview)
}

// requireRole rejects callers that are neither treasurer nor pastor.
func (h *ReportsHandler) requireRole(w http.ResponseWriter, r *http.Request) (*domain.Member, bool) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthenticated, "not authenticated")
		return nil, false
	}
	if principal.Role != domain.RoleTreasurer && principal.Role != domain.RolePastor {
		middleware.WriteError(w, http.StatusForbidden, domain.ErrForbidden, "access denied")
		return nil, false
	}
	return principal, true
}

// authorize combines the role check with range parsing for the ranged
// report endpoints.
func (h *ReportsHandler) authorize(w http.ResponseWriter, r *http.Request) (repo.Range, bool) {
	if _, ok := h.requireRole(w, r); !ok {
		return repo.Range{}, false
	}
	rng, err := parseRange(r)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return repo.Range{}, false
	}
	return rng, true
}

// parseRange reads the optional startDate and endDate query parameters. The
// end date is inclusive: it extends to the last instant of that day.
func parseRange(r *http.Request) (repo.Range, error) {
	var rng repo.Range
	q := r.URL.Query()

	if raw := q.Get("startDate"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return repo.Range{}, domain.Errf(domain.ErrValidationFailed, "invalid startDate %q, want YYYY-MM-DD", raw)
		}
		rng.From = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return repo.Range{}, domain.Errf(domain.ErrValidationFailed, "invalid endDate %q, want YYYY-MM-DD", raw)
		}
		end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		rng.To = &end
	}
	if rng.From != nil && rng.To != nil && rng.To.Before(*rng.From) {
		return repo.Range{}, domain.Errf(domain.ErrValidationFailed, "endDate is before startDate")
	}
	return rng, nil
}
