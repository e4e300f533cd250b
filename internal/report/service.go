// Package report builds the aggregate views over payments: the financial
// summary, per-member contributions, status breakdown and dashboard stats.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/repo"
)

// DefaultContributionsLimit bounds the member contributions report when the
// caller does not ask for a specific size.
const DefaultContributionsLimit = 50

// recentPendingLimit is how many pending payments the status report lists
// for triage.
const recentPendingLimit = 10

// Service computes reports from repository aggregates. Reports never mutate
// state and only ever see validated amounts, except the status breakdown
// which covers every status.
type Service struct {
	payments repo.PaymentRepository
	members  repo.MemberRepository
	now      func() time.Time
}

// NewService creates the report service.
func NewService(payments repo.PaymentRepository, members repo.MemberRepository) *Service {
	return &Service{payments: payments, members: members, now: time.Now}
}

// FinancialSummary aggregates validated payments by kind and by month. The
// per-kind sections are zero-filled when nothing matched; averages are
// computed over exact amounts, not floats.
func (s *Service) FinancialSummary(ctx context.Context, r repo.Range, kind domain.PaymentKind) (*domain.FinancialSummary, error) {
	if kind != "" && !kind.Valid() {
		return nil, domain.Errf(domain.ErrValidationFailed, "unknown type %q", kind)
	}

	totals, err := s.payments.TotalsByKind(ctx, r, kind)
	if err != nil {
		return nil, fmt.Errorf("FinancialSummary: totals: %w", err)
	}
	monthly, err := s.payments.MonthlyTotals(ctx, r, kind)
	if err != nil {
		return nil, fmt.Errorf("FinancialSummary: monthly: %w", err)
	}

	out := &domain.FinancialSummary{Monthly: make([]domain.MonthlyTotal, 0, len(monthly))}
	for _, t := range totals {
		summary := domain.KindSummary{Total: t.Total, Count: t.Count}
		if t.Count > 0 {
			summary.Average = t.Total.Div(t.Count)
		}
		switch t.Kind {
		case domain.KindTithe:
			out.Tithes = summary
		case domain.KindOffering:
			out.Offerings = summary
		}
		out.GrandTotal = out.GrandTotal.Plus(t.Total)
	}
	for _, m := range monthly {
		out.Monthly = append(out.Monthly, domain.MonthlyTotal{
			Year:  m.Year,
			Month: m.Month,
			Kind:  m.Kind,
			Total: m.Total,
			Count: m.Count,
		})
	}
	return out, nil
}

// MemberContributions returns the top contributors by validated total,
// enriched with member display details. A non-positive limit falls back to
// DefaultContributionsLimit.
func (s *Service) MemberContributions(ctx context.Context, r repo.Range, limit int) ([]domain.MemberContribution, error) {
	if limit <= 0 {
		limit = DefaultContributionsLimit
	}

	totals, err := s.payments.MemberTotals(ctx, r, limit)
	if err != nil {
		return nil, fmt.Errorf("MemberContributions: %w", err)
	}

	ids := make([]string, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.MemberID)
	}
	members := map[string]*domain.Member{}
	if len(ids) > 0 {
		members, err = s.members.GetMembers(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("MemberContributions: members: %w", err)
		}
	}

	out := make([]domain.MemberContribution, 0, len(totals))
	for _, t := range totals {
		c := domain.MemberContribution{
			MemberID:           t.MemberID,
			TitheTotal:         t.TitheTotal,
			OfferingTotal:      t.OfferingTotal,
			Total:              t.Total,
			TitheCount:         t.TitheCount,
			OfferingCount:      t.OfferingCount,
			Count:              t.Count,
			LastContributionAt: t.LastAt,
		}
		if m := members[t.MemberID]; m != nil {
			c.Name = m.Name
			c.Email = m.Email
			c.Phone = m.Phone
		}
		out = append(out, c)
	}
	return out, nil
}

// StatusSummary breaks payments down by status and carries the most recent
// pending payments, enriched with member display details, for triage.
func (s *Service) StatusSummary(ctx context.Context, r repo.Range) (*domain.StatusReport, error) {
	statuses, err := s.payments.TotalsByStatus(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("StatusSummary: totals: %w", err)
	}
	pending, err := s.payments.RecentPending(ctx, recentPendingLimit)
	if err != nil {
		return nil, fmt.Errorf("StatusSummary: pending: %w", err)
	}

	if len(pending) > 0 {
		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.MemberID)
		}
		members, err := s.members.GetMembers(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("StatusSummary: members: %w", err)
		}
		for _, p := range pending {
			p.Member = members[p.MemberID]
		}
	}

	out := &domain.StatusReport{
		Statuses:      make([]domain.StatusTotal, 0, len(statuses)),
		RecentPending: pending,
	}
	for _, st := range statuses {
		out.Statuses = append(out.Statuses, domain.StatusTotal{
			Status: st.Status,
			Count:  st.Count,
			Total:  st.Total,
		})
	}
	return out, nil
}

// DashboardStats snapshots the current calendar month and year, plus the
// pending backlog and the active member count. Periods start at the first
// instant of the month/year in the clock's location.
func (s *Service) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())

	monthly, err := s.payments.TotalsByKind(ctx, repo.Range{From: &monthStart}, "")
	if err != nil {
		return nil, fmt.Errorf("DashboardStats: monthly: %w", err)
	}
	yearly, err := s.payments.TotalsByKind(ctx, repo.Range{From: &yearStart}, "")
	if err != nil {
		return nil, fmt.Errorf("DashboardStats: yearly: %w", err)
	}
	pending, err := s.payments.CountByStatus(ctx, domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("DashboardStats: pending: %w", err)
	}
	active, err := s.members.CountActiveByRole(ctx, domain.RoleMember)
	if err != nil {
		return nil, fmt.Errorf("DashboardStats: members: %w", err)
	}

	return &domain.DashboardStats{
		Monthly:       periodStats(monthly),
		Yearly:        periodStats(yearly),
		PendingCount:  pending,
		ActiveMembers: active,
	}, nil
}

// Overview composes every report into one payload. Any sub-report failure
// fails the whole overview; no partial payloads.
func (s *Service) Overview(ctx context.Context) (*domain.DashboardOverview, error) {
	stats, err := s.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := s.FinancialSummary(ctx, repo.Range{}, "")
	if err != nil {
		return nil, err
	}
	contributors, err := s.MemberContributions(ctx, repo.Range{}, DefaultContributionsLimit)
	if err != nil {
		return nil, err
	}
	status, err := s.StatusSummary(ctx, repo.Range{})
	if err != nil {
		return nil, err
	}

	return &domain.DashboardOverview{
		Stats:           *stats,
		Summary:         *summary,
		TopContributors: contributors,
		Status:          *status,
	}, nil
}

func periodStats(totals []repo.KindTotal) domain.PeriodStats {
	var out domain.PeriodStats
	for _, t := range totals {
		ac := domain.AmountCount{Amount: t.Total, Count: t.Count}
		switch t.Kind {
		case domain.KindTithe:
			out.Tithes = ac
		case domain.KindOffering:
			out.Offerings = ac
		}
	}
	return out
}
