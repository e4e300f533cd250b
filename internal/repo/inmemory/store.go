// Package inmemory provides a mutex-guarded, map-backed implementation of
// the repository interfaces. It backs the test suite and the local
// development mode of the API server; data is lost on restart.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/repo"
)

// Store holds payments and members in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
	members  map[string]*domain.Member
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		payments: make(map[string]*domain.Payment),
		members:  make(map[string]*domain.Member),
	}
}

func clonePayment(p *domain.Payment) *domain.Payment {
	cp := *p
	if p.ValidatedAt != nil {
		at := *p.ValidatedAt
		cp.ValidatedAt = &at
	}
	// Denormalized display fields are attached by the service layer, never
	// stored.
	cp.Member = nil
	cp.Validator = nil
	return &cp
}

func cloneMember(m *domain.Member) *domain.Member {
	cm := *m
	return &cm
}

// Insert implements repo.PaymentRepository.
func (s *Store) Insert(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		return domain.Errf(domain.ErrValidationFailed, "payment id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; exists {
		return domain.Errf(domain.ErrInvalidState, "payment %s already exists", p.ID)
	}
	s.payments[p.ID] = clonePayment(p)
	return nil
}

// Get implements repo.PaymentRepository.
func (s *Store) Get(ctx context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, domain.Errf(domain.ErrNotFound, "payment %s not found", id)
	}
	return clonePayment(p), nil
}

// List implements repo.PaymentRepository.
func (s *Store) List(ctx context.Context, filter repo.PaymentFilter) (*repo.PaymentPage, error) {
	filter.Normalize()

	s.mu.RLock()
	var matched []*domain.Payment
	for _, p := range s.payments {
		if filter.MemberID != "" && p.MemberID != filter.MemberID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && p.Kind != filter.Kind {
			continue
		}
		if filter.MemberName != "" {
			m, ok := s.members[p.MemberID]
			if !ok || !strings.Contains(strings.ToLower(m.Name), strings.ToLower(filter.MemberName)) {
				continue
			}
		}
		matched = append(matched, clonePayment(p))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &repo.PaymentPage{
		Payments: matched[start:end],
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Pages:    (total + int64(filter.PageSize) - 1) / int64(filter.PageSize),
	}, nil
}

// ResolvePending implements repo.PaymentRepository. The status check and the
// write happen under one lock, mirroring the conditional UPDATE the BigQuery
// implementation issues.
func (s *Store) ResolvePending(ctx context.Context, id string, res repo.Resolution) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, domain.Errf(domain.ErrNotFound, "payment %s not found", id)
	}
	if p.Status != domain.StatusPending {
		return nil, domain.Errf(domain.ErrInvalidState, "payment %s has already been processed", id)
	}

	at := res.ValidatedAt
	p.Status = res.Status
	p.ValidatorID = res.ValidatorID
	p.ValidatedAt = &at
	p.ValidationNotes = res.Notes
	p.ReceiptIssued = res.ReceiptIssued
	p.ReceiptName = res.ReceiptName
	p.UpdatedAt = res.ValidatedAt

	return clonePayment(p), nil
}

// TotalsByKind implements repo.PaymentRepository.
func (s *Store) TotalsByKind(ctx context.Context, r repo.Range, kind domain.PaymentKind) ([]repo.KindTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKind := make(map[domain.PaymentKind]*repo.KindTotal)
	for _, p := range s.payments {
		if !validatedInRange(p, r) {
			continue
		}
		if kind != "" && p.Kind != kind {
			continue
		}
		agg, ok := byKind[p.Kind]
		if !ok {
			agg = &repo.KindTotal{Kind: p.Kind}
			byKind[p.Kind] = agg
		}
		agg.Total = agg.Total.Plus(p.Amount)
		agg.Count++
	}

	out := make([]repo.KindTotal, 0, len(byKind))
	for _, agg := range byKind {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

// MonthlyTotals implements repo.PaymentRepository.
func (s *Store) MonthlyTotals(ctx context.Context, r repo.Range, kind domain.PaymentKind) ([]repo.MonthlyTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		year, month int
		kind        domain.PaymentKind
	}
	byBucket := make(map[bucket]*repo.MonthlyTotal)
	for _, p := range s.payments {
		if !validatedInRange(p, r) {
			continue
		}
		if kind != "" && p.Kind != kind {
			continue
		}
		key := bucket{p.ValidatedAt.Year(), int(p.ValidatedAt.Month()), p.Kind}
		agg, ok := byBucket[key]
		if !ok {
			agg = &repo.MonthlyTotal{Year: key.year, Month: key.month, Kind: key.kind}
			byBucket[key] = agg
		}
		agg.Total = agg.Total.Plus(p.Amount)
		agg.Count++
	}

	out := make([]repo.MonthlyTotal, 0, len(byBucket))
	for _, agg := range byBucket {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month > out[j].Month
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

// MemberTotals implements repo.PaymentRepository.
func (s *Store) MemberTotals(ctx context.Context, r repo.Range, limit int) ([]repo.MemberTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMember := make(map[string]*repo.MemberTotal)
	for _, p := range s.payments {
		if !validatedInRange(p, r) {
			continue
		}
		agg, ok := byMember[p.MemberID]
		if !ok {
			agg = &repo.MemberTotal{MemberID: p.MemberID}
			byMember[p.MemberID] = agg
		}
		switch p.Kind {
		case domain.KindTithe:
			agg.TitheTotal = agg.TitheTotal.Plus(p.Amount)
			agg.TitheCount++
		case domain.KindOffering:
			agg.OfferingTotal = agg.OfferingTotal.Plus(p.Amount)
			agg.OfferingCount++
		}
		agg.Total = agg.Total.Plus(p.Amount)
		agg.Count++
		if p.ValidatedAt.After(agg.LastAt) {
			agg.LastAt = *p.ValidatedAt
		}
	}

	out := make([]repo.MemberTotal, 0, len(byMember))
	for _, agg := range byMember {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].MemberID < out[j].MemberID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TotalsByStatus implements repo.PaymentRepository.
func (s *Store) TotalsByStatus(ctx context.Context, r repo.Range) ([]repo.StatusTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStatus := make(map[domain.PaymentStatus]*repo.StatusTotal)
	for _, p := range s.payments {
		if !r.Contains(p.CreatedAt) {
			continue
		}
		agg, ok := byStatus[p.Status]
		if !ok {
			agg = &repo.StatusTotal{Status: p.Status}
			byStatus[p.Status] = agg
		}
		agg.Total = agg.Total.Plus(p.Amount)
		agg.Count++
	}

	out := make([]repo.StatusTotal, 0, len(byStatus))
	for _, agg := range byStatus {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

// RecentPending implements repo.PaymentRepository.
func (s *Store) RecentPending(ctx context.Context, limit int) ([]*domain.Payment, error) {
	s.mu.RLock()
	var pending []*domain.Payment
	for _, p := range s.payments {
		if p.Status == domain.StatusPending {
			pending = append(pending, clonePayment(p))
		}
	}
	s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.After(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// CountByStatus implements repo.PaymentRepository.
func (s *Store) CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.payments {
		if p.Status == status {
			n++
		}
	}
	return n, nil
}

// validatedInRange reports whether p is validated with validatedAt inside r.
func validatedInRange(p *domain.Payment, r repo.Range) bool {
	return p.Status == domain.StatusValidated && p.ValidatedAt != nil && r.Contains(*p.ValidatedAt)
}

// InsertMember implements repo.MemberRepository.
func (s *Store) InsertMember(ctx context.Context, m *domain.Member) error {
	if m.ID == "" {
		return domain.Errf(domain.ErrValidationFailed, "member id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = cloneMember(m)
	return nil
}

// GetMember implements repo.MemberRepository.
func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, domain.Errf(domain.ErrNotFound, "member %s not found", id)
	}
	return cloneMember(m), nil
}

// GetMemberByToken implements repo.MemberRepository.
func (s *Store) GetMemberByToken(ctx context.Context, token string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m.APIToken != "" && m.APIToken == token {
			return cloneMember(m), nil
		}
	}
	return nil, domain.Errf(domain.ErrNotFound, "no member for token")
}

// GetMembers implements repo.MemberRepository.
func (s *Store) GetMembers(ctx context.Context, ids []string) (map[string]*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.Member, len(ids))
	for _, id := range ids {
		if m, ok := s.members[id]; ok {
			out[id] = cloneMember(m)
		}
	}
	return out, nil
}

// ListMembers implements repo.MemberRepository.
func (s *Store) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, cloneMember(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountActiveByRole implements repo.MemberRepository.
func (s *Store) CountActiveByRole(ctx context.Context, role domain.Role) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.members {
		if m.Active && m.Role == role {
			n++
		}
	}
	return n, nil
}
