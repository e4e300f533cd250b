// Package repo defines the persistence interfaces for payments and members.
// Concrete implementations live in internal/infra/bigquery (production) and
// internal/repo/inmemory (tests, local development).
package repo

import (
	"context"
	"time"

	"github.com/gracechapel/treasury/internal/domain"
)

// Range bounds a report query. Bounds are inclusive; a nil bound leaves that
// side open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls within the range.
func (r Range) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// PaymentFilter enumerates the recognized payment list filters. Zero values
// mean "no filter". MemberName is a case-insensitive substring match on the
// contributor's name, applied store-side.
type PaymentFilter struct {
	MemberID   string
	Status     domain.PaymentStatus
	Kind       domain.PaymentKind
	MemberName string

	Page     int
	PageSize int
}

// Normalize clamps pagination to sane bounds.
func (f *PaymentFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// PaymentPage is one page of a payment listing, newest first.
type PaymentPage struct {
	Payments []*domain.Payment `json:"payments"`
	Total    int64             `json:"total"`
	Page     int               `json:"currentPage"`
	PageSize int               `json:"pageSize"`
	Pages    int64             `json:"totalPages"`
}

// Resolution carries the one-time terminal transition of a payment. All
// fields are written atomically with the status change.
type Resolution struct {
	Status        domain.PaymentStatus
	ValidatorID   string
	ValidatedAt   time.Time
	Notes         string
	ReceiptIssued bool
	ReceiptName   string
}

// KindTotal is a per-kind aggregate over validated payments.
type KindTotal struct {
	Kind  domain.PaymentKind
	Total domain.Money
	Count int64
}

// MonthlyTotal is a (year, month, kind) aggregate over validated payments.
type MonthlyTotal struct {
	Year  int
	Month int
	Kind  domain.PaymentKind
	Total domain.Money
	Count int64
}

// MemberTotal is a per-contributor aggregate over validated payments.
type MemberTotal struct {
	MemberID      string
	TitheTotal    domain.Money
	OfferingTotal domain.Money
	Total         domain.Money
	TitheCount    int64
	OfferingCount int64
	Count         int64
	LastAt        time.Time
}

// StatusTotal is a per-status aggregate over all payments.
type StatusTotal struct {
	Status domain.PaymentStatus
	Count  int64
	Total  domain.Money
}

// PaymentRepository persists payments and runs the aggregation queries the
// reports are built from. Aggregations never mutate state.
type PaymentRepository interface {
	Insert(ctx context.Context, p *domain.Payment) error

	// Get returns the payment or a not_found error.
	Get(ctx context.Context, id string) (*domain.Payment, error)

	// List returns a filtered, paginated page of payments, newest first.
	List(ctx context.Context, filter PaymentFilter) (*PaymentPage, error)

	// ResolvePending applies res to the payment if and only if it is still
	// pending, as a single conditional write. Concurrent calls on the same
	// payment yield exactly one success; losers receive an invalid_state
	// error. Missing payments yield not_found.
	ResolvePending(ctx context.Context, id string, res Resolution) (*domain.Payment, error)

	// TotalsByKind aggregates validated payments by kind. The range applies
	// to validatedAt; kind restricts to one kind when non-empty.
	TotalsByKind(ctx context.Context, r Range, kind domain.PaymentKind) ([]KindTotal, error)

	// MonthlyTotals aggregates validated payments by (year, month, kind),
	// ordered most-recent first. Range and kind as in TotalsByKind.
	MonthlyTotals(ctx context.Context, r Range, kind domain.PaymentKind) ([]MonthlyTotal, error)

	// MemberTotals aggregates validated payments per contributor, sorted by
	// total descending with ties broken by member id ascending, truncated
	// to limit. The range applies to validatedAt.
	MemberTotals(ctx context.Context, r Range, limit int) ([]MemberTotal, error)

	// TotalsByStatus aggregates all payments by status. The range applies
	// to createdAt.
	TotalsByStatus(ctx context.Context, r Range) ([]StatusTotal, error)

	// RecentPending returns the newest pending payments, up to limit.
	RecentPending(ctx context.Context, limit int) ([]*domain.Payment, error)

	// CountByStatus counts payments with the given status, all-time.
	CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error)
}

// MemberRepository reads and writes members. The treasury only consumes
// identity, role and display fields; credential issuance is external.
type MemberRepository interface {
	InsertMember(ctx context.Context, m *domain.Member) error

	// GetMember returns the member or a not_found error.
	GetMember(ctx context.Context, id string) (*domain.Member, error)

	// GetMemberByToken resolves an API token to a member, or not_found.
	GetMemberByToken(ctx context.Context, token string) (*domain.Member, error)

	// GetMembers returns the members for the given ids, keyed by id.
	// Missing ids are absent from the map, not an error.
	GetMembers(ctx context.Context, ids []string) (map[string]*domain.Member, error)

	ListMembers(ctx context.Context) ([]*domain.Member, error)

	// CountActiveByRole counts active members with the given role.
	CountActiveByRole(ctx context.Context, role domain.Role) (int64, error)
}
