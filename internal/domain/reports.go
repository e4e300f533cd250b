package domain

import "time"

// KindSummary aggregates validated payments of one kind.
type KindSummary struct {
	Total   Money `json:"totalAmount"`
	Count   int64 `json:"count"`
	Average Money `json:"averageAmount"`
}

// MonthlyTotal is one (year, month, kind) bucket of validated payments.
type MonthlyTotal struct {
	Year  int         `json:"year"`
	Month int         `json:"month"`
	Kind  PaymentKind `json:"type"`
	Total Money       `json:"totalAmount"`
	Count int64       `json:"count"`
}

// FinancialSummary is the full financial report over validated payments.
// Tithes and Offerings are zero-filled when no matching records exist.
type FinancialSummary struct {
	Tithes     KindSummary    `json:"tithes"`
	Offerings  KindSummary    `json:"offerings"`
	GrandTotal Money          `json:"grandTotal"`
	Monthly    []MonthlyTotal `json:"monthlyBreakdown"`
}

// MemberContribution aggregates one contributor's validated payments,
// enriched with the member's display details.
type MemberContribution struct {
	MemberID string `json:"memberId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`

	TitheTotal    Money `json:"totalTithes"`
	OfferingTotal Money `json:"totalOfferings"`
	Total         Money `json:"totalAmount"`
	TitheCount    int64 `json:"titheCount"`
	OfferingCount int64 `json:"offeringCount"`
	Count         int64 `json:"totalCount"`

	LastContributionAt time.Time `json:"lastContribution"`
}

// StatusTotal is one per-status row of the payment status report.
type StatusTotal struct {
	Status PaymentStatus `json:"status"`
	Count  int64         `json:"count"`
	Total  Money         `json:"totalAmount"`
}

// StatusReport covers payments of every status within the requested range,
// plus the most recent pending payments for operator triage.
type StatusReport struct {
	Statuses      []StatusTotal `json:"statusSummary"`
	RecentPending []*Payment    `json:"pendingPayments"`
}

// AmountCount is a per-kind amount/count pair for a dashboard period.
type AmountCount struct {
	Amount Money `json:"amount"`
	Count  int64 `json:"count"`
}

// PeriodStats is a per-kind breakdown over one calendar period.
type PeriodStats struct {
	Tithes    AmountCount `json:"tithes"`
	Offerings AmountCount `json:"offerings"`
}

// DashboardStats is the current month/year snapshot.
type DashboardStats struct {
	Monthly       PeriodStats `json:"monthly"`
	Yearly        PeriodStats `json:"yearly"`
	PendingCount  int64       `json:"pendingCount"`
	ActiveMembers int64       `json:"activeMembersCount"`
}

// DashboardOverview composes every report into one payload. It is built
// all-or-nothing: if any sub-report fails the whole overview fails.
type DashboardOverview struct {
	Stats           DashboardStats       `json:"stats"`
	Summary         FinancialSummary     `json:"financialSummary"`
	TopContributors []MemberContribution `json:"memberContributions"`
	Status          StatusReport         `json:"paymentStatus"`
}
