package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/repo"
)

// validatedClauses builds the shared WHERE pieces for validated-payment
// aggregations: status filter, validated_at range, optional kind.
func validatedClauses(rng repo.Range, kind domain.PaymentKind) ([]string, []bigquery.QueryParameter) {
	where := []string{"status = 'validated'"}
	var params []bigquery.QueryParameter
	where, params = rangeClauses("validated_at", rng, where, params)
	if kind != "" {
		where = append(where, "kind = @agg_kind")
		params = append(params, bigquery.QueryParameter{Name: "agg_kind", Value: string(kind)})
	}
	return where, params
}

// TotalsByKind aggregates validated payments by kind.
func (r *Repository) TotalsByKind(ctx context.Context, rng repo.Range, kind domain.PaymentKind) ([]repo.KindTotal, error) {
	where, params := validatedClauses(rng, kind)

	q := r.client.Query(fmt.Sprintf(`
		SELECT kind, SUM(amount) AS total, COUNT(*) AS cnt
		FROM %s
		WHERE %s
		GROUP BY kind
		ORDER BY kind
	`, r.table(paymentsTable), strings.Join(where, " AND ")))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "TotalsByKind: reading query")
	}

	var out []repo.KindTotal
	for {
		var row struct {
			Kind  string   `bigquery:"kind"`
			Total *big.Rat `bigquery:"total"`
			Count int64    `bigquery:"cnt"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.WrapErr(domain.ErrStoreFailure, err, "TotalsByKind: iterating")
		}
		out = append(out, repo.KindTotal{
			Kind:  domain.PaymentKind(row.Kind),
			Total: domain.MoneyFromRat(row.Total),
			Count: row.Count,
		})
	}
	return out, nil
}

// MonthlyTotals aggregates validated payments by (year, month, kind),
// most recent first.
func (r *Repository) MonthlyTotals(ctx context.Context, rng repo.Range, kind domain.PaymentKind) ([]repo.MonthlyTotal, error) {
	where, params := validatedClauses(rng, kind)

	q := r.client.Query(fmt.Sprintf(`
		SELECT
			EXTRACT(YEAR FROM validated_at) AS year,
			EXTRACT(MONTH FROM validated_at) AS month,
			kind,
			SUM(amount) AS total,
			COUNT(*) AS cnt
		FROM %s
		WHERE %s
		GROUP BY year, month, kind
		ORDER BY year DESC, month DESC, kind
	`, r.table(paymentsTable), strings.Join(where, " AND ")))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "MonthlyTotals: reading query")
	}

	var out []repo.MonthlyTotal
	for {
		var row struct {
			Year  int64    `bigquery:"year"`
			Month int64    `bigquery:"month"`
			Kind  string   `bigquery:"kind"`
			Total *big.Rat `bigquery:"total"`
			Count int64    `bigquery:"cnt"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.WrapErr(domain.ErrStoreFailure, err, "MonthlyTotals: iterating")
		}
		out = append(out, repo.MonthlyTotal{
			Year:  int(row.Year),
			Month: int(row.Month),
			Kind:  domain.PaymentKind(row.Kind),
			Total: domain.MoneyFromRat(row.Total),
			Count: row.Count,
		})
	}
	return out, nil
}

// MemberTotals aggregates validated payments per contributor, sorted by
// total descending with member id as the deterministic tie-break.
func (r *Repository) MemberTotals(ctx context.Context, rng repo.Range, limit int) ([]repo.MemberTotal, error) {
	where, params := validatedClauses(rng, "")
	params = append(params, bigquery.QueryParameter{Name: "agg_limit", Value: int64(limit)})

	q := r.client.Query(fmt.Sprintf(`
		SELECT
			member_id,
			SUM(IF(kind = 'tithe', amount, NUMERIC '0')) AS tithe_total,
			SUM(IF(kind = 'offering', amount, NUMERIC '0')) AS offering_total,
			SUM(amount) AS total,
			COUNTIF(kind = 'tithe') AS tithe_cnt,
			COUNTIF(kind = 'offering') AS offering_cnt,
			COUNT(*) AS cnt,
			MAX(validated_at) AS last_at
		FROM %s
		WHERE %s
		GROUP BY member_id
		ORDER BY total DESC, member_id ASC
		LIMIT @agg_limit
	`, r.table(paymentsTable), strings.Join(where, " AND ")))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "MemberTotals: reading query")
	}

	var out []repo.MemberTotal
	for {
		var row struct {
			MemberID      string    `bigquery:"member_id"`
			TitheTotal    *big.Rat  `bigquery:"tithe_total"`
			OfferingTotal *big.Rat  `bigquery:"offering_total"`
			Total         *big.Rat  `bigquery:"total"`
			TitheCount    int64     `bigquery:"tithe_cnt"`
			OfferingCount int64     `bigquery:"offering_cnt"`
			Count         int64     `bigquery:"cnt"`
			LastAt        time.Time `bigquery:"last_at"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.WrapErr(domain.ErrStoreFailure, err, "MemberTotals: iterating")
		}
		out = append(out, repo.MemberTotal{
			MemberID:      row.MemberID,
			TitheTotal:    domain.MoneyFromRat(row.TitheTotal),
			OfferingTotal: domain.MoneyFromRat(row.OfferingTotal),
			Total:         domain.MoneyFromRat(row.Total),
			TitheCount:    row.TitheCount,
			OfferingCount: row.OfferingCount,
			Count:         row.Count,
			LastAt:        row.LastAt,
		})
	}
	return out, nil
}

// TotalsByStatus aggregates all payments by status over a createdAt range.
func (r *Repository) TotalsByStatus(ctx context.Context, rng repo.Range) ([]repo.StatusTotal, error) {
	where := []string{"TRUE"}
	var params []bigquery.QueryParameter
	where, params = rangeClauses("created_ts", rng, where, params)

	q := r.client.Query(fmt.Sprintf(`
		SELECT status, COUNT(*) AS cnt, SUM(amount) AS total
		FROM %s
		WHERE %s
		GROUP BY status
		ORDER BY status
	`, r.table(paymentsTable), strings.Join(where, " AND ")))
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "TotalsByStatus: reading query")
	}

	var out []repo.StatusTotal
	for {
		var row struct {
			Status string   `bigquery:"status"`
			Count  int64    `bigquery:"cnt"`
			Total  *big.Rat `bigquery:"total"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.WrapErr(domain.ErrStoreFailure, err, "TotalsByStatus: iterating")
		}
		out = append(out, repo.StatusTotal{
			Status: domain.PaymentStatus(row.Status),
			Count:  row.Count,
			Total:  domain.MoneyFromRat(row.Total),
		})
	}
	return out, nil
}

// RecentPending returns the newest pending payments, up to limit.
func (r *Repository) RecentPending(ctx context.Context, limit int) ([]*domain.Payment, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE status = 'pending'
		ORDER BY created_ts DESC, payment_id
		LIMIT @pending_limit
	`, paymentColumns, r.table(paymentsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "pending_limit", Value: int64(limit)}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "RecentPending: reading query")
	}

	var out []*domain.Payment
	for {
		var row PaymentRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.WrapErr(domain.ErrStoreFailure, err, "RecentPending: iterating")
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

// CountByStatus counts payments with the given status, all-time.
func (r *Repository) CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS cnt
		FROM %s
		WHERE status = @status
	`, r.table(paymentsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "status", Value: string(status)}}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, domain.WrapErr(domain.ErrStoreFailure, err, "CountByStatus: reading query")
	}
	var row struct {
		Count int64 `bigquery:"cnt"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, domain.WrapErr(domain.ErrStoreFailure, err, "CountByStatus: iterating")
	}
	return row.Count, nil
}
