package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/gracechapel/treasury/internal/domain"
	"github.com/gracechapel/treasury/internal/repo"
)

// Insert writes a new pending payment. DML is used instead of the streaming
// inserter because the row must be updatable by ResolvePending immediately;
// rows in the streaming buffer reject DML updates for a long window.
func (r *Repository) Insert(ctx context.Context, p *domain.Payment) error {
	q := r.client.Query(fmt.Sprintf(`
		INSERT %s (
			payment_id, member_id, kind, offering_category, amount,
			description, comments, proof_name, proof_original_name,
			proof_content_type, proof_size, status, receipt_issued,
			created_date, created_ts, updated_ts
		)
		VALUES (
			@payment_id, @member_id, @kind, NULLIF(@offering_category, ''), @amount,
			NULLIF(@description, ''), NULLIF(@comments, ''), @proof_name, @proof_original_name,
			@proof_content_type, @proof_size, @status, FALSE,
			@created_date, @created_ts, @updated_ts
		)
	`, r.table(paymentsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "payment_id", Value: p.ID},
		{Name: "member_id", Value: p.MemberID},
		{Name: "kind", Value: string(p.Kind)},
		{Name: "offering_category", Value: p.OfferingCategory},
		{Name: "amount", Value: p.Amount.Rat()},
		{Name: "description", Value: p.Description},
		{Name: "comments", Value: p.Comments},
		{Name: "proof_name", Value: p.Proof.Name},
		{Name: "proof_original_name", Value: p.Proof.OriginalName},
		{Name: "proof_content_type", Value: p.Proof.ContentType},
		{Name: "proof_size", Value: p.Proof.Size},
		{Name: "status", Value: string(domain.StatusPending)},
		{Name: "created_date", Value: civil.DateOf(p.CreatedAt)},
		{Name: "created_ts", Value: p.CreatedAt},
		{Name: "updated_ts", Value: p.UpdatedAt},
	}

	if _, err := runDML(ctx, q); err != nil {
		return domain.WrapErr(domain.ErrStoreFailure, err, "Insert: payment %s", p.ID)
	}
	return nil
}

// Get returns the payment by id.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Payment, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE payment_id = @payment_id
	`, paymentColumns, r.table(paymentsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "payment_id", Value: id}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "Get: reading payment %s", id)
	}

	var row PaymentRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.Errf(domain.ErrNotFound, "payment %s not found", id)
	}
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "Get: iterating payment %s", id)
	}
	return row.toDomain(), nil
}

// List returns a filtered, paginated page of payments, newest first. The
// contributor-name filter joins members and matches store-side; the old
// fetch-everything-and-filter-in-process approach does not scale.
func (r *Repository) List(ctx context.Context, filter repo.PaymentFilter) (*repo.PaymentPage, error) {
	filter.Normalize()

	where := []string{"TRUE"}
	var params []bigquery.QueryParameter
	join := ""

	if filter.MemberID != "" {
		where = append(where, "p.member_id = @filter_member_id")
		params = append(params, bigquery.QueryParameter{Name: "filter_member_id", Value: filter.MemberID})
	}
	if filter.Status != "" {
		where = append(where, "p.status = @filter_status")
		params = append(params, bigquery.QueryParameter{Name: "filter_status", Value: string(filter.Status)})
	}
	if filter.Kind != "" {
		where = append(where, "p.kind = @filter_kind")
		params = append(params, bigquery.QueryParameter{Name: "filter_kind", Value: string(filter.Kind)})
	}
	if filter.MemberName != "" {
		join = fmt.Sprintf("JOIN %s m ON p.member_id = m.member_id", r.table(membersTable))
		where = append(where, `LOWER(m.name) LIKE @member_name`)
		params = append(params, bigquery.QueryParameter{Name: "member_name", Value: likePattern(filter.MemberName)})
	}

	cond := strings.Join(where, " AND ")

	countQ := r.client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS cnt
		FROM %s p %s
		WHERE %s
	`, r.table(paymentsTable), join, cond))
	countQ.Parameters = params

	it, err := countQ.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "List: counting payments")
	}
	var countRow struct {
		Count int64 `bigquery:"cnt"`
	}
	if err := it.Next(&countRow); err != nil && err != iterator.Done {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "List: reading count")
	}

	cols := make([]string, 0, 20)
	for _, c := range strings.Split(paymentColumns, ",") {
		cols = append(cols, "p."+strings.TrimSpace(c))
	}

	pageQ := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s p %s
		WHERE %s
		ORDER BY p.created_ts DESC, p.payment_id
		LIMIT @page_size OFFSET @page_offset
	`, strings.Join(cols, ", "), r.table(paymentsTable), join, cond))
	pageQ.Parameters = append(append([]bigquery.QueryParameter{}, params...),
		bigquery.QueryParameter{Name: "page_size", Value: int64(filter.PageSize)},
		bigquery.QueryParameter{Name: "page_offset", Value: int64((filter.Page - 1) * filter.PageSize)},
	)

	rows, err := pageQ.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "List: reading payments")
	}

	var payments []*domain.Payment
	for {
		var row PaymentRow
		err := rows.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.WrapErr(domain.ErrStoreFailure, err, "List: iterating payments")
		}
		payments = append(payments, row.toDomain())
	}

	return &repo.PaymentPage{
		Payments: payments,
		Total:    countRow.Count,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Pages:    (countRow.Count + int64(filter.PageSize) - 1) / int64(filter.PageSize),
	}, nil
}

// ResolvePending applies the terminal transition as a single conditional
// UPDATE guarded on status = 'pending'. Concurrent resolvers race on the
// same statement; BigQuery serializes the DML, so exactly one call affects
// the row and every other call sees zero affected rows.
func (r *Repository) ResolvePending(ctx context.Context, id string, res repo.Resolution) (*domain.Payment, error) {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    validator_id = @validator_id,
		    validated_at = @validated_at,
		    validation_notes = NULLIF(@validation_notes, ''),
		    receipt_issued = @receipt_issued,
		    receipt_name = NULLIF(@receipt_name, ''),
		    updated_ts = @validated_at
		WHERE payment_id = @payment_id
		  AND status = 'pending'
	`, r.table(paymentsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(res.Status)},
		{Name: "validator_id", Value: res.ValidatorID},
		{Name: "validated_at", Value: res.ValidatedAt},
		{Name: "validation_notes", Value: res.Notes},
		{Name: "receipt_issued", Value: res.ReceiptIssued},
		{Name: "receipt_name", Value: res.ReceiptName},
		{Name: "payment_id", Value: id},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "ResolvePending: payment %s", id)
	}
	if affected == 0 {
		// Distinguish a missing payment from one already resolved.
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.Errf(domain.ErrInvalidState, "payment %s has already been processed", id)
	}

	return r.Get(ctx, id)
}
