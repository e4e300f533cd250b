// Package bigquery implements the repository interfaces on BigQuery. All
// report aggregation runs store-side as SQL; the only mutation after insert
// is the conditional resolve UPDATE.
package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/gracechapel/treasury/internal/repo"
)

const (
	paymentsTable = "payments"
	membersTable  = "members"
)

// Repository is the BigQuery-backed implementation of both
// repo.PaymentRepository and repo.MemberRepository. It holds a shared
// BigQuery client to avoid creating a new connection per operation.
type Repository struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewRepository creates a repository with a shared BigQuery client.
func NewRepository(ctx context.Context, project, dataset string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, project: project, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// table returns the fully qualified, backtick-quoted table name.
func (r *Repository) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", r.project, r.dataset, name)
}

// runDML executes a DML query and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

// rangeClauses appends inclusive bound conditions on column for the given
// range, returning the extended where list and parameters.
func rangeClauses(column string, rng repo.Range, where []string, params []bigquery.QueryParameter) ([]string, []bigquery.QueryParameter) {
	if rng.From != nil {
		where = append(where, fmt.Sprintf("%s >= @%s_from", column, column))
		params = append(params, bigquery.QueryParameter{Name: column + "_from", Value: *rng.From})
	}
	if rng.To != nil {
		where = append(where, fmt.Sprintf("%s <= @%s_to", column, column))
		params = append(params, bigquery.QueryParameter{Name: column + "_to", Value: *rng.To})
	}
	return where, params
}

// likePattern builds a case-insensitive LIKE pattern for a substring match,
// escaping the LIKE metacharacters in the input.
func likePattern(s string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(s))
	return "%" + escaped + "%"
}

// nullTime converts a nullable BigQuery timestamp to a *time.Time.
func nullTime(ts bigquery.NullTimestamp) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Timestamp
	return &t
}
