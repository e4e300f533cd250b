package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/gracechapel/treasury/internal/domain"
)

// InsertMember writes a member row. Members are append-only from this
// service's perspective, so the streaming inserter is fine here.
func (r *Repository) InsertMember(ctx context.Context, m *domain.Member) error {
	table := r.client.DatasetInProject(r.project, r.dataset).Table(membersTable)
	if err := table.Inserter().Put(ctx, memberToRow(m)); err != nil {
		return domain.WrapErr(domain.ErrStoreFailure, err, "InsertMember: member %s", m.ID)
	}
	return nil
}

// GetMember returns the member by id.
func (r *Repository) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	return r.memberBy(ctx, "member_id = @member_id",
		bigquery.QueryParameter{Name: "member_id", Value: id},
		fmt.Sprintf("member %s not found", id))
}

// GetMemberByToken resolves an API token to a member.
func (r *Repository) GetMemberByToken(ctx context.Context, token string) (*domain.Member, error) {
	if token == "" {
		return nil, domain.Errf(domain.ErrNotFound, "no member for token")
	}
	return r.memberBy(ctx, "api_token = @api_token",
		bigquery.QueryParameter{Name: "api_token", Value: token},
		"no member for token")
}

func (r *Repository) memberBy(ctx context.Context, cond string, param bigquery.QueryParameter, notFoundMsg string) (*domain.Member, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		LIMIT 1
	`, memberColumns, r.table(membersTable), cond))
	q.Parameters = []bigquery.QueryParameter{param}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "memberBy: reading query")
	}

	var row MemberRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.Errf(domain.ErrNotFound, "%s", notFoundMsg)
	}
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "memberBy: iterating")
	}
	return row.toDomain(), nil
}

// GetMembers returns members for the given ids, keyed by id. Missing ids are
// simply absent.
func (r *Repository) GetMembers(ctx context.Context, ids []string) (map[string]*domain.Member, error) {
	if len(ids) == 0 {
		return map[string]*domain.Member{}, nil
	}

	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE member_id IN UNNEST(@member_ids)
	`, memberColumns, r.table(membersTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "member_ids", Value: ids}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "GetMembers: reading query")
	}

	out := make(map[string]*domain.Member, len(ids))
	for {
		var row MemberRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.WrapErr(domain.ErrStoreFailure, err, "GetMembers: iterating")
		}
		m := row.toDomain()
		out[m.ID] = m
	}
	return out, nil
}

// ListMembers returns all members ordered by id.
func (r *Repository) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY member_id
	`, memberColumns, r.table(membersTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.ErrStoreFailure, err, "ListMembers: reading query")
	}

	var out []*domain.Member
	for {
		var row MemberRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, domain.WrapErr(domain.ErrStoreFailure, err, "ListMembers: iterating")
		}
		out = append(out, row.toDomain())
	}
	return out, nil
}

// CountActiveByRole counts active members with the given role.
func (r *Repository) CountActiveByRole(ctx context.Context, role domain.Role) (int64, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS cnt
		FROM %s
		WHERE role = @role AND active
	`, r.table(membersTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "role", Value: string(role)}}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, domain.WrapErr(domain.ErrStoreFailure, err, "CountActiveByRole: reading query")
	}
	var row struct {
		Count int64 `bigquery:"cnt"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, domain.WrapErr(domain.ErrStoreFailure, err, "CountActiveByRole: iterating")
	}
	return row.Count, nil
}
