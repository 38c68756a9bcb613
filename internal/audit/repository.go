package audit

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/pocketledger/pocketledger/internal/platform/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	q db.Querier
}

// NewRepository constructs a PostgreSQL timeline repository.
func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{q: q}
}

// Window returns rows for the owner, newest first.
func (r *PGRepository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where := sq.And{sq.Eq{"user_id": f.OwnerID}}
	if !f.From.IsZero() {
		where = append(where, sq.GtOrEq{"created_at": f.From.UTC()})
	}
	if !f.To.IsZero() {
		where = append(where, sq.Lt{"created_at": f.To.UTC().AddDate(0, 0, 1)})
	}
	if f.Action != "" {
		where = append(where, sq.Eq{"action": f.Action})
	}
	if f.TargetType != "" {
		where = append(where, sq.Eq{"target_type": f.TargetType})
	}
	query, args, err := psql.Select("created_at", "action", "target_type", "target_id", "data").
		From("audit_logs").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("audit: build timeline: %w", err)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	defer rows.Close()

	out := make([]TimelineRow, 0)
	for rows.Next() {
		var (
			row  TimelineRow
			data []byte
		)
		if err := rows.Scan(&row.At, &row.Action, &row.TargetType, &row.TargetID, &data); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &row.Data); err != nil {
				return nil, fmt.Errorf("audit: decode data: %w", err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	return out, nil
}

var _ Repository = (*PGRepository)(nil)
