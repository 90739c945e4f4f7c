package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for audit records.
// Rows are insert-only; there is no update or delete path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one audit record.
func (r *Repository) Insert(ctx context.Context, e Entry, before, after []byte) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_records (actor_id, action, entity, entity_id, before_value, after_value, source_addr, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ActorID, string(e.Action), e.Entity, e.EntityID, before, after, e.SourceAddr, e.At)
	return err
}

// Trail returns audit records matching the filters, newest first. It
// fetches one row beyond the page size so the caller can detect a next
// page without a count query.
func (r *Repository) Trail(ctx context.Context, f TrailFilters, limit, offset int) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT a.id, a.actor_id, COALESCE(u.username, ''), a.action, a.entity, a.entity_id, a.before_value, a.after_value, a.source_addr, a.occurred_at
FROM audit_records a
LEFT JOIN users u ON u.id = a.actor_id
WHERE 1=1`)
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		fmt.Fprintf(&sb, " AND %s $%d", clause, len(args))
	}
	if !f.From.IsZero() {
		add("a.occurred_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("a.occurred_at <=", f.To)
	}
	if f.ActorID != 0 {
		add("a.actor_id =", f.ActorID)
	}
	if f.Entity != "" {
		add("a.entity =", f.Entity)
	}
	if f.EntityID != "" {
		add("a.entity_id =", f.EntityID)
	}
	if f.Action != "" {
		add("a.action =", strings.ToUpper(f.Action))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&sb, " ORDER BY a.occurred_at DESC, a.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		var action string
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.ActorName, &action, &rec.Entity, &rec.EntityID, &rec.Before, &rec.After, &rec.SourceAddr, &rec.At); err != nil {
			return nil, err
		}
		rec.Action = Action(action)
		records = append(records, rec)
	}
	return records, rows.Err()
}
