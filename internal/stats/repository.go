package stats

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallybook/tallybook/internal/money"
)

// Repository collects dashboard aggregates from PostgreSQL. ownerID 0
// aggregates the whole ledger; a non-zero ownerID restricts every
// figure to that creator's vouchers.
type Repository interface {
	Collect(ctx context.Context, ownerID int64) (Summary, error)
}

// PGRepository implements Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Collect runs the aggregate queries. Draft and posted totals stay
// separate so the dashboard never mixes committed and uncommitted
// amounts.
func (r *PGRepository) Collect(ctx context.Context, ownerID int64) (Summary, error) {
	var summary Summary

	rows, err := r.pool.Query(ctx, `
		SELECT kind,
		       COUNT(*) FILTER (WHERE status = 'DRAFT'),
		       COALESCE(SUM(total_cents) FILTER (WHERE status = 'DRAFT'), 0),
		       COUNT(*) FILTER (WHERE status = 'POSTED'),
		       COALESCE(SUM(total_cents) FILTER (WHERE status = 'POSTED'), 0),
		       COUNT(*) FILTER (WHERE status = 'VOIDED')
		FROM vouchers
		WHERE $1::bigint = 0 OR created_by = $1
		GROUP BY kind
		ORDER BY kind`, ownerID)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var ks KindSummary
		var draftTotal, postedTotal int64
		if err := rows.Scan(&ks.Kind, &ks.DraftCount, &draftTotal, &ks.PostedCount, &postedTotal, &ks.VoidedCount); err != nil {
			return Summary{}, err
		}
		ks.DraftTotal = money.Amount(draftTotal)
		ks.PostedTotal = money.Amount(postedTotal)
		summary.Kinds = append(summary.Kinds, ks)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE is_active`).Scan(&summary.Accounts)
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

var _ Repository = (*PGRepository)(nil)
