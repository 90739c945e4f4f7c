package payees

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListFilter narrows payee listings.
type ListFilter struct {
	Category        Category
	IncludeInactive bool
}

// Repository encapsulates DB operations for the payee registry.
type Repository interface {
	Insert(ctx context.Context, payee Payee) (Payee, error)
	GetByCode(ctx context.Context, code string) (Payee, error)
	UpdateDetails(ctx context.Context, code, name string, category Category) (Payee, error)
	SetActive(ctx context.Context, code string, active bool) (Payee, error)
	List(ctx context.Context, filter ListFilter) ([]Payee, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const payeeColumns = `id, code, name, category, is_active, created_at, updated_at`

func (r *repository) Insert(ctx context.Context, payee Payee) (Payee, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO payees (code, name, category, is_active)
VALUES ($1,$2,$3,TRUE) RETURNING `+payeeColumns, payee.Code, payee.Name, payee.Category)
	inserted, err := scanPayee(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Payee{}, ErrDuplicateCode
		}
		return Payee{}, err
	}
	return inserted, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (Payee, error) {
	row := r.db.QueryRow(ctx, `SELECT `+payeeColumns+` FROM payees WHERE code=$1`, code)
	payee, err := scanPayee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payee{}, ErrNotFound
		}
		return Payee{}, err
	}
	return payee, nil
}

func (r *repository) UpdateDetails(ctx context.Context, code, name string, category Category) (Payee, error) {
	row := r.db.QueryRow(ctx, `UPDATE payees SET name=$2, category=$3, updated_at=NOW()
WHERE code=$1 RETURNING `+payeeColumns, code, name, category)
	payee, err := scanPayee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payee{}, ErrNotFound
		}
		return Payee{}, err
	}
	return payee, nil
}

func (r *repository) SetActive(ctx context.Context, code string, active bool) (Payee, error) {
	row := r.db.QueryRow(ctx, `UPDATE payees SET is_active=$2, updated_at=NOW() WHERE code=$1 RETURNING `+payeeColumns, code, active)
	payee, err := scanPayee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payee{}, ErrNotFound
		}
		return Payee{}, err
	}
	return payee, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Payee, error) {
	query := `SELECT ` + payeeColumns + ` FROM payees WHERE 1=1`
	var args []any
	if !filter.IncludeInactive {
		query += ` AND is_active`
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += ` AND category=$1`
	}
	query += ` ORDER BY code`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payees []Payee
	for rows.Next() {
		payee, err := scanPayee(rows)
		if err != nil {
			return nil, err
		}
		payees = append(payees, payee)
	}
	return payees, rows.Err()
}

func scanPayee(row pgx.Row) (Payee, error) {
	var p Payee
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Payee{}, err
	}
	return p, nil
}
