package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListFilter narrows account listings.
type ListFilter struct {
	Type            AccountType
	IncludeInactive bool
}

// Repository encapsulates DB operations for the account registry.
type Repository interface {
	Insert(ctx context.Context, account Account) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	SetActive(ctx context.Context, code string, active bool) (Account, error)
	List(ctx context.Context, filter ListFilter) ([]Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, type, is_active, created_at, updated_at`

func (r *repository) Insert(ctx context.Context, account Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (code, name, type, is_active)
VALUES ($1,$2,$3,TRUE) RETURNING `+accountColumns, account.Code, account.Name, account.Type)
	inserted, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return inserted, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) SetActive(ctx context.Context, code string, active bool) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE code=$1 RETURNING `+accountColumns, code, active)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	var args []any
	if !filter.IncludeInactive {
		query += ` AND is_active`
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND type=$1`
	}
	query += ` ORDER BY type, code`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	return a, nil
}
