package vouchers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallybook/tallybook/internal/money"
	"github.com/tallybook/tallybook/internal/platform/db"
)

// Repository encapsulates DB operations for vouchers.
type Repository interface {
	Get(ctx context.Context, id int64) (Voucher, error)
	List(ctx context.Context, filter ListFilter) ([]Voucher, error)
	Search(ctx context.Context, term string, kind Kind) ([]Voucher, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes operations available within one transaction.
// GetForUpdate takes a row lock on the header, which is the
// serialization point for concurrent state transitions.
type TxRepository interface {
	NextNumber(ctx context.Context, kind Kind, year int) (string, error)
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	ReplaceLines(ctx context.Context, voucherID int64, lines []LineInput) error
	GetForUpdate(ctx context.Context, id int64) (Voucher, error)
	GetLines(ctx context.Context, voucherID int64) ([]LedgerLine, error)
	UpdateHeader(ctx context.Context, id int64, payeeRef, description string, total money.Amount) error
	MarkPosted(ctx context.Context, id int64, postedBy int64, at time.Time) error
	MarkVoided(ctx context.Context, id int64, voidedBy int64, reason string, at time.Time) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const voucherColumns = `id, number, kind, status, payee_ref, description, total_cents, created_by, created_at, updated_at, posted_by, posted_at, voided_by, voided_at, void_reason`

func (r *repository) Get(ctx context.Context, id int64) (Voucher, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1`, id)
	v, err := scanVoucher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, err
	}
	lines, err := queryLines(ctx, r.pool, id)
	if err != nil {
		return Voucher{}, err
	}
	v.Lines = lines
	return v, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + voucherColumns + ` FROM vouchers WHERE 1=1`)
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		fmt.Fprintf(&sb, " AND %s $%d", clause, len(args))
	}
	if filter.Status != "" {
		add("status =", filter.Status)
	}
	if filter.Kind != "" {
		add("kind =", filter.Kind)
	}
	if filter.OwnerID != 0 {
		add("created_by =", filter.OwnerID)
	}
	if filter.PayeeRef != "" {
		add("payee_ref =", filter.PayeeRef)
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return r.queryVouchers(ctx, sb.String(), args...)
}

func (r *repository) Search(ctx context.Context, term string, kind Kind) ([]Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers
WHERE (number ILIKE $1 OR payee_ref ILIKE $1 OR description ILIKE $1)`
	args := []any{"%" + term + "%"}
	if kind != "" {
		args = append(args, kind)
		query += ` AND kind=$2`
	}
	query += ` ORDER BY created_at DESC LIMIT 100`
	return r.queryVouchers(ctx, query, args...)
}

func (r *repository) queryVouchers(ctx context.Context, query string, args ...any) ([]Voucher, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vouchers []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NextNumber produces the next voucher number for a kind and year, in
// the form VP-2026-001. The highest row for the prefix is locked so
// two inserts in the same year cannot draw the same sequence. Suffixes
// grow past three digits, so ordering goes by length before text:
// plain text order would rank 999 above 1000.
func (r *txRepository) NextNumber(ctx context.Context, kind Kind, year int) (string, error) {
	prefix := fmt.Sprintf("%s-%d-", kind, year)
	var last string
	err := r.tx.QueryRow(ctx, `SELECT number FROM vouchers WHERE kind=$1 AND number LIKE $2 ORDER BY length(number) DESC, number DESC LIMIT 1 FOR UPDATE`, kind, prefix+"%").Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			last = ""
		} else {
			return "", err
		}
	}
	return fmt.Sprintf("%s%03d", prefix, nextSequence(last, prefix)), nil
}

// nextSequence derives the next sequence from the highest existing
// number for the prefix; an empty or foreign value starts at 1.
func nextSequence(last, prefix string) int {
	raw, ok := strings.CutPrefix(last, prefix)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return n + 1
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO vouchers (number, kind, status, payee_ref, description, total_cents, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at, updated_at`,
		v.Number, v.Kind, v.Status, v.PayeeRef, v.Description, v.TotalAmount.Cents(), v.CreatedBy)
	if err := row.Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, voucherID int64, lines []LineInput) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM ledger_lines WHERE voucher_id=$1`, voucherID); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO ledger_lines (voucher_id, account_code, debit_cents, credit_cents)
VALUES ($1,$2,$3,$4)`, voucherID, line.AccountCode, line.Debit.Cents(), line.Credit.Cents()); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Voucher, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1 FOR UPDATE`, id)
	v, err := scanVoucher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

func (r *txRepository) GetLines(ctx context.Context, voucherID int64) ([]LedgerLine, error) {
	return queryLines(ctx, r.tx, voucherID)
}

func (r *txRepository) UpdateHeader(ctx context.Context, id int64, payeeRef, description string, total money.Amount) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET payee_ref=$2, description=$3, total_cents=$4, updated_at=NOW() WHERE id=$1`,
		id, payeeRef, description, total.Cents())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkPosted(ctx context.Context, id int64, postedBy int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET status=$2, posted_by=$3, posted_at=$4, updated_at=NOW() WHERE id=$1`,
		id, StatusPosted, postedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkVoided(ctx context.Context, id int64, voidedBy int64, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET status=$2, voided_by=$3, voided_at=$4, void_reason=$5, updated_at=NOW() WHERE id=$1`,
		id, StatusVoided, voidedBy, at, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, voucherID int64) ([]LedgerLine, error) {
	rows, err := q.Query(ctx, `SELECT id, voucher_id, account_code, debit_cents, credit_cents, created_at
FROM ledger_lines WHERE voucher_id=$1 ORDER BY id ASC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LedgerLine
	for rows.Next() {
		var line LedgerLine
		var debit, credit int64
		if err := rows.Scan(&line.ID, &line.VoucherID, &line.AccountCode, &debit, &credit, &line.CreatedAt); err != nil {
			return nil, err
		}
		line.Debit = money.FromCents(debit)
		line.Credit = money.FromCents(credit)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	var total int64
	var description, voidReason *string
	err := row.Scan(&v.ID, &v.Number, &v.Kind, &v.Status, &v.PayeeRef, &description, &total,
		&v.CreatedBy, &v.CreatedAt, &v.UpdatedAt, &v.PostedBy, &v.PostedAt, &v.VoidedBy, &v.VoidedAt, &voidReason)
	if err != nil {
		return Voucher{}, err
	}
	v.TotalAmount = money.FromCents(total)
	if description != nil {
		v.Description = *description
	}
	if voidReason != nil {
		v.VoidReason = *voidReason
	}
	return v, nil
}
