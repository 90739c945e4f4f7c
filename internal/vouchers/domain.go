package vouchers

import (
	"errors"
	"time"

	"github.com/tallybook/tallybook/internal/money"
)

// Kind distinguishes the two voucher families.
type Kind string

const (
	// KindPayable records an obligation to pay a vendor in the future.
	KindPayable Kind = "VP"
	// KindCheck records an actual disbursement.
	KindCheck Kind = "CV"
)

// Status enumerates voucher lifecycle states.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoided Status = "VOIDED"
)

// Voucher is a transaction header owning its ledger lines. Structural
// fields freeze once the voucher leaves DRAFT; a POSTED voucher can
// only be voided, and VOIDED is terminal.
type Voucher struct {
	ID          int64        `json:"id"`
	Number      string       `json:"number"`
	Kind        Kind         `json:"kind"`
	Status      Status       `json:"status"`
	PayeeRef    string       `json:"payee_ref"`
	Description string       `json:"description,omitempty"`
	TotalAmount money.Amount `json:"total_amount"`
	CreatedBy   int64        `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	PostedBy    *int64       `json:"posted_by,omitempty"`
	PostedAt    *time.Time   `json:"posted_at,omitempty"`
	VoidedBy    *int64       `json:"voided_by,omitempty"`
	VoidedAt    *time.Time   `json:"voided_at,omitempty"`
	VoidReason  string       `json:"void_reason,omitempty"`
	Lines       []LedgerLine `json:"lines,omitempty"`
}

// LedgerLine is one side of a double-entry pair. Exactly one of Debit
// and Credit is nonzero.
type LedgerLine struct {
	ID          int64        `json:"id"`
	VoucherID   int64        `json:"voucher_id"`
	AccountCode string       `json:"account_code"`
	Debit       money.Amount `json:"debit"`
	Credit      money.Amount `json:"credit"`
	CreatedAt   time.Time    `json:"created_at"`
}

var (
	// ErrNotFound indicates a missing voucher.
	ErrNotFound = errors.New("vouchers: voucher not found")
	// ErrUnbalanced indicates debit and credit totals differ.
	ErrUnbalanced = errors.New("vouchers: debit and credit totals must balance")
	// ErrTooFewLines indicates fewer than two lines at posting time.
	ErrTooFewLines = errors.New("vouchers: posting requires at least two lines")
	// ErrMixedLine indicates a line with both a debit and a credit.
	ErrMixedLine = errors.New("vouchers: line cannot carry both debit and credit")
	// ErrNegativeLine indicates a negative line amount.
	ErrNegativeLine = errors.New("vouchers: line amounts must not be negative")
	// ErrEmptyLine indicates a line with neither debit nor credit.
	ErrEmptyLine = errors.New("vouchers: line must carry a debit or a credit")
	// ErrInvalidTransition indicates the requested status change is not legal.
	ErrInvalidTransition = errors.New("vouchers: invalid status transition")
	// ErrNotEditable indicates a mutation on a voucher outside DRAFT.
	ErrNotEditable = errors.New("vouchers: voucher is no longer editable")
	// ErrVoidReasonRequired indicates a posted void without a reason.
	ErrVoidReasonRequired = errors.New("vouchers: voiding a posted voucher requires a reason")
	// ErrInvalidKind indicates an unknown voucher kind.
	ErrInvalidKind = errors.New("vouchers: invalid voucher kind")
)

// ValidKind reports whether k is a known voucher kind.
func ValidKind(k Kind) bool {
	return k == KindPayable || k == KindCheck
}

// CanTransition reports whether a status change is allowed by the
// lifecycle: DRAFT -> POSTED, DRAFT -> VOIDED, POSTED -> VOIDED.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusPosted || to == StatusVoided
	case StatusPosted:
		return to == StatusVoided
	default:
		return false
	}
}
