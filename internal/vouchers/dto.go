package vouchers

import (
	"strings"

	"github.com/tallybook/tallybook/internal/money"
)

// LineInput describes a proposed ledger line.
type LineInput struct {
	AccountCode string       `json:"account_code"`
	Debit       money.Amount `json:"debit"`
	Credit      money.Amount `json:"credit"`
}

// CreateInput groups fields for creating a draft voucher.
type CreateInput struct {
	Kind        Kind        `json:"kind"`
	PayeeRef    string      `json:"payee_ref"`
	Description string      `json:"description"`
	Lines       []LineInput `json:"lines"`
}

// UpdateInput replaces a draft's header fields and full line set.
type UpdateInput struct {
	PayeeRef    string      `json:"payee_ref"`
	Description string      `json:"description"`
	Lines       []LineInput `json:"lines"`
}

// ListFilter narrows voucher listings.
type ListFilter struct {
	Status   Status
	Kind     Kind
	OwnerID  int64
	PayeeRef string
	Limit    int
	Offset   int
}

// ValidateLineShapes checks each line in isolation: a known account
// code format is not required here, but amounts must be non-negative
// and exactly one side nonzero. Balance is not enforced, so a draft
// can be saved mid-edit.
func ValidateLineShapes(lines []LineInput) error {
	for i := range lines {
		line := &lines[i]
		line.AccountCode = strings.TrimSpace(line.AccountCode)
		if line.AccountCode == "" {
			return ErrEmptyLine
		}
		if line.Debit < 0 || line.Credit < 0 {
			return ErrNegativeLine
		}
		if line.Debit > 0 && line.Credit > 0 {
			return ErrMixedLine
		}
		if line.Debit == 0 && line.Credit == 0 {
			return ErrEmptyLine
		}
	}
	return nil
}

// ValidatePosting runs the full double-entry check used at posting
// time: at least two lines, per-line shape, and exact minor-unit
// equality of the debit and credit totals. Pure; no side effects.
func ValidatePosting(lines []LineInput) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	if err := ValidateLineShapes(lines); err != nil {
		return err
	}
	var debit, credit money.Amount
	for _, line := range lines {
		debit += line.Debit
		credit += line.Credit
	}
	if debit != credit {
		return ErrUnbalanced
	}
	return nil
}

// TotalDebit sums the debit side; once balanced this is the voucher's
// derived total amount.
func TotalDebit(lines []LineInput) money.Amount {
	var total money.Amount
	for _, line := range lines {
		total += line.Debit
	}
	return total
}

func linesToInputs(lines []LedgerLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{AccountCode: line.AccountCode, Debit: line.Debit, Credit: line.Credit})
	}
	return out
}
