package accounts

import (
	"errors"
	"regexp"
	"time"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Account models a chart of accounts entry. Codes are immutable once a
// posted ledger line references them; deactivation is the only way to
// retire an account.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

var (
	// ErrNotFound indicates a missing account code.
	ErrNotFound = errors.New("accounts: account not found")
	// ErrDuplicateCode indicates the code is already registered.
	ErrDuplicateCode = errors.New("accounts: account code already exists")
	// ErrInvalidCode indicates the code does not match {type}-{entity}{subcode}.
	ErrInvalidCode = errors.New("accounts: invalid account code")
	// ErrInactive indicates the account is deactivated and rejects new lines.
	ErrInactive = errors.New("accounts: account is inactive")
)

// Account codes look like "asset-CASH" or "liability-AP-VEND01": the
// type prefix, a dash, then an uppercase alphanumeric entity with an
// optional dashed subcode.
var codePattern = regexp.MustCompile(`^(asset|liability|equity|revenue|expense)-[A-Z0-9][A-Z0-9-]*$`)

// ValidateCode checks the structural account code pattern and that the
// prefix matches the declared type.
func ValidateCode(code string, accountType AccountType) error {
	m := codePattern.FindStringSubmatch(code)
	if m == nil {
		return ErrInvalidCode
	}
	if AccountType(m[1]) != accountType {
		return ErrInvalidCode
	}
	return nil
}

// ValidType reports whether t is one of the five account types.
func ValidType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}
