package payees

import (
	"errors"
	"regexp"
	"time"
)

// Category classifies a payee's relationship with the books.
type Category string

const (
	CategoryBusiness Category = "b2b"
	CategoryConsumer Category = "b2c"
)

// Payee is a registered counterparty that vouchers can be drawn
// against. Codes are stable identifiers; a payee that should no longer
// receive new vouchers is deactivated, never deleted.
type Payee struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates a missing payee code.
	ErrNotFound = errors.New("payees: payee not found")
	// ErrDuplicateCode indicates the code is already registered.
	ErrDuplicateCode = errors.New("payees: payee code already exists")
	// ErrInvalidCode indicates a structurally invalid payee code.
	ErrInvalidCode = errors.New("payees: invalid payee code")
	// ErrInactive indicates the payee is deactivated and rejects new vouchers.
	ErrInactive = errors.New("payees: payee is inactive")
)

// Payee codes are short uppercase identifiers like "VEND-ACME" or
// "CUST-0042": 2 to 20 characters, alphanumeric with dashes.
var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,19}$`)

// ValidateCode checks the structural payee code pattern.
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}

// ValidCategory reports whether c is a known payee category.
func ValidCategory(c Category) bool {
	return c == CategoryBusiness || c == CategoryConsumer
}
