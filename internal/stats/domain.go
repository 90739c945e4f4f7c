package stats

import (
	"time"

	"github.com/tallybook/tallybook/internal/money"
)

// KindSummary aggregates voucher counts and amounts for one kind.
// Totals are in minor units; voided vouchers are counted but never
// added to a total.
type KindSummary struct {
	Kind        string       `json:"kind"`
	DraftCount  int64        `json:"draft_count"`
	DraftTotal  money.Amount `json:"draft_total"`
	PostedCount int64        `json:"posted_count"`
	PostedTotal money.Amount `json:"posted_total"`
	VoidedCount int64        `json:"voided_count"`
}

// Summary is the dashboard snapshot.
type Summary struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Kinds       []KindSummary `json:"kinds"`
	Accounts    int64         `json:"active_accounts"`
}
