package vouchers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook/tallybook/internal/money"
)

func debit(code string, cents int64) LineInput {
	return LineInput{AccountCode: code, Debit: money.FromCents(cents)}
}

func credit(code string, cents int64) LineInput {
	return LineInput{AccountCode: code, Credit: money.FromCents(cents)}
}

func TestValidateLineShapes(t *testing.T) {
	t.Run("accepts unbalanced drafts", func(t *testing.T) {
		lines := []LineInput{debit("expense-RENT", 10000)}
		assert.NoError(t, ValidateLineShapes(lines))
	})

	t.Run("rejects mixed line", func(t *testing.T) {
		lines := []LineInput{{AccountCode: "asset-CASH", Debit: 100, Credit: 100}}
		assert.ErrorIs(t, ValidateLineShapes(lines), ErrMixedLine)
	})

	t.Run("rejects empty line", func(t *testing.T) {
		lines := []LineInput{{AccountCode: "asset-CASH"}}
		assert.ErrorIs(t, ValidateLineShapes(lines), ErrEmptyLine)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		lines := []LineInput{{AccountCode: "asset-CASH", Debit: -5}}
		assert.ErrorIs(t, ValidateLineShapes(lines), ErrNegativeLine)
	})

	t.Run("rejects blank account code", func(t *testing.T) {
		lines := []LineInput{{AccountCode: "   ", Debit: 100}}
		assert.ErrorIs(t, ValidateLineShapes(lines), ErrEmptyLine)
	})
}

func TestValidatePosting(t *testing.T) {
	t.Run("balanced pair passes", func(t *testing.T) {
		lines := []LineInput{
			debit("expense-RENT", 10000),
			credit("asset-CASH", 10000),
		}
		assert.NoError(t, ValidatePosting(lines))
	})

	t.Run("cash against vendor payable", func(t *testing.T) {
		lines := []LineInput{
			debit("asset-CASH", 10000),
			credit("liability-AP-VEND01", 10000),
		}
		assert.NoError(t, ValidatePosting(lines))
		assert.Equal(t, money.FromCents(10000), TotalDebit(lines))
	})

	t.Run("cash against short payable fails", func(t *testing.T) {
		lines := []LineInput{
			debit("asset-CASH", 10000),
			credit("liability-AP", 9000),
		}
		assert.ErrorIs(t, ValidatePosting(lines), ErrUnbalanced)
	})

	t.Run("unbalanced fails", func(t *testing.T) {
		lines := []LineInput{
			debit("expense-RENT", 10000),
			credit("asset-CASH", 9000),
		}
		assert.ErrorIs(t, ValidatePosting(lines), ErrUnbalanced)
	})

	t.Run("one cent off fails", func(t *testing.T) {
		lines := []LineInput{
			debit("expense-RENT", 10000),
			credit("asset-CASH", 9999),
		}
		assert.ErrorIs(t, ValidatePosting(lines), ErrUnbalanced)
	})

	t.Run("single line fails", func(t *testing.T) {
		lines := []LineInput{debit("expense-RENT", 10000)}
		assert.ErrorIs(t, ValidatePosting(lines), ErrTooFewLines)
	})

	t.Run("no lines fails", func(t *testing.T) {
		assert.ErrorIs(t, ValidatePosting(nil), ErrTooFewLines)
	})
}

// Randomized balanced sets must always validate: split a total into n
// debit lines and m credit lines that each sum to the same amount.
func TestValidatePostingRandomBalancedSets(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		total := rng.Int63n(1_000_000) + 2
		lines := append(
			splitLines(rng, total, rng.Intn(5)+1, true),
			splitLines(rng, total, rng.Intn(5)+1, false)...,
		)
		require.NoError(t, ValidatePosting(lines), "trial %d total %d", trial, total)

		// Perturbing any single line by one cent must break it.
		lines[0].Debit++
		require.ErrorIs(t, ValidatePosting(lines), ErrUnbalanced)
	}
}

func splitLines(rng *rand.Rand, total int64, n int, isDebit bool) []LineInput {
	lines := make([]LineInput, 0, n)
	remaining := total
	for i := 0; i < n; i++ {
		var amount int64
		if i == n-1 {
			amount = remaining
		} else {
			amount = rng.Int63n(remaining-int64(n-i-1)) + 1
			remaining -= amount
		}
		line := LineInput{AccountCode: "asset-CASH"}
		if isDebit {
			line.Debit = money.FromCents(amount)
		} else {
			line.Credit = money.FromCents(amount)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestTotalDebit(t *testing.T) {
	lines := []LineInput{
		debit("expense-RENT", 7000),
		debit("expense-SUPPLIES", 3000),
		credit("asset-CASH", 10000),
	}
	assert.Equal(t, money.FromCents(10000), TotalDebit(lines))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusPosted))
	assert.True(t, CanTransition(StatusDraft, StatusVoided))
	assert.True(t, CanTransition(StatusPosted, StatusVoided))
	assert.False(t, CanTransition(StatusPosted, StatusDraft))
	assert.False(t, CanTransition(StatusVoided, StatusDraft))
	assert.False(t, CanTransition(StatusVoided, StatusPosted))
	assert.False(t, CanTransition(StatusVoided, StatusVoided))
}
