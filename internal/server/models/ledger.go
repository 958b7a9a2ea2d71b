package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the denormalized stable-token balance of one user. It always
// equals the sum of that user's Transaction amounts.
type Balance struct {
	UserID    int64           `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Transaction is one append-only ledger movement. Amount is signed:
// positive for credits, negative for debits.
type Transaction struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	ExternalRef string          `json:"externalRef"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Page selects a window of a user's transactions.
type Page struct {
	Limit     int
	Offset    int
	Ascending bool
}
