package balances

import (
	"context"

	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Ensure creates a zero balance row for userID if none exists.
	Ensure(ctx context.Context, userID int64) error
	// GetForUpdate reads the balance and holds a row lock until the
	// surrounding transaction ends. Only meaningful inside dbx.WithTx.
	GetForUpdate(ctx context.Context, userID int64) (decimal.Decimal, error)
	Set(ctx context.Context, userID int64, balance decimal.Decimal) (*models.Balance, error)
	Get(ctx context.Context, userID int64) (*models.Balance, error)
}
