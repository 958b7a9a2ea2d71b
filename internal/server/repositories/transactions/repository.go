package transactions

import (
	"context"

	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Create appends a ledger row. A reused external reference yields
	// common.ErrorAlreadyExists; an unknown user yields common.ErrUserNotFound.
	Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	FindByExternalRef(ctx context.Context, ref string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID int64, page models.Page) ([]*models.Transaction, error)
	SumByUser(ctx context.Context, userID int64) (decimal.Decimal, error)
}
