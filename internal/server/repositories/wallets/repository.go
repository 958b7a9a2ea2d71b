package wallets

import (
	"context"

	"github.com/dmitrijs2005/walletgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error)
}
