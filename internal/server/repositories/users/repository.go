package users

import (
	"context"

	"github.com/dmitrijs2005/walletgate/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills in its id and timestamps. A second user
	// for the same address yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByAddress(ctx context.Context, address string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// Touch bumps updated_at and returns the refreshed row.
	Touch(ctx context.Context, id int64) (*models.User, error)
}
