package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/dbx"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	query :=
		`INSERT INTO wallets (user_id, address, chain_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, wallet.UserID, wallet.Address, wallet.ChainID).
		Scan(&wallet.ID, &wallet.CreatedAt)
	if err != nil {
		switch {
		case dbx.IsUniqueViolation(err):
			return nil, common.ErrorAlreadyExists
		case dbx.IsForeignKeyViolation(err):
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return wallet, nil
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	query :=
		`SELECT id, user_id, address, chain_id, created_at FROM wallets
		 WHERE user_id = $1`

	w := &models.Wallet{}
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&w.ID, &w.UserID, &w.Address, &w.ChainID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return w, nil
}
