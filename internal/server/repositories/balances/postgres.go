// Package balances stores the denormalized per-user stable-token balance.
package balances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/dbx"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/shopspring/decimal"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Ensure(ctx context.Context, userID int64) error {
	query :=
		`INSERT INTO stabletoken_balances (user_id, balance)
		 VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID int64) (decimal.Decimal, error) {
	query :=
		`SELECT balance FROM stabletoken_balances
		 WHERE user_id = $1
		 FOR UPDATE`

	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, common.ErrorNotFound
		}
		return decimal.Zero, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

func (r *PostgresRepository) Set(ctx context.Context, userID int64, balance decimal.Decimal) (*models.Balance, error) {
	query :=
		`UPDATE stabletoken_balances SET balance = $2, updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING user_id, balance, updated_at`

	return scanBalance(r.db.QueryRowContext(ctx, query, userID, balance))
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64) (*models.Balance, error) {
	query :=
		`SELECT user_id, balance, updated_at FROM stabletoken_balances
		 WHERE user_id = $1`

	return scanBalance(r.db.QueryRowContext(ctx, query, userID))
}

func scanBalance(row *sql.Row) (*models.Balance, error) {
	b := &models.Balance{}
	if err := row.Scan(&b.UserID, &b.Balance, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if dbx.PgCode(err) == dbx.CodeCheckViolation {
			return nil, common.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return b, nil
}
