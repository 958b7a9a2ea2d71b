// Package transactions stores the append-only stable-token ledger.
package transactions

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

func (r *PostgresRepository) Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	query :=
		`INSERT INTO stabletoken_transactions (user_id, amount, kind, external_ref)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, t.UserID, t.Amount, t.Kind, t.ExternalRef).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		switch {
		case dbx.IsUniqueViolation(err):
			return nil, common.ErrorAlreadyExists
		case dbx.IsForeignKeyViolation(err):
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) FindByExternalRef(ctx context.Context, ref string) (*models.Transaction, error) {
	query :=
		`SELECT id, user_id, amount, kind, external_ref, created_at
		 FROM stabletoken_transactions
		 WHERE external_ref = $1`

	t := &models.Transaction{}
	err := r.db.QueryRowContext(ctx, query, ref).
		Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.ExternalRef, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, page models.Page) ([]*models.Transaction, error) {
	order := "DESC"
	if page.Ascending {
		order = "ASC"
	}

	query :=
		`SELECT id, user_id, amount, kind, external_ref, created_at
		 FROM stabletoken_transactions
		 WHERE user_id = $1
		 ORDER BY id ` + order + `
		 LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Transaction
	for rows.Next() {
		t := &models.Transaction{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.ExternalRef, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) SumByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	query :=
		`SELECT COALESCE(SUM(amount), 0) FROM stabletoken_transactions
		 WHERE user_id = $1`

	var sum decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("db error: %w", err)
	}
	return sum, nil
}
