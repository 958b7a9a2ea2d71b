package balances

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

const ensureQ = `(?s)^INSERT\s+INTO\s+stabletoken_balances\s*\(user_id,\s*balance\)\s*VALUES\s*\(\$1,\s*0\)\s*ON\s+CONFLICT\s*\(user_id\)\s*DO\s+NOTHING$`

func TestEnsure(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(ensureQ).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(ensureQ).WithArgs(int64(2)).WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectExec(ensureQ).WithArgs(int64(3)).WillReturnError(errors.New("boom"))

	assert.NoError(t, repo.Ensure(context.Background(), 1))
	assert.ErrorIs(t, repo.Ensure(context.Background(), 2), common.ErrUserNotFound)
	assert.ErrorContains(t, repo.Ensure(context.Background(), 3), "db error: boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+balance\s+FROM\s+stabletoken_balances\s+WHERE\s+user_id\s*=\s*\$1\s+FOR\s+UPDATE$`
	mock.ExpectQuery(q).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("100.50"))
	mock.ExpectQuery(q).WithArgs(int64(2)).WillReturnError(sql.ErrNoRows)

	got, err := repo.GetForUpdate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("100.5")), "got %s", got)

	_, err = repo.GetForUpdate(context.Background(), 2)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^UPDATE\s+stabletoken_balances\s+SET\s+balance\s*=\s*\$2,\s*updated_at\s*=\s*NOW\(\)\s+WHERE\s+user_id\s*=\s*\$1\s+RETURNING\s+user_id,\s*balance,\s*updated_at$`
	mock.ExpectQuery(q).WithArgs(int64(1), decimal.NewFromInt(75)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "updated_at"}).AddRow(int64(1), "75", now))
	mock.ExpectQuery(q).WithArgs(int64(1), decimal.NewFromInt(-1)).
		WillReturnError(&pgconn.PgError{Code: "23514"})

	b, err := repo.Set(context.Background(), 1, decimal.NewFromInt(75))
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(75)))
	assert.True(t, b.UpdatedAt.Equal(now))

	_, err = repo.Set(context.Background(), 1, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, common.ErrInsufficientFunds)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+user_id,\s*balance,\s*updated_at\s+FROM\s+stabletoken_balances`).
		WithArgs(int64(4)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 4)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
