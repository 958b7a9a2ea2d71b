package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const addr = "0x1111111111111111111111111111111111111111"

var userCols = []string{"id", "ethereum_address", "username", "name", "role", "status", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func newUser() *models.User {
	return &models.User{
		EthereumAddress: addr,
		UserName:        "user_11111111",
		Name:            "Wallet 0x1111…1111",
		Role:            common.RoleBuyer,
		Status:          common.StatusActive,
	}
}

const insertQ = `(?s)^INSERT\s+INTO\s+users\s*\(ethereum_address,\s*username,\s*name,\s*role,\s*status\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id,\s*created_at,\s*updated_at$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(insertQ).
		WithArgs(addr, "user_11111111", "Wallet 0x1111…1111", common.RoleBuyer, common.StatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(42), now, now))

	got, err := repo.Create(context.Background(), newUser())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 42 || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), newUser())
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), newUser())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

const selectByAddrQ = `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+ethereum_address\s*=\s*\$1$`

func TestGetByAddress_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(selectByAddrQ).
		WithArgs(addr).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(1), addr, "alice", "Alice", "buyer", "active", now, now))

	got, err := repo.GetByAddress(context.Background(), addr)
	if err != nil {
		t.Fatalf("GetByAddress error: %v", err)
	}
	if got.ID != 1 || got.UserName != "alice" || got.EthereumAddress != addr {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetByAddress_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByAddrQ).WithArgs(addr).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByAddress(context.Background(), addr)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(int64(9)).
		WillReturnError(errors.New("db err"))

	_, err := repo.GetByID(context.Background(), 9)
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestTouch_ReturnsFreshRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now().Add(-time.Hour)
	updated := time.Now()
	mock.ExpectQuery(`(?s)^UPDATE\s+users\s+SET\s+updated_at\s*=\s*NOW\(\)\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+id,`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(1), addr, "alice", "Alice", "buyer", "active", created, updated))

	got, err := repo.Touch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	if !got.UpdatedAt.Equal(updated) || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected timestamps: %+v", got)
	}
}
