package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/dbx"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/balances"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/users"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/wallets"
	"github.com/shopspring/decimal"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func expectTx(mock sqlmock.Sqlmock, commit bool) {
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

// memStore is an in-memory stand-in for the four repositories. Fault fields
// let tests inject storage errors and lost races.
type memStore struct {
	mu sync.Mutex

	nextID   int64
	users    map[int64]*models.User
	byAddr   map[string]int64
	wallets  map[int64]*models.Wallet
	balances map[int64]*models.Balance
	txs      []*models.Transaction

	getByAddressErr error
	// createUserErrs are returned by successive Users().Create calls.
	createUserErrs []error
	// raceUser is inserted and reported as a unique violation on the next
	// Users().Create.
	raceUser *models.User
	// raceTx is inserted and reported as a unique violation on the next
	// Transactions().Create.
	raceTx      *models.Transaction
	ensureErr     error
	createTxErr   error
	setBalanceErr error
	listErr       error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*models.User{},
		byAddr:   map[string]int64{},
		wallets:  map[int64]*models.Wallet{},
		balances: map[int64]*models.Balance{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// addUser inserts u directly, bypassing fault injection.
func (s *memStore) addUser(u *models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertUser(u)
	return u
}

func (s *memStore) insertUser(u *models.User) {
	u.ID = s.id()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	s.byAddr[u.EthereumAddress] = u.ID
}

func (s *memStore) balanceOf(userID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[userID]; ok {
		return b.Balance
	}
	return decimal.Zero
}

func (s *memStore) txCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.txs {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.raceUser != nil {
		r.s.insertUser(r.s.raceUser)
		r.s.raceUser = nil
		return nil, common.ErrorAlreadyExists
	}
	if len(r.s.createUserErrs) > 0 {
		err := r.s.createUserErrs[0]
		r.s.createUserErrs = r.s.createUserErrs[1:]
		return nil, err
	}
	if _, ok := r.s.byAddr[u.EthereumAddress]; ok {
		return nil, common.ErrorAlreadyExists
	}
	r.s.insertUser(u)
	return u, nil
}

func (r memUsers) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.getByAddressErr != nil {
		return nil, r.s.getByAddressErr
	}
	id, ok := r.s.byAddr[address]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := *r.s.users[id]
	return &u, nil
}

func (r memUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r memUsers) Touch(ctx context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.UpdatedAt = u.UpdatedAt.Add(time.Second)
	c := *u
	return &c, nil
}

type memWallets struct{ s *memStore }

func (r memWallets) Create(ctx context.Context, w *models.Wallet) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[w.UserID]; !ok {
		return nil, common.ErrUserNotFound
	}
	w.ID = r.s.id()
	r.s.wallets[w.UserID] = w
	return w, nil
}

func (r memWallets) GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return w, nil
}

type memBalances struct{ s *memStore }

func (r memBalances) Ensure(ctx context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.ensureErr != nil {
		return r.s.ensureErr
	}
	if _, ok := r.s.users[userID]; !ok {
		return common.ErrUserNotFound
	}
	if _, ok := r.s.balances[userID]; !ok {
		r.s.balances[userID] = &models.Balance{UserID: userID, Balance: decimal.Zero}
	}
	return nil
}

func (r memBalances) GetForUpdate(ctx context.Context, userID int64) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.balances[userID]
	if !ok {
		return decimal.Zero, common.ErrorNotFound
	}
	return b.Balance, nil
}

func (r memBalances) Set(ctx context.Context, userID int64, balance decimal.Decimal) (*models.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.setBalanceErr != nil {
		return nil, r.s.setBalanceErr
	}
	if balance.Sign() < 0 {
		return nil, common.ErrInsufficientFunds
	}
	b := &models.Balance{UserID: userID, Balance: balance, UpdatedAt: time.Now()}
	r.s.balances[userID] = b
	return b, nil
}

func (r memBalances) Get(ctx context.Context, userID int64) (*models.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.balances[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *b
	return &c, nil
}

type memTransactions struct{ s *memStore }

func (r memTransactions) Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.raceTx != nil {
		r.s.raceTx.ID = r.s.id()
		r.s.txs = append(r.s.txs, r.s.raceTx)
		r.s.raceTx = nil
		return nil, common.ErrorAlreadyExists
	}
	if r.s.createTxErr != nil {
		return nil, r.s.createTxErr
	}
	for _, e := range r.s.txs {
		if e.ExternalRef == t.ExternalRef {
			return nil, common.ErrorAlreadyExists
		}
	}
	t.ID = r.s.id()
	t.CreatedAt = time.Now()
	r.s.txs = append(r.s.txs, t)
	return t, nil
}

func (r memTransactions) FindByExternalRef(ctx context.Context, ref string) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range r.s.txs {
		if t.ExternalRef == ref {
			c := *t
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memTransactions) ListByUser(ctx context.Context, userID int64, page models.Page) ([]*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.listErr != nil {
		return nil, r.s.listErr
	}

	var list []*models.Transaction
	for _, t := range r.s.txs {
		if t.UserID == userID {
			list = append(list, t)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if page.Ascending {
			return list[i].ID < list[j].ID
		}
		return list[i].ID > list[j].ID
	})

	if page.Offset >= len(list) {
		return nil, nil
	}
	list = list[page.Offset:]
	if len(list) > page.Limit {
		list = list[:page.Limit]
	}
	return list, nil
}

func (r memTransactions) SumByUser(ctx context.Context, userID int64) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sum := decimal.Zero
	for _, t := range r.s.txs {
		if t.UserID == userID {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

type fakeRepoManager struct {
	s *memStore
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error     { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository               { return memUsers{m.s} }
func (m *fakeRepoManager) Wallets(db dbx.DBTX) wallets.Repository           { return memWallets{m.s} }
func (m *fakeRepoManager) Balances(db dbx.DBTX) balances.Repository         { return memBalances{m.s} }
func (m *fakeRepoManager) Transactions(db dbx.DBTX) transactions.Repository { return memTransactions{m.s} }
