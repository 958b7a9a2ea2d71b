package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/walletgate/internal/dbx"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/balances"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/users"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/wallets"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Wallets(db dbx.DBTX) wallets.Repository
	Balances(db dbx.DBTX) balances.Repository
	Transactions(db dbx.DBTX) transactions.Repository
}
