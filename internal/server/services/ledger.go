package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/dbx"
	"github.com/dmitrijs2005/walletgate/internal/logging"
	"github.com/dmitrijs2005/walletgate/internal/server/config"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Amounts and balances are stored as NUMERIC(38,18).
const amountScale = 18

var maxAmount = decimal.New(1, 38-amountScale)

// LedgerRecorder receives one event per completed ledger movement.
type LedgerRecorder interface {
	RecordLedgerOp(op, outcome string)
}

type nopLedgerRecorder struct{}

func (nopLedgerRecorder) RecordLedgerOp(string, string) {}

// Receipt is the result of a credit or debit. Replayed is set when the
// external reference had already been applied and nothing changed.
type Receipt struct {
	Transaction *models.Transaction `json:"transaction"`
	Balance     decimal.Decimal     `json:"balance"`
	Replayed    bool                `json:"replayed"`
}

// Audit compares the stored balance with the sum of the user's ledger rows.
type Audit struct {
	UserID     int64           `json:"userId"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledgerSum"`
	Consistent bool            `json:"consistent"`
}

// LedgerService moves stable-token balances. Each movement runs as one
// database transaction holding the user's balance row lock, so movements for
// one user serialize and movements for different users do not contend.
type LedgerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	timeout     time.Duration
	logger      logging.Logger
	recorder    LedgerRecorder
}

func NewLedgerService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *LedgerService {
	return &LedgerService{
		db:          db,
		repomanager: m,
		timeout:     cfg.RequestTimeout,
		logger:      logger,
		recorder:    nopLedgerRecorder{},
	}
}

func (s *LedgerService) SetRecorder(r LedgerRecorder) {
	s.recorder = r
}

// Credit mints amount to userID. Replaying externalRef returns the original
// transaction without changing the balance.
func (s *LedgerService) Credit(ctx context.Context, userID int64, amount decimal.Decimal, externalRef string) (*Receipt, error) {
	return s.move(ctx, common.KindCredit, userID, amount, externalRef)
}

// Debit burns amount from userID, refusing to overdraw.
func (s *LedgerService) Debit(ctx context.Context, userID int64, amount decimal.Decimal, externalRef string) (*Receipt, error) {
	return s.move(ctx, common.KindDebit, userID, amount, externalRef)
}

func (s *LedgerService) move(ctx context.Context, kind string, userID int64, amount decimal.Decimal, externalRef string) (*Receipt, error) {
	if !validAmount(amount) {
		s.recorder.RecordLedgerOp(kind, common.CodeInvalidAmount)
		return nil, common.ErrInvalidAmount
	}
	if externalRef == "" {
		s.recorder.RecordLedgerOp(kind, common.CodeInvalidRequest)
		return nil, fmt.Errorf("%w: external reference is required", common.ErrInvalidRequest)
	}

	signed := amount
	if kind == common.KindDebit {
		signed = amount.Neg()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var receipt *Receipt
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		balances := s.repomanager.Balances(tx)
		txs := s.repomanager.Transactions(tx)

		if err := balances.Ensure(ctx, userID); err != nil {
			return err
		}
		current, err := balances.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		existing, err := txs.FindByExternalRef(ctx, externalRef)
		switch {
		case err == nil:
			if !sameMovement(existing, userID, kind, signed) {
				return common.ErrExternalRefConflict
			}
			receipt = &Receipt{Transaction: existing, Balance: current, Replayed: true}
			return nil
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		next := current.Add(signed)
		if next.Sign() < 0 {
			return common.ErrInsufficientFunds
		}
		if next.Cmp(maxAmount) >= 0 {
			return common.ErrInvalidAmount
		}

		created, err := txs.Create(ctx, &models.Transaction{
			UserID:      userID,
			Amount:      signed,
			Kind:        kind,
			ExternalRef: externalRef,
		})
		if err != nil {
			return err
		}

		b, err := balances.Set(ctx, userID, next)
		if err != nil {
			return err
		}

		receipt = &Receipt{Transaction: created, Balance: b.Balance}
		return nil
	})

	// The same reference committed by a concurrent call on another user's
	// row lock: report the winner.
	if errors.Is(err, common.ErrorAlreadyExists) {
		receipt, err = s.replay(ctx, kind, userID, signed, externalRef)
	}

	if err != nil {
		err = ledgerError(err)
		s.recorder.RecordLedgerOp(kind, common.ErrorCode(err))
		if errors.Is(err, common.ErrStorageUnavailable) {
			s.logger.Error(ctx, "ledger movement failed", "kind", kind, "user_id", userID, "external_ref", externalRef, "error", err)
		}
		return nil, err
	}

	outcome := "applied"
	if receipt.Replayed {
		outcome = "replayed"
	}
	s.recorder.RecordLedgerOp(kind, outcome)
	s.logger.Info(ctx, "ledger movement", "kind", kind, "user_id", userID, "amount", amount.String(),
		"external_ref", externalRef, "outcome", outcome, "balance", receipt.Balance.String())

	return receipt, nil
}

func (s *LedgerService) replay(ctx context.Context, kind string, userID int64, signed decimal.Decimal, externalRef string) (*Receipt, error) {
	existing, err := s.repomanager.Transactions(s.db).FindByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if !sameMovement(existing, userID, kind, signed) {
		return nil, common.ErrExternalRefConflict
	}
	b, err := s.repomanager.Balances(s.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Receipt{Transaction: existing, Balance: b.Balance, Replayed: true}, nil
}

// BalanceOf returns the user's balance; a known user without movements has a
// zero balance.
func (s *LedgerService) BalanceOf(ctx context.Context, userID int64) (*models.Balance, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b, err := s.repomanager.Balances(s.db).Get(ctx, userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, ledgerError(err)
	}

	if _, err := s.repomanager.Users(s.db).GetByID(ctx, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, ledgerError(err)
	}
	return &models.Balance{UserID: userID, Balance: decimal.Zero}, nil
}

// Transactions lists a page of the user's ledger, newest first unless
// page.Ascending is set.
func (s *LedgerService) Transactions(ctx context.Context, userID int64, page models.Page) ([]*models.Transaction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	page = normalizePage(page)
	list, err := s.repomanager.Transactions(s.db).ListByUser(ctx, userID, page)
	if err != nil {
		return nil, ledgerError(err)
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	return list, nil
}

// Audit checks that the stored balance equals the sum of ledger rows.
func (s *LedgerService) Audit(ctx context.Context, userID int64) (*Audit, error) {
	b, err := s.BalanceOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sum, err := s.repomanager.Transactions(s.db).SumByUser(ctx, userID)
	if err != nil {
		return nil, ledgerError(err)
	}

	a := &Audit{UserID: userID, Balance: b.Balance, LedgerSum: sum, Consistent: b.Balance.Equal(sum)}
	if !a.Consistent {
		s.logger.Warn(ctx, "balance drift", "user_id", userID, "balance", b.Balance.String(), "ledger_sum", sum.String())
	}
	return a, nil
}

func (s *LedgerService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func normalizePage(p models.Page) models.Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// validAmount reports whether amount is positive and fits the storage column
// without rounding.
func validAmount(amount decimal.Decimal) bool {
	if amount.Sign() <= 0 || amount.Cmp(maxAmount) >= 0 {
		return false
	}
	return amount.Equal(amount.Truncate(amountScale))
}

func sameMovement(t *models.Transaction, userID int64, kind string, signed decimal.Decimal) bool {
	return t.UserID == userID && t.Kind == kind && t.Amount.Equal(signed)
}

var ledgerErrors = []error{
	common.ErrUserNotFound,
	common.ErrInsufficientFunds,
	common.ErrExternalRefConflict,
	common.ErrInvalidAmount,
}

// ledgerError keeps domain errors and folds everything else into
// common.ErrStorageUnavailable.
func ledgerError(err error) error {
	for _, known := range ledgerErrors {
		if errors.Is(err, known) {
			return known
		}
	}
	return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
}
