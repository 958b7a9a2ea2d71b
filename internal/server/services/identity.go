// Package services contains server-side business logic. This file implements
// IdentityResolver, which maps a verified wallet address to exactly one user
// and issues session tokens for it.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/dbx"
	"github.com/dmitrijs2005/walletgate/internal/logging"
	"github.com/dmitrijs2005/walletgate/internal/server/auth"
	"github.com/dmitrijs2005/walletgate/internal/server/config"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/repomanager"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// DefaultChainID is recorded for wallets whose sign-in carried no chain id.
const DefaultChainID = 1

// maxResolveAttempts bounds the re-fetch loop after losing a first-login race.
const maxResolveAttempts = 3

type IdentityResolver struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	jwtSecret     []byte
	tokenValidity time.Duration
	logger        logging.Logger
}

func NewIdentityResolver(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *IdentityResolver {
	return &IdentityResolver{
		db:            db,
		repomanager:   m,
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.SessionTokenValidityDuration,
		logger:        logger,
	}
}

// NewWalletUser returns the default profile for a first-time address. address
// must be a 0x-prefixed 40-digit hex address.
func NewWalletUser(address string) *models.User {
	address = strings.ToLower(address)
	return &models.User{
		EthereumAddress: address,
		UserName:        "user_" + address[2:10],
		Name:            "Wallet " + address[:6] + "…" + address[len(address)-4:],
		Role:            common.RoleBuyer,
		Status:          common.StatusActive,
	}
}

// Resolve returns the user owning address, creating it on first sight.
func (s *IdentityResolver) Resolve(ctx context.Context, address string) (*models.User, error) {
	return s.ResolveWallet(ctx, address, DefaultChainID)
}

// ResolveWallet is Resolve with the chain the wallet signed in on. A
// concurrent first login for the same address converges on one row: the
// loser sees a unique violation and re-reads.
func (s *IdentityResolver) ResolveWallet(ctx context.Context, address string, chainID int) (*models.User, error) {
	if !ethcommon.IsHexAddress(address) || !strings.HasPrefix(strings.ToLower(address), "0x") {
		return nil, fmt.Errorf("%w: not an ethereum address", common.ErrInvalidRequest)
	}
	address = strings.ToLower(address)
	if chainID <= 0 {
		chainID = DefaultChainID
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		user, err := s.resolveOnce(ctx, NewWalletUser(address), chainID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, common.ErrorAlreadyExists) {
			s.logger.Error(ctx, "identity resolution failed", "address", address, "error", err)
			return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
		}
		s.logger.Debug(ctx, "lost first-login race, re-fetching", "address", address, "attempt", attempt)
	}

	s.logger.Error(ctx, "identity resolution did not converge", "address", address)
	return nil, common.ErrStorageUnavailable
}

func (s *IdentityResolver) resolveOnce(ctx context.Context, profile *models.User, chainID int) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByAddress(ctx, profile.EthereumAddress)
	if err == nil {
		return repo.Touch(ctx, user.ID)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if err := s.create(ctx, profile, chainID); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user created", "user_id", profile.ID, "address", profile.EthereumAddress)
	return profile, nil
}

// create inserts the user and its wallet row in one transaction.
func (s *IdentityResolver) create(ctx context.Context, user *models.User, chainID int) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			return err
		}
		wallet := &models.Wallet{UserID: user.ID, Address: user.EthereumAddress, ChainID: chainID}
		if _, err := s.repomanager.Wallets(tx).Create(ctx, wallet); err != nil {
			return err
		}
		return nil
	})
}

// IssueToken mints a session token for user. The token carries the user id
// only and is independent of the signed sign-in message.
func (s *IdentityResolver) IssueToken(user *models.User) (string, error) {
	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.tokenValidity)
	if err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}
	return token, nil
}

// UpsertAndIssueToken resolves address and issues a token for the result.
// It does not look at the user's status.
func (s *IdentityResolver) UpsertAndIssueToken(ctx context.Context, address string) (string, *models.PublicUser, error) {
	user, err := s.Resolve(ctx, address)
	if err != nil {
		return "", nil, err
	}
	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user.Public(), nil
}

// UserIDFromToken validates a session token and returns its user id.
func (s *IdentityResolver) UserIDFromToken(token string) (int64, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}

// Seed creates each of users (with a wallet row) unless its address is
// already taken. Existing users are left unchanged.
func (s *IdentityResolver) Seed(ctx context.Context, users []*models.User) error {
	for _, u := range users {
		u.EthereumAddress = strings.ToLower(u.EthereumAddress)

		_, err := s.repomanager.Users(s.db).GetByAddress(ctx, u.EthereumAddress)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error looking up %s: %w", u.UserName, err)
		}

		if err := s.create(ctx, u, DefaultChainID); err != nil && !errors.Is(err, common.ErrorAlreadyExists) {
			return fmt.Errorf("error seeding %s: %w", u.UserName, err)
		}
		s.logger.Info(ctx, "seeded user", "username", u.UserName, "role", u.Role, "address", u.EthereumAddress)
	}
	return nil
}
