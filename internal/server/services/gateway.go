package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/logging"
	"github.com/dmitrijs2005/walletgate/internal/server/config"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/dmitrijs2005/walletgate/internal/server/siwex"
)

// Stage is a login state. Every login starts at StageReceived and ends at
// StageCompleted or StageRejected.
type Stage string

const (
	StageReceived          Stage = "received"
	StageRateChecked       Stage = "rate_checked"
	StageSignatureVerified Stage = "signature_verified"
	StageIdentityResolved  Stage = "identity_resolved"
	StageCompleted         Stage = "completed"
	StageRejected          Stage = "rejected"
)

type Verifier interface {
	Verify(message, signature string) (*siwex.VerifiedIdentity, error)
}

type Limiter interface {
	Take(key string) error
}

type Resolver interface {
	ResolveWallet(ctx context.Context, address string, chainID int) (*models.User, error)
	IssueToken(user *models.User) (string, error)
}

type LoginRecorder interface {
	RecordLogin(outcome string)
}

type nopLoginRecorder struct{}

func (nopLoginRecorder) RecordLogin(string) {}

type LoginRequest struct {
	Message   string
	Signature string
	RemoteIP  string
}

type LoginResult struct {
	Token    string             `json:"token"`
	User     *models.PublicUser `json:"user"`
	Bypassed bool               `json:"-"`
}

// RejectionError reports a failed login. Stage is the last state the login
// reached before it was rejected.
type RejectionError struct {
	Stage Stage
	Err   error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("login rejected after %s: %v", e.Stage, e.Err)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// AuthGateway runs the login sequence: rate check, signature verification,
// identity resolution and token issue, in that order.
type AuthGateway struct {
	verifier    Verifier
	limiter     Limiter
	resolver    Resolver
	logger      logging.Logger
	recorder    LoginRecorder
	blockBanned bool
	perIP       bool
	timeout     time.Duration
}

func NewAuthGateway(v Verifier, l Limiter, r Resolver, cfg *config.Config, logger logging.Logger) *AuthGateway {
	return &AuthGateway{
		verifier:    v,
		limiter:     l,
		resolver:    r,
		logger:      logger,
		recorder:    nopLoginRecorder{},
		blockBanned: cfg.BlockBannedLogin,
		perIP:       cfg.RateLimitPerIP,
		timeout:     cfg.RequestTimeout,
	}
}

func (g *AuthGateway) SetRecorder(r LoginRecorder) {
	g.recorder = r
}

// RateLimitKeys returns the limiter keys a login request counts against.
func (g *AuthGateway) RateLimitKeys(req LoginRequest) []string {
	var keys []string
	if addr, ok := siwex.ClaimedAddress(req.Message); ok {
		keys = append(keys, addr)
	}
	if len(keys) == 0 || g.perIP {
		keys = append(keys, ipKey(req.RemoteIP))
	}
	return keys
}

func ipKey(ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func (g *AuthGateway) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	stage := StageReceived
	g.logger.Debug(ctx, "login", "stage", stage, "remote_ip", req.RemoteIP)

	for _, key := range g.RateLimitKeys(req) {
		if err := g.limiter.Take(key); err != nil {
			return nil, g.reject(ctx, stage, err, "key", key)
		}
	}
	stage = g.advance(ctx, StageRateChecked)

	identity, err := g.verifier.Verify(req.Message, req.Signature)
	if err != nil {
		return nil, g.reject(ctx, stage, err)
	}
	stage = g.advance(ctx, StageSignatureVerified, "address", identity.Address, "bypassed", identity.Bypassed)

	user, err := g.resolver.ResolveWallet(ctx, identity.Address, identity.ChainID)
	if err != nil {
		return nil, g.reject(ctx, stage, err, "address", identity.Address)
	}
	stage = g.advance(ctx, StageIdentityResolved, "user_id", user.ID)

	if g.blockBanned && user.Status == common.StatusBanned {
		return nil, g.reject(ctx, stage, common.ErrUserBanned, "user_id", user.ID)
	}

	token, err := g.resolver.IssueToken(user)
	if err != nil {
		return nil, g.reject(ctx, stage, fmt.Errorf("%w: %v", common.ErrorInternal, err), "user_id", user.ID)
	}

	g.advance(ctx, StageCompleted, "user_id", user.ID)
	g.recorder.RecordLogin("success")
	g.logger.Info(ctx, "login succeeded", "user_id", user.ID, "address", user.EthereumAddress, "bypassed", identity.Bypassed)

	return &LoginResult{Token: token, User: user.Public(), Bypassed: identity.Bypassed}, nil
}

func (g *AuthGateway) advance(ctx context.Context, to Stage, args ...any) Stage {
	g.logger.Debug(ctx, "login", append([]any{"stage", to}, args...)...)
	return to
}

func (g *AuthGateway) reject(ctx context.Context, stage Stage, err error, args ...any) error {
	code := common.ErrorCode(err)
	g.recorder.RecordLogin(code)

	args = append([]any{"stage", StageRejected, "after", stage, "code", code, "error", err}, args...)
	if errors.Is(err, common.ErrStorageUnavailable) || code == common.CodeInternal {
		g.logger.Error(ctx, "login", args...)
	} else {
		g.logger.Warn(ctx, "login", args...)
	}

	return &RejectionError{Stage: stage, Err: err}
}
