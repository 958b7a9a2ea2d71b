// Package httpapi exposes the login gate and the ledger over HTTP/JSON.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/logging"
	"github.com/dmitrijs2005/walletgate/internal/server/config"
	"github.com/dmitrijs2005/walletgate/internal/server/metrics"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/dmitrijs2005/walletgate/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const shutdownTimeout = 10 * time.Second

type Gateway interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
}

type Ledger interface {
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, externalRef string) (*services.Receipt, error)
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, externalRef string) (*services.Receipt, error)
	BalanceOf(ctx context.Context, userID int64) (*models.Balance, error)
	Transactions(ctx context.Context, userID int64, page models.Page) ([]*models.Transaction, error)
	Audit(ctx context.Context, userID int64) (*services.Audit, error)
}

type TokenValidator interface {
	UserIDFromToken(token string) (int64, error)
}

type LimitResetter interface {
	Reset(keys ...string)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services bundles what the HTTP layer calls into.
type Services struct {
	Gateway Gateway
	Ledger  Ledger
	Tokens  TokenValidator
	Limiter LimitResetter
	DB      Pinger
}

type Server struct {
	address       string
	profile       string
	webhookSecret []byte
	gateway       Gateway
	ledger        Ledger
	tokens        TokenValidator
	limiter       LimitResetter
	db            Pinger
	metrics       *metrics.Metrics
	throttle      *throttle
	logger        logging.Logger
}

func NewServer(cfg *config.Config, svc Services, m *metrics.Metrics, l logging.Logger) *Server {
	s := &Server{
		address:       cfg.EndpointAddrHTTP,
		profile:       cfg.Profile,
		webhookSecret: []byte(cfg.WebhookSecret),
		gateway:       svc.Gateway,
		ledger:        svc.Ledger,
		tokens:        svc.Tokens,
		limiter:       svc.Limiter,
		db:            svc.DB,
		metrics:       m,
		logger:        l.With("module", "http_server"),
	}
	if cfg.HTTPRequestsPerSecond > 0 {
		s.throttle = newThrottle(cfg.HTTPRequestsPerSecond, cfg.HTTPBurst)
	}
	return s
}

// Router builds the route table with all middleware applied.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.loggingMiddleware, s.metricsMiddleware, s.throttleMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login/siwe", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/payments", s.handlePaymentWebhook).Methods(http.MethodPost)

	wallet := api.PathPrefix("/wallet").Subrouter()
	wallet.Use(s.bearerAuth)
	wallet.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)
	wallet.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	wallet.HandleFunc("/debit", s.handleDebit).Methods(http.MethodPost)
	wallet.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)

	if s.profile != common.ProfileProduction {
		api.HandleFunc("/test/reset-rate-limit", s.handleResetRateLimit).Methods(http.MethodPost)
	}

	return r
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String(), "profile", s.profile)

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
