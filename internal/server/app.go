// Package server initializes and runs the walletgate server. It opens the
// database, applies migrations, seeds demo users when the test-address
// bypass is active, wires the login gate and the ledger, and serves HTTP
// until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/logging"
	"github.com/dmitrijs2005/walletgate/internal/server/config"
	"github.com/dmitrijs2005/walletgate/internal/server/httpapi"
	"github.com/dmitrijs2005/walletgate/internal/server/metrics"
	"github.com/dmitrijs2005/walletgate/internal/server/ratelimit"
	"github.com/dmitrijs2005/walletgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/walletgate/internal/server/services"
	"github.com/dmitrijs2005/walletgate/internal/server/siwex"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	identity *services.IdentityResolver
	ledger   *services.LedgerService
	gateway  *services.AuthGateway
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return newApp(ctx, c, db, rm, logger)
}

func newApp(ctx context.Context, c *config.Config, db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) (*App, error) {
	m := metrics.New()

	if c.SecretKey == "" {
		secret, err := common.MakeRandHexString(32)
		if err != nil {
			return nil, fmt.Errorf("secret init error: %w", err)
		}
		c.SecretKey = secret
		logger.Warn(ctx, "no secret key configured, sessions will not survive a restart")
	}

	identity := services.NewIdentityResolver(db, rm, c, logger.With("module", "identity"))
	ledger := services.NewLedgerService(db, rm, c, logger.With("module", "ledger"))
	ledger.SetRecorder(m)

	opts := []siwex.Option{}
	if c.BypassEnabled() {
		opts = append(opts, siwex.WithBypass(siwex.DemoAddresses...))
		logger.Warn(ctx, "test-address bypass is enabled", "profile", c.Profile)

		if err := identity.Seed(ctx, services.DemoUsers()); err != nil {
			return nil, fmt.Errorf("seed error: %w", err)
		}
	}
	verifier := siwex.NewVerifier(c.Domain, opts...)

	limiter := ratelimit.New(c.RateLimitMaxAttempts, c.RateLimitWindow)

	gateway := services.NewAuthGateway(verifier, limiter, identity, c, logger.With("module", "gateway"))
	gateway.SetRecorder(m)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		identity: identity,
		ledger:   ledger,
		gateway:  gateway,
		limiter:  limiter,
		metrics:  m,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) httpServer() *httpapi.Server {
	return httpapi.NewServer(app.config, httpapi.Services{
		Gateway: app.gateway,
		Ledger:  app.ledger,
		Tokens:  app.identity,
		Limiter: app.limiter,
		DB:      app.db,
	}, app.metrics, app.logger)
}

// Run serves until ctx is cancelled or the process receives a termination
// signal, then closes the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "domain", app.config.Domain, "bypass", app.config.BypassEnabled())

	app.initSignalHandler(cancelFunc)

	err := app.httpServer().Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "http server", "error", err)
	}

	if cerr := app.db.Close(); cerr != nil {
		app.logger.Error(ctx, "db close", "error", cerr)
	}

	app.logger.Info(ctx, "App stopped")
	return err
}
