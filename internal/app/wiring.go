package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/authgate/internal/account"
	"github.com/odyssey-erp/authgate/internal/authn"
	"github.com/odyssey-erp/authgate/internal/credentials"
	"github.com/odyssey-erp/authgate/internal/observability"
	"github.com/odyssey-erp/authgate/internal/platform/db"
	"github.com/odyssey-erp/authgate/internal/shared"
	"github.com/odyssey-erp/authgate/internal/users"
	"github.com/odyssey-erp/authgate/jobs"
)

// Seed account available with the memory driver.
const (
	SeedUserName     = "Test User"
	SeedUserEmail    = "test@example.org"
	SeedUserPassword = "test123"
)

// Stores bundles the user directory and credential store selected by
// STORE_DRIVER.
type Stores struct {
	Users       users.UserAPI
	Credentials credentials.Store
	Pool        *pgxpool.Pool
}

// Close releases the database pool, if any.
func (s Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStores connects the configured store driver. Credential access goes
// through a pool of at most CREDENTIAL_WORKERS concurrent operations.
func OpenStores(ctx context.Context, cfg *Config, logger *slog.Logger) (Stores, error) {
	switch cfg.StoreDriver {
	case "memory":
		directory := users.NewMemoryStore()
		store := credentials.NewMemoryStore(directory)
		if err := SeedMemory(ctx, store, bcrypt.DefaultCost); err != nil {
			return Stores{}, err
		}
		logger.Warn("using in-memory stores", slog.String("seed_user", SeedUserEmail))
		return Stores{
			Users:       directory,
			Credentials: credentials.NewBounded(store, cfg.CredentialWorkers),
		}, nil
	case "postgres":
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return Stores{}, err
		}
		if cfg.PGMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return Stores{}, err
			}
		}
		return Stores{
			Users:       users.NewRepository(pool),
			Credentials: credentials.NewBounded(credentials.NewPGStore(pool), cfg.CredentialWorkers),
			Pool:        pool,
		}, nil
	default:
		return Stores{}, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
}

// SeedMemory registers the seed account in store.
func SeedMemory(ctx context.Context, store credentials.Store, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedUserPassword), cost)
	if err != nil {
		return fmt.Errorf("app: hash seed password: %w", err)
	}
	_, _, err = store.CreateUserWithCredentials(ctx,
		users.User{Name: SeedUserName, Email: SeedUserEmail},
		credentials.Credentials{Password: string(hash)})
	if err != nil && !errors.Is(err, shared.ErrDuplicate) {
		return fmt.Errorf("app: seed user: %w", err)
	}
	return nil
}

// HandlerDeps lists what NewHandler needs to assemble the HTTP surface.
type HandlerDeps struct {
	Config         *Config
	Logger         *slog.Logger
	Stores         Stores
	SessionManager *shared.SessionManager
	Metrics        *observability.Metrics
	Recorder       authn.LoginRecorder
	JobHandler     *jobs.Handler
	BcryptCost     int
}

// NewHandler builds the auth middleware, route handlers and router.
func NewHandler(deps HandlerDeps) (http.Handler, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := cfg.DefaultPolicy()
	if err != nil {
		return nil, err
	}
	rules, err := cfg.PathRules()
	if err != nil {
		return nil, err
	}

	var tokens *authn.TokenIssuer
	builder := authn.NewBuilder().
		Rules(rules...).
		DefaultPolicy(policy).
		Extractor(authn.SessionExtractor{}).
		Logger(logger).
		Observer(deps.Metrics)
	if cfg.AuthTokenSecret != "" {
		tokens = authn.NewTokenIssuer(cfg.AuthTokenSecret, cfg.AuthTokenTTL)
		builder.Extractor(tokens)
	}
	gate, err := builder.Build()
	if err != nil {
		return nil, err
	}

	api := authn.NewCredentialAuthenticator(deps.Stores.Credentials, logger)
	authHandler := authn.NewHandler(logger, authn.NewService(deps.Stores.Users, api), deps.SessionManager, authn.HandlerConfig{
		Tokens:   tokens,
		Recorder: deps.Recorder,
		Observer: deps.Metrics,
	})
	accountHandler := account.NewHandler(account.NewService(deps.Stores.Credentials, deps.BcryptCost, logger), logger)

	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: deps.SessionManager,
		Auth:           gate,
		AuthHandler:    authHandler,
		AccountHandler: accountHandler,
		JobHandler:     deps.JobHandler,
		Metrics:        deps.Metrics,
	}), nil
}
