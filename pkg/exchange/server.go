// Package exchange implements app.Runner for the exchange core process.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apphttp "github.com/custodia/exchange-middleware/pkg/app/http"
	"github.com/custodia/exchange-middleware/pkg/config"
	"github.com/custodia/exchange-middleware/pkg/deposit"
	"github.com/custodia/exchange-middleware/pkg/ethereum"
	"github.com/custodia/exchange-middleware/pkg/ledger"
	"github.com/custodia/exchange-middleware/pkg/pgutil"
	"github.com/custodia/exchange-middleware/pkg/ratelimit"
	"github.com/custodia/exchange-middleware/pkg/token"
	"github.com/custodia/exchange-middleware/pkg/transfer"
	"github.com/custodia/exchange-middleware/pkg/txlog"
	"github.com/custodia/exchange-middleware/pkg/user"
	"github.com/custodia/exchange-middleware/pkg/wallet"
	"github.com/custodia/exchange-middleware/pkg/watcher"
	"github.com/custodia/exchange-middleware/pkg/withdraw"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the exchange server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new exchange server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("exchange server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting exchange server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() { _ = db.Close() }()

	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	userStore := user.NewStore(db)
	tokenStore := token.NewStore(db)
	walletStore := wallet.NewStore(db)
	txlogStore := txlog.NewStore(db)

	registry, err := s.openRegistry(ctx, tokenStore, logger)
	if err != nil {
		return err
	}

	refs := ledger.NewRefs(userStore, func(ctx context.Context, id int64) (bool, error) {
		if _, err := tokenStore.GetByID(ctx, id); err != nil {
			if errors.Is(err, token.ErrTokenNotFound) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
	ledgerStore := ledger.NewStore(db, refs)

	ethClient, err := ethereum.NewClient(&cfg.Ethereum, logger)
	if err != nil {
		return fmt.Errorf("connect ethereum: %w", err)
	}
	defer ethClient.Close()

	logger.Info("Connected to Ethereum",
		zap.String("rpc_url", cfg.Ethereum.RPCURL),
		zap.String("hot_wallet", ethClient.HotWalletAddress()),
	)

	pipeline := s.startPipeline(ctx, ledgerStore, txlogStore, registry, ethClient, logger)
	// We will call pipeline.Stop explicitly after ServeAndWait returns for deterministic shutdown order.
	// Keep this defer as a safety net.
	defer pipeline.Stop()

	stopWatcher := s.startWatcher(walletStore, registry, ledgerStore, txlogStore, ethClient, logger)
	defer stopWatcher()

	depositService := deposit.NewService(ledgerStore, txlogStore, registry, logger)
	transferService := transfer.NewService(ledgerStore, txlogStore, registry, logger)

	handler := NewHandler(ledgerStore, txlogStore, registry, depositService, transferService, pipeline, logger)
	router := s.setupRouter(handler, logger)

	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)

	// Stop background work before deferred DB/client closes kick in.
	stopWatcher()
	pipeline.Stop()

	return err
}

// openRegistry seeds any tokens missing from the database and loads the
// in-memory registry.
func (s *Server) openRegistry(ctx context.Context, store token.Store, logger *zap.Logger) (*token.Registry, error) {
	if path := s.cfg.Tokens.SeedFile; path != "" {
		if err := seedTokens(ctx, store, path, logger); err != nil {
			return nil, err
		}
	}

	registry, err := token.NewRegistry(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load token registry: %w", err)
	}

	logger.Info("Token registry loaded", zap.Strings("symbols", registry.Symbols()))
	return registry, nil
}

func seedTokens(ctx context.Context, store token.Store, path string, logger *zap.Logger) error {
	seed, err := token.LoadSeed(path)
	if err != nil {
		return fmt.Errorf("load token seed: %w", err)
	}

	for _, tok := range seed {
		_, err := store.GetBySymbol(ctx, tok.Symbol)
		if err == nil {
			continue
		}
		if !errors.Is(err, token.ErrTokenNotFound) {
			return fmt.Errorf("token seed lookup %s: %w", tok.Symbol, err)
		}
		if err := store.Create(ctx, tok); err != nil {
			return fmt.Errorf("token seed create %s: %w", tok.Symbol, err)
		}
		logger.Info("Seeded token", zap.String("symbol", tok.Symbol))
	}
	return nil
}

func (s *Server) startPipeline(
	ctx context.Context,
	ledgerStore ledger.Ledger,
	txlogStore txlog.Store,
	registry *token.Registry,
	ethClient *ethereum.Client,
	logger *zap.Logger,
) *withdraw.Pipeline {
	cfg := s.cfg.Withdrawal

	limiter := ratelimit.NewBucket(&ratelimit.Config{
		Capacity:     cfg.RateLimitBurst,
		RefillAmount: cfg.RateLimitRefill,
		Window:       cfg.RateLimitWindow,
	})

	pipeline := withdraw.NewPipeline(
		&withdraw.Options{
			MaxRetries:    cfg.MaxRetries,
			RetryDelay:    cfg.RetryDelay,
			Workers:       cfg.Workers,
			QueueSize:     cfg.QueueSize,
			SubmitTimeout: cfg.SubmitTimeout,
			FromAddress:   ethClient.HotWalletAddress(),
		},
		ledgerStore,
		txlogStore,
		registry,
		limiter,
		ethClient,
		logger,
	)

	if err := pipeline.RecoverPending(ctx); err != nil {
		logger.Warn("Pending withdrawal scan failed", zap.Error(err))
	}

	pipeline.Start()
	logger.Info("Withdrawal pipeline started",
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_size", cfg.QueueSize),
	)

	return pipeline
}

func (s *Server) startWatcher(
	walletStore wallet.Store,
	registry *token.Registry,
	ledgerStore ledger.Ledger,
	txlogStore txlog.Store,
	ethClient *ethereum.Client,
	logger *zap.Logger,
) func() {
	if !s.cfg.Watcher.Enabled {
		return func() {}
	}

	w := watcher.New(
		&watcher.Options{
			PollingInterval: s.cfg.Watcher.PollingInterval,
			PollTimeout:     s.cfg.Watcher.PollTimeout,
		},
		walletStore,
		registry,
		ledgerStore,
		txlogStore,
		ethClient,
		logger,
	)

	logger.Info("Starting deposit watcher", zap.Duration("interval", s.cfg.Watcher.PollingInterval))
	w.Start()

	// Return stopper for deterministic shutdown ordering.
	return w.Stop
}

func (s *Server) setupRouter(handler *Handler, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	handler.RegisterRoutes(r)

	return r
}
