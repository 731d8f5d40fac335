package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkiryanov/pointledger/internal/db"
	"github.com/nkiryanov/pointledger/internal/handlers"
	"github.com/nkiryanov/pointledger/internal/handlers/middleware"
	"github.com/nkiryanov/pointledger/internal/logger"
	"github.com/nkiryanov/pointledger/internal/repository"
	"github.com/nkiryanov/pointledger/internal/repository/memory"
	"github.com/nkiryanov/pointledger/internal/repository/postgres"
	"github.com/nkiryanov/pointledger/internal/seed"
	"github.com/nkiryanov/pointledger/internal/service/cardcode"
	"github.com/nkiryanov/pointledger/internal/service/catalog"
	"github.com/nkiryanov/pointledger/internal/service/ledger"
	"github.com/nkiryanov/pointledger/internal/service/lookup"
	"github.com/nkiryanov/pointledger/internal/service/notify"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger     logger.Logger
	pool       *pgxpool.Pool
	dispatcher *notify.Dispatcher
	sinks      notify.MultiSink
}

func NewServerApp(ctx context.Context, c *Config) (app *ServerApp, err error) {
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app = &ServerApp{ListenAddr: c.ListenAddr, logger: l}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	storage, err := app.openStorage(ctx, c)
	if err != nil {
		return nil, err
	}

	if c.SeedFile != "" {
		f, err := seed.LoadFile(c.SeedFile)
		if err != nil {
			return nil, err
		}
		if _, err := seed.Apply(ctx, storage, f, l); err != nil {
			return nil, fmt.Errorf("error while applying seed file. Err: %w", err)
		}
	}

	codes, err := cardcode.New(cardcode.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating card code manager. Err: %w", err)
	}

	hub := notify.NewHub(l)
	notifier := notify.Fanout{hub}

	if err := app.openSinks(ctx, c); err != nil {
		return nil, err
	}
	if len(app.sinks) > 0 {
		app.dispatcher = notify.NewDispatcher(notify.DispatcherConfig{DrainTimeout: shutdownTimeout}, app.sinks, l)
		notifier = append(notifier, app.dispatcher)
	}

	services := handlers.Services{
		Ledger:  ledger.NewProcessor(storage, notifier, l),
		Lookup:  lookup.NewResolver(storage.Customer(), codes),
		Catalog: catalog.NewService(storage, l),
		Codes:   codes,
		Events:  hub,
	}
	if c.LookupRate > 0 {
		services.LookupLimiter = middleware.NewRateLimiter(c.LookupRate, lookupBurst(c.LookupRate))
	}
	app.Handler = handlers.NewRouter(services, l)

	return app, nil
}

func (s *ServerApp) openStorage(ctx context.Context, c *Config) (repository.Storage, error) {
	if c.DatabaseDSN == "" {
		s.logger.Warn("Database is not configured, balances are kept in memory")
		return memory.NewStorage(), nil
	}

	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	s.pool = pool

	return postgres.NewStorage(pool), nil
}

func (s *ServerApp) openSinks(ctx context.Context, c *Config) error {
	if c.RedisAddr != "" {
		sink := notify.NewRedisSink(c.RedisAddr, notify.DefaultRedisChannel)
		s.sinks = append(s.sinks, sink)
		if err := sink.Ping(ctx); err != nil {
			return fmt.Errorf("redis is not reachable. Err: %w", err)
		}
	}

	if len(c.KafkaBrokers) > 0 {
		sink, err := notify.NewKafkaSink(c.KafkaBrokers, c.KafkaTopic)
		if err != nil {
			return fmt.Errorf("error while connecting to kafka. Err: %w", err)
		}
		s.sinks = append(s.sinks, sink)
	}

	return nil
}

// Allow a couple of seconds worth of lookups at once
func lookupBurst(rps float64) int {
	return max(int(2*rps), 1)
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	httpServer := &http.Server{
		Addr:        s.ListenAddr,
		Handler:     s.Handler,
		BaseContext: func(net.Listener) context.Context { return srvCtx },
	}

	// Dispatcher outlives the server to send events of requests finished during shutdown
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer dispatcherCancel()

	var dispatcherStopped <-chan struct{}
	if s.dispatcher != nil {
		dispatcherStopped = s.dispatcher.Run(dispatcherCtx)
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	dispatcherCancel()
	if s.dispatcher != nil {
		<-dispatcherStopped
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases database pool and event sinks
func (s *ServerApp) Close() {
	if len(s.sinks) > 0 {
		if err := s.sinks.Close(); err != nil {
			s.logger.Warn("Failed to close event sinks", "error", err)
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
