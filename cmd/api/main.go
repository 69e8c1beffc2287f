package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"worktrack.org/internal/access"
	"worktrack.org/internal/auth"
	"worktrack.org/internal/config"
	"worktrack.org/internal/httpapi"
	"worktrack.org/internal/obs"
	"worktrack.org/internal/resilience"
	"worktrack.org/internal/store/memory"
	"worktrack.org/internal/store/pg"
	"worktrack.org/internal/store/redisledger"
	"worktrack.org/internal/tracker"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().WithError(err).Fatal("worktrack-api stopped with error")
	}
}

// backend groups the storage the services run on.
type backend struct {
	tracker tracker.Store
	users   auth.UserStore
	history auth.PasswordHistory
	ledger  auth.Ledger
	ready   httpapi.ReadyProbe
	closers []func() error
}

func (b *backend) close(log logrus.FieldLogger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.WithError(err).Warn("close backend")
		}
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logFile, err := obs.ConfigureLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logFile.Close()
	log := obs.Logger()

	obs.Init()
	if err := obs.PublishBuild(prometheus.DefaultRegisterer, obs.Build{Version: version, Commit: commit, Started: time.Now()}); err != nil {
		return fmt.Errorf("build metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close(log)

	creds, err := auth.NewCredentials(cfg.Password, be.history)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.Token, be.ledger,
		auth.WithPrincipalSource(auth.UserPrincipals{Users: be.users}),
		auth.WithTokenObserver(obs.ObserveToken),
	)
	if err != nil {
		return err
	}
	accounts, err := auth.NewService(be.users, creds, tokens)
	if err != nil {
		return err
	}
	gate := access.NewGate(be.tracker, access.WithDecisionObserver(func(a access.Action, d access.Decision) {
		obs.ObserveDecision(string(a), d.Outcome(), d.ReasonLabel())
	}))
	svc, err := tracker.NewService(be.tracker, be.users, gate,
		tracker.WithAccounts(accounts),
		tracker.WithSessions(tokens),
	)
	if err != nil {
		return err
	}

	if cfg.BootstrapAdminEmail != "" {
		u, created, err := accounts.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			log.WithField("user_id", u.ID).Info("bootstrap admin created")
		}
	}

	api, err := httpapi.New(httpapi.Deps{
		Accounts: accounts,
		Tracker:  svc,
		Ready:    be.ready,
		Version:  version,
	}, httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSecond), httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthServer(be.ready)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version}).Info("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.WithField("addr", cfg.GRPCAddr).Info("grpc health server starting")
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go health.Run(ctx, 10*time.Second)
	go purgeLoop(ctx, tokens, cfg.PurgeInterval, log)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.WithError(err).Error("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
		log.WithError(shutErr).Warn("http shutdown")
	}
	grpcServer.GracefulStop()
	log.Info("stopped")
	return err
}

func openBackend(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backend, error) {
	be := &backend{ready: httpapi.ReadyProbe{}}

	var pgStore *pg.Store
	if cfg.PGDSN != "" {
		st, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pgStore = st
		be.tracker, be.users, be.history = st, st, st
		be.ready["postgres"] = httpapi.CheckFunc(st.DB().PingContext)
		be.closers = append(be.closers, st.Close)
	} else {
		log.Warn("WORKTRACK_PG_DSN not set; using in-memory storage")
		st := memory.New()
		be.tracker, be.users, be.history = st, st, st
	}

	var ledger auth.Ledger
	switch cfg.Ledger {
	case config.LedgerPostgres:
		if pgStore == nil {
			return nil, errors.New("postgres ledger requires a postgres store")
		}
		ledger = pgStore.Ledger()
	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rl := redisledger.New(client)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rl.Ping(pingCtx)
		cancel()
		if err != nil {
			log.WithError(err).Warn("redis not reachable at startup")
		}
		ledger = rl
		be.ready["redis"] = httpapi.CheckFunc(rl.Ping)
		be.closers = append(be.closers, client.Close)
	default:
		be.ledger = auth.NewMemoryLedger()
		return be, nil
	}
	be.ledger = resilience.NewLedger(ledger, resilience.Settings{
		Name:                "ledger-" + cfg.Ledger,
		ConsecutiveFailures: uint32(cfg.BreakerFailures),
		OpenTimeout:         cfg.BreakerTimeout,
		Logger:              log,
	})
	return be, nil
}

// purgeLoop drops expired ledger entries periodically.
func purgeLoop(ctx context.Context, tokens *auth.TokenService, every time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tokens.PurgeExpired(ctx)
			if err != nil {
				log.WithError(err).Warn("purge expired tokens")
				continue
			}
			if n > 0 {
				log.WithField("purged", n).Info("expired tokens purged")
			}
		}
	}
}
