package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/iho/invitequeue/internal/adapter/http"
	"github.com/iho/invitequeue/internal/adapter/http/handler"
	apimiddleware "github.com/iho/invitequeue/internal/adapter/http/middleware"
	"github.com/iho/invitequeue/internal/infrastructure/auth"
	"github.com/iho/invitequeue/internal/infrastructure/config"
	"github.com/iho/invitequeue/internal/infrastructure/idgen"
	"github.com/iho/invitequeue/internal/infrastructure/logger"
	"github.com/iho/invitequeue/internal/infrastructure/metrics"
	"github.com/iho/invitequeue/internal/infrastructure/reconciler"
	"github.com/iho/invitequeue/internal/infrastructure/retry"
	"github.com/iho/invitequeue/internal/usecase"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Logger = l

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Fatal().Err(err).Msg("server failed")
	}
}

// app is the wired server before it starts listening.
type app struct {
	handler    http.Handler
	reconciler *reconciler.Reconciler
	limiter    *apimiddleware.RateLimiter
	close      func()
}

func buildApp(ctx context.Context, cfg *config.Config, l zerolog.Logger) (*app, error) {
	st, err := openStores(ctx, cfg, l)
	if err != nil {
		return nil, err
	}

	eph, err := openEphemeral(ctx, cfg, l)
	if err != nil {
		st.Close()
		return nil, err
	}

	closeAll := func() {
		eph.close()
		st.Close()
	}

	gw, err := newPaymentGateway(cfg, l)
	if err != nil {
		closeAll()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	queueCfg := usecase.QueueConfig{
		StartingInvites:    cfg.StartingInvites,
		OverflowBlockSize:  cfg.OverflowBlockSize,
		OverflowInvites:    cfg.OverflowInvites,
		AllocationAttempts: cfg.AllocationAttempts,
		EffectMaxRetries:   cfg.EffectMaxRetries,
	}
	ids := idgen.NewULIDGenerator()
	retrier := retry.New(retry.DefaultConfig(), st.retryable, l)

	settingsUC := usecase.NewSettingsUseCase(st.settings)
	if err := seedSettings(ctx, cfg.SettingsFile, settingsUC, l); err != nil {
		closeAll()
		return nil, err
	}
	if err := settingsUC.VerifyRequired(ctx); err != nil {
		closeAll()
		return nil, err
	}

	allocatorUC := usecase.NewAllocatorUseCase(st.users, st.batches, ids, queueCfg, m)
	settlementUC := usecase.NewSettlementUseCase(st.txManager, st.users, st.batches, st.txns, st.settings, ids, retrier, queueCfg, m)
	purchaseUC := usecase.NewPurchaseUseCase(st.users, st.settings, allocatorUC, gw, eph.intents, ids, cfg.IntentTTL, m)
	paymentUC := usecase.NewPaymentUseCase(gw, settlementUC, cfg.GatewayVerifyNotifications, m)
	userUC := usecase.NewUserUseCase(st.users, st.batches, st.txns, st.settings, ids)

	checks := st.checks
	if eph.check != nil {
		checks = append(checks, *eph.check)
	}

	var authenticate func(http.Handler) http.Handler
	if cfg.AuthEnabled {
		authenticate = apimiddleware.Authenticate(auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration), m)
	} else {
		l.Warn().Msg("authentication disabled, trusting identity headers")
	}

	limiter := apimiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Logger:           l,
		Metrics:          m,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthHandler:    handler.NewHealthHandler(checks...),
		AccountHandler:   handler.NewAccountHandler(userUC),
		PurchaseHandler:  handler.NewPurchaseHandler(purchaseUC),
		PaymentHandler:   handler.NewPaymentHandler(paymentUC),
		AdminHandler:     handler.NewAdminHandler(userUC, settingsUC, settlementUC, allocatorUC),
		Authenticate:     authenticate,
		IdempotencyStore: eph.idempotency,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      limiter,
	})

	rec := reconciler.New(reconciler.Config{
		Settlements: settlementUC,
		Logger:      l,
		Metrics:     m,
		BatchSize:   cfg.ReconcileBatchSize,
		Interval:    cfg.ReconcileInterval,
		MinAge:      cfg.ReconcileMinAge,
		MaxAttempts: cfg.ReconcileMaxAttempts,
	})

	return &app{handler: router, reconciler: rec, limiter: limiter, close: closeAll}, nil
}

func run(ctx context.Context, cfg *config.Config, l zerolog.Logger) error {
	a, err := buildApp(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer a.close()

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := a.reconciler.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("reconciler stopped")
		}
	}()
	go a.limiter.StartCleanup(bgCtx, time.Minute)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      a.handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info().Str("port", cfg.HTTPPort).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	l.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	l.Info().Msg("server stopped")
	return nil
}
