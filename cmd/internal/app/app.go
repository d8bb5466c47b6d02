// Package app wires the Tether server runtime: config, logging, storage
// selection, HTTP routes, and the session lifecycle.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	authapi "tether/cmd/internal/auth/api"
	"tether/cmd/internal/auth/lifecycle"
	"tether/cmd/internal/auth/session"
	"tether/cmd/security/password"
)

// App is the Tether server runtime: it owns HTTP server wiring and the
// resources behind the lifecycle Manager.
type App struct {
	cfg Config
	log Logger

	backend  *backend
	notifier *lifecycle.AsyncNotifier
	handler  http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	tokens, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	issuer, err := session.NewIssuer(sessCfg, tokens)
	if err != nil {
		return nil, err
	}

	pwCfg := password.DefaultConfig()
	pwCfg.Cost = cfg.BcryptCost
	hasher, err := password.NewHasher(pwCfg)
	if err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	authCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	b, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, err
	}
	authMetrics, err := lifecycle.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	notifier := lifecycle.NewAsyncNotifier(b.sink, cfg.NotifyBuffer, log)
	defer func() {
		if err != nil {
			_ = notifier.Close(context.Background())
		}
	}()

	mgr, err := lifecycle.NewManager(lifecycle.Deps{
		Accounts: b.accounts,
		Sessions: b.sessions,
		Registry: b.registry,
		Hasher:   hasher,
		Issuer:   issuer,
	},
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(authMetrics),
		lifecycle.WithNotifier(notifier),
	)
	if err != nil {
		return nil, err
	}

	authHandler, err := authapi.NewHandler(log, mgr, authCfg)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Use(httpMetrics.middleware)
	registerHTTP(r, log, cfg, b, time.Now(), reg, authHandler)

	var h http.Handler = r
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log)
	h = WithRequestID(h)

	return &App{
		cfg:      cfg,
		log:      log,
		backend:  b,
		notifier: notifier,
		handler:  h,
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "backend", a.backend.kind, "revocation", a.backend.registryKind())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			runErr = err
		}
	}

	if err := a.Close(shutdownCtx); err != nil {
		a.log.Error("app.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// Close drains queued events and releases storage resources.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.notifier.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.backend.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
