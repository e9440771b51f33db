// Package server wires the handlers into an HTTP API and runs it alongside
// the background sweeps.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/config"
	"pipeerp/internal/database"
	"pipeerp/internal/handlers/admin"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/handlers/finance"
	"pipeerp/internal/handlers/inventory"
	"pipeerp/internal/handlers/masters"
	"pipeerp/internal/handlers/procurement"
	"pipeerp/internal/handlers/quality"
	"pipeerp/internal/handlers/sales"
	"pipeerp/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// App holds shared dependencies for the application.
type App struct {
	Config   config.Config
	DB       *sqlx.DB
	Log      *zap.Logger
	Hub      *websocket.Hub
	Perms    *auth.PermCache
	Sessions *auth.Sessions
	Limiter  *RateLimiter

	Masters     *masters.Handler
	Sales       *sales.Handler
	Procurement *procurement.Handler
	Inventory   *inventory.Handler
	Quality     *quality.Handler
	Finance     *finance.Handler
	Admin       *admin.Handler
}

// New builds an App over a migrated database and loads the permission cache.
func New(cfg config.Config, db *sqlx.DB, log *zap.Logger) (*App, error) {
	perms := auth.NewPermCache()
	if err := auth.InitPermissions(db, perms); err != nil {
		return nil, fmt.Errorf("init permissions: %w", err)
	}

	hub := websocket.NewHub(log)
	deps := &common.Deps{
		DB:       db,
		Audit:    &audit.Logger{DB: db, Hub: hub, Zap: log},
		Numbers:  database.NewNumberer(cfg.Business.FiscalYearStartMonth, cfg.Business.DocumentNumberDigits),
		Log:      log,
		Business: cfg.Business,
	}

	a := &App{
		Config:      cfg,
		DB:          db,
		Log:         log,
		Hub:         hub,
		Perms:       perms,
		Sessions:    auth.NewSessions(db, cfg.Session.TTL, cfg.Session.IdleTimeout),
		Limiter:     NewRateLimiter(),
		Masters:     masters.New(deps),
		Sales:       sales.New(deps),
		Procurement: procurement.New(deps),
		Inventory:   inventory.New(deps),
		Quality:     quality.New(deps),
		Finance:     finance.New(deps),
	}
	a.Admin = admin.New(deps, a.Sessions, perms)
	a.Admin.SecureCookies = cfg.Server.SecureCookies
	a.Admin.CheckLoginRateLimit = func(ip string) bool {
		exceeded, _, _ := a.Limiter.CheckRateLimit("login:"+ip, cfg.Server.LoginRateLimit, time.Minute)
		return !exceeded
	}
	return a, nil
}

// SweepResult reports what one sweep changed.
type SweepResult struct {
	ExpiredQuotations []string
	OverdueInvoices   []string
	ExpiredSessions   int64
}

// Sweep expires stale quotations, marks late invoices overdue and removes
// expired sessions. Every step runs even when an earlier one fails.
func (a *App) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	var errs []error

	quotes, err := a.Sales.ExpireQuotations(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire quotations: %w", err))
	}
	res.ExpiredQuotations = quotes

	invoices, err := a.Finance.MarkOverdue(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("mark overdue invoices: %w", err))
	}
	res.OverdueInvoices = invoices

	n, err := a.Sessions.Sweep(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep sessions: %w", err))
	}
	res.ExpiredSessions = n

	a.Limiter.Prune(time.Minute)
	return res, errors.Join(errs...)
}

func (a *App) sweepLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := a.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				a.Log.Error("sweep failed", zap.Error(err))
			}
			a.Log.Info("sweep",
				zap.Int("expired_quotations", len(res.ExpiredQuotations)),
				zap.Int("overdue_invoices", len(res.OverdueInvoices)),
				zap.Int64("expired_sessions", res.ExpiredSessions))
		}
	}
}

// Run listens on the configured address until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Config.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve answers HTTP on ln and runs the sweeper until ctx is cancelled or
// the server fails, then shuts both down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      a.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(a.Log),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Hub.Close()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		a.sweepLoop(ctx, a.Config.Jobs.SweepInterval)
		return nil
	})
	return g.Wait()
}
