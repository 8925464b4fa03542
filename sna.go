// Package sna is the public API for embedding the SNA policy decision
// point: the service that evaluates AI-agent tool calls against network
// devices and returns PERMIT, ESCALATE, or BLOCK.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := sna.New(
//	    sna.WithVersion(version),
//	    sna.WithLogger(logger),
//	    sna.WithNotifier(myPagerNotifier{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: sna (root) imports
// internal/*, but internal/* never imports sna (root). Public types
// (Event, ValidationInput, etc.) are standalone structs; conversion
// helpers live here because this is the only file that sees both sides
// of the boundary.
package sna

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sentra-ai/sna/internal/config"
	"github.com/sentra-ai/sna/internal/eas"
	"github.com/sentra-ai/sna/internal/engine"
	"github.com/sentra-ai/sna/internal/escalation"
	"github.com/sentra-ai/sna/internal/model"
	"github.com/sentra-ai/sna/internal/notify"
	"github.com/sentra-ai/sna/internal/policy"
	"github.com/sentra-ai/sna/internal/server"
	"github.com/sentra-ai/sna/internal/storage"
	"github.com/sentra-ai/sna/internal/telemetry"
	"github.com/sentra-ai/sna/internal/validator"
	"github.com/sentra-ai/sna/migrations"
)

// App is the PDP server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	registry     *escalation.Registry
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the server. It connects to the database, runs migrations,
// loads the policy document, and wires all subsystems. It does NOT start
// any goroutines or accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		level := slog.LevelInfo
		if cfg.LogLevel == "debug" {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.policyPath != "" {
		cfg.PolicyPath = o.policyPath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("sna starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	metrics := telemetry.NewMetrics()

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	doc, warnings, err := policy.LoadFile(cfg.PolicyPath)
	if err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("policy: %w", err)
	}
	for _, w := range warnings {
		logger.Warn("policy load warning", "warning", w)
	}
	policies := policy.NewStore(doc)
	logger.Info("policy loaded", "version", doc.Version, "tools", len(doc.Tools), "path", cfg.PolicyPath)

	score := eas.New(db,
		eas.WithWindow(cfg.EASWindow),
		eas.WithGauge(metrics.EASCurrent),
	)

	var notifier notify.Notifier = &notify.LogNotifier{Logger: logger}
	if o.notifier != nil {
		notifier = &notifierAdapter{n: o.notifier}
	}
	notifier = notify.NewMetered(notifier, metrics.NotificationTotal)

	registry := escalation.New(db, logger,
		escalation.WithTTL(cfg.EscalationTTL),
		escalation.WithSweepInterval(cfg.EscalationSweepInterval),
		escalation.WithNotifier(notifier),
		escalation.WithPendingGauge(metrics.EscalationPending),
	)

	eng := engine.New(policies, db, db, score, registry, metrics, logger)

	validators := []validator.Validator{
		validator.NewSemanticDiff(),
		validator.NewReachability(),
	}
	for _, v := range o.extraValidators {
		validators = append(validators, &validatorAdapter{v: v})
	}
	composite := validator.NewComposite(logger, validators,
		validator.WithCounter(metrics.ValidationTotal))

	srv := server.New(server.Config{
		Handlers: &server.Handlers{
			Engine:      eng,
			Audits:      db,
			Executions:  db,
			Escalations: registry,
			Score:       score,
			Validators:  composite,
			Policies:    policies,
			PolicyPath:  cfg.PolicyPath,
			DB:          db,
			Logger:      logger,
			Version:     version,
			StartTime:   time.Now(),
		},
		MetricsHandler:      metrics.Handler(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		Logger:              logger,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		registry:     registry,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the expiry sweep and the HTTP server, then blocks until ctx is
// cancelled or a fatal server error occurs. On return, Shutdown is called
// automatically; callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.registry.RunExpiry(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := a.srv.Start()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown drains in-flight HTTP requests, then closes the database pool
// and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("sna shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("sna stopped")
	return nil
}

// ── Adapters (defined here because this file imports both sides) ──────────────

// notifierAdapter wraps a public sna.Notifier to satisfy notify.Notifier.
type notifierAdapter struct {
	n Notifier
}

func (a *notifierAdapter) Channel() string { return a.n.Channel() }

func (a *notifierAdapter) Send(ctx context.Context, ev notify.Event) error {
	return a.n.Send(ctx, Event{
		Kind:    ev.Kind,
		Subject: ev.Subject,
		Message: ev.Message,
		Fields:  ev.Fields,
	})
}

// validatorAdapter wraps a public sna.Validator to satisfy validator.Validator.
type validatorAdapter struct {
	v Validator
}

func (a *validatorAdapter) Name() string { return a.v.Name() }

func (a *validatorAdapter) Validate(ctx context.Context, req model.ValidateRequest) model.ValidationResult {
	out := a.v.Validate(ctx, ValidationInput{
		ToolName:     req.ToolName,
		DeviceTarget: req.DeviceTarget,
		BeforeState:  req.BeforeState,
		AfterState:   req.AfterState,
	})
	status := model.ValidationStatus(out.Status)
	switch status {
	case model.ValidationPass, model.ValidationFail, model.ValidationSkip, model.ValidationError:
	default:
		return model.ValidationResult{
			Status:       model.ValidationError,
			TestcaseName: a.v.Name(),
			Message:      fmt.Sprintf("validator returned unknown status %q", out.Status),
		}
	}
	return model.ValidationResult{
		Status:       status,
		TestcaseName: a.v.Name(),
		Message:      out.Message,
		Details:      out.Details,
	}
}
