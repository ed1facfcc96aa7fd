package commands

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/internal/config"
	"github.com/jakechorley/fairshare/pkg/clients/sheetsclient"
	"github.com/jakechorley/fairshare/pkg/core/balancer"
	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/roster"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/core/services"
	"github.com/jakechorley/fairshare/pkg/db"
	"github.com/jakechorley/fairshare/pkg/postgres"
	"github.com/jakechorley/fairshare/pkg/sqlite"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Env      string
	Cfg      *config.Config
	Catalog  *model.Catalog
	Location *time.Location
	Store    db.Store
	Engine   *services.Engine
	Logger   *zap.Logger
	Ctx      context.Context

	sheetsClient *sheetsclient.Client
}

// NewAppContext loads configuration and wires the store, roster and engine.
// The engine is restored from the store for today's date.
func NewAppContext(ctx context.Context, env string, logger *zap.Logger) (*AppContext, error) {
	app := &AppContext{Env: env, Logger: logger, Ctx: ctx}

	logger.Info("Loading configuration")
	cfg, err := config.LoadWithEnv(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Cfg = cfg

	if app.Catalog, err = cfg.Catalog(); err != nil {
		return nil, err
	}
	if app.Location, err = cfg.Location(); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded",
		zap.Strings("capabilities", app.Catalog.CapabilityNames()),
		zap.Strings("resourceTypes", app.Catalog.ResourceTypes()))

	if app.Store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	ids := model.NewIdentities()
	r, err := app.loadRoster(ids)
	if err != nil {
		app.Close()
		return nil, err
	}
	logger.Info("Roster loaded", zap.Int("workers", r.Len()))

	rules, err := cfg.ScheduleRules()
	if err != nil {
		app.Close()
		return nil, err
	}
	compiler := schedule.NewCompiler(app.Catalog, r, ids, rules, schedule.CompilerOptions{
		MinSegment: cfg.MinSegment(),
		Resolve:    cfg.ResolveOptions(),
	}, logger)

	bal, err := balancer.New(app.Catalog, cfg.BalancerConfig())
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create balancer: %w", err)
	}

	app.Engine = services.NewEngine(app.Catalog, ids, r, compiler, bal, services.EngineOptions{
		Store:   app.Store,
		Workers: cfg.Workers,
		Now:     func() time.Time { return time.Now().In(app.Location) },
	}, logger)

	if err := app.Engine.Restore(ctx, app.Today()); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to restore state: %w", err)
	}

	return app, nil
}

// openStore returns nil when no durable storage is configured
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (db.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		logger.Info("Connecting to postgres")
		pg, err := postgres.NewDB(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case "sqlite":
		path := cfg.DSN()
		if path == "" {
			path = "fairshare.db"
		}
		logger.Info("Opening sqlite database", zap.String("path", path))
		store, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		logger.Warn("No storage configured, workload is kept in memory only")
		return nil, nil
	}
}

// loadRoster reads the roster file when configured, otherwise the roster tab
func (app *AppContext) loadRoster(ids *model.Identities) (*roster.Roster, error) {
	switch {
	case app.Cfg.RosterFile != "":
		return roster.LoadFile(app.Cfg.RosterFile, app.Catalog, ids)
	case app.Cfg.Sheets.RosterTab != "":
		client, err := app.Sheets()
		if err != nil {
			return nil, err
		}
		return client.ReadRoster(app.Ctx, app.Cfg.Sheets.SpreadsheetID, app.Cfg.Sheets.RosterTab, app.Catalog, ids)
	default:
		app.Logger.Warn("No roster configured, every worker starts from an inactive baseline")
		return roster.New(app.Catalog), nil
	}
}

// Sheets returns the sheets client, running the OAuth flow on first use
func (app *AppContext) Sheets() (*sheetsclient.Client, error) {
	if app.sheetsClient != nil {
		return app.sheetsClient, nil
	}
	if app.Cfg.Sheets.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets.spreadsheetID is not configured")
	}

	oauthCfg, err := config.LoadOAuthClientWithEnv(app.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	app.Logger.Info("Initializing sheets client")
	client, err := sheetsclient.NewClient(app.Ctx, oauthCfg, app.Env, app.Logger)
	if err != nil {
		return nil, err
	}
	app.sheetsClient = client
	return client, nil
}

// Today returns midnight of the current day in the configured timezone
func (app *AppContext) Today() time.Time {
	return interval.StartOfDay(time.Now().In(app.Location))
}

// ParseDate reads a --date flag value, defaulting to today
func (app *AppContext) ParseDate(text string) (time.Time, error) {
	if text == "" {
		return app.Today(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", text, app.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

// ParseInstant reads an --at flag value as a clock time on the schedule's date.
// An empty value yields the zero time, which the engine replaces with now.
func (app *AppContext) ParseInstant(text string) (time.Time, error) {
	if text == "" {
		return time.Time{}, nil
	}
	clock, err := interval.ParseClock(text)
	if err != nil {
		return time.Time{}, err
	}
	day := app.Engine.Schedule().Date
	if day.IsZero() {
		day = app.Today()
	}
	return interval.StartOfDay(day).Add(clock), nil
}

// Close flushes background persistence and closes the store
func (app *AppContext) Close() {
	if app.Engine != nil {
		app.Engine.Flush()
	}
	if app.Store != nil {
		app.Store.Close()
	}
}
