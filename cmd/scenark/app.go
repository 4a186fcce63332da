package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/scenark/scenark/internal/actions"
	"github.com/scenark/scenark/internal/catalog"
	"github.com/scenark/scenark/internal/connections"
	"github.com/scenark/scenark/internal/diagram"
	"github.com/scenark/scenark/internal/engine"
	"github.com/scenark/scenark/internal/expressions"
	"github.com/scenark/scenark/internal/logging"
	"github.com/scenark/scenark/internal/panel"
	"github.com/scenark/scenark/internal/payload"
	"github.com/scenark/scenark/internal/scheduler"
	"github.com/scenark/scenark/internal/secrets"
	"github.com/scenark/scenark/internal/store"
	"github.com/scenark/scenark/internal/streaming"
	"github.com/scenark/scenark/pkg/mcp"
)

// app holds the wired application graph.
type app struct {
	store        store.Store
	catalog      *catalog.Catalog
	orchestrator *engine.Orchestrator
	cleanup      *engine.CleanupEngine
	scheduler    *scheduler.Scheduler
	hub          *streaming.MemoryHub
	logger       *slog.Logger
	closers      []func() error
}

func buildApp(cfg Config) (*app, error) {
	logger := buildLogger(cfg.LogLevel)

	a := &app{logger: logger, hub: streaming.NewMemoryHub()}

	// Durable store, degrading to no-op writes when unavailable.
	var inner store.Store
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err == nil {
		if s, err := store.NewLibSQLStore("file:" + cfg.DBPath); err == nil {
			if err := s.Migrate(context.Background()); err != nil {
				logger.Warn("store migration failed", slog.String("error", err.Error()))
			}
			inner = s
			a.closers = append(a.closers, s.Close)
		} else {
			logger.Warn("failed to open store", slog.String("error", err.Error()))
		}
	}
	a.store = store.NewFallback(inner, logger)

	cat, err := catalog.New()
	if err != nil {
		return nil, fmt.Errorf("load builtin scenarios: %w", err)
	}
	if cfg.ScenariosDir != "" {
		if err := cat.LoadDir(cfg.ScenariosDir); err != nil {
			return nil, fmt.Errorf("load scenarios from %s: %w", cfg.ScenariosDir, err)
		}
	}
	a.catalog = cat

	resolver, err := buildResolver(cfg, logger)
	if err != nil {
		return nil, err
	}

	executor := actions.NewHTTPExecutor(actions.HTTPConfig{})
	runner := engine.NewStepRunner(executor, engine.DefaultRetryPolicy(), logger)
	payloadResolver := payload.NewResolver(payload.NewRuleRegistry(), logger)

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("init condition engine: %w", err)
	}

	engineCfg := engine.Config{
		Enabled:        cfg.Enabled,
		AllowedTenants: cfg.AllowedTenants,
		DailyQuota:     cfg.DailyQuota,
		StepDelay:      time.Duration(cfg.StepDelayMs) * time.Millisecond,
	}
	a.orchestrator = engine.NewOrchestrator(engineCfg, a.store, cat, resolver, payloadResolver, runner, cel, logger)
	a.orchestrator.AttachHub(a.hub)

	a.cleanup = engine.NewCleanupEngine(a.store, actions.NewUndoRegistry(), executor, resolver, logger)
	a.cleanup.AttachHub(a.hub)

	a.scheduler = scheduler.NewScheduler(a.store, a.orchestrator, logger)

	return a, nil
}

func (a *app) Close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}

func buildLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(handler))
}

// buildVault returns the credential vault, or nil when SCENARK_VAULT_KEY is
// unset. A 32-byte value is used directly; anything else is treated as a
// passphrase.
func buildVault() (*secrets.AESVault, error) {
	key := vaultKey()
	if key == "" {
		return nil, nil
	}
	cfg := secrets.VaultConfig{Passphrase: key, Salt: []byte("scenark-connections-v1")}
	if len(key) == 32 {
		cfg = secrets.VaultConfig{MasterKey: []byte(key)}
	}
	return secrets.NewAESVault(cfg)
}

func buildResolver(cfg Config, logger *slog.Logger) (connections.Resolver, error) {
	if _, err := os.Stat(cfg.ConnectionsFile); errors.Is(err, os.ErrNotExist) {
		logger.Warn("connections file not found, no integrations connected",
			slog.String("path", cfg.ConnectionsFile))
		return connections.NewStaticResolver(), nil
	}

	vault, err := buildVault()
	if err != nil {
		return nil, err
	}
	if vault != nil {
		return connections.LoadEncrypted(cfg.ConnectionsFile, vault)
	}
	return connections.LoadStaticResolver(cfg.ConnectionsFile)
}

func (a *app) registerSchedule(ctx context.Context, tenantID, scenarioName, cronExpr string) (*store.ScheduledRun, error) {
	if _, ok := a.catalog.Get(scenarioName); !ok {
		return nil, fmt.Errorf("unknown scenario %q", scenarioName)
	}

	now := time.Now().UTC()
	nextRun, err := a.scheduler.CalculateNextRun(cronExpr, now)
	if err != nil {
		return nil, err
	}

	run := &store.ScheduledRun{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		ScenarioName:   scenarioName,
		CronExpression: cronExpr,
		Enabled:        true,
		NextRunAt:      &nextRun,
		CreatedAt:      now,
	}
	if err := a.store.CreateScheduledRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist schedule: %w", err)
	}
	return run, nil
}

// serve runs the long-lived surfaces: scheduler, admin panel and the MCP
// stdio transport. It returns when stdin closes or the context is cancelled.
func serve(ctx context.Context, cfg Config) error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.RecoverMissed(ctx); err != nil {
		a.logger.Warn("missed-run recovery failed", slog.String("error", err.Error()))
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	panelSrv := panel.NewPanelServer(panel.PanelDeps{
		Store:   a.store,
		Catalog: a.catalog,
		Hub:     a.hub,
		Logger:  a.logger,
	})
	httpSrv := &http.Server{Addr: cfg.PanelAddr, Handler: panelSrv.Handler()}
	go func() {
		a.logger.Info("admin panel listening", slog.String("addr", cfg.PanelAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin panel failed", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	mcpSrv := mcp.NewScenarkServer(mcp.ScenarkServerDeps{
		Runner:  a.orchestrator,
		Cleaner: a.cleanup,
		Catalog: a.catalog,
		Store:   a.store,
		Cron:    a.scheduler,
		Logger:  a.logger,
	})
	a.logger.Info("mcp server listening on stdio")
	return mcpSrv.Serve(ctx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printScenario(a *app, name, format string) error {
	def, ok := a.catalog.Get(name)
	if !ok {
		return fmt.Errorf("unknown scenario %q", name)
	}

	switch format {
	case "json":
		return printJSON(def)
	case "yaml":
		data, err := yaml.Marshal(def)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	case "mermaid":
		fmt.Println(diagram.RenderMermaid(diagram.Build(def)))
		return nil
	case "ascii":
		fmt.Println(diagram.RenderASCII(diagram.Build(def)))
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func rootContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
