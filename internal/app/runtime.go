package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/setupdesk/setup-desk/internal/classifier"
	"github.com/setupdesk/setup-desk/internal/config"
	"github.com/setupdesk/setup-desk/internal/httpapi"
	"github.com/setupdesk/setup-desk/internal/installer"
	"github.com/setupdesk/setup-desk/internal/llm"
	"github.com/setupdesk/setup-desk/internal/llm/anthropic"
	"github.com/setupdesk/setup-desk/internal/llm/openai"
	"github.com/setupdesk/setup-desk/internal/permissions"
	"github.com/setupdesk/setup-desk/internal/store"
	"github.com/setupdesk/setup-desk/internal/workflow"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	store       *store.Store
	permissions *permissions.Resolver
	watcher     *permissions.Watcher
	workflow    *workflow.Workflow
	sweeper     *sweeper
	httpServer  *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.PermissionsPath), 0o755); err != nil {
		return nil, fmt.Errorf("create permissions directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	resolver, err := permissions.NewResolver(permissions.NewFileSource(cfg.PermissionsPath), logger.With("component", "permissions"))
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	watcher, err := permissions.NewWatcher(resolver, logger.With("component", "permissions-watcher"))
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	completer := buildCompleter(cfg, logger)
	executor := installer.NewExecutor(logger.With("component", "installer"), installer.Options{
		PythonCommand:  cfg.PythonCommand,
		InstallTimeout: time.Duration(cfg.InstallTimeoutSec) * time.Second,
		VerifyTimeout:  time.Duration(cfg.VerifyTimeoutSec) * time.Second,
		LookupTimeout:  time.Duration(cfg.VersionLookupTimeoutSec) * time.Second,
		MaxOutputBytes: cfg.MaxOutputBytes,
	})

	flow := workflow.New(logger.With("component", "workflow"), workflow.Options{
		Classifier:   classifier.New(completer, logger.With("component", "classifier")),
		Ledger:       sqlStore,
		Permissions:  resolver,
		Executor:     executor,
		Completer:    completer,
		PreviewLimit: cfg.AllowedPackagesPreview,
	})

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Config:      cfg,
		Store:       sqlStore,
		Workflow:    flow,
		Permissions: resolver,
		Logger:      logger.With("component", "httpapi"),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweep, err := newSweeper(sqlStore, cfg.SweepSchedule,
		time.Duration(cfg.SweepPendingStaleSec)*time.Second,
		logger.With("component", "sweeper"))
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	return &Runtime{
		cfg:         cfg,
		logger:      logger,
		store:       sqlStore,
		permissions: resolver,
		watcher:     watcher,
		workflow:    flow,
		sweeper:     sweep,
		httpServer:  httpServer,
	}, nil
}

// buildCompleter picks an LLM client from config; nil means pattern-only
// classification and static question answers.
func buildCompleter(cfg config.Config, logger *slog.Logger) llm.Completer {
	if !cfg.LLMEnabled {
		return nil
	}
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm-anthropic"))
	default:
		return openai.New(openai.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: timeout,
		}, logger.With("component", "llm-openai"))
	}
}

// Store exposes the underlying store for command-line workflows.
func (r *Runtime) Store() *store.Store {
	return r.store
}

// Permissions exposes the permission resolver for command-line workflows.
func (r *Runtime) Permissions() *permissions.Resolver {
	return r.permissions
}

// ProcessOnce authenticates an employee and runs a single request through
// the workflow. Used by the one-shot CLI path.
func (r *Runtime) ProcessOnce(ctx context.Context, employeeID, password, text string) (workflow.Outcome, error) {
	user, err := r.store.Authenticate(ctx, employeeID, password)
	if err != nil {
		return workflow.Outcome{}, err
	}
	return r.workflow.ProcessRequest(ctx, user, text), nil
}
