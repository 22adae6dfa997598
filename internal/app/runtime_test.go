package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/setupdesk/setup-desk/internal/config"
	"github.com/setupdesk/setup-desk/internal/store"
	"github.com/setupdesk/setup-desk/internal/workflow"
)

func newTestConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.FromEnv()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.DBPath = filepath.Join(dir, "setup_desk.sqlite")
	cfg.PermissionsPath = filepath.Join(dir, "permissions.csv")
	cfg.LLMEnabled = false
	return cfg
}

func TestRuntimeProcessOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runtime, err := New(newTestConfig(t), logger)
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer runtime.Close()

	ctx := context.Background()
	if err := runtime.Store().SeedTestUsers(ctx); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	outcome, err := runtime.ProcessOnce(ctx, "EMP001", "password123", "what can you help me with?")
	if err != nil {
		t.Fatalf("process once: %v", err)
	}
	if outcome.Type != workflow.OutcomeQAResponse {
		t.Fatalf("expected qa_response, got %s (%s)", outcome.Type, outcome.Message)
	}

	if _, err := runtime.ProcessOnce(ctx, "EMP001", "wrong", "install numpy"); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRuntimeWritesDefaultPermissionTable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := newTestConfig(t)
	runtime, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer runtime.Close()

	allowed := runtime.Permissions().AllowedPackages("Associate Software Engineer")
	if len(allowed) == 0 {
		t.Fatal("expected default grants for the lowest role")
	}
}

func TestSweeperFailsStaleRequests(t *testing.T) {
	cfg := newTestConfig(t)
	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer sqlStore.Close()
	ctx := context.Background()
	if err := sqlStore.AutoMigrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	user, err := sqlStore.CreateUser(ctx, store.CreateUserInput{
		Name:       "Sam Ortiz",
		EmployeeID: "EMP700",
		Role:       "Associate Software Engineer",
		Password:   "pw",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	requestID, err := sqlStore.LogPending(ctx, user.ID, "numpy", "latest")
	if err != nil {
		t.Fatalf("log pending: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweep, err := newSweeper(sqlStore, "*/15 * * * *", -time.Second, logger)
	if err != nil {
		t.Fatalf("build sweeper: %v", err)
	}
	if sweep.staleAfter != time.Hour {
		t.Fatalf("expected default stale threshold, got %s", sweep.staleAfter)
	}

	// Sweep with a cutoff in the future so the fresh row qualifies.
	sweep.staleAfter = -time.Minute
	sweep.sweep(ctx)

	request, err := sqlStore.LookupRequest(ctx, requestID)
	if err != nil {
		t.Fatalf("lookup request: %v", err)
	}
	if request.Status != store.RequestStatusFailed {
		t.Fatalf("expected failed status, got %q", request.Status)
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := newSweeper(nil, "not a cron expr", time.Hour, logger); err == nil {
		t.Fatal("expected parse error")
	}
}
