package cli

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := NewRoot(logger)
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute version: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestGrantCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SETUP_DESK_DATA_DIR", dir)
	t.Setenv("SETUP_DESK_PERMISSIONS_PATH", filepath.Join(dir, "permissions.csv"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := NewRoot(logger)
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"grant", "--role", "Associate Software Engineer", "--package", "httpx"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute grant: %v", err)
	}
	if !strings.Contains(out.String(), "granted httpx") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestGrantCommandRejectsUnknownRole(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SETUP_DESK_PERMISSIONS_PATH", filepath.Join(dir, "permissions.csv"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := NewRoot(logger)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"grant", "--role", "Intern", "--package", "httpx"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected unknown role error")
	}
}
