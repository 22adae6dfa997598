package permissions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestWatcherReloadsOnTableRewrite(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "permissions.csv"))
	resolver, err := NewResolver(source, testLogger())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	watcher, err := NewWatcher(resolver, testLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	table := DefaultTable()
	table.Rows[0].Packages = append(table.Rows[0].Packages, "httpx")

	versionBefore := resolver.Version()
	deadline := time.After(5 * time.Second)
	for resolver.Version() == versionBefore {
		// Rewrite until the watcher observes it; the directory watch may
		// not be registered when the first write lands.
		if err := source.Save(table); err != nil {
			t.Fatalf("rewrite table: %v", err)
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not reload the table after a rewrite")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if !resolver.IsAllowed(RoleAssociate, "httpx") {
		t.Fatal("reloaded snapshot must include the new grant")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watcher stopped with error: %v", err)
	}
}

func TestWatcherFiltersEvents(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "permissions.csv"))
	resolver, err := NewResolver(source, testLogger())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	watcher, err := NewWatcher(resolver, testLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(func() { _ = watcher.watcher.Close() })

	tablePath := source.Path()
	versionBefore := resolver.Version()

	watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(filepath.Dir(tablePath), "notes.txt"),
		Op:   fsnotify.Write,
	}, tablePath)
	if resolver.Version() != versionBefore {
		t.Fatal("unrelated file must not trigger a reload")
	}

	watcher.handleEvent(fsnotify.Event{Name: tablePath, Op: fsnotify.Chmod}, tablePath)
	if resolver.Version() != versionBefore {
		t.Fatal("chmod must not trigger a reload")
	}

	// Rename covers the atomic rename-replace write path.
	watcher.handleEvent(fsnotify.Event{Name: tablePath, Op: fsnotify.Rename}, tablePath)
	if resolver.Version() != versionBefore+1 {
		t.Fatalf("rename-replace must trigger a reload, version %d", resolver.Version())
	}
}
