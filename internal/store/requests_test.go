package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestLifecycle(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	userID := seedRequestUser(t, sqlStore, "EMP200")

	requestID, err := sqlStore.LogPending(ctx, userID, "numpy", "")
	if err != nil {
		t.Fatalf("log pending: %v", err)
	}

	pending, err := sqlStore.LookupRequest(ctx, requestID)
	if err != nil {
		t.Fatalf("lookup request: %v", err)
	}
	if pending.Status != RequestStatusPending {
		t.Fatalf("expected pending status, got %s", pending.Status)
	}
	if !pending.CompleteTime.IsZero() {
		t.Fatal("pending request should not carry a completion time")
	}

	if err := sqlStore.MarkCompleted(ctx, requestID, "1.26.0"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	completed, err := sqlStore.LookupRequest(ctx, requestID)
	if err != nil {
		t.Fatalf("lookup completed request: %v", err)
	}
	if completed.Status != RequestStatusCompleted {
		t.Fatalf("expected completed status, got %s", completed.Status)
	}
	if completed.Version != "1.26.0" {
		t.Fatalf("expected recorded version, got %s", completed.Version)
	}
	if completed.CompleteTime.IsZero() {
		t.Fatal("terminal write must set completion time")
	}
}

func TestTerminalWritesAreMonotonic(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	userID := seedRequestUser(t, sqlStore, "EMP201")

	requestID, err := sqlStore.LogPending(ctx, userID, "pandas", "2.0.0")
	if err != nil {
		t.Fatalf("log pending: %v", err)
	}
	if err := sqlStore.MarkDenied(ctx, requestID, "insufficient permissions"); err != nil {
		t.Fatalf("mark denied: %v", err)
	}

	if err := sqlStore.MarkCompleted(ctx, requestID, "2.0.0"); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected not-pending error on second terminal write, got %v", err)
	}
	if err := sqlStore.MarkFailed(ctx, requestID, "boom"); !errors.Is(err, ErrRequestNotPending) {
		t.Fatalf("expected not-pending error, got %v", err)
	}
	if err := sqlStore.MarkFailed(ctx, "missing-id", "boom"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected request not found, got %v", err)
	}

	denied, err := sqlStore.LookupRequest(ctx, requestID)
	if err != nil {
		t.Fatalf("lookup request: %v", err)
	}
	if denied.Status != RequestStatusDenied {
		t.Fatalf("terminal status must not be reversed, got %s", denied.Status)
	}
	if denied.ErrorMessage != "insufficient permissions" {
		t.Fatalf("unexpected error message: %s", denied.ErrorMessage)
	}
}

func TestFindCompletedInstall(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	userID := seedRequestUser(t, sqlStore, "EMP202")
	otherID := seedRequestUser(t, sqlStore, "EMP203")

	if _, found, err := sqlStore.FindCompletedInstall(ctx, userID, "numpy"); err != nil || found {
		t.Fatalf("expected no prior install, found=%v err=%v", found, err)
	}

	requestID, err := sqlStore.LogPending(ctx, userID, "NumPy", "1.26.0")
	if err != nil {
		t.Fatalf("log pending: %v", err)
	}
	if err := sqlStore.MarkCompleted(ctx, requestID, "1.26.0"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	install, found, err := sqlStore.FindCompletedInstall(ctx, userID, "numpy")
	if err != nil {
		t.Fatalf("find completed install: %v", err)
	}
	if !found {
		t.Fatal("expected completed install to be found case-insensitively")
	}
	if install.Version != "1.26.0" {
		t.Fatalf("unexpected recorded version: %s", install.Version)
	}
	if install.CompletedAt.IsZero() {
		t.Fatal("expected completion timestamp")
	}

	// Completion belongs to a user, not the whole fleet.
	if _, found, err := sqlStore.FindCompletedInstall(ctx, otherID, "numpy"); err != nil || found {
		t.Fatalf("expected no install for other user, found=%v err=%v", found, err)
	}

	// Denied and failed rows never satisfy the idempotency check.
	failedID, err := sqlStore.LogPending(ctx, userID, "torch", "")
	if err != nil {
		t.Fatalf("log pending: %v", err)
	}
	if err := sqlStore.MarkFailed(ctx, failedID, "network error"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, found, err := sqlStore.FindCompletedInstall(ctx, userID, "torch"); err != nil || found {
		t.Fatalf("failed row must not count as installed, found=%v err=%v", found, err)
	}
}

func TestRecentRequestsNewestFirst(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	userID := seedRequestUser(t, sqlStore, "EMP204")

	for _, name := range []string{"numpy", "pandas", "requests"} {
		if _, err := sqlStore.LogPending(ctx, userID, name, ""); err != nil {
			t.Fatalf("log pending %s: %v", name, err)
		}
	}

	recent, err := sqlStore.RecentRequests(ctx, userID, 2)
	if err != nil {
		t.Fatalf("recent requests: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected limit applied, got %d rows", len(recent))
	}
	if recent[0].PackageName != "requests" || recent[1].PackageName != "pandas" {
		t.Fatalf("expected newest first, got %s then %s", recent[0].PackageName, recent[1].PackageName)
	}
}

func TestFailStalePending(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()
	userID := seedRequestUser(t, sqlStore, "EMP205")

	staleID, err := sqlStore.LogPending(ctx, userID, "seaborn", "")
	if err != nil {
		t.Fatalf("log pending: %v", err)
	}
	freshID, err := sqlStore.LogPending(ctx, userID, "matplotlib", "")
	if err != nil {
		t.Fatalf("log pending: %v", err)
	}

	// Everything logged so far is older than a cutoff in the future.
	swept, err := sqlStore.FailStalePending(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("sweep stale requests: %v", err)
	}
	if swept != 2 {
		t.Fatalf("expected 2 swept rows, got %d", swept)
	}

	for _, id := range []string{staleID, freshID} {
		item, err := sqlStore.LookupRequest(ctx, id)
		if err != nil {
			t.Fatalf("lookup request: %v", err)
		}
		if item.Status != RequestStatusFailed {
			t.Fatalf("expected failed status, got %s", item.Status)
		}
		if item.ErrorMessage != "abandoned before completion" {
			t.Fatalf("unexpected sweep message: %s", item.ErrorMessage)
		}
	}

	// Nothing pending remains, so a second sweep is a no-op.
	swept, err = sqlStore.FailStalePending(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected no-op sweep, got %d", swept)
	}
}

func seedRequestUser(t *testing.T, sqlStore *Store, employeeID string) string {
	t.Helper()
	user, err := sqlStore.CreateUser(context.Background(), CreateUserInput{
		Name:       "Test User " + employeeID,
		EmployeeID: employeeID,
		Role:       "Associate Software Engineer",
		Password:   "secret",
	})
	if err != nil {
		t.Fatalf("seed request user: %v", err)
	}
	return user.ID
}
