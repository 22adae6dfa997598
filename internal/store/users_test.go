package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestCreateAndAuthenticateUser(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	created, err := sqlStore.CreateUser(ctx, CreateUserInput{
		Name:       "Ada Lovelace",
		EmployeeID: "EMP100",
		Role:       "Senior Software Engineer",
		Password:   "correct-horse",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected user id")
	}

	user, err := sqlStore.Authenticate(ctx, "EMP100", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Name != "Ada Lovelace" {
		t.Fatalf("unexpected user name: %s", user.Name)
	}
	if user.Role != "Senior Software Engineer" {
		t.Fatalf("unexpected role: %s", user.Role)
	}

	if _, err := sqlStore.Authenticate(ctx, "EMP100", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := sqlStore.Authenticate(ctx, "EMP404", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown employee, got %v", err)
	}
}

func TestGetUserByEmployeeID(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	if _, err := sqlStore.GetUserByEmployeeID(ctx, "EMP404"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}

	if _, err := sqlStore.CreateUser(ctx, CreateUserInput{
		Name:       "Grace Hopper",
		EmployeeID: "EMP101",
		Role:       "Lead Software Engineer",
		Password:   "cobol",
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	user, err := sqlStore.GetUserByEmployeeID(ctx, "EMP101")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.EmployeeID != "EMP101" {
		t.Fatalf("unexpected employee id: %s", user.EmployeeID)
	}
}

func TestSeedTestUsersIsIdempotent(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	if err := sqlStore.SeedTestUsers(ctx); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	if err := sqlStore.SeedTestUsers(ctx); err != nil {
		t.Fatalf("second seed should be a no-op: %v", err)
	}

	user, err := sqlStore.Authenticate(ctx, "EMP001", "password123")
	if err != nil {
		t.Fatalf("authenticate seeded user: %v", err)
	}
	if user.Role != "Associate Software Engineer" {
		t.Fatalf("unexpected seeded role: %s", user.Role)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "setup_desk_test.sqlite")
	sqlStore, err := New(dbPath)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return sqlStore
}
