package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID         string
	Name       string
	EmployeeID string
	Role       string
	CreatedAt  time.Time
}

type CreateUserInput struct {
	Name       string
	EmployeeID string
	Role       string
	Password   string
}

func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (s *Store) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	name := strings.TrimSpace(input.Name)
	employeeID := strings.TrimSpace(input.EmployeeID)
	role := strings.TrimSpace(input.Role)
	if name == "" || employeeID == "" || role == "" || input.Password == "" {
		return User{}, fmt.Errorf("name, employee id, role and password are required")
	}

	user := User{
		ID:         uuid.NewString(),
		Name:       name,
		EmployeeID: employeeID,
		Role:       role,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO users (id, name, employee_id, role, password_hash, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.EmployeeID,
		user.Role,
		HashPassword(input.Password),
		user.CreatedAt.Unix(),
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByEmployeeID(ctx context.Context, employeeID string) (User, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, employee_id, role, created_at_unix
		 FROM users WHERE employee_id = ?`,
		strings.TrimSpace(employeeID),
	)
	return scanUser(row)
}

// Authenticate verifies employee credentials and returns the user without
// exposing the stored password hash.
func (s *Store) Authenticate(ctx context.Context, employeeID, password string) (User, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, employee_id, role, created_at_unix, password_hash
		 FROM users WHERE employee_id = ?`,
		strings.TrimSpace(employeeID),
	)

	var user User
	var createdAtUnix int64
	var passwordHash string
	err := row.Scan(&user.ID, &user.Name, &user.EmployeeID, &user.Role, &createdAtUnix, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if passwordHash != HashPassword(password) {
		return User{}, ErrInvalidCredentials
	}
	user.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	return user, nil
}

// SeedTestUsers inserts the demo accounts when the users table is empty.
func (s *Store) SeedTestUsers(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	seeds := []CreateUserInput{
		{Name: "John Doe", EmployeeID: "EMP001", Role: "Associate Software Engineer", Password: "password123"},
		{Name: "Jane Smith", EmployeeID: "EMP002", Role: "Senior Software Engineer", Password: "password456"},
		{Name: "Mike Johnson", EmployeeID: "EMP003", Role: "Lead Software Engineer", Password: "password789"},
		{Name: "Sarah Williams", EmployeeID: "EMP004", Role: "Principal Software Engineer", Password: "passwordabc"},
		{Name: "David Brown", EmployeeID: "EMP005", Role: "Associate Software Engineer", Password: "passworddef"},
	}
	for _, seed := range seeds {
		if _, err := s.CreateUser(ctx, seed); err != nil {
			return fmt.Errorf("seed user %s: %w", seed.EmployeeID, err)
		}
	}
	return nil
}

func scanUser(row *sql.Row) (User, error) {
	var user User
	var createdAtUnix int64
	err := row.Scan(&user.ID, &user.Name, &user.EmployeeID, &user.Role, &createdAtUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	user.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	return user, nil
}
