package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRequestNotFound = errors.New("request not found")
	// ErrRequestNotPending is returned when a terminal mark targets a request
	// that already reached a terminal status. Status transitions are
	// monotonic: pending moves to exactly one of completed, denied or failed.
	ErrRequestNotPending = errors.New("request is not pending")
)

const (
	RequestStatusPending   = "pending"
	RequestStatusCompleted = "completed"
	RequestStatusDenied    = "denied"
	RequestStatusFailed    = "failed"
)

type Request struct {
	ID           string
	UserID       string
	PackageName  string
	Version      string
	Status       string
	RequestTime  time.Time
	CompleteTime time.Time
	ErrorMessage string
}

type CompletedInstall struct {
	Version     string
	CompletedAt time.Time
}

// LogPending records a new installation request and returns its id.
func (s *Store) LogPending(ctx context.Context, userID, packageName, version string) (string, error) {
	packageName = strings.TrimSpace(packageName)
	if strings.TrimSpace(userID) == "" || packageName == "" {
		return "", fmt.Errorf("user id and package name are required")
	}

	requestID := uuid.NewString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO requests (id, user_id, package_name, version, status, request_time_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		requestID,
		userID,
		packageName,
		nullIfEmpty(strings.TrimSpace(version)),
		RequestStatusPending,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert request: %w", err)
	}
	return requestID, nil
}

func (s *Store) MarkCompleted(ctx context.Context, requestID, version string) error {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE requests
		 SET status = ?, version = ?, complete_time_unix = ?
		 WHERE id = ? AND status = ?`,
		RequestStatusCompleted,
		nullIfEmpty(strings.TrimSpace(version)),
		time.Now().UTC().Unix(),
		requestID,
		RequestStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark request completed: %w", err)
	}
	return checkTerminalWrite(ctx, s, result, requestID)
}

func (s *Store) MarkDenied(ctx context.Context, requestID, reason string) error {
	return s.markTerminalFailure(ctx, requestID, RequestStatusDenied, reason)
}

func (s *Store) MarkFailed(ctx context.Context, requestID, reason string) error {
	return s.markTerminalFailure(ctx, requestID, RequestStatusFailed, reason)
}

func (s *Store) markTerminalFailure(ctx context.Context, requestID, status, reason string) error {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE requests
		 SET status = ?, error_message = ?, complete_time_unix = ?
		 WHERE id = ? AND status = ?`,
		status,
		nullIfEmpty(strings.TrimSpace(reason)),
		time.Now().UTC().Unix(),
		requestID,
		RequestStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark request %s: %w", status, err)
	}
	return checkTerminalWrite(ctx, s, result, requestID)
}

// FindCompletedInstall is the idempotency oracle: it reports the most recent
// completed installation of a package for a user, matching the base package
// name case-insensitively.
func (s *Store) FindCompletedInstall(ctx context.Context, userID, packageName string) (CompletedInstall, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT version, complete_time_unix
		 FROM requests
		 WHERE user_id = ? AND status = ? AND lower(package_name) = lower(?)
		 ORDER BY complete_time_unix DESC
		 LIMIT 1`,
		userID,
		RequestStatusCompleted,
		strings.TrimSpace(packageName),
	)

	var version sql.NullString
	var completeTimeUnix sql.NullInt64
	err := row.Scan(&version, &completeTimeUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return CompletedInstall{}, false, nil
	}
	if err != nil {
		return CompletedInstall{}, false, fmt.Errorf("lookup completed install: %w", err)
	}

	install := CompletedInstall{Version: "latest"}
	if version.Valid && strings.TrimSpace(version.String) != "" {
		install.Version = version.String
	}
	if completeTimeUnix.Valid {
		install.CompletedAt = time.Unix(completeTimeUnix.Int64, 0).UTC()
	}
	return install, true, nil
}

// RecentRequests returns the newest requests first.
func (s *Store) RecentRequests(ctx context.Context, userID string, limit int) ([]Request, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, package_name, version, status, request_time_unix, complete_time_unix, error_message
		 FROM requests
		 WHERE user_id = ?
		 ORDER BY request_time_unix DESC, rowid DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent requests: %w", err)
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		item, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent requests: %w", err)
	}
	return requests, nil
}

// FailStalePending marks pending requests older than the cutoff as failed and
// returns how many rows were swept.
func (s *Store) FailStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE requests
		 SET status = ?, error_message = ?, complete_time_unix = ?
		 WHERE status = ? AND request_time_unix < ?`,
		RequestStatusFailed,
		"abandoned before completion",
		time.Now().UTC().Unix(),
		RequestStatusPending,
		olderThan.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stale requests: %w", err)
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count swept requests: %w", err)
	}
	return swept, nil
}

func (s *Store) LookupRequest(ctx context.Context, requestID string) (Request, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, package_name, version, status, request_time_unix, complete_time_unix, error_message
		 FROM requests WHERE id = ?`,
		requestID,
	)
	item, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrRequestNotFound
	}
	return item, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (Request, error) {
	var item Request
	var version sql.NullString
	var requestTimeUnix int64
	var completeTimeUnix sql.NullInt64
	var errorMessage sql.NullString

	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.PackageName,
		&version,
		&item.Status,
		&requestTimeUnix,
		&completeTimeUnix,
		&errorMessage,
	)
	if err != nil {
		return Request{}, err
	}
	item.Version = version.String
	item.RequestTime = time.Unix(requestTimeUnix, 0).UTC()
	if completeTimeUnix.Valid {
		item.CompleteTime = time.Unix(completeTimeUnix.Int64, 0).UTC()
	}
	item.ErrorMessage = errorMessage.String
	return item, nil
}

func checkTerminalWrite(ctx context.Context, s *Store, result sql.Result, requestID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check terminal write: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.LookupRequest(ctx, requestID); errors.Is(err, ErrRequestNotFound) {
		return ErrRequestNotFound
	}
	return ErrRequestNotPending
}
