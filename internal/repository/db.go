package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrResetTokenNotFound = errors.New("reset token not found or expired")
)

// NewDB creates a MySQL connection pool for dsn and waits until the server
// answers a ping, retrying with exponential backoff up to retries times.
func NewDB(ctx context.Context, dsn string, retries uint64, logger *slog.Logger) (*sql.DB, error) {
	dsn, err := normalizeDSN(dsn)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_DSN").With("driver", "mysql").Wrap(err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("driver", "mysql").Wrap(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := pingWithRetry(ctx, retries, logger, "mysql", db.PingContext); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// normalizeDSN forces the driver options the repositories rely on: time
// columns scanned as UTC time.Time, and matched (not changed) rows reported
// by UPDATE.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

func pingWithRetry(ctx context.Context, retries uint64, logger *slog.Logger, backend string, ping func(context.Context) error) error {
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(500*time.Millisecond))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := ping(pingCtx); err != nil {
			logger.Warn("database ping failed", "backend", backend, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").With("backend", backend).With("attempts", attempt).Wrap(err)
	}
	return nil
}

// isDuplicateEntryError checks if a MySQL error is a duplicate entry error (code 1062).
func isDuplicateEntryError(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// storeError wraps an unexpected driver error with the failing operation.
func storeError(backend, operation string, err error) error {
	return oops.Code("STORE_QUERY_FAILED").
		With("backend", backend).
		With("operation", operation).
		Wrap(err)
}
