package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrStorageUnavailable is returned when a transient storage error persists
// through every retry attempt.
var ErrStorageUnavailable = errors.New("storage unavailable")

const (
	retryBaseDelay   = 100 * time.Millisecond
	retryMaxDelay    = 2 * time.Second
	retryMaxAttempts = 3
)

// WithRetry runs op, retrying transient storage errors with exponential
// backoff and jitter, up to three attempts in total. The jitter matters:
// the server and the trigger daemon can collide on the same rows from
// separate processes, and synchronized retries would just collide again.
// Structural errors (constraint violations, bad SQL) are never retried.
func WithRetry(ctx context.Context, logger *zap.Logger, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBaseDelay
	b.MaxInterval = retryMaxDelay

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		if logger != nil {
			logger.Warn("transient_storage_error_retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}

	err := backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, retryMaxAttempts-1), ctx))
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	if IsTransient(err) {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return err
}

// IsTransient classifies an error as retryable: lock contention, connection
// trouble, timeouts and IO failures. Constraint violations and other
// structural errors are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", // serialization_failure
			"40P01",  // deadlock_detected
			"55P03",  // lock_not_available
			"53300",  // too_many_connections
			"57P03",  // cannot_connect_now
			"57014",  // query_canceled (statement timeout)
			"08000", "08003", "08006": // connection exceptions
			return true
		}
		// Everything else from the server (23xxx constraints, 42xxx syntax)
		// is structural.
		return false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
