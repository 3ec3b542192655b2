package apperror

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Postgres SQLSTATE codes referenced by the conversion rules in the error
// taxonomy (§7 of the specification).
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateDeadlockDetected    = "40P01"
	sqlStateSerializationFail   = "40001"
)

// FromDB converts a database-layer error into the taxonomy's structured
// Error, following the conversion table: row-not-found -> 1300, unique
// violation -> 1401, FK violation -> 1202, pool/acquire timeout -> 1602,
// deadlock/serialization -> retryable database errors, anything else -> 1600.
func FromDB(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr := As(err); appErr != nil {
		return appErr
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(CodeNotFound, "resource not found", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodePoolTimeout, "database operation timed out", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return Wrap(CodeUniqueConflict, "unique constraint violated", err).WithDetails(pgErr.ConstraintName)
		case sqlStateForeignKeyViolation:
			return Wrap(CodeInvalidFKRef, "referenced row does not exist", err).WithDetails(pgErr.ConstraintName)
		case sqlStateDeadlockDetected:
			return Wrap(CodeDeadlock, "deadlock detected", err)
		case sqlStateSerializationFail:
			return Wrap(CodeSerialization, "serialization failure", err)
		}
	}

	return Wrap(CodeDatabase, "database error", err)
}

// FromCache converts a cache-store (Redis) error into the taxonomy's
// structured Error. redis.Nil (key miss) is not an error condition and is
// never passed to this function by callers.
func FromCache(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr := As(err); appErr != nil {
		return appErr
	}
	if errors.Is(err, redis.Nil) {
		return Wrap(CodeCacheUnavailable, "cache key not found", err)
	}
	return Wrap(CodeCacheUnavailable, "cache store unavailable", err)
}

// FromJSON converts a JSON decode error into a validation Error.
func FromJSON(err error) *Error {
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return Wrap(CodeValidation, "malformed JSON request body", err)
	}
	return Wrap(CodeValidation, "invalid request body", err)
}

// IsRetryableDB reports whether err, when converted via FromDB, is
// classified retryable. Writers (§4.5) use this to decide whether to retry
// a bulk-copy or batch-insert operation.
func IsRetryableDB(err error) bool {
	return FromDB(err).Code.Retryable()
}
