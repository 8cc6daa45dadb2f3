// Package apperr defines the error taxonomy shared by every clinic domain:
// validation failures, missing records, conflicting writes and store faults.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

// Kind classifies an Error. A Kind is itself an error so callers can write
// errors.Is(err, apperr.NotFound).
type Kind string

const (
	Validation Kind = "validation"
	NotFound   Kind = "not_found"
	Conflict   Kind = "conflict"
	Store      Kind = "store"
)

func (k Kind) Error() string { return string(k) }

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Error carries the kind, the failing operation and the entity involved.
type Error struct {
	Kind    Kind
	Op      string
	Entity  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	prefix := e.Op
	if e.Entity != "" {
		if prefix != "" {
			prefix += " "
		}
		prefix += e.Entity
	}
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func Validationf(entity, format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(op, entity, format string, args ...interface{}) *Error {
	return &Error{Kind: NotFound, Op: op, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(op, entity, format string, args ...interface{}) *Error {
	return &Error{Kind: Conflict, Op: op, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

func StoreErr(op, entity string, err error) *Error {
	return &Error{Kind: Store, Op: op, Entity: entity, Message: "store failure", Err: err}
}

// FromPG classifies an error returned by pgx. nil stays nil and errors that
// already carry a Kind pass through unchanged.
func FromPG(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: NotFound, Op: op, Entity: entity, Message: "not found"}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &Error{Kind: Conflict, Op: op, Entity: entity, Message: "duplicate " + pgErr.ConstraintName, Err: err}
	}
	return StoreErr(op, entity, err)
}

// KindOf returns the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err for an echo handler. Store faults are reported
// without their cause, which is kept as the internal error for logging.
func HTTPError(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}
