package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the recoverable failure class reported to the presentation layer.
type ErrorKind string

const (
	KindNotFound             ErrorKind = "not_found"
	KindInvalidState         ErrorKind = "invalid_state"
	KindInsufficientResource ErrorKind = "insufficient_resource"
	KindValidation           ErrorKind = "validation"
	KindConflict             ErrorKind = "conflict"
	KindExpired              ErrorKind = "expired"
	KindAuth                 ErrorKind = "auth"
	KindUnavailable          ErrorKind = "unavailable"
	KindInternal             ErrorKind = "internal"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Status  int            `json:"-"`
	Cause   error          `json:"-"`
	kind    ErrorKind
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Kind returns the taxonomy class of the error.
func (e *AppError) Kind() ErrorKind { return e.kind }

// With attaches a detail entry and returns the error for chaining.
func (e *AppError) With(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsAppError unwraps err to an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.kind == kind
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404, kind: KindNotFound}
}

func ErrInvalidState(msg string) *AppError {
	return &AppError{Code: "INVALID_STATE", Message: msg, Status: 409, kind: KindInvalidState}
}

func ErrAlreadyInCombat(playerID int64, state PlayerState) *AppError {
	return (&AppError{
		Code:    "ALREADY_IN_COMBAT",
		Message: fmt.Sprintf("player %d is %s", playerID, state),
		Status:  409,
		kind:    KindInvalidState,
	}).With("state", string(state))
}

func ErrEncounterResolved(sessionID string) *AppError {
	return &AppError{Code: "ENCOUNTER_RESOLVED", Message: fmt.Sprintf("encounter %s already resolved", sessionID), Status: 409, kind: KindInvalidState}
}

func ErrInsufficientFunds(currency Currency, required, available int64) *AppError {
	return (&AppError{Code: "INSUFFICIENT_FUNDS", Message: fmt.Sprintf("insufficient %s", currency), Status: 422, kind: KindInsufficientResource}).
		With("currency", string(currency)).
		With("required", required).
		With("available", available)
}

func ErrInsufficientStock(itemID string, requested, stored int) *AppError {
	return (&AppError{Code: "INSUFFICIENT_STOCK", Message: fmt.Sprintf("insufficient stock of %s", itemID), Status: 422, kind: KindInsufficientResource}).
		With("item_id", itemID).
		With("requested", requested).
		With("stored", stored)
}

func ErrCapacityReached(msg string) *AppError {
	return &AppError{Code: "CAPACITY_REACHED", Message: msg, Status: 422, kind: KindInsufficientResource}
}

func ErrTradeLimit(limit string, limitValue, requested int64) *AppError {
	return (&AppError{Code: "TRADE_LIMIT_EXCEEDED", Message: fmt.Sprintf("%s limit exceeded", limit), Status: 422, kind: KindInsufficientResource}).
		With("limit", limit).
		With("limit_value", limitValue).
		With("requested", requested)
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400, kind: KindValidation}
}

func ErrInvalidAction(msg string) *AppError {
	return &AppError{Code: "INVALID_ACTION", Message: msg, Status: 400, kind: KindValidation}
}

func ErrInvalidLength(field string, min, max int) *AppError {
	return (&AppError{Code: "INVALID_LENGTH", Message: fmt.Sprintf("%s must be %d..%d characters", field, min, max), Status: 400, kind: KindValidation}).
		With("field", field)
}

func ErrNoExchangeRate(from, to Currency) *AppError {
	return &AppError{Code: "NO_EXCHANGE_RATE", Message: fmt.Sprintf("no exchange rate %s->%s", from, to), Status: 400, kind: KindValidation}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Status: 409, kind: KindConflict}
}

func ErrNameOrTagTaken(name, tag string) *AppError {
	return (&AppError{Code: "NAME_OR_TAG_TAKEN", Message: "guild name or tag already taken", Status: 409, kind: KindConflict}).
		With("name", name).
		With("tag", tag)
}

func ErrExpired(msg string) *AppError {
	return &AppError{Code: "EXPIRED", Message: msg, Status: 410, kind: KindExpired}
}

func ErrPlayerBusy(playerID int64) *AppError {
	return &AppError{Code: "PLAYER_BUSY", Message: fmt.Sprintf("player %d has an operation in flight", playerID), Status: 429, kind: KindUnavailable}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401, kind: KindAuth}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Status: 403, kind: KindAuth}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: "RATE_LIMITED", Message: msg, Status: 429, kind: KindUnavailable}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause, kind: KindInternal}
}
