package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports bad user input. The operation was not attempted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NotFoundError reports a missing stock, staff member or shop.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ConflictError reports a write built from a stale version of a record.
type ConflictError struct {
	Entity string
	ID     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q was modified concurrently", e.Entity, e.ID)
}

type UnauthorizedError struct {
	Msg string
}

func (e *UnauthorizedError) Error() string { return e.Msg }

// ForbiddenError reports a caller whose role may not perform the operation.
type ForbiddenError struct {
	Op string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s is not permitted for this role", e.Op)
}

// BackendError wraps a persistence, cache or queue failure. Msg is safe to show
// to the user; Err carries the cause.
type BackendError struct {
	Msg string
	Err error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *BackendError) Unwrap() error { return e.Err }

func Backend(msg string, err error) error {
	return &BackendError{Msg: msg, Err: err}
}

var (
	ErrIncompleteSale     = &ValidationError{Msg: "Fill all fields correctly."}
	ErrInsufficientStock  = &ValidationError{Msg: "Not enough stock."}
	ErrDuplicateRequest   = &ValidationError{Msg: "Duplicate request."}
	ErrInvalidStock       = &ValidationError{Msg: "Name is required and count must be greater than zero."}
	ErrInvalidCredentials = &UnauthorizedError{Msg: "Invalid credentials."}
	ErrInvalidShopCode    = &UnauthorizedError{Msg: "Invalid shop code."}
	ErrInvalidStaffID     = &UnauthorizedError{Msg: "Invalid staff ID."}
	ErrStaffInactive      = &UnauthorizedError{Msg: "Staff is not active."}
	ErrInvalidToken       = &UnauthorizedError{Msg: "Session expired or invalid."}
)

const (
	MsgStockUpdateFailed  = "Failed to update stock."
	MsgStockCreateFailed  = "Failed to add stock."
	MsgStockDeleteFailed  = "Failed to delete stock."
	MsgLoadFailed         = "Failed to load data."
	MsgSignInFailed       = "Sign in failed."
	MsgStaffUpdateFailed  = "Failed to update staff."
	MsgReportFailed       = "Failed to export report."
	MsgOwnerMobileMissing = "Owner's mobile number not found."
	MsgNotifyFailed       = "Failed to notify owner."
	msgGeneric            = "Something went wrong."
)

// UserMessage turns any error into the message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		validation   *ValidationError
		notFound     *NotFoundError
		conflict     *ConflictError
		unauthorized *UnauthorizedError
		forbidden    *ForbiddenError
		backend      *BackendError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Msg
	case errors.As(err, &notFound):
		return notFoundMessage(notFound.Entity)
	case errors.As(err, &conflict):
		return "This record was changed by someone else. Reload and try again."
	case errors.As(err, &unauthorized):
		return unauthorized.Msg
	case errors.As(err, &forbidden):
		return "You are not allowed to do that."
	case errors.As(err, &backend):
		return backend.Msg
	}
	return msgGeneric
}

func notFoundMessage(entity string) string {
	switch entity {
	case "stock":
		return "Stock not found."
	case "staff":
		return "Staff not found."
	case "shop":
		return "Shop not found."
	}
	return "Not found."
}
