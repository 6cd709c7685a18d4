package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrorCode identifies a domain error on the wire. The RPC runtime
// serializes errors by code so the gateway can reconstruct the typed value
// on its side of the queue.
type ErrorCode string

const (
	CodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	CodeInstrumentNotFound ErrorCode = "INSTRUMENT_NOT_FOUND"
	CodeOrderNotFound      ErrorCode = "ORDER_NOT_FOUND"
	CodeInstrumentExists   ErrorCode = "INSTRUMENT_ALREADY_EXISTS"
	CodeInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	CodeCannotCancel       ErrorCode = "CANNOT_CANCEL"
	CodeCritical           ErrorCode = "CRITICAL"
	CodeRequestTimeout     ErrorCode = "REQUEST_TIMEOUT"
)

type UserNotFoundError struct {
	ID uuid.UUID `json:"id"`
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %s not found", e.ID)
}

type InstrumentNotFoundError struct {
	Ticker string `json:"ticker"`
}

func (e *InstrumentNotFoundError) Error() string {
	return fmt.Sprintf("instrument %s not found", e.Ticker)
}

type OrderNotFoundError struct {
	ID uuid.UUID `json:"id"`
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.ID)
}

type InstrumentAlreadyExistsError struct {
	Ticker string `json:"ticker"`
}

func (e *InstrumentAlreadyExistsError) Error() string {
	return fmt.Sprintf("instrument %s already exists", e.Ticker)
}

type InsufficientFundsError struct {
	UserID    uuid.UUID `json:"user_id"`
	Requested int64     `json:"requested"`
	Available int64     `json:"available"`
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("user %s has insufficient funds: requested %d, available %d",
		e.UserID, e.Requested, e.Available)
}

type CannotCancelError struct {
	Reason string `json:"reason"`
}

func (e *CannotCancelError) Error() string {
	return "cannot cancel order: " + e.Reason
}

// CriticalError marks an unexpected condition: a database failure or an
// invariant violation during settlement. It aborts the enclosing
// transaction and maps to HTTP 500.
type CriticalError struct {
	Message string `json:"message"`
}

func (e *CriticalError) Error() string {
	return "critical: " + e.Message
}

// Criticalf builds a CriticalError with a formatted message.
func Criticalf(format string, args ...any) *CriticalError {
	return &CriticalError{Message: fmt.Sprintf(format, args...)}
}

// RequestTimeoutError is raised only at the gateway, when a job's result
// future does not complete within the RPC deadline. The worker job itself
// still runs to completion.
type RequestTimeoutError struct{}

func (e *RequestTimeoutError) Error() string { return "request timed out" }

// WireError is the serialized form of a domain error. Only the fields
// relevant to the code are populated.
type WireError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	ID        uuid.UUID `json:"id,omitempty"`
	Ticker    string    `json:"ticker,omitempty"`
	Requested int64     `json:"requested,omitempty"`
	Available int64     `json:"available,omitempty"`
}

// EncodeError converts an error into its wire form. Unknown errors are
// reported as CRITICAL; their message is loggable but carries no state.
func EncodeError(err error) *WireError {
	switch e := err.(type) {
	case *UserNotFoundError:
		return &WireError{Code: CodeUserNotFound, Message: e.Error(), ID: e.ID}
	case *InstrumentNotFoundError:
		return &WireError{Code: CodeInstrumentNotFound, Message: e.Error(), Ticker: e.Ticker}
	case *OrderNotFoundError:
		return &WireError{Code: CodeOrderNotFound, Message: e.Error(), ID: e.ID}
	case *InstrumentAlreadyExistsError:
		return &WireError{Code: CodeInstrumentExists, Message: e.Error(), Ticker: e.Ticker}
	case *InsufficientFundsError:
		return &WireError{
			Code:      CodeInsufficientFunds,
			Message:   e.Error(),
			ID:        e.UserID,
			Requested: e.Requested,
			Available: e.Available,
		}
	case *CannotCancelError:
		return &WireError{Code: CodeCannotCancel, Message: e.Reason}
	case *CriticalError:
		return &WireError{Code: CodeCritical, Message: e.Message}
	case *RequestTimeoutError:
		return &WireError{Code: CodeRequestTimeout, Message: e.Error()}
	default:
		return &WireError{Code: CodeCritical, Message: err.Error()}
	}
}

// Err reconstructs the typed error from its wire form.
func (w *WireError) Err() error {
	switch w.Code {
	case CodeUserNotFound:
		return &UserNotFoundError{ID: w.ID}
	case CodeInstrumentNotFound:
		return &InstrumentNotFoundError{Ticker: w.Ticker}
	case CodeOrderNotFound:
		return &OrderNotFoundError{ID: w.ID}
	case CodeInstrumentExists:
		return &InstrumentAlreadyExistsError{Ticker: w.Ticker}
	case CodeInsufficientFunds:
		return &InsufficientFundsError{UserID: w.ID, Requested: w.Requested, Available: w.Available}
	case CodeCannotCancel:
		return &CannotCancelError{Reason: w.Message}
	case CodeRequestTimeout:
		return &RequestTimeoutError{}
	default:
		return &CriticalError{Message: w.Message}
	}
}
