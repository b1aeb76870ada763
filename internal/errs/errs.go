// Package errs defines the stable error kinds surfaced by the engines.
// Callers switch on Code rather than on message text.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error kind.
type Code string

// Validation.
const (
	InvalidAmount    Code = "InvalidAmount"
	InvalidType      Code = "InvalidType"
	InvalidDate      Code = "InvalidDate"
	InvalidCurrency  Code = "InvalidCurrency"
	InvalidArgument  Code = "InvalidArgument"
	AccountRequired  Code = "AccountRequired"
	AccountsRequired Code = "AccountsRequired"
	DebtRequired     Code = "DebtRequired"
	NameRequired     Code = "NameRequired"
)

// Referential.
const (
	AccountNotFound  Code = "AccountNotFound"
	DebtNotFound     Code = "DebtNotFound"
	NotFound         Code = "NotFound"
	TxNotFound       Code = "TxNotFound"
	TemplateNotFound Code = "TemplateNotFound"
	BudgetNotFound   Code = "BudgetNotFound"
	GoalNotFound     Code = "GoalNotFound"
	CurrencyNotFound Code = "CurrencyNotFound"
	AccountInUse     Code = "AccountInUse"
	DebtHasPayments  Code = "DebtHasPayments"
)

// Invariant violations.
const (
	BalanceNegative       Code = "BalanceNegative"
	DebtRemainingNegative Code = "DebtRemainingNegative"
	SameAccount           Code = "SameAccount"
	InvalidRate           Code = "InvalidRate"
)

// Authorization.
const (
	Unauthorized Code = "Unauthorized"
	Forbidden    Code = "Forbidden"
)

// Error is a structured engine error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Cause == nil {
		return string(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so errors.Is(err, errs.New(X))
// works without comparing messages.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New returns an error of the given kind with no message.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Newf returns an error of the given kind with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the kind of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Has reports whether err carries the given kind.
func Has(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsValidation reports whether code is an input-validation kind.
func IsValidation(code Code) bool {
	switch code {
	case InvalidAmount, InvalidType, InvalidDate, InvalidCurrency, InvalidArgument,
		AccountRequired, AccountsRequired, DebtRequired, NameRequired:
		return true
	}
	return false
}

// IsReferential reports whether code refers to a missing or referenced document.
func IsReferential(code Code) bool {
	switch code {
	case AccountNotFound, DebtNotFound, NotFound, TxNotFound, TemplateNotFound,
		BudgetNotFound, GoalNotFound, CurrencyNotFound:
		return true
	}
	return false
}
