// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Code is the stable machine-readable identifier carried by every
// business error surfaced to callers.
type Code string

const (
	// CodeInvalidRequest means the request failed validation; no side effects.
	CodeInvalidRequest Code = "INVALID_REQUEST"
	// CodeInvalidAddress means the destination or wallet address is malformed.
	CodeInvalidAddress Code = "INVALID_ADDRESS"
	// CodeInvalidToken means the token symbol is missing or empty.
	CodeInvalidToken Code = "INVALID_TOKEN"
	// CodeInvalidAmount means the amount is missing, zero or negative.
	CodeInvalidAmount Code = "INVALID_AMOUNT"
	// CodeRateLimited means admission was denied by the withdrawal rate limiter.
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeInsufficientBalance means the ledger balance is lower than requested.
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	// CodeTokenNotFound means the referenced token is not registered.
	CodeTokenNotFound Code = "TOKEN_NOT_FOUND"
	// CodeUnknownUser means the referenced user does not exist.
	CodeUnknownUser Code = "UNKNOWN_USER"
	// CodeBalanceNotFound means no ledger row exists for the (user, token) pair.
	CodeBalanceNotFound Code = "BALANCE_NOT_FOUND"
	// CodeExternalTransferFailed means the chain submission failed terminally;
	// the reservation has been compensated before this error is returned.
	CodeExternalTransferFailed Code = "EXTERNAL_TRANSFER_FAILED"
	// CodeAmbiguousExternalResult means the chain submission may or may not have
	// landed. The reservation stands and an operator must reconcile manually.
	CodeAmbiguousExternalResult Code = "AMBIGUOUS_EXTERNAL_RESULT"
	// CodeInternal is the catch-all for unexpected failures.
	CodeInternal Code = "INTERNAL_ERROR"
)

// ServiceError represents service specific type that
// is used all over the services.
type ServiceError struct {
	Code    Code
	Message string
	Err     error
}

// Error method to comply with error interface
func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err *ServiceError) Unwrap() error {
	return err.Err
}

// Is implements the custom condition to check an error is equal to a service error
func (err *ServiceError) Is(target error) bool {
	var svcErr *ServiceError
	if errors.As(target, &svcErr) {
		return err.Code == svcErr.Code
	}
	return err.Message == target.Error()
}

// HasCode checks that the provided error is a ServiceError with the desired Code
func HasCode(err error, code Code) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Code == code {
		return true
	}
	return false
}

// CodeOf extracts the stable code from an error, falling back to CodeInternal.
func CodeOf(err error) Code {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return CodeInternal
}

// New creates a ServiceError with the given code and message.
// The error object provided is logged in the logger, not returned to the user.
func New(code Code, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// InvalidRequestError returns an error with code CodeInvalidRequest
// the error message provided is returned to the user
func InvalidRequestError(err error, message string) error {
	return New(CodeInvalidRequest, err, message)
}

// RateLimitedError returns an error with code CodeRateLimited
func RateLimitedError(message string) error {
	return New(CodeRateLimited, nil, message)
}

// InsufficientBalanceError returns an error with code CodeInsufficientBalance
func InsufficientBalanceError(err error, message string) error {
	return New(CodeInsufficientBalance, err, message)
}

// TokenNotFoundError returns an error with code CodeTokenNotFound
func TokenNotFoundError(err error, message string) error {
	return New(CodeTokenNotFound, err, message)
}

// GeneralError returns a catch-all internal error.
// The error message sent to the user is "Internal Server Error";
// the error passed is logged in the logger.
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &ServiceError{
		Code:    CodeInternal,
		Message: "Internal Server Error",
		Err:     err,
	}
}

// IsInternalError checks that the provided error is an unexpected system error
// rather than a business failure with a dedicated code.
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code == CodeInternal
	}
	return true
}

// StatusCode returns the HTTP status code for the error code
func (err *ServiceError) StatusCode() int {
	switch err.Code {
	case CodeInvalidRequest, CodeInvalidAddress, CodeInvalidToken, CodeInvalidAmount:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case CodeTokenNotFound, CodeUnknownUser, CodeBalanceNotFound:
		return http.StatusNotFound
	case CodeExternalTransferFailed:
		return http.StatusBadGateway
	case CodeAmbiguousExternalResult:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
