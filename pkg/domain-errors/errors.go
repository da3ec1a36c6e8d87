// Package domainerrors defines coded domain errors. Every caller-visible
// failure carries a stable machine-checkable code; services construct these,
// infrastructure layers return sentinel errors and are translated at the
// service boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	// Input and lookup failures.
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInternal     Code = "INTERNAL"
	CodeTimeout      Code = "TIMEOUT"

	// Transfer preconditions.
	CodeNotOwner               Code = "NOT_OWNER"
	CodeNotPending             Code = "NOT_PENDING"
	CodeNotInitiator           Code = "NOT_INITIATOR"
	CodeNotAuthorized          Code = "NOT_AUTHORIZED"
	CodeTransferAlreadyPending Code = "TRANSFER_ALREADY_PENDING"
	CodeRecipientNotFound      Code = "RECIPIENT_NOT_FOUND"
	CodeRecipientMissingWallet Code = "RECIPIENT_MISSING_WALLET"
	CodeSelfTransfer           Code = "SELF_TRANSFER"
	CodeNotOnChain             Code = "NOT_ON_CHAIN"

	// Registration preconditions.
	CodeNotVerified       Code = "NOT_VERIFIED"
	CodeAlreadyRegistered Code = "ALREADY_REGISTERED"
	CodeMissingWallet     Code = "MISSING_WALLET"

	// On-chain authorization.
	CodeNotAuthorizedOnChain Code = "NOT_AUTHORIZED_ON_CHAIN"

	// Chain errors. Unavailable and Timeout mean unknown outcome: safe to
	// re-check the chain before resubmitting. Rejected is terminal for the
	// attempt.
	CodeChainUnavailable Code = "CHAIN_UNAVAILABLE"
	CodeChainTimeout     Code = "CHAIN_TIMEOUT"
	CodeChainRejected    Code = "CHAIN_REJECTED"
)

// Error is a coded domain error with optional structured detail.
type Error struct {
	Code    Code
	Message string
	Err     error
	Details map[string]string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a structured detail field and returns the error for
// chaining. Used for actionable errors such as NOT_AUTHORIZED_ON_CHAIN, which
// must name who has to approve whom.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the failed operation has an unknown outcome and
// may safely be re-checked and retried.
func (e *Error) Retryable() bool {
	return e.Code == CodeChainUnavailable || e.Code == CodeChainTimeout || e.Code == CodeTimeout
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the domain code from an error chain, or CodeInternal when
// the error carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether err is a retryable domain error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
