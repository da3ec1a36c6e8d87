package chain

import (
	dErrors "landledger/pkg/domain-errors"
)

// Chain failures surface directly as coded domain errors so callers get the
// retryability hint without another translation layer.

// Unavailable wraps a failed read or a submission that never reached the
// ledger. Outcome unknown for submissions already sent; retryable.
func Unavailable(err error) *dErrors.Error {
	return dErrors.Wrap(err, dErrors.CodeChainUnavailable, "ledger unreachable")
}

// Timeout marks a submission whose receipt did not arrive within the bound.
// The transaction may still confirm; callers must re-check the chain before
// resubmitting.
func Timeout(err error) *dErrors.Error {
	return dErrors.Wrap(err, dErrors.CodeChainTimeout, "confirmation timed out; outcome unknown")
}

// Rejected marks a transaction the chain confirmed as failed, or a confirmed
// receipt missing the required event. Terminal for this attempt.
func Rejected(message string) *dErrors.Error {
	return dErrors.New(dErrors.CodeChainRejected, message)
}
