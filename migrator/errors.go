package migrator

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by this package wraps exactly one of
// them, so callers can branch with errors.Is or Classify.
var (
	// ErrInput is caller-fixable and never retried internally.
	ErrInput = errors.New("input error")
	// ErrExternalRejection means a user or contract declined a request.
	ErrExternalRejection = errors.New("external rejection")
	// ErrTransient is a chain read or network failure; re-poll and retry.
	ErrTransient = errors.New("transient external failure")
	// ErrInvariant indicates a logic defect. The migration flow must abort.
	ErrInvariant = errors.New("invariant violation")
)

var (
	ErrInsufficientSupply   = fmt.Errorf("%w: pool has no share supply", ErrInput)
	ErrBalanceExceedsSupply = fmt.Errorf("%w: share balance exceeds total supply", ErrInput)
	ErrInvalidRange         = fmt.Errorf("%w: invalid price range", ErrInput)
	ErrInvalidTolerance     = fmt.Errorf("%w: slippage tolerance must be within [0, 10000] bps", ErrInput)
	ErrUnsupportedFee       = fmt.Errorf("%w: unsupported fee tier", ErrInput)
	ErrNoSourcePrice        = fmt.Errorf("%w: source pool has no price", ErrInput)
	ErrNoBalance            = fmt.Errorf("%w: nothing to migrate", ErrInput)
	ErrNotReady             = fmt.Errorf("%w: migration is not ready to submit", ErrInput)
	ErrMigrationInFlight    = fmt.Errorf("%w: a migration is already in flight", ErrInput)
	ErrDeadlineExpired      = fmt.Errorf("%w: deadline is not after the current block", ErrInput)
	ErrNoSnapshot           = fmt.Errorf("%w: no snapshot computed yet", ErrInput)
	ErrNoBlock              = fmt.Errorf("%w: no block observed", ErrInput)

	ErrUserRejected        = fmt.Errorf("%w: user rejected the request", ErrExternalRejection)
	ErrTransactionReverted = fmt.Errorf("%w: transaction reverted", ErrExternalRejection)

	ErrNegativeRefund         = fmt.Errorf("%w: refund would be negative", ErrInvariant)
	ErrAmountsExceedValuation = fmt.Errorf("%w: projected deposit exceeds valued amounts", ErrInvariant)
	ErrPlanOrdering           = fmt.Errorf("%w: plan actions out of order", ErrInvariant)
	ErrPlanConsumed           = fmt.Errorf("%w: plan already submitted", ErrInvariant)
)

// Classify returns the class err belongs to. Errors from outside the package
// that carry no class are treated as transient.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvariant):
		return ErrInvariant
	case errors.Is(err, ErrInput):
		return ErrInput
	case errors.Is(err, ErrExternalRejection):
		return ErrExternalRejection
	default:
		return ErrTransient
	}
}

// Transient wraps a collaborator failure as retryable unless it already
// carries a class.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInput) || errors.Is(err, ErrExternalRejection) ||
		errors.Is(err, ErrInvariant) || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
