package tenure

import (
	"errors"
	"fmt"

	"github.com/xraph/tenure/asset"
	"github.com/xraph/tenure/lock"
	"github.com/xraph/tenure/payment"
	"github.com/xraph/tenure/replay"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/subscription"
	"github.com/xraph/tenure/voucher"
)

// Sentinel errors for common failure scenarios. Errors owned by a
// sub-package are re-exported here so callers need only this package.
var (
	// General errors
	ErrNotFound     = errors.New("tenure: not found")
	ErrInvalidInput = errors.New("tenure: invalid input")

	// Voucher errors
	ErrMalformedSignature = voucher.ErrMalformedSignature
	ErrUnauthorizedSigner = errors.New("tenure: voucher not signed by authority")
	ErrInvalidVoucher     = voucher.ErrInvalidVoucher
	ErrInvalidDuration    = subscription.ErrInvalidDuration
	ErrReplayedSignature  = replay.ErrReplayedSignature
	ErrVoucherExpired     = errors.New("tenure: voucher expired")

	// Payment errors
	ErrPaymentMismatch = errors.New("tenure: payment does not match price")
	ErrPayoutFailed    = payment.ErrPayoutFailed
	ErrFeeOverflow     = subscription.ErrFeeOverflow

	// Subscription errors
	ErrNotRenewable = subscription.ErrNotRenewable

	// Registry errors
	ErrNotAuthorized = asset.ErrNotAuthorized
	ErrSystemPaused  = asset.ErrSystemPaused
	ErrAssetNotFound = asset.ErrAssetNotFound
	ErrInvalidOwner  = asset.ErrInvalidOwner

	// Store errors
	ErrAlreadyExists     = store.ErrAlreadyExists
	ErrStoreClosed       = store.ErrStoreClosed
	ErrTransactionFailed = store.ErrTransactionFailed
	ErrMigrationFailed   = store.ErrMigrationFailed

	// Lock errors
	ErrLockNotAcquired = lock.ErrLockNotAcquired
)

// ValidationError represents a validation failure with details. Err, when
// set, is the underlying cause.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tenure: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func (e ValidationError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tenure: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tenure: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAssetNotFound)
}

// IsVoucherError returns true if the voucher itself was rejected: bad
// signature, wrong signer, zero duration, reuse or staleness.
func IsVoucherError(err error) bool {
	return errors.Is(err, ErrMalformedSignature) ||
		errors.Is(err, ErrUnauthorizedSigner) ||
		errors.Is(err, ErrInvalidVoucher) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrReplayedSignature) ||
		errors.Is(err, ErrVoucherExpired)
}

// IsPaymentError returns true if the error concerns the payment offered or
// its delivery to the authority.
func IsPaymentError(err error) bool {
	return errors.Is(err, ErrPaymentMismatch) ||
		errors.Is(err, ErrPayoutFailed)
}

// IsAuthorizationError returns true if the caller may not perform the
// operation in the current state.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrSystemPaused)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
// Domain errors are terminal; only infrastructure failures qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrLockNotAcquired)
}
