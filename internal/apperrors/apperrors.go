// Package apperrors defines the error taxonomy shared across every
// component: TransientIO, DataStale, ValidationReject, RiskReject,
// OrderRejected, Fatal. Only Fatal should ever reach the top of the
// control loop — everything else is logged and absorbed locally.
package apperrors

import "errors"

var (
	// ErrTransientIO marks a recoverable I/O failure (network blip, HTTP
	// timeout, websocket drop). Callers should retry with backoff.
	ErrTransientIO = errors.New("transient io error")

	// ErrDataStale marks data that exists but is too old to act on
	// (stale price, expired orderbook snapshot).
	ErrDataStale = errors.New("data stale")

	// ErrValidationReject marks input that failed a structural/semantic
	// check before ever reaching risk or execution (bad window parse,
	// malformed signal).
	ErrValidationReject = errors.New("validation rejected")

	// ErrRiskReject marks a trade blocked by the risk gate.
	ErrRiskReject = errors.New("risk rejected")

	// ErrOrderRejected marks an order the exchange refused to accept or
	// fill.
	ErrOrderRejected = errors.New("order rejected")

	// ErrFatal marks an unrecoverable condition that should terminate
	// the process (e.g. missing credentials at startup).
	ErrFatal = errors.New("fatal error")
)

// Transient wraps err as a TransientIO failure.
func Transient(err error) error { return wrap(ErrTransientIO, err) }

// Stale wraps err as a DataStale failure.
func Stale(err error) error { return wrap(ErrDataStale, err) }

// Validation wraps err as a ValidationReject failure.
func Validation(err error) error { return wrap(ErrValidationReject, err) }

// Risk wraps err as a RiskReject failure.
func Risk(err error) error { return wrap(ErrRiskReject, err) }

// OrderRejected wraps err as an OrderRejected failure.
func OrderRejected(err error) error { return wrap(ErrOrderRejected, err) }

// Fatal wraps err as a Fatal failure.
func Fatal(err error) error { return wrap(ErrFatal, err) }

func wrap(sentinel, err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{sentinel: sentinel, err: err}
}

type taggedError struct {
	sentinel error
	err      error
}

func (e *taggedError) Error() string { return e.sentinel.Error() + ": " + e.err.Error() }
func (e *taggedError) Unwrap() []error {
	return []error{e.sentinel, e.err}
}

// IsFatal reports whether err (or any error it wraps) is Fatal. The main
// control loop uses this to decide whether to terminate.
func IsFatal(err error) bool { return errors.Is(err, ErrFatal) }
