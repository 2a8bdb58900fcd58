package engine

import (
	"errors"
	"fmt"
)

// RunError is an error that stops a run, or a single (product, store) pair,
// for a reason other than a remote failure.
//
// Codes:
//   - CONFIG: the request or the store set does not fit the ledger
//   - LEDGER: the ledger could not be read or written after retries
//   - DISCOVERY: candidate discovery failed
//   - TRANSITION: a status write would leave the transition graph
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// ProductID and Store identify the affected pair, when there is one.
	ProductID string
	Store     string

	// Err is the underlying cause.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	ErrCodeConfig     RunErrorCode = "CONFIG"
	ErrCodeLedger     RunErrorCode = "LEDGER"
	ErrCodeDiscovery  RunErrorCode = "DISCOVERY"
	ErrCodeTransition RunErrorCode = "TRANSITION"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.ProductID != "" && e.Store != "":
		msg += fmt.Sprintf(" (product=%s, store=%s)", e.ProductID, e.Store)
	case e.ProductID != "":
		msg += fmt.Sprintf(" (product=%s)", e.ProductID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

func isCode(err error, code RunErrorCode) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsConfigError reports whether err is a CONFIG run error.
func IsConfigError(err error) bool { return isCode(err, ErrCodeConfig) }

// IsLedgerError reports whether err is a LEDGER run error.
func IsLedgerError(err error) bool { return isCode(err, ErrCodeLedger) }

// IsDiscoveryError reports whether err is a DISCOVERY run error.
func IsDiscoveryError(err error) bool { return isCode(err, ErrCodeDiscovery) }

// IsTransitionError reports whether err is a TRANSITION run error.
func IsTransitionError(err error) bool { return isCode(err, ErrCodeTransition) }

func configError(format string, args ...any) *RunError {
	return &RunError{Code: ErrCodeConfig, Message: fmt.Sprintf(format, args...)}
}

func ledgerError(productID, store, msg string, err error) *RunError {
	return &RunError{Code: ErrCodeLedger, Message: msg, ProductID: productID, Store: store, Err: err}
}
