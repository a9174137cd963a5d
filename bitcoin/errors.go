// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
	"fmt"
)

var (
	// ErrTxVerification defines errors class for transaction verification failures.
	ErrTxVerification = errors.New("transaction verification failed")
	// ErrWalletInconsistent defines that internal wallet state is broken.
	ErrWalletInconsistent = errors.New("wallet state is inconsistent")
	// ErrInvalidRawInput defines that raw input could not be decoded or is malformed.
	ErrInvalidRawInput = errors.New("invalid raw input")
)

// Blame defines which side caused a verification failure.
type Blame string

const (
	// BlameNone defines failure of our own construction (local bug or wallet problem).
	BlameNone Blame = ""
	// BlameCounterparty defines failure caused by data received from the trade peer.
	BlameCounterparty Blame = "counterparty"
)

// VerificationError describes transaction verification failure with details.
type VerificationError struct {
	Reason string
	Blame  Blame
	Err    error
}

// NewVerificationError is a constructor for VerificationError.
func NewVerificationError(reason string, err error) *VerificationError {
	return &VerificationError{Reason: reason, Err: err}
}

// NewCounterpartyError is a constructor for VerificationError blamed on the trade peer.
func NewCounterpartyError(reason string) *VerificationError {
	return &VerificationError{Reason: reason, Blame: BlameCounterparty}
}

// Error returns error description.
func (e *VerificationError) Error() string {
	var errMsg = ErrTxVerification.Error() + ": " + e.Reason
	if e.Blame != BlameNone {
		errMsg += " (" + string(e.Blame) + ")"
	}
	if e.Err != nil {
		errMsg += fmt.Sprintf(": %v", e.Err)
	}

	return errMsg
}

// Is implements comparator method for [errors] package.
func (e *VerificationError) Is(target error) bool {
	return target == ErrTxVerification
}

// Unwrap returns underlying error if any.
func (e *VerificationError) Unwrap() error {
	return e.Err
}

// IsCounterpartyViolation returns true if err is caused by the trade peer.
func IsCounterpartyViolation(err error) bool {
	var verr *VerificationError
	return errors.As(err, &verr) && verr.Blame == BlameCounterparty
}
