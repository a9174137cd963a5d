// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package coinselector

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// BalanceType defines which balance is insufficient.
type BalanceType string

type causerSign string

const (
	// InsufficientErrorTypeBitcoin defines insufficient bitcoin balance error type.
	InsufficientErrorTypeBitcoin BalanceType = "bitcoin"
	// InsufficientErrorTypeColored defines insufficient colored coin (BSQ) balance error type.
	InsufficientErrorTypeColored BalanceType = "colored coin"

	// CauserTrader defines that amounts required by the trade caused this error.
	CauserTrader causerSign = "trader"
	// CauserFeePayer defines that the mining fee caused this error, the amounts alone are covered.
	CauserFeePayer causerSign = "fee-payer"
)

var (
	// ErrInsufficientBitcoin defines insufficient bitcoin balance error without details.
	ErrInsufficientBitcoin = NewInsufficientError(InsufficientErrorTypeBitcoin, 0, 0)
	// ErrInsufficientColored defines insufficient colored coin balance error without details.
	ErrInsufficientColored = NewInsufficientError(InsufficientErrorTypeColored, 0, 0)
)

// InsufficientError is the error type to describe insufficient balance errors with details.
type InsufficientError struct {
	Type   BalanceType
	Need   btcutil.Amount
	Have   btcutil.Amount
	Causer causerSign
}

// NewInsufficientError is a constructor for InsufficientError.
func NewInsufficientError(type_ BalanceType, need, have btcutil.Amount) *InsufficientError {
	return &InsufficientError{type_, need, have, ""}
}

// Error returns error description.
func (e *InsufficientError) Error() string {
	var errMsg = fmt.Sprintf("insufficient %s balance", e.Type)

	if e.Need != 0 || e.Have != 0 {
		errMsg += fmt.Sprintf(": Need - %d, Have - %d", int64(e.Need), int64(e.Have))
	}

	if e.Causer != "" {
		errMsg += " (" + string(e.Causer) + ")"
	}

	return errMsg
}

// Missing returns amount which is lacking to satisfy the need.
func (e *InsufficientError) Missing() btcutil.Amount {
	return e.Need - e.Have
}

// Is implements comparator method for [errors] package, errors of the same type match.
func (e *InsufficientError) Is(target error) bool {
	t, ok := target.(*InsufficientError)
	return ok && t.Type == e.Type
}

// Clarify returns formed error with Need and Have values set.
func (e *InsufficientError) Clarify(need, have btcutil.Amount) *InsufficientError {
	return &InsufficientError{e.Type, need, have, e.Causer}
}

// WithCauser returns copy of InsufficientError with provided causer.
func (e *InsufficientError) WithCauser(causer causerSign) *InsufficientError {
	return &InsufficientError{e.Type, e.Need, e.Have, causer}
}
