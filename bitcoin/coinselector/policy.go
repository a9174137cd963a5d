// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package coinselector

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
)

// Policy defines which outputs of a wallet could be used for funding.
type Policy interface {
	// IsSpendable returns true if output could be spent by the wallet.
	IsSpendable(utxo *bitcoin.UTXO) bool
	// IsDustAttack returns true if output looks like a dust sent to fingerprint the wallet.
	IsDustAttack(utxo *bitcoin.UTXO) bool
	// Type returns balance type the policy selects, used for error reporting.
	Type() BalanceType
}

// Predicate defines single output check.
type Predicate func(utxo *bitcoin.UTXO) bool

// ColoredLedger provides colored coin (BSQ) state of outputs, keyed by outpoint.
type ColoredLedger interface {
	// IsSpendableColoredOutput returns true if output is a valid unspent colored output.
	IsSpendableColoredOutput(outPoint wire.OutPoint) bool
	// IsUnconfirmedColoredChange returns true if output is own colored change of a pending tx.
	IsUnconfirmedColoredChange(outPoint wire.OutPoint) bool
	// HasColoredOutput returns true if ledger knows the output as a colored one.
	HasColoredOutput(outPoint wire.OutPoint) bool
	// IsRejectedColoredOutput returns true if output was confiscated or rejected
	// (e.g. failed issuance), such outputs are plain bitcoin.
	IsRejectedColoredOutput(outPoint wire.OutPoint) bool
}

// policy is a Policy composed from predicates.
type policy struct {
	balanceType BalanceType
	spendable   Predicate
	dustAttack  Predicate
}

// NewPolicy is a constructor for Policy composed from spendability and dust attack predicates.
// Nil dust attack predicate treats all outputs as legit.
func NewPolicy(spendable, dustAttack Predicate) Policy {
	if dustAttack == nil {
		dustAttack = func(*bitcoin.UTXO) bool { return false }
	}

	return &policy{
		balanceType: InsufficientErrorTypeBitcoin,
		spendable:   spendable,
		dustAttack:  dustAttack,
	}
}

// IsSpendable implements Policy.
func (p *policy) IsSpendable(utxo *bitcoin.UTXO) bool {
	return p.spendable(utxo)
}

// IsDustAttack implements Policy.
func (p *policy) IsDustAttack(utxo *bitcoin.UTXO) bool {
	return p.dustAttack(utxo)
}

// Type implements Policy.
func (p *policy) Type() BalanceType {
	return p.balanceType
}

// DustAttackBelow returns predicate matching outputs with value below the threshold.
// Zero threshold disables the check.
func DustAttackBelow(threshold btcutil.Amount) Predicate {
	return func(utxo *bitcoin.UTXO) bool {
		return threshold > 0 && utxo.Amount < threshold
	}
}

// NewAddressPolicy returns policy accepting outputs owned by provided addresses,
// of confirmed transactions or pending ones created by the wallet itself.
// Pending transactions from the network are accepted only if permitForeignPending is set.
func NewAddressPolicy(addresses []string, ignoreDustThreshold btcutil.Amount, permitForeignPending bool) Policy {
	owned := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		owned[address] = struct{}{}
	}

	return NewPolicy(func(utxo *bitcoin.UTXO) bool {
		if _, ok := owned[utxo.Address]; !ok {
			return false
		}

		return isTrusted(utxo, permitForeignPending)
	}, DustAttackBelow(ignoreDustThreshold))
}

// NewColoredPolicy returns policy accepting colored (BSQ) outputs the ledger considers spendable,
// including own colored change of pending transactions.
func NewColoredPolicy(ledger ColoredLedger, ignoreDustThreshold btcutil.Amount) Policy {
	p := NewPolicy(func(utxo *bitcoin.UTXO) bool {
		return ledger.IsSpendableColoredOutput(utxo.OutPoint) ||
			(utxo.Confidence == bitcoin.ConfidencePending && ledger.IsUnconfirmedColoredChange(utxo.OutPoint))
	}, DustAttackBelow(ignoreDustThreshold)).(*policy)
	p.balanceType = InsufficientErrorTypeColored

	return p
}

// NewNonColoredPolicy returns policy accepting confirmed outputs which are not colored,
// rejected colored outputs are treated as plain bitcoin.
func NewNonColoredPolicy(ledger ColoredLedger, ignoreDustThreshold btcutil.Amount) Policy {
	return NewPolicy(func(utxo *bitcoin.UTXO) bool {
		if utxo.Confidence != bitcoin.ConfidenceBuilding {
			return false
		}

		return !ledger.HasColoredOutput(utxo.OutPoint) || ledger.IsRejectedColoredOutput(utxo.OutPoint)
	}, DustAttackBelow(ignoreDustThreshold))
}

// isTrusted returns true if parent tx of the output is confirmed or pending from trusted source.
func isTrusted(utxo *bitcoin.UTXO, permitForeignPending bool) bool {
	switch utxo.Confidence {
	case bitcoin.ConfidenceBuilding:
		return true
	case bitcoin.ConfidencePending:
		return utxo.Source == bitcoin.SourceSelf || (permitForeignPending && utxo.Source == bitcoin.SourceNetwork)
	default:
		return false
	}
}
