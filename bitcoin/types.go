// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/internal/numbers"
)

// Confidence describes how certain the wallet is that the parent transaction
// of an output will stay in the best chain.
type Confidence byte

const (
	// ConfidenceUnknown defines output with no confidence data.
	ConfidenceUnknown Confidence = iota
	// ConfidenceBuilding defines output of a transaction included in the best chain.
	ConfidenceBuilding
	// ConfidencePending defines output of a transaction seen in the mempool only.
	ConfidencePending
	// ConfidenceDead defines output of a transaction which was double spent or reorganized out.
	ConfidenceDead
)

// String returns confidence name.
func (c Confidence) String() string {
	switch c {
	case ConfidenceBuilding:
		return "BUILDING"
	case ConfidencePending:
		return "PENDING"
	case ConfidenceDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Source defines who created the parent transaction of an output.
type Source byte

const (
	// SourceUnknown defines output with unknown origin.
	SourceUnknown Source = iota
	// SourceSelf defines output of a transaction created by the wallet itself.
	SourceSelf
	// SourceNetwork defines output of a transaction received from the network.
	SourceNetwork
)

// UTXO describes unspent transaction output data.
type UTXO struct {
	OutPoint   wire.OutPoint  // parent tx hash and output index.
	Amount     btcutil.Amount // in Satoshi.
	Script     []byte         // ScriptPubKey.
	Address    string         // output recipient address.
	Depth      uint32         // confirmations of the parent tx, 0 if pending.
	Confidence Confidence
	Source     Source
}

// TxOut returns output as wire.TxOut.
func (u *UTXO) TxOut() *wire.TxOut {
	return wire.NewTxOut(int64(u.Amount), u.Script)
}

// CoinDays returns "coin-days destroyed" value (amount multiplied by depth).
func (u *UTXO) CoinDays() *big.Int {
	return numbers.Product(uint64(u.Amount), uint64(u.Depth))
}

// Role defines trader role in the trade, fixes ordering of inputs, outputs and keys.
type Role byte

const (
	// RoleBuyer defines btc buyer.
	RoleBuyer Role = 0x01
	// RoleSeller defines btc seller.
	RoleSeller Role = 0x02
)

// String returns role name.
func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	default:
		return "unknown"
	}
}

// Counterparty returns the opposite role.
func (r Role) Counterparty() Role {
	if r == RoleBuyer {
		return RoleSeller
	}

	return RoleBuyer
}

// ChainOracle provides the best chain tip state.
type ChainOracle interface {
	BestHeight() (int32, error)
	// BestTime returns median time past of the best block.
	BestTime() (time.Time, error)
}
