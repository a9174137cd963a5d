// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package restrictions defines trade amount policy: dust floor, trade amount
// bounds, security deposit bounds and delayed payout lock times.
package restrictions

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

const (
	// MinSecurityDepositPercent defines min security deposit as a share of trade amount.
	MinSecurityDepositPercent = 0.15
	// MaxSecurityDepositPercent defines max security deposit as a share of trade amount.
	MaxSecurityDepositPercent = 0.5

	// blocksPerDay defines average amount of blocks mined a day.
	blocksPerDay = 144
)

var (
	minNonDustOutput = sync.OnceValue(func() btcutil.Amount {
		// bitcoin core standard: dust is an output which costs more than a third of its value
		// to spend at min relay fee, measured over the p2pkh output.
		return txrules.GetDustThreshold(txsizes.P2PKHPkScriptSize, txrules.DefaultRelayFeePerKb)
	})

	minTradeAmount = sync.OnceValue(func() btcutil.Amount {
		return btcutil.Amount(10_000)
	})

	maxTradeAmount = sync.OnceValue(func() btcutil.Amount {
		amount, _ := btcutil.NewAmount(1)
		return amount
	})

	minSecurityDeposit = sync.OnceValue(func() btcutil.Amount {
		return btcutil.Amount(60_000)
	})

	minRefundAtMediatedDispute = sync.OnceValue(func() btcutil.Amount {
		return btcutil.Amount(300_000)
	})
)

// MinNonDustOutput returns the smallest output value accepted by the network relay policy.
func MinNonDustOutput() btcutil.Amount {
	return minNonDustOutput()
}

// IsNonDust returns true if amount could be used as output value, the dust floor itself is not dust.
func IsNonDust(amount btcutil.Amount) bool {
	return amount >= MinNonDustOutput()
}

// IsDust returns true if amount is below the dust floor.
func IsDust(amount btcutil.Amount) bool {
	return !IsNonDust(amount)
}

// MinTradeAmount returns min btc amount of a trade.
func MinTradeAmount() btcutil.Amount {
	return minTradeAmount()
}

// MaxTradeAmount returns max btc amount of a trade.
func MaxTradeAmount() btcutil.Amount {
	return maxTradeAmount()
}

// IsValidTradeAmount returns true if amount lays in trade amount bounds.
func IsValidTradeAmount(amount btcutil.Amount) bool {
	return amount >= MinTradeAmount() && amount <= MaxTradeAmount()
}

// MinSecurityDeposit returns absolute min security deposit.
func MinSecurityDeposit() btcutil.Amount {
	return minSecurityDeposit()
}

// MinRefundAtMediatedDispute returns the smallest payout to a trader in mediated dispute.
func MinRefundAtMediatedDispute() btcutil.Amount {
	return minRefundAtMediatedDispute()
}

// SecurityDepositBounds returns min and max security deposit for provided trade amount.
func SecurityDepositBounds(tradeAmount btcutil.Amount) (btcutil.Amount, btcutil.Amount) {
	minDeposit := tradeAmount.MulF64(MinSecurityDepositPercent)
	maxDeposit := tradeAmount.MulF64(MaxSecurityDepositPercent)

	return max(minDeposit, MinSecurityDeposit()), max(maxDeposit, MinSecurityDeposit())
}

// IsValidSecurityDeposit returns true if deposit lays in bounds for provided trade amount.
func IsValidSecurityDeposit(tradeAmount, deposit btcutil.Amount) bool {
	minDeposit, maxDeposit := SecurityDepositBounds(tradeAmount)
	return deposit >= minDeposit && deposit <= maxDeposit
}

// LockTimeDelta returns delay in blocks between deposit and delayed payout transactions.
// Altcoin trades are settled faster, so they get shorter delay.
func LockTimeDelta(isAsset bool) uint32 {
	if isAsset {
		return blocksPerDay * 5
	}

	return blocksPerDay * 10
}
