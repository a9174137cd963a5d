// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package coinselector

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
)

// MaxTarget defines target to gather all spendable outputs (e.g. to compute full balance).
// Sorting is skipped for this target.
const MaxTarget = btcutil.Amount(btcutil.MaxSatoshi)

// CoinSelection describes result of a selection pass.
type CoinSelection struct {
	Outputs  []bitcoin.UTXO // in selection order.
	Gathered btcutil.Amount
	Type     BalanceType
}

// Satisfies returns true if gathered value covers the target.
func (s CoinSelection) Satisfies(target btcutil.Amount) bool {
	return s.Gathered >= target
}

// OutPoints returns outpoints of the selected outputs.
func (s CoinSelection) OutPoints() []wire.OutPoint {
	outPoints := make([]wire.OutPoint, len(s.Outputs))
	for i := range s.Outputs {
		outPoints[i] = s.Outputs[i].OutPoint
	}

	return outPoints
}

// Select picks outputs from candidates to cover target value.
//
// Candidates in exclude list, dust attack outputs and outputs the policy does not
// consider spendable are skipped. The rest is ordered by coin-days destroyed desc,
// then by value desc, then by parent tx hash asc and output index asc. Outputs are
// gathered until the target is reached with either zero or non-dust overshoot,
// so the change output never becomes dust.
//
// Returned selection may not cover the target, use Satisfies or Change to check.
// Candidates slice is not modified.
func Select(target btcutil.Amount, candidates []bitcoin.UTXO, policy Policy, exclude ...wire.OutPoint) CoinSelection {
	excluded := make(map[wire.OutPoint]struct{}, len(exclude))
	for _, outPoint := range exclude {
		excluded[outPoint] = struct{}{}
	}

	eligible := make([]bitcoin.UTXO, 0, len(candidates))
	for i := range candidates {
		utxo := &candidates[i]
		if _, ok := excluded[utxo.OutPoint]; ok {
			continue
		}
		if utxo.Confidence == bitcoin.ConfidenceDead || policy.IsDustAttack(utxo) || !policy.IsSpendable(utxo) {
			continue
		}

		eligible = append(eligible, *utxo)
	}

	if target != MaxTarget {
		SortOutputs(eligible)
	}

	var (
		selection = CoinSelection{Outputs: make([]bitcoin.UTXO, 0), Type: policy.Type()}
		dustFloor = restrictions.MinNonDustOutput()
	)
	for _, utxo := range eligible {
		if selection.Gathered >= target {
			change := selection.Gathered - target
			if change == 0 || change >= dustFloor {
				break
			}
		}

		selection.Outputs = append(selection.Outputs, utxo)
		selection.Gathered += utxo.Amount
	}

	return selection
}

// SortOutputs sorts outputs in selection order, the order is total.
func SortOutputs(utxos []bitcoin.UTXO) {
	sort.SliceStable(utxos, func(i, j int) bool {
		return less(&utxos[i], &utxos[j])
	})
}

// less defines selection order of two outputs.
func less(a, b *bitcoin.UTXO) bool {
	if cmp := a.CoinDays().Cmp(b.CoinDays()); cmp != 0 {
		return cmp > 0
	}

	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}

	if cmp := compareTxIDs(&a.OutPoint.Hash, &b.OutPoint.Hash); cmp != 0 {
		return cmp < 0
	}

	return a.OutPoint.Index < b.OutPoint.Index
}

// compareTxIDs compares hashes in display byte order, the hash is stored little-endian.
func compareTxIDs(a, b *chainhash.Hash) int {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}

	return 0
}

// Change returns value left after covering the target,
// returns *InsufficientError if selection does not cover it.
func Change(target btcutil.Amount, selection CoinSelection) (btcutil.Amount, error) {
	if !selection.Satisfies(target) {
		balanceType := selection.Type
		if balanceType == "" {
			balanceType = InsufficientErrorTypeBitcoin
		}

		return 0, NewInsufficientError(balanceType, target, selection.Gathered).WithCauser(CauserTrader)
	}

	return selection.Gathered - target, nil
}
