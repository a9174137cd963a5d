// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package funding_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/coinselector"
	"github.com/BoostyLabs/tradewallet/bitcoin/funding"
	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
	"github.com/BoostyLabs/tradewallet/internal/numbers"
)

var (
	changeScript = p2wpkh(0xcc)
	anyOutput    = coinselector.NewPolicy(func(*bitcoin.UTXO) bool { return true }, nil)
)

type utxoSource []bitcoin.UTXO

func (s utxoSource) UnspentOutputs() ([]bitcoin.UTXO, error) { return s, nil }

type funderFunc func(req funding.CompletionRequest) (*funding.FundedTx, error)

func (f funderFunc) CompleteTx(req funding.CompletionRequest) (*funding.FundedTx, error) { return f(req) }

func TestEstimateFee(t *testing.T) {
	// rate 10, baseline 300, 2 legacy inputs.
	require.EqualValues(t, 5120, funding.EstimateFee(10, funding.TxSizeBaseline, 2, 0))
	// actual size 350 with the same inputs.
	require.EqualValues(t, 5620, funding.EstimateFee(10, 350, 2, 0))
	// segwit signatures are discounted, 3*106/4 = 79.
	require.EqualValues(t, 179, funding.EstimateFee(1, 100, 0, 3))
	require.EqualValues(t, 0, funding.EstimateFee(0, 350, 2, 2))
}

func TestCountInputs(t *testing.T) {
	tx := wire.NewMsgTx(2)
	prevOuts := make(map[wire.OutPoint]*wire.TxOut)
	scripts := [][]byte{p2wpkh(1), p2pkh(2), nil, p2wpkh(3)}
	for i, script := range scripts {
		outPoint := wire.OutPoint{Hash: chainhash.Hash{byte(i)}, Index: uint32(i)}
		tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
		if script != nil {
			prevOuts[outPoint] = wire.NewTxOut(1000, script)
		}
	}

	legacy, segwit, err := funding.CountInputs(tx, prevOuts)
	require.NoError(t, err)
	require.Equal(t, 2, legacy)
	require.Equal(t, 2, segwit)

	p2wsh := append([]byte{txscript.OP_0, 0x20}, bytes.Repeat([]byte{0x01}, 32)...)
	prevOuts[tx.TxIn[2].PreviousOutPoint] = wire.NewTxOut(1000, p2wsh)
	_, _, err = funding.CountInputs(tx, prevOuts)
	require.ErrorIs(t, err, funding.ErrUnsupportedInputType)
}

func TestWalletFunder(t *testing.T) {
	source := utxoSource{
		utxo(1, 60_000, 10),
		utxo(2, 50_000, 1),
		utxo(3, 40_000, 100),
	}
	funder := funding.NewWalletFunder(source)

	t.Run("inputs and change", func(t *testing.T) {
		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(90_000, p2wpkh(0xaa)))

		funded, err := funder.CompleteTx(funding.CompletionRequest{
			Tx:           skeleton,
			Fee:          1000,
			Policy:       anyOutput,
			ChangeScript: changeScript,
		})
		require.NoError(t, err)
		require.Empty(t, skeleton.TxIn, "skeleton must not be mutated")

		// ordered by coin-days: 40000*100, then 60000*10.
		require.Len(t, funded.Tx.TxIn, 2)
		require.Equal(t, source[2].OutPoint, funded.Tx.TxIn[0].PreviousOutPoint)
		require.Equal(t, source[0].OutPoint, funded.Tx.TxIn[1].PreviousOutPoint)
		require.Len(t, funded.Selected, 2)

		require.Equal(t, 1, funded.ChangeIndex)
		require.EqualValues(t, 9000, funded.Tx.TxOut[1].Value)
		require.Equal(t, changeScript, funded.Tx.TxOut[1].PkScript)

		fee, err := funded.Fee()
		require.NoError(t, err)
		require.EqualValues(t, 1000, fee)
	})

	t.Run("fixed inputs cover outputs", func(t *testing.T) {
		outPoint := wire.OutPoint{Hash: chainhash.Hash{0xee}}
		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
		skeleton.AddTxOut(wire.NewTxOut(49_000, p2wpkh(0xaa)))

		funded, err := funder.CompleteTx(funding.CompletionRequest{
			Tx:           skeleton,
			PrevOuts:     map[wire.OutPoint]*wire.TxOut{outPoint: wire.NewTxOut(50_300, p2wpkh(0xee))},
			Fee:          1000,
			Policy:       anyOutput,
			ChangeScript: changeScript,
		})
		require.NoError(t, err)
		require.Len(t, funded.Tx.TxIn, 1)
		// 300 sat of change is dust, left to miners.
		require.Equal(t, funding.NoChange, funded.ChangeIndex)
		require.Len(t, funded.Tx.TxOut, 1)

		fee, err := funded.Fee()
		require.NoError(t, err)
		require.EqualValues(t, 1300, fee)
	})

	t.Run("unknown connected output", func(t *testing.T) {
		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0xef}}, nil, nil))

		_, err := funder.CompleteTx(funding.CompletionRequest{Tx: skeleton, Policy: anyOutput})
		require.ErrorIs(t, err, funding.ErrUnknownPrevOut)
	})

	t.Run("excluded outputs", func(t *testing.T) {
		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(50_000, p2wpkh(0xaa)))

		funded, err := funder.CompleteTx(funding.CompletionRequest{
			Tx:           skeleton,
			Policy:       anyOutput,
			ChangeScript: changeScript,
			Exclude:      []wire.OutPoint{source[2].OutPoint},
		})
		require.NoError(t, err)
		require.Len(t, funded.Tx.TxIn, 1)
		require.Equal(t, source[0].OutPoint, funded.Tx.TxIn[0].PreviousOutPoint)
	})

	t.Run("insufficient by trader", func(t *testing.T) {
		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(200_000, p2wpkh(0xaa)))

		_, err := funder.CompleteTx(funding.CompletionRequest{Tx: skeleton, Fee: 1000, Policy: anyOutput})
		require.ErrorIs(t, err, coinselector.ErrInsufficientBitcoin)

		var insufficient *coinselector.InsufficientError
		require.True(t, errors.As(err, &insufficient))
		require.Equal(t, coinselector.CauserTrader, insufficient.Causer)
		require.EqualValues(t, 201_000, insufficient.Need)
		require.EqualValues(t, 150_000, insufficient.Have)
	})

	t.Run("insufficient by fee payer", func(t *testing.T) {
		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(149_500, p2wpkh(0xaa)))

		_, err := funder.CompleteTx(funding.CompletionRequest{Tx: skeleton, Fee: 1000, Policy: anyOutput})

		var insufficient *coinselector.InsufficientError
		require.True(t, errors.As(err, &insufficient))
		require.Equal(t, coinselector.CauserFeePayer, insufficient.Causer)
	})

	t.Run("no change script", func(t *testing.T) {
		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(10_000, p2wpkh(0xaa)))

		_, err := funder.CompleteTx(funding.CompletionRequest{Tx: skeleton, Policy: anyOutput})
		require.ErrorIs(t, err, funding.ErrNoChangeScript)
	})
}

func TestConvergeFee(t *testing.T) {
	t.Run("wallet funder", func(t *testing.T) {
		funder := funding.NewWalletFunder(utxoSource{
			utxo(1, 60_000, 10),
			utxo(2, 50_000, 1),
			utxo(3, 140_000, 100),
		})

		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(100_000, p2wpkh(0xaa)))

		result, err := funding.ConvergeFee(funding.ConvergenceRequest{
			Tx:           skeleton,
			FeeRate:      10,
			Policy:       anyOutput,
			ChangeScript: changeScript,
		}, funder)
		require.NoError(t, err)
		require.True(t, result.Converged)
		require.LessOrEqual(t, result.Iterations, funding.MaxIterations)
		require.LessOrEqual(t, numbers.Abs(result.Fee-result.EstimatedFee), funding.FeeTolerance)
		require.Equal(t, result.VSize, funding.VirtualSize(result.Tx))

		// seed assumes legacy input, one segwit input is cheaper: second attempt is needed.
		require.Equal(t, 2, result.Iterations)
		require.Len(t, result.Tx.TxIn, 1)
	})

	t.Run("seed estimate", func(t *testing.T) {
		outPoint := wire.OutPoint{Hash: chainhash.Hash{0x01}}
		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
		skeleton.AddTxOut(wire.NewTxOut(10_000, p2wpkh(0xaa)))

		var fees []btcutil.Amount
		funder := funderFunc(func(req funding.CompletionRequest) (*funding.FundedTx, error) {
			fees = append(fees, req.Fee)
			return payExactly(req), nil
		})

		_, err := funding.ConvergeFee(funding.ConvergenceRequest{
			Tx:       skeleton,
			PrevOuts: map[wire.OutPoint]*wire.TxOut{outPoint: wire.NewTxOut(5000, p2pkh(0x01))},
			FeeRate:  10,
			Policy:   anyOutput,
		}, funder)
		require.NoError(t, err)
		// the skeleton input and the assumed funding input, both legacy: 10*(300+212).
		require.EqualValues(t, 5120, fees[0])
	})

	t.Run("OP_RETURN is never the only output", func(t *testing.T) {
		var iterations int
		funder := funderFunc(func(req funding.CompletionRequest) (*funding.FundedTx, error) {
			iterations++
			return payExactly(req), nil
		})

		payload := bytes.Repeat([]byte{0x42}, 20)
		result, err := funding.ConvergeFee(funding.ConvergenceRequest{
			Tx:           wire.NewMsgTx(2),
			FeeRate:      10,
			Policy:       anyOutput,
			ChangeScript: changeScript,
			OpReturn:     payload,
			Baseline:     funding.ColoredTxSizeBaseline,
		}, funder)
		require.NoError(t, err)
		require.True(t, result.Converged)
		require.GreaterOrEqual(t, iterations, 2)

		outputs := result.Tx.TxOut
		require.Len(t, outputs, 2)
		require.EqualValues(t, restrictions.MinNonDustOutput(), outputs[0].Value)
		require.Equal(t, changeScript, outputs[0].PkScript)
		require.Equal(t, txscript.NullDataTy, txscript.GetScriptClass(outputs[1].PkScript))
		require.Zero(t, outputs[1].Value)
	})

	t.Run("not converged", func(t *testing.T) {
		funder := funderFunc(func(req funding.CompletionRequest) (*funding.FundedTx, error) {
			req.Fee += 5 * funding.FeeTolerance
			return payExactly(req), nil
		})

		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(10_000, p2wpkh(0xaa)))
		req := funding.ConvergenceRequest{Tx: skeleton, FeeRate: 10, Policy: anyOutput}

		_, err := funding.ConvergeFee(req, funder)
		require.ErrorIs(t, err, funding.ErrFeeNotConverged)

		req.AcceptLastCandidate = true
		result, err := funding.ConvergeFee(req, funder)
		require.NoError(t, err)
		require.False(t, result.Converged)
		require.Equal(t, funding.MaxIterations, result.Iterations)
	})

	t.Run("target fee", func(t *testing.T) {
		funder := funderFunc(func(req funding.CompletionRequest) (*funding.FundedTx, error) {
			return payExactly(req), nil
		})

		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(10_000, p2wpkh(0xaa)))

		result, err := funding.ConvergeFee(funding.ConvergenceRequest{
			Tx:               skeleton,
			FeeRate:          1,
			Policy:           anyOutput,
			RequireTargetFee: true,
			TargetFee:        20_000,
		}, funder)
		require.NoError(t, err)
		require.GreaterOrEqual(t, result.Fee, btcutil.Amount(20_000))
	})

	t.Run("funder error", func(t *testing.T) {
		funder := funding.NewWalletFunder(utxoSource{utxo(1, 1000, 1)})

		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(10_000, p2wpkh(0xaa)))

		_, err := funding.ConvergeFee(funding.ConvergenceRequest{Tx: skeleton, FeeRate: 1, Policy: anyOutput}, funder)
		require.ErrorIs(t, err, coinselector.ErrInsufficientBitcoin)
	})
}

func TestConvergeFeeTermination(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Int64Range(80_000, 1_000_000), 1, 6).Draw(t, "values")

		var (
			source utxoSource
			sum    int64
		)
		for i, value := range values {
			depth := rapid.Uint32Range(0, 1000).Draw(t, "depth")
			source = append(source, utxo(byte(i+1), value, depth))
			sum += value
		}
		// candidates cover the target with estimated fee and a margin.
		target := rapid.Int64Range(1000, sum-70_000).Draw(t, "target")
		rate := btcutil.Amount(rapid.Int64Range(1, 30).Draw(t, "rate"))

		skeleton := wire.NewMsgTx(2)
		skeleton.AddTxOut(wire.NewTxOut(target, p2wpkh(0xaa)))

		result, err := funding.ConvergeFee(funding.ConvergenceRequest{
			Tx:           skeleton,
			FeeRate:      rate,
			Policy:       anyOutput,
			ChangeScript: changeScript,
		}, funding.NewWalletFunder(source))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !result.Converged || numbers.Abs(result.Fee-result.EstimatedFee) > funding.FeeTolerance {
			t.Fatalf("fee %v is out of tolerance of %v", result.Fee, result.EstimatedFee)
		}
		if result.ChangeIndex != funding.NoChange && restrictions.IsDust(btcutil.Amount(result.Tx.TxOut[result.ChangeIndex].Value)) {
			t.Fatalf("dust change")
		}
	})
}

// payExactly funds request with a single input paying the requested fee.
func payExactly(req funding.CompletionRequest) *funding.FundedTx {
	tx := req.Tx.Copy()
	prevOuts := make(map[wire.OutPoint]*wire.TxOut)
	for outPoint, prevOut := range req.PrevOuts {
		prevOuts[outPoint] = prevOut
	}

	inputsValue, _ := funding.InputsValue(tx, prevOuts)
	need := funding.OutputsValue(tx) + req.Fee - inputsValue

	outPoint := wire.OutPoint{Hash: chainhash.Hash{0xfa, byte(need)}, Index: 7}
	tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
	prevOuts[outPoint] = wire.NewTxOut(int64(need), p2wpkh(0xfa))

	return &funding.FundedTx{Tx: tx, PrevOuts: prevOuts, ChangeIndex: funding.NoChange}
}

func utxo(id byte, value int64, depth uint32) bitcoin.UTXO {
	return bitcoin.UTXO{
		OutPoint:   wire.OutPoint{Hash: chainhash.Hash{id}, Index: uint32(id)},
		Amount:     btcutil.Amount(value),
		Script:     p2wpkh(id),
		Depth:      depth,
		Confidence: bitcoin.ConfidenceBuilding,
		Source:     bitcoin.SourceSelf,
	}
}

func p2wpkh(id byte) []byte {
	return append([]byte{txscript.OP_0, txscript.OP_DATA_20}, bytes.Repeat([]byte{id}, 20)...)
}

func p2pkh(id byte) []byte {
	script := []byte{txscript.OP_DUP, txscript.OP_HASH160, txscript.OP_DATA_20}
	script = append(script, bytes.Repeat([]byte{id}, 20)...)

	return append(script, txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG)
}
