// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package funding

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin/coinselector"
	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
	"github.com/BoostyLabs/tradewallet/internal/numbers"
)

const (
	// TxSizeBaseline defines seed size of a transaction with unsigned inputs.
	TxSizeBaseline = 300
	// ColoredTxSizeBaseline defines seed size of a typical two inputs colored coin transaction.
	ColoredTxSizeBaseline = 203
	// SigSizePerInput defines estimated size of a signature script of one input.
	SigSizePerInput = 106
	// FeeTolerance defines max difference between paid and estimated fee.
	FeeTolerance = btcutil.Amount(1000)
	// MaxIterations defines max count of completion attempts.
	MaxIterations = 10
)

var (
	// ErrFeeNotConverged defines that fee did not get into tolerance in MaxIterations attempts.
	ErrFeeNotConverged = errors.New("mining fee did not converge")
	// ErrUnsupportedInputType defines that input spends output of a type the fee estimation can't size.
	ErrUnsupportedInputType = errors.New("inputs should spend a P2PKH, P2PK or P2WPKH output")
)

// ConvergenceRequest describes transaction to be funded with converging mining fee.
type ConvergenceRequest struct {
	// Tx is a skeleton with fixed inputs and outputs, it is not mutated.
	Tx *wire.MsgTx
	// PrevOuts holds connected outputs of the skeleton inputs.
	PrevOuts map[wire.OutPoint]*wire.TxOut
	// FeeRate in satoshi per virtual byte.
	FeeRate btcutil.Amount
	Policy  coinselector.Policy
	// ChangeScript receives the change and the forced change output.
	ChangeScript []byte
	Exclude      []wire.OutPoint

	// OpReturn is appended as zero value OP_RETURN output after completion if set.
	OpReturn []byte
	// Baseline overrides TxSizeBaseline seed size if set.
	Baseline int64

	// RequireTargetFee rejects candidates paying less than TargetFee and raises estimation to it,
	// rate multiplied by virtual size is used if TargetFee is zero.
	RequireTargetFee bool
	TargetFee        btcutil.Amount

	// AcceptLastCandidate returns the last candidate instead of ErrFeeNotConverged.
	AcceptLastCandidate bool
}

// Result describes funded transaction with converged fee.
type Result struct {
	*FundedTx
	Fee          btcutil.Amount
	EstimatedFee btcutil.Amount
	VSize        int64
	Iterations   int
	Converged    bool
}

// EstimateFee returns fee for a transaction of provided virtual size with unsigned inputs.
// Segwit signatures are discounted by witness scale factor.
func EstimateFee(feeRate btcutil.Amount, vsize int64, legacyInputs, segwitInputs int) btcutil.Amount {
	size := vsize + int64(SigSizePerInput*legacyInputs) + int64(SigSizePerInput*segwitInputs/blockchain.WitnessScaleFactor)
	return feeRate * btcutil.Amount(size)
}

// CountInputs returns count of legacy and segwit inputs.
// Inputs with unknown connected output are treated as legacy to avoid underpaying.
func CountInputs(tx *wire.MsgTx, prevOuts map[wire.OutPoint]*wire.TxOut) (legacy, segwit int, err error) {
	for idx, in := range tx.TxIn {
		prevOut := prevOuts[in.PreviousOutPoint]
		if prevOut == nil {
			legacy++
			continue
		}

		switch utils.ClassifyScript(prevOut.PkScript) {
		case utils.P2PKH, utils.P2PK:
			legacy++
		case utils.P2WPKH:
			segwit++
		default:
			return 0, 0, fmt.Errorf("input %d: %w", idx, ErrUnsupportedInputType)
		}
	}

	return legacy, segwit, nil
}

// VirtualSize returns virtual size of the transaction.
func VirtualSize(tx *wire.MsgTx) int64 {
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	return (weight + blockchain.WitnessScaleFactor - 1) / blockchain.WitnessScaleFactor
}

// ConvergeFee funds the skeleton repeatedly, each time with the fee estimated from the previous
// candidate size, until paid fee gets into FeeTolerance of the estimation.
//
// The seed estimation assumes one legacy funding input on top of the skeleton inputs.
// OP_RETURN is never left as the only output: if funding produced no other output,
// change of the dust floor value is forced on the next attempt.
func ConvergeFee(req ConvergenceRequest, funder Funder) (*Result, error) {
	legacy, segwit, err := CountInputs(req.Tx, req.PrevOuts)
	if err != nil {
		return nil, err
	}

	var opReturnScript []byte
	if req.OpReturn != nil {
		if opReturnScript, err = utils.NewUnspendableScript(req.OpReturn...); err != nil {
			return nil, err
		}
	}

	baseline := req.Baseline
	if baseline == 0 {
		baseline = TxSizeBaseline
	}

	var (
		fee         = EstimateFee(req.FeeRate, baseline, legacy+1, segwit)
		forceChange bool
		last        *Result
	)
	for iteration := 1; iteration <= MaxIterations; iteration++ {
		skeleton := req.Tx.Copy()
		if forceChange {
			if len(req.ChangeScript) == 0 {
				return nil, ErrNoChangeScript
			}
			skeleton.AddTxOut(wire.NewTxOut(int64(restrictions.MinNonDustOutput()), req.ChangeScript))
		}

		funded, err := funder.CompleteTx(CompletionRequest{
			Tx:           skeleton,
			PrevOuts:     req.PrevOuts,
			Fee:          fee,
			Policy:       req.Policy,
			ChangeScript: req.ChangeScript,
			Exclude:      req.Exclude,
		})
		if err != nil {
			return nil, err
		}

		opReturnIsOnlyOutput := !hasSpendableOutput(funded.Tx)
		if opReturnScript != nil {
			funded.Tx.AddTxOut(wire.NewTxOut(0, opReturnScript))
		}

		if last, err = evaluate(req, funded, iteration); err != nil {
			return nil, err
		}

		last.Converged = last.Converged && !opReturnIsOnlyOutput
		if last.Converged {
			feeIterations.Observe(float64(iteration))
			log.Debugf("Fee converged in %d iterations: fee %v, vsize %d", iteration, last.Fee, last.VSize)

			return last, nil
		}

		forceChange = forceChange || opReturnIsOnlyOutput
		fee = last.EstimatedFee
	}

	feeNotConverged.Inc()
	if req.AcceptLastCandidate {
		log.Errorf("Could not calculate the fee in %d iterations, using last candidate %v: fee %v, estimated %v",
			MaxIterations, last.Tx.TxHash(), last.Fee, last.EstimatedFee)

		return last, nil
	}

	return nil, fmt.Errorf("%w: fee %v, estimated %v after %d iterations",
		ErrFeeNotConverged, last.Fee, last.EstimatedFee, MaxIterations)
}

// evaluate measures funded candidate.
func evaluate(req ConvergenceRequest, funded *FundedTx, iteration int) (*Result, error) {
	legacy, segwit, err := CountInputs(funded.Tx, funded.PrevOuts)
	if err != nil {
		return nil, err
	}

	fee, err := funded.Fee()
	if err != nil {
		return nil, err
	}

	vsize := VirtualSize(funded.Tx)
	target := targetFee(req, vsize)
	estimated := max(EstimateFee(req.FeeRate, vsize, legacy, segwit), target)

	converged := numbers.Abs(fee-estimated) <= FeeTolerance && fee >= target

	return &Result{
		FundedTx:     funded,
		Fee:          fee,
		EstimatedFee: estimated,
		VSize:        vsize,
		Iterations:   iteration,
		Converged:    converged,
	}, nil
}

// targetFee returns min fee required by the request.
func targetFee(req ConvergenceRequest, vsize int64) btcutil.Amount {
	if !req.RequireTargetFee {
		return 0
	}
	if req.TargetFee > 0 {
		return req.TargetFee
	}

	return req.FeeRate * btcutil.Amount(vsize)
}

// hasSpendableOutput returns true if transaction has at least one output which is not OP_RETURN.
func hasSpendableOutput(tx *wire.MsgTx) bool {
	for _, out := range tx.TxOut {
		if txscript.GetScriptClass(out.PkScript) != txscript.NullDataTy {
			return true
		}
	}

	return false
}
