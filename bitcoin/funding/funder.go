// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package funding completes skeleton transactions with wallet inputs and change,
// and sizes mining fees with the fee convergence loop.
package funding

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/coinselector"
	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
)

var (
	// ErrUnknownPrevOut defines that connected output of an input is unknown, so fee can't be computed.
	ErrUnknownPrevOut = errors.New("connected output of the input is unknown")
	// ErrNoChangeScript defines that change is due but there is no script to send it to.
	ErrNoChangeScript = errors.New("change script is not provided")
)

// NoChange defines ChangeIndex of a transaction without change output.
const NoChange = -1

// CompletionRequest describes skeleton transaction to be completed with funding inputs.
type CompletionRequest struct {
	// Tx is a skeleton with fixed inputs and outputs, it is not mutated.
	Tx *wire.MsgTx
	// PrevOuts holds connected outputs of the skeleton inputs.
	PrevOuts map[wire.OutPoint]*wire.TxOut
	// Fee is an absolute mining fee the completed tx pays.
	Fee btcutil.Amount
	// Policy selects wallet outputs eligible for funding.
	Policy coinselector.Policy
	// ChangeScript receives the change, required only when change is due.
	ChangeScript []byte
	// Exclude lists outputs which must not be used for funding.
	Exclude []wire.OutPoint
}

// FundedTx describes completed transaction.
type FundedTx struct {
	Tx *wire.MsgTx
	// PrevOuts holds connected outputs of all inputs.
	PrevOuts map[wire.OutPoint]*wire.TxOut
	// ChangeIndex is an index of the change output or NoChange.
	ChangeIndex int
	// Selected holds wallet outputs added as funding inputs.
	Selected []bitcoin.UTXO
}

// Fee returns fee paid by the transaction.
func (f *FundedTx) Fee() (btcutil.Amount, error) {
	return TxFee(f.Tx, f.PrevOuts)
}

// Funder completes skeleton transactions with funding inputs and change output.
// It is the only side-effecting step of the fee convergence loop.
type Funder interface {
	CompleteTx(req CompletionRequest) (*FundedTx, error)
}

// UTXOSource provides snapshot of wallet unspent outputs.
type UTXOSource interface {
	UnspentOutputs() ([]bitcoin.UTXO, error)
}

// WalletFunder is a Funder selecting inputs from wallet outputs with the coin selector.
type WalletFunder struct {
	source UTXOSource
}

// NewWalletFunder is a constructor for WalletFunder.
func NewWalletFunder(source UTXOSource) *WalletFunder {
	return &WalletFunder{source: source}
}

// CompleteTx implements Funder.
//
// Inputs are appended after the skeleton inputs, change output after the skeleton outputs.
// Change below the dust floor is left to miners.
func (funder *WalletFunder) CompleteTx(req CompletionRequest) (*FundedTx, error) {
	tx := req.Tx.Copy()
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(req.PrevOuts))
	for outPoint, prevOut := range req.PrevOuts {
		prevOuts[outPoint] = prevOut
	}

	inputsValue, err := InputsValue(tx, prevOuts)
	if err != nil {
		return nil, err
	}

	outputsValue := OutputsValue(tx)
	target := outputsValue + req.Fee - inputsValue

	funded := &FundedTx{Tx: tx, PrevOuts: prevOuts, ChangeIndex: NoChange}

	var change btcutil.Amount
	if target > 0 {
		utxos, err := funder.source.UnspentOutputs()
		if err != nil {
			return nil, fmt.Errorf("could not get unspent outputs: %w", err)
		}

		exclude := make([]wire.OutPoint, 0, len(req.Exclude)+len(tx.TxIn))
		exclude = append(exclude, req.Exclude...)
		for _, in := range tx.TxIn {
			exclude = append(exclude, in.PreviousOutPoint)
		}

		selection := coinselector.Select(target, utxos, req.Policy, exclude...)
		if change, err = coinselector.Change(target, selection); err != nil {
			return nil, insufficientCauser(err, target, req.Fee, utxos, req.Policy, exclude)
		}

		for _, utxo := range selection.Outputs {
			outPoint := utxo.OutPoint
			tx.AddTxIn(wire.NewTxIn(&outPoint, nil, nil))
			prevOuts[outPoint] = utxo.TxOut()
		}
		funded.Selected = selection.Outputs
	} else {
		change = -target
	}

	if restrictions.IsNonDust(change) {
		if len(req.ChangeScript) == 0 {
			return nil, ErrNoChangeScript
		}

		tx.AddTxOut(wire.NewTxOut(int64(change), req.ChangeScript))
		funded.ChangeIndex = len(tx.TxOut) - 1
	} else if change > 0 {
		log.Debugf("Change of %v is dust, leaving it to miners", change)
	}

	return funded, nil
}

// insufficientCauser marks insufficient balance error as caused by the fee payer
// if the wallet covers the outputs alone.
func insufficientCauser(err error, target, fee btcutil.Amount, utxos []bitcoin.UTXO,
	policy coinselector.Policy, exclude []wire.OutPoint) error {
	var insufficient *coinselector.InsufficientError
	if !errors.As(err, &insufficient) || fee <= 0 || target-fee <= 0 {
		return err
	}

	if coinselector.Select(target-fee, utxos, policy, exclude...).Satisfies(target - fee) {
		return insufficient.WithCauser(coinselector.CauserFeePayer)
	}

	return err
}

// InputsValue returns sum of the connected outputs values.
func InputsValue(tx *wire.MsgTx, prevOuts map[wire.OutPoint]*wire.TxOut) (btcutil.Amount, error) {
	var value btcutil.Amount
	for idx, in := range tx.TxIn {
		prevOut, ok := prevOuts[in.PreviousOutPoint]
		if !ok || prevOut == nil {
			return 0, fmt.Errorf("input %d (%v): %w", idx, in.PreviousOutPoint, ErrUnknownPrevOut)
		}

		value += btcutil.Amount(prevOut.Value)
	}

	return value, nil
}

// OutputsValue returns sum of the outputs values.
func OutputsValue(tx *wire.MsgTx) btcutil.Amount {
	var value btcutil.Amount
	for _, out := range tx.TxOut {
		value += btcutil.Amount(out.Value)
	}

	return value
}

// TxFee returns fee paid by the transaction.
func TxFee(tx *wire.MsgTx, prevOuts map[wire.OutPoint]*wire.TxOut) (btcutil.Amount, error) {
	inputsValue, err := InputsValue(tx, prevOuts)
	if err != nil {
		return 0, err
	}

	return inputsValue - OutputsValue(tx), nil
}
