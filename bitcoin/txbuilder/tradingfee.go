// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin/coinselector"
	"github.com/BoostyLabs/tradewallet/bitcoin/funding"
	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
)

// TradingFeeParams describes data needed to build the trading fee transaction.
type TradingFeeParams struct {
	// Policy selects wallet outputs, the funding address ones or all available.
	Policy                  coinselector.Policy
	ReservedForTradeAddress string
	ChangeAddress           string
	ReservedFundsForOffer   btcutil.Amount
	// TradingFee is paid to FeeReceiverAddress, unused for colored coin fee transactions.
	TradingFee         btcutil.Amount
	FeeReceiverAddress string
	// TxFee is the fixed miner fee.
	TxFee      btcutil.Amount
	Passphrase []byte
}

// ColoredTxParams describes prepared colored coin transaction to be completed with btc inputs.
type ColoredTxParams struct {
	Prepared *wire.MsgTx
	// PrevOuts holds connected outputs of the colored inputs.
	PrevOuts map[wire.OutPoint]*wire.TxOut
	OpReturn []byte
	// FeeRate in satoshi per virtual byte.
	FeeRate btcutil.Amount
	// Policy must exclude colored outputs from funding.
	Policy        coinselector.Policy
	ChangeAddress string
	Passphrase    []byte
	// RequireTargetFee rejects fees below rate multiplied by virtual size.
	RequireTargetFee bool
}

// CreateBtcTradingFeeTx builds and signs transaction paying the trading fee and reserving funds for the trade.
// INFO: Outputs are:
//
//	[0] trading fee to the fee receiver
//	[1] reserved funds to the reserved for trade address
//	[2] optional change
func (b *TxBuilder) CreateBtcTradingFeeTx(params TradingFeeParams) (*funding.FundedTx, error) {
	if !restrictions.IsNonDust(params.TradingFee) {
		return nil, fmt.Errorf("%w: trading fee %v is dust", ErrInvalidParams, params.TradingFee)
	}

	skeleton := wire.NewMsgTx(txVersion)
	if err := b.addOutput(skeleton, params.TradingFee, params.FeeReceiverAddress); err != nil {
		return nil, err
	}

	return b.completeTradingFeeTx(skeleton, nil, params)
}

// CompleteBsqTradingFeeTx completes prepared colored coin fee transaction with the reserved for trade
// output and btc funding. Only the btc inputs are signed, colored ones are signed by the colored coin wallet.
func (b *TxBuilder) CompleteBsqTradingFeeTx(preparedBsqTx *wire.MsgTx, bsqPrevOuts map[wire.OutPoint]*wire.TxOut,
	params TradingFeeParams) (*funding.FundedTx, error) {
	return b.completeTradingFeeTx(preparedBsqTx.Copy(), bsqPrevOuts, params)
}

// completeTradingFeeTx adds reserved for trade output, funds with the fixed fee and signs funding inputs.
func (b *TxBuilder) completeTradingFeeTx(skeleton *wire.MsgTx, prevOuts map[wire.OutPoint]*wire.TxOut,
	params TradingFeeParams) (*funding.FundedTx, error) {
	if !restrictions.IsNonDust(params.ReservedFundsForOffer) {
		return nil, fmt.Errorf("%w: reserved funds %v are dust", ErrInvalidParams, params.ReservedFundsForOffer)
	}

	preparedInputs := len(skeleton.TxIn)
	if err := b.addOutput(skeleton, params.ReservedFundsForOffer, params.ReservedForTradeAddress); err != nil {
		return nil, err
	}

	changeScript, err := b.payToAddress(params.ChangeAddress)
	if err != nil {
		return nil, err
	}

	funded, err := b.funder.CompleteTx(funding.CompletionRequest{
		Tx:           skeleton,
		PrevOuts:     prevOuts,
		Fee:          params.TxFee,
		Policy:       params.Policy,
		ChangeScript: changeScript,
	})
	if err != nil {
		return nil, err
	}

	if err = b.signFunding(funded.Tx, preparedInputs, funded.PrevOuts, params.Passphrase); err != nil {
		return nil, err
	}

	printTx("tradingFeeTx", funded.Tx)

	return funded, nil
}

// CompletePreparedColoredTx funds prepared colored coin transaction with btc inputs sizing the miner
// fee with the fee convergence loop, then signs the btc inputs.
func (b *TxBuilder) CompletePreparedColoredTx(params ColoredTxParams) (*funding.Result, error) {
	changeScript, err := b.payToAddress(params.ChangeAddress)
	if err != nil {
		return nil, err
	}

	result, err := funding.ConvergeFee(funding.ConvergenceRequest{
		Tx:               params.Prepared,
		PrevOuts:         params.PrevOuts,
		FeeRate:          params.FeeRate,
		Policy:           params.Policy,
		ChangeScript:     changeScript,
		OpReturn:         params.OpReturn,
		Baseline:         funding.ColoredTxSizeBaseline,
		RequireTargetFee: params.RequireTargetFee,
	}, b.funder)
	if err != nil {
		return nil, err
	}

	if err = b.signFunding(result.Tx, len(params.Prepared.TxIn), result.PrevOuts, params.Passphrase); err != nil {
		return nil, err
	}

	printTx("preparedColoredTx", result.Tx)

	return result, nil
}

// signFunding signs inputs starting from the provided one and verifies the transaction.
func (b *TxBuilder) signFunding(tx *wire.MsgTx, from int, prevOuts map[wire.OutPoint]*wire.TxOut, passphrase []byte) error {
	fetcher := prevOutsFetcher(prevOuts)
	if err := b.signer.SignInputs(tx, from, len(tx.TxIn), fetcher, passphrase); err != nil {
		return err
	}
	if err := signer.VerifyInputs(tx, from, len(tx.TxIn), fetcher); err != nil {
		return err
	}

	return signer.VerifyTransaction(tx)
}
