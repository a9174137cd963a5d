// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// warningOutputIndex defines index of the warning output in the warning transaction.
const warningOutputIndex = 0

// WarningTxParams describes data needed to build the warning transaction.
type WarningTxParams struct {
	DepositTx *wire.MsgTx
	// WarnerIsBuyer defines who publishes the warning and can claim it after ClaimDelay blocks.
	WarnerIsBuyer bool
	BuyerPubKey   []byte
	SellerPubKey  []byte
	// FeeBumpAddress receives the anchor output for CPFP fee bumping, the warner's address.
	FeeBumpAddress string
	FeeBumpAmount  btcutil.Amount
	MinerFee       btcutil.Amount
	LockTime       uint32
	ClaimDelay     uint32
}

// WarningScript returns locking script of the warning output.
func (p WarningTxParams) WarningScript() ([]byte, error) {
	return utils.NewWarningScript(p.BuyerPubKey, p.SellerPubKey, p.WarnerIsBuyer, p.ClaimDelay)
}

// CreateUnsignedWarningTx builds transaction moving the deposit multi-sig output to the warning output.
// INFO: Outputs are:
//
//	[0] P2WSH of the warning script
//	[1] fee bump output of FeeBumpAmount to the warner
func (b *TxBuilder) CreateUnsignedWarningTx(params WarningTxParams) (*wire.MsgTx, error) {
	msOutPoint, msOutput, err := depositMsOutput(params.DepositTx)
	if err != nil {
		return nil, err
	}

	if !restrictions.IsNonDust(params.FeeBumpAmount) {
		return nil, fmt.Errorf("%w: fee bump amount %v is dust", ErrInvalidParams, params.FeeBumpAmount)
	}

	amount := btcutil.Amount(msOutput.Value) - params.MinerFee - params.FeeBumpAmount
	if params.MinerFee < 0 || !restrictions.IsNonDust(amount) {
		return nil, fmt.Errorf("%w: warning output amount %v is dust", ErrInvalidParams, amount)
	}

	warningScript, err := params.WarningScript()
	if err != nil {
		return nil, err
	}

	warningPkScript, err := utils.WitnessScriptHash(warningScript)
	if err != nil {
		return nil, err
	}

	warningTx := singleInputTx(msOutPoint, lockTimeSequence)
	warningTx.LockTime = params.LockTime
	warningTx.AddTxOut(wire.NewTxOut(int64(amount), warningPkScript))
	if err = b.addOutput(warningTx, params.FeeBumpAmount, params.FeeBumpAddress); err != nil {
		return nil, err
	}

	if err = signer.VerifyTransaction(warningTx); err != nil {
		return nil, err
	}

	printTx("Unsigned warningTx", warningTx)

	return warningTx, nil
}

// SignWarningTx returns signature of the warning transaction with the trader multi-sig key.
func (b *TxBuilder) SignWarningTx(depositTx, warningTx *wire.MsgTx, privKey *btcec.PrivateKey,
	buyerPubKey, sellerPubKey []byte) ([]byte, error) {
	return b.signDepositSpend(depositTx, warningTx, privKey, buyerPubKey, sellerPubKey)
}

// FinalizeWarningTx assembles the multi-sig spend of the warning transaction.
func (b *TxBuilder) FinalizeWarningTx(depositTx, warningTx *wire.MsgTx, buyerPubKey, sellerPubKey,
	buyerSig, sellerSig []byte) (*wire.MsgTx, error) {
	if err := b.finalizeDepositSpend(depositTx, warningTx, buyerPubKey, sellerPubKey, buyerSig, sellerSig); err != nil {
		return nil, err
	}

	printTx("finalizeWarningTx", warningTx)

	return warningTx, nil
}

// warningOutput returns the warning output of the warning transaction.
func warningOutput(warningTx *wire.MsgTx, warningScript []byte) (*wire.OutPoint, *wire.TxOut, error) {
	if warningTx == nil || len(warningTx.TxOut) <= warningOutputIndex {
		return nil, nil, fmt.Errorf("%w: warning tx has no warning output", ErrInvalidParams)
	}

	output := warningTx.TxOut[warningOutputIndex]
	pkScript, err := utils.WitnessScriptHash(warningScript)
	if err != nil {
		return nil, nil, err
	}
	if string(pkScript) != string(output.PkScript) {
		return nil, nil, fmt.Errorf("%w: warning script does not match warning output", ErrInvalidParams)
	}

	hash := warningTx.TxHash()

	return wire.NewOutPoint(&hash, warningOutputIndex), output, nil
}
