// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// CreateDelayedUnsignedPayoutTx builds time locked transaction paying the whole multi-sig output
// minus minerFee to the donation address.
func (b *TxBuilder) CreateDelayedUnsignedPayoutTx(depositTx *wire.MsgTx, donationAddress string,
	minerFee btcutil.Amount, lockTime uint32) (*wire.MsgTx, error) {
	if lockTime == 0 {
		return nil, fmt.Errorf("%w: lock time must be set", ErrInvalidParams)
	}

	msOutPoint, msOutput, err := depositMsOutput(depositTx)
	if err != nil {
		return nil, err
	}

	amount := btcutil.Amount(msOutput.Value) - minerFee
	if minerFee < 0 || !restrictions.IsNonDust(amount) {
		return nil, fmt.Errorf("%w: delayed payout amount %v is dust", ErrInvalidParams, amount)
	}

	delayedTx := singleInputTx(msOutPoint, lockTimeSequence)
	delayedTx.LockTime = lockTime
	if err = b.addOutput(delayedTx, amount, donationAddress); err != nil {
		return nil, err
	}

	if err = signer.VerifyTransaction(delayedTx); err != nil {
		return nil, err
	}

	printTx("Unsigned delayedPayoutTx ToDonationAddress", delayedTx)

	return delayedTx, nil
}

// SignDelayedPayoutTx returns signature of the delayed payout transaction with the trader multi-sig key.
func (b *TxBuilder) SignDelayedPayoutTx(depositTx, delayedTx *wire.MsgTx, privKey *btcec.PrivateKey,
	buyerPubKey, sellerPubKey []byte) ([]byte, error) {
	return b.signDepositSpend(depositTx, delayedTx, privKey, buyerPubKey, sellerPubKey)
}

// FinalizeDelayedPayoutTx assembles the multi-sig spend of the delayed payout transaction.
func (b *TxBuilder) FinalizeDelayedPayoutTx(depositTx, delayedTx *wire.MsgTx, buyerPubKey, sellerPubKey,
	buyerSig, sellerSig []byte) (*wire.MsgTx, error) {
	if err := b.finalizeDepositSpend(depositTx, delayedTx, buyerPubKey, sellerPubKey, buyerSig, sellerSig); err != nil {
		return nil, err
	}

	printTx("finalizeDelayedPayoutTx", delayedTx)

	return delayedTx, nil
}

// VerifyDelayedPayoutTx checks that the delayed payout transaction is time locked and spends the deposit.
func VerifyDelayedPayoutTx(depositTx, delayedTx *wire.MsgTx) error {
	msOutPoint, _, err := depositMsOutput(depositTx)
	if err != nil {
		return err
	}

	if delayedTx.LockTime == 0 {
		return bitcoin.NewCounterpartyError("lock time of delayed payout tx must not be 0")
	}

	var (
		hasNonFinalSequence bool
		spendsDeposit       bool
	)
	for _, in := range delayedTx.TxIn {
		hasNonFinalSequence = hasNonFinalSequence || in.Sequence == lockTimeSequence
		spendsDeposit = spendsDeposit || in.PreviousOutPoint == *msOutPoint
	}

	switch {
	case !hasNonFinalSequence:
		return bitcoin.NewCounterpartyError("sequence number of delayed payout tx input must be 0xFFFFFFFE")
	case !spendsDeposit:
		return bitcoin.NewCounterpartyError("delayed payout tx does not spend the deposit multi-sig output")
	}

	return nil
}

// IsLockTimeMature returns true if transaction with the lock time can be included in the next block.
func IsLockTimeMature(lockTime uint32, bestHeight int32, bestTime time.Time) bool {
	if lockTime < txscript.LockTimeThreshold {
		return int64(lockTime) <= int64(bestHeight)
	}

	return int64(lockTime) < bestTime.Unix()
}

// signDepositSpend signs single input transaction spending the deposit multi-sig output.
func (b *TxBuilder) signDepositSpend(depositTx, tx *wire.MsgTx, privKey *btcec.PrivateKey,
	buyerPubKey, sellerPubKey []byte) ([]byte, error) {
	_, msOutput, err := depositMsOutput(depositTx)
	if err != nil {
		return nil, err
	}

	redeemScript, err := utils.NewTradeRedeemScript(buyerPubKey, sellerPubKey)
	if err != nil {
		return nil, err
	}

	return b.signer.SignMultiSig(tx, 0, redeemScript, msOutput, privKey)
}

// finalizeDepositSpend sets the input spending deposit multi-sig output.
// Signatures go seller first following the redeem script keys order.
func (b *TxBuilder) finalizeDepositSpend(depositTx, tx *wire.MsgTx, buyerPubKey, sellerPubKey,
	buyerSig, sellerSig []byte) error {
	_, msOutput, err := depositMsOutput(depositTx)
	if err != nil {
		return err
	}

	if err = parsePeerSignature(buyerSig, "buyer"); err != nil {
		return err
	}
	if err = parsePeerSignature(sellerSig, "seller"); err != nil {
		return err
	}

	redeemScript, err := utils.NewTradeRedeemScript(buyerPubKey, sellerPubKey)
	if err != nil {
		return err
	}

	if err = spendMultiSig(tx, 0, redeemScript, msOutput, sellerSig, buyerSig); err != nil {
		return err
	}

	return signer.VerifyTransaction(tx)
}
