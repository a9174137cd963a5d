// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

var (
	// ErrPayoutNotConserved defines that payouts and miner fee don't sum up to the multi-sig output value.
	ErrPayoutNotConserved = errors.New("payout amounts and miner fee do not match multi-sig output value")
	// ErrDustPayout defines that non zero payout is below the dust floor.
	ErrDustPayout = errors.New("payout amount is dust")
	// ErrNoPayoutOutputs defines that both payouts are zero.
	ErrNoPayoutOutputs = errors.New("payout tx must have at least one output")
)

// PayoutAllocation describes how the deposit multi-sig output is split.
type PayoutAllocation struct {
	Buyer    btcutil.Amount
	Seller   btcutil.Amount
	MinerFee btcutil.Amount
}

// Validate checks the allocation against the multi-sig output value.
func (a PayoutAllocation) Validate(msValue btcutil.Amount) error {
	switch {
	case a.Buyer < 0 || a.Seller < 0 || a.MinerFee < 0:
		return fmt.Errorf("%w: negative amount in %+v", ErrInvalidParams, a)
	case a.Buyer+a.Seller+a.MinerFee != msValue:
		return fmt.Errorf("%w: %v + %v + %v != %v", ErrPayoutNotConserved, a.Buyer, a.Seller, a.MinerFee, msValue)
	case a.Buyer == 0 && a.Seller == 0:
		return ErrNoPayoutOutputs
	case a.Buyer > 0 && !restrictions.IsNonDust(a.Buyer):
		return fmt.Errorf("%w: buyer payout %v", ErrDustPayout, a.Buyer)
	case a.Seller > 0 && !restrictions.IsNonDust(a.Seller):
		return fmt.Errorf("%w: seller payout %v", ErrDustPayout, a.Seller)
	}

	return nil
}

// PayoutParams describes data needed to build the payout transaction.
type PayoutParams struct {
	DepositTx     *wire.MsgTx
	Allocation    PayoutAllocation
	BuyerAddress  string
	SellerAddress string
	BuyerPubKey   []byte
	SellerPubKey  []byte
}

// DisputedPayoutParams describes data needed to build the payout transaction decided by the arbitrator.
type DisputedPayoutParams struct {
	PayoutParams
	ArbitratorPubKey []byte
}

// EmergencyPayoutParams describes data needed to pay out a stuck deposit with both trader keys.
type EmergencyPayoutParams struct {
	DepositTxID string
	// Allocation miner fee is added to the payouts to get the multi-sig output value.
	Allocation       PayoutAllocation
	BuyerAddress     string
	SellerAddress    string
	BuyerPrivKeyHex  string
	SellerPrivKeyHex string
	// P2SH defines legacy trades with pay to script hash deposit output.
	P2SH bool
}

// createPayoutTx builds transaction spending the multi-sig output of the deposit, buyer payout goes first.
// Zero payouts are omitted.
func (b *TxBuilder) createPayoutTx(msOutPoint *wire.OutPoint, msOutput *wire.TxOut, allocation PayoutAllocation,
	buyerAddress, sellerAddress string) (*wire.MsgTx, error) {
	if err := allocation.Validate(btcutil.Amount(msOutput.Value)); err != nil {
		return nil, err
	}

	payoutTx := singleInputTx(msOutPoint, wire.MaxTxInSequenceNum)
	if allocation.Buyer > 0 {
		if err := b.addOutput(payoutTx, allocation.Buyer, buyerAddress); err != nil {
			return nil, err
		}
	}
	if allocation.Seller > 0 {
		if err := b.addOutput(payoutTx, allocation.Seller, sellerAddress); err != nil {
			return nil, err
		}
	}

	if err := signer.VerifyTransaction(payoutTx); err != nil {
		return nil, err
	}

	return payoutTx, nil
}

// depositPayoutTx builds payout transaction spending the deposit multi-sig output.
func (b *TxBuilder) depositPayoutTx(params PayoutParams) (*wire.MsgTx, *wire.TxOut, error) {
	msOutPoint, msOutput, err := depositMsOutput(params.DepositTx)
	if err != nil {
		return nil, nil, err
	}

	payoutTx, err := b.createPayoutTx(msOutPoint, msOutput, params.Allocation, params.BuyerAddress, params.SellerAddress)
	if err != nil {
		return nil, nil, err
	}

	return payoutTx, msOutput, nil
}

// BuyerSignsPayoutTx builds the standard payout transaction and returns the buyer signature.
func (b *TxBuilder) BuyerSignsPayoutTx(params PayoutParams, privKey *btcec.PrivateKey) ([]byte, error) {
	payoutTx, _, err := b.depositPayoutTx(params)
	if err != nil {
		return nil, err
	}

	return b.signDepositSpend(params.DepositTx, payoutTx, privKey, params.BuyerPubKey, params.SellerPubKey)
}

// SellerSignsAndFinalizesPayoutTx builds the standard payout transaction, signs it and assembles
// the multi-sig spend with the buyer signature.
func (b *TxBuilder) SellerSignsAndFinalizesPayoutTx(params PayoutParams, buyerSig []byte,
	privKey *btcec.PrivateKey) (*wire.MsgTx, error) {
	payoutTx, _, err := b.depositPayoutTx(params)
	if err != nil {
		return nil, err
	}

	sellerSig, err := b.signDepositSpend(params.DepositTx, payoutTx, privKey, params.BuyerPubKey, params.SellerPubKey)
	if err != nil {
		return nil, err
	}

	if err = b.finalizeDepositSpend(params.DepositTx, payoutTx, params.BuyerPubKey, params.SellerPubKey,
		buyerSig, sellerSig); err != nil {
		return nil, err
	}

	printTx("payoutTx", payoutTx)

	return payoutTx, nil
}

// SignMediatedPayoutTx builds the payout transaction suggested by the mediator and returns
// signature of any trader.
func (b *TxBuilder) SignMediatedPayoutTx(params PayoutParams, privKey *btcec.PrivateKey) ([]byte, error) {
	payoutTx, _, err := b.depositPayoutTx(params)
	if err != nil {
		return nil, err
	}

	return b.signDepositSpend(params.DepositTx, payoutTx, privKey, params.BuyerPubKey, params.SellerPubKey)
}

// FinalizeMediatedPayoutTx assembles the mediated payout transaction with signatures of both traders.
func (b *TxBuilder) FinalizeMediatedPayoutTx(params PayoutParams, buyerSig, sellerSig []byte) (*wire.MsgTx, error) {
	payoutTx, _, err := b.depositPayoutTx(params)
	if err != nil {
		return nil, err
	}

	if err = b.finalizeDepositSpend(params.DepositTx, payoutTx, params.BuyerPubKey, params.SellerPubKey,
		buyerSig, sellerSig); err != nil {
		return nil, err
	}

	printTx("mediated payoutTx", payoutTx)

	return payoutTx, nil
}

// SignDisputedPayoutTx builds the payout transaction decided by the arbitrator and returns the arbitrator signature.
func (b *TxBuilder) SignDisputedPayoutTx(params DisputedPayoutParams, privKey *btcec.PrivateKey) ([]byte, error) {
	payoutTx, msOutput, err := b.depositPayoutTx(params.PayoutParams)
	if err != nil {
		return nil, err
	}

	redeemScript, err := utils.NewDisputeRedeemScript(params.BuyerPubKey, params.SellerPubKey, params.ArbitratorPubKey)
	if err != nil {
		return nil, err
	}

	return b.signer.SignMultiSig(payoutTx, 0, redeemScript, msOutput, privKey)
}

// TraderSignAndFinalizeDisputedPayoutTx signs the arbitrated payout transaction with the trader key
// and assembles the 2 of 3 multi-sig spend with the arbitrator signature.
func (b *TxBuilder) TraderSignAndFinalizeDisputedPayoutTx(params DisputedPayoutParams, arbitratorSig []byte,
	privKey *btcec.PrivateKey) (*wire.MsgTx, error) {
	payoutTx, msOutput, err := b.depositPayoutTx(params.PayoutParams)
	if err != nil {
		return nil, err
	}

	if err = parsePeerSignature(arbitratorSig, "arbitrator"); err != nil {
		return nil, err
	}

	redeemScript, err := utils.NewDisputeRedeemScript(params.BuyerPubKey, params.SellerPubKey, params.ArbitratorPubKey)
	if err != nil {
		return nil, err
	}

	traderSig, err := b.signer.SignMultiSig(payoutTx, 0, redeemScript, msOutput, privKey)
	if err != nil {
		return nil, err
	}

	if err = spendMultiSig(payoutTx, 0, redeemScript, msOutput, arbitratorSig, traderSig); err != nil {
		return nil, err
	}
	if err = signer.VerifyTransaction(payoutTx); err != nil {
		return nil, err
	}

	printTx("disputed payoutTx", payoutTx)

	return payoutTx, nil
}

// EmergencySignAndPublishPayoutTx builds and signs payout transaction of a deposit with both trader keys,
// used by the support when the trade protocol can't be completed. The multi-sig output value is the sum
// of the allocation amounts.
func (b *TxBuilder) EmergencySignAndPublishPayoutTx(params EmergencyPayoutParams) (*wire.MsgTx, error) {
	depositTxID, err := chainhash.NewHashFromStr(params.DepositTxID)
	if err != nil {
		return nil, fmt.Errorf("%w: deposit tx id: %v", ErrInvalidParams, err)
	}

	buyerPrivKey, err := privKeyFromHex(params.BuyerPrivKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: buyer private key: %v", ErrInvalidParams, err)
	}
	sellerPrivKey, err := privKeyFromHex(params.SellerPrivKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: seller private key: %v", ErrInvalidParams, err)
	}

	buyerPubKey := buyerPrivKey.PubKey().SerializeCompressed()
	sellerPubKey := sellerPrivKey.PubKey().SerializeCompressed()
	redeemScript, err := utils.NewTradeRedeemScript(buyerPubKey, sellerPubKey)
	if err != nil {
		return nil, err
	}

	msPkScript, err := utils.WitnessScriptHash(redeemScript)
	if params.P2SH {
		msPkScript, err = utils.ScriptHash(redeemScript)
	}
	if err != nil {
		return nil, err
	}

	allocation := params.Allocation
	msOutput := wire.NewTxOut(int64(allocation.Buyer+allocation.Seller+allocation.MinerFee), msPkScript)
	msOutPoint := wire.NewOutPoint(depositTxID, msOutputIndex)

	payoutTx, err := b.createPayoutTx(msOutPoint, msOutput, allocation, params.BuyerAddress, params.SellerAddress)
	if err != nil {
		return nil, err
	}

	buyerSig, err := b.signer.SignMultiSig(payoutTx, 0, redeemScript, msOutput, buyerPrivKey)
	if err != nil {
		return nil, err
	}
	sellerSig, err := b.signer.SignMultiSig(payoutTx, 0, redeemScript, msOutput, sellerPrivKey)
	if err != nil {
		return nil, err
	}

	if err = spendMultiSig(payoutTx, 0, redeemScript, msOutput, sellerSig, buyerSig); err != nil {
		return nil, err
	}
	if err = signer.VerifyTransaction(payoutTx); err != nil {
		return nil, err
	}

	printTx("emergency payoutTx", payoutTx)

	return payoutTx, nil
}

// privKeyFromHex parses hex encoded private key.
func privKeyFromHex(privKeyHex string) (*btcec.PrivateKey, error) {
	privKeyBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, err
	}
	if len(privKeyBytes) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("private key must be %d bytes", btcec.PrivKeyBytesLen)
	}

	privKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)

	return privKey, nil
}
