// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder_test

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/txbuilder"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// msDepositTx returns deposit transaction with multi-sig output paying to the script.
func msDepositTx(value int64, pkScript []byte) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0xde, 0x90}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, pkScript))
	tx.AddTxOut(wire.NewTxOut(0, utils.MustUnspendableScript([]byte("contract")...)))

	return tx
}

func TestPayoutAllocation(t *testing.T) {
	tests := []struct {
		name       string
		allocation txbuilder.PayoutAllocation
		err        error
	}{
		{"both payouts", txbuilder.PayoutAllocation{Buyer: 60000, Seller: 39000, MinerFee: 1000}, nil},
		{"buyer only", txbuilder.PayoutAllocation{Buyer: 99000, MinerFee: 1000}, nil},
		{"seller only", txbuilder.PayoutAllocation{Seller: 99000, MinerFee: 1000}, nil},
		{"not conserved", txbuilder.PayoutAllocation{Buyer: 60000, Seller: 40000, MinerFee: 1000}, txbuilder.ErrPayoutNotConserved},
		{"dust payout", txbuilder.PayoutAllocation{Buyer: 98500, Seller: 500, MinerFee: 1000}, txbuilder.ErrDustPayout},
		{"no payouts", txbuilder.PayoutAllocation{MinerFee: 100000}, txbuilder.ErrNoPayoutOutputs},
		{"negative", txbuilder.PayoutAllocation{Buyer: 101000, Seller: -2000, MinerFee: 1000}, txbuilder.ErrInvalidParams},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.allocation.Validate(100000)
			if test.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, test.err)
		})
	}
}

func TestPayoutTx(t *testing.T) {
	buyer, seller := newTrader(t), newTrader(t)
	buyerAddress, buyerScript := newAddress(t)
	sellerAddress, sellerScript := newAddress(t)

	redeemScript := utils.MustTradeRedeemScript(buyer.pubKey(), seller.pubKey())
	depositTx := msDepositTx(100000, utils.MustWitnessScriptHash(redeemScript))

	params := txbuilder.PayoutParams{
		DepositTx:     depositTx,
		Allocation:    txbuilder.PayoutAllocation{Buyer: 70000, Seller: 29000, MinerFee: 1000},
		BuyerAddress:  buyerAddress,
		SellerAddress: sellerAddress,
		BuyerPubKey:   buyer.pubKey(),
		SellerPubKey:  seller.pubKey(),
	}
	msOutput := depositTx.TxOut[0]

	t.Run("standard", func(t *testing.T) {
		buyerSig, err := buyer.builder.BuyerSignsPayoutTx(params, buyer.multiSigKey)
		require.NoError(t, err)

		payoutTx, err := seller.builder.SellerSignsAndFinalizesPayoutTx(params, buyerSig, seller.multiSigKey)
		require.NoError(t, err)

		require.Len(t, payoutTx.TxIn, 1)
		require.Equal(t, wire.OutPoint{Hash: depositTx.TxHash(), Index: 0}, payoutTx.TxIn[0].PreviousOutPoint)
		require.Equal(t, []*wire.TxOut{wire.NewTxOut(70000, buyerScript), wire.NewTxOut(29000, sellerScript)}, payoutTx.TxOut)
		require.Empty(t, payoutTx.TxIn[0].SignatureScript)
		require.NoError(t, signer.CheckScriptSig(payoutTx, 0, msOutput, nil))
		requireConserved(t, payoutTx, msOutput, params.Allocation.MinerFee)
	})

	t.Run("zero payout is omitted", func(t *testing.T) {
		params := params
		params.Allocation = txbuilder.PayoutAllocation{Seller: 99000, MinerFee: 1000}

		buyerSig, err := buyer.builder.BuyerSignsPayoutTx(params, buyer.multiSigKey)
		require.NoError(t, err)

		payoutTx, err := seller.builder.SellerSignsAndFinalizesPayoutTx(params, buyerSig, seller.multiSigKey)
		require.NoError(t, err)
		require.Equal(t, []*wire.TxOut{wire.NewTxOut(99000, sellerScript)}, payoutTx.TxOut)
		requireConserved(t, payoutTx, msOutput, params.Allocation.MinerFee)
	})

	t.Run("not conserved allocation", func(t *testing.T) {
		params := params
		params.Allocation.MinerFee = 2000

		_, err := buyer.builder.BuyerSignsPayoutTx(params, buyer.multiSigKey)
		require.ErrorIs(t, err, txbuilder.ErrPayoutNotConserved)
	})

	t.Run("mediated", func(t *testing.T) {
		params := params
		params.Allocation = txbuilder.PayoutAllocation{Buyer: 50000, Seller: 49500, MinerFee: 500}

		buyerSig, err := buyer.builder.SignMediatedPayoutTx(params, buyer.multiSigKey)
		require.NoError(t, err)
		sellerSig, err := seller.builder.SignMediatedPayoutTx(params, seller.multiSigKey)
		require.NoError(t, err)

		// signatures are placed in the redeem script keys order, swapped ones are rejected.
		_, err = buyer.builder.FinalizeMediatedPayoutTx(params, sellerSig, buyerSig)
		require.ErrorIs(t, err, bitcoin.ErrTxVerification)

		payoutTx, err := buyer.builder.FinalizeMediatedPayoutTx(params, buyerSig, sellerSig)
		require.NoError(t, err)
		require.Equal(t, signer.WithHashType(sellerSig), []byte(payoutTx.TxIn[0].Witness[1]))
		require.Equal(t, signer.WithHashType(buyerSig), []byte(payoutTx.TxIn[0].Witness[2]))
		require.NoError(t, signer.CheckScriptSig(payoutTx, 0, msOutput, nil))
		requireConserved(t, payoutTx, msOutput, params.Allocation.MinerFee)
	})

	t.Run("invalid peer signature", func(t *testing.T) {
		sellerSig, err := seller.builder.SignMediatedPayoutTx(params, seller.multiSigKey)
		require.NoError(t, err)

		_, err = seller.builder.FinalizeMediatedPayoutTx(params, []byte{0x30, 0x01}, sellerSig)
		require.True(t, bitcoin.IsCounterpartyViolation(err), err)
	})

	t.Run("legacy P2SH deposit", func(t *testing.T) {
		p2sh, err := utils.ScriptHash(redeemScript)
		require.NoError(t, err)

		params := params
		params.DepositTx = msDepositTx(100000, p2sh)

		buyerSig, err := buyer.builder.BuyerSignsPayoutTx(params, buyer.multiSigKey)
		require.NoError(t, err)

		payoutTx, err := seller.builder.SellerSignsAndFinalizesPayoutTx(params, buyerSig, seller.multiSigKey)
		require.NoError(t, err)
		require.NotEmpty(t, payoutTx.TxIn[0].SignatureScript)
		require.Empty(t, payoutTx.TxIn[0].Witness)
		require.NoError(t, signer.CheckScriptSig(payoutTx, 0, params.DepositTx.TxOut[0], nil))
	})

	t.Run("arbitrated", func(t *testing.T) {
		arbitrator := newTrader(t)
		disputeScript, err := utils.NewDisputeRedeemScript(buyer.pubKey(), seller.pubKey(), arbitrator.pubKey())
		require.NoError(t, err)

		disputed := txbuilder.DisputedPayoutParams{PayoutParams: params, ArbitratorPubKey: arbitrator.pubKey()}
		disputed.DepositTx = msDepositTx(100000, utils.MustWitnessScriptHash(disputeScript))
		disputed.Allocation = txbuilder.PayoutAllocation{Buyer: 99000, MinerFee: 1000}

		arbitratorSig, err := arbitrator.builder.SignDisputedPayoutTx(disputed, arbitrator.multiSigKey)
		require.NoError(t, err)

		for _, tr := range []*trader{buyer, seller} {
			payoutTx, err := tr.builder.TraderSignAndFinalizeDisputedPayoutTx(disputed, arbitratorSig, tr.multiSigKey)
			require.NoError(t, err)
			require.Equal(t, signer.WithHashType(arbitratorSig), []byte(payoutTx.TxIn[0].Witness[1]))
			require.NoError(t, signer.CheckScriptSig(payoutTx, 0, disputed.DepositTx.TxOut[0], nil))
			requireConserved(t, payoutTx, disputed.DepositTx.TxOut[0], disputed.Allocation.MinerFee)
		}
	})
}

func TestEmergencySignAndPublishPayoutTx(t *testing.T) {
	buyerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	sellerKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	buyerAddress, _ := newAddress(t)
	sellerAddress, _ := newAddress(t)

	redeemScript := utils.MustTradeRedeemScript(buyerKey.PubKey().SerializeCompressed(), sellerKey.PubKey().SerializeCompressed())
	depositTxID := chainhash.Hash{0x0d, 0xe9}

	builder := newTrader(t).builder
	params := txbuilder.EmergencyPayoutParams{
		DepositTxID:      depositTxID.String(),
		Allocation:       txbuilder.PayoutAllocation{Buyer: 150000, Seller: 148000, MinerFee: 2000},
		BuyerAddress:     buyerAddress,
		SellerAddress:    sellerAddress,
		BuyerPrivKeyHex:  hex.EncodeToString(buyerKey.Serialize()),
		SellerPrivKeyHex: hex.EncodeToString(sellerKey.Serialize()),
	}

	t.Run("P2WSH", func(t *testing.T) {
		payoutTx, err := builder.EmergencySignAndPublishPayoutTx(params)
		require.NoError(t, err)
		require.Equal(t, wire.OutPoint{Hash: depositTxID, Index: 0}, payoutTx.TxIn[0].PreviousOutPoint)

		msOutput := wire.NewTxOut(300000, utils.MustWitnessScriptHash(redeemScript))
		require.NoError(t, signer.CheckScriptSig(payoutTx, 0, msOutput, nil))
		requireConserved(t, payoutTx, msOutput, params.Allocation.MinerFee)
	})

	t.Run("P2SH", func(t *testing.T) {
		params := params
		params.P2SH = true

		payoutTx, err := builder.EmergencySignAndPublishPayoutTx(params)
		require.NoError(t, err)

		p2sh, err := utils.ScriptHash(redeemScript)
		require.NoError(t, err)
		require.NoError(t, signer.CheckScriptSig(payoutTx, 0, wire.NewTxOut(300000, p2sh), nil))
	})

	t.Run("invalid key", func(t *testing.T) {
		params := params
		params.SellerPrivKeyHex = "beef"

		_, err := builder.EmergencySignAndPublishPayoutTx(params)
		require.ErrorIs(t, err, txbuilder.ErrInvalidParams)
	})

	t.Run("invalid deposit tx id", func(t *testing.T) {
		params := params
		params.DepositTxID = "not a hash"

		_, err := builder.EmergencySignAndPublishPayoutTx(params)
		require.ErrorIs(t, err, txbuilder.ErrInvalidParams)
	})
}

// requireConserved checks that payouts and miner fee sum up to the multi-sig output value.
func requireConserved(t *testing.T, payoutTx *wire.MsgTx, msOutput *wire.TxOut, minerFee btcutil.Amount) {
	t.Helper()

	var outputs btcutil.Amount
	for _, out := range payoutTx.TxOut {
		outputs += btcutil.Amount(out.Value)
	}
	require.Equal(t, btcutil.Amount(msOutput.Value), outputs+minerFee)
}
