// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

func TestScripts(t *testing.T) {
	buyer := mustPubKey(t)
	seller := mustPubKey(t)
	arbitrator := mustPubKey(t)

	t.Run("trade redeem script keeps seller-buyer order", func(t *testing.T) {
		script, err := utils.NewTradeRedeemScript(buyer, seller)
		require.NoError(t, err)

		pushes, err := txscript.PushedData(script)
		require.NoError(t, err)
		require.Equal(t, [][]byte{seller, buyer}, pushes)

		class, addrs, required, err := txscript.ExtractPkScriptAddrs(script, &chaincfg.RegressionNetParams)
		require.NoError(t, err)
		require.Equal(t, txscript.MultiSigTy, class)
		require.Equal(t, 2, required)
		require.Len(t, addrs, 2)

		// swapped arguments must give different script, no sorting.
		swapped := utils.MustTradeRedeemScript(seller, buyer)
		require.NotEqual(t, script, swapped)
	})

	t.Run("dispute redeem script keeps arbitrator-seller-buyer order", func(t *testing.T) {
		script, err := utils.NewDisputeRedeemScript(buyer, seller, arbitrator)
		require.NoError(t, err)

		pushes, err := txscript.PushedData(script)
		require.NoError(t, err)
		require.Equal(t, [][]byte{arbitrator, seller, buyer}, pushes)
	})

	t.Run("invalid keys", func(t *testing.T) {
		_, err := utils.NewTradeRedeemScript(buyer[:32], seller)
		require.ErrorIs(t, err, utils.ErrInvalidPubKey)

		_, err = utils.NewMultiSigRedeemScript(3, buyer, seller)
		require.Error(t, err)
	})

	t.Run("warning script", func(t *testing.T) {
		script, err := utils.NewWarningScript(buyer, seller, true, 144)
		require.NoError(t, err)

		disasm, err := txscript.DisasmString(script)
		require.NoError(t, err)
		require.Contains(t, disasm, "OP_IF 2 ")
		require.Contains(t, disasm, "OP_CHECKSEQUENCEVERIFY OP_DROP")

		pushes, err := txscript.PushedData(script)
		require.NoError(t, err)
		// buyer, seller, claim delay, claimer.
		require.Equal(t, buyer, pushes[0])
		require.Equal(t, seller, pushes[1])
		require.Equal(t, buyer, pushes[len(pushes)-1])

		sellerClaim, err := utils.NewWarningScript(buyer, seller, false, 144)
		require.NoError(t, err)
		pushes, err = txscript.PushedData(sellerClaim)
		require.NoError(t, err)
		require.Equal(t, seller, pushes[len(pushes)-1])

		_, err = utils.NewWarningScript(buyer, seller, true, 0)
		require.Error(t, err)
		_, err = utils.NewWarningScript(buyer, seller, true, 1<<16)
		require.Error(t, err)
	})

	t.Run("output scripts", func(t *testing.T) {
		redeem := utils.MustTradeRedeemScript(buyer, seller)

		p2wsh := utils.MustWitnessScriptHash(redeem)
		require.True(t, txscript.IsPayToWitnessScriptHash(p2wsh))

		p2sh, err := utils.ScriptHash(redeem)
		require.NoError(t, err)
		require.True(t, txscript.IsPayToScriptHash(p2sh))

		address, err := utils.NewTradeMultiSigAddress(&chaincfg.RegressionNetParams, buyer, seller)
		require.NoError(t, err)
		require.Equal(t, p2wsh, utils.MustPayToAddress(&chaincfg.RegressionNetParams, address.EncodeAddress()))
		require.Equal(t, address.EncodeAddress(), utils.AddressOfScript(&chaincfg.RegressionNetParams, p2wsh))
	})

	t.Run("unspendable", func(t *testing.T) {
		script := utils.MustUnspendableScript([]byte("contract hash")...)
		require.True(t, utils.IsUnspendable(script))
		require.True(t, txscript.IsNullData(script))
		require.False(t, utils.IsUnspendable(utils.MustWitnessScriptHash([]byte{0x51})))
	})

	t.Run("witnesses", func(t *testing.T) {
		witness := utils.MultiSigWitness([]byte{0x52}, []byte{0x01}, []byte{0x02})
		require.Len(t, witness, 4)
		require.Empty(t, witness[0])
		require.Equal(t, []byte{0x52}, witness[3])

		claim := utils.WarningClaimWitness([]byte{0x63}, []byte{0x01})
		require.Len(t, claim, 3)
		require.Empty(t, claim[1])
	})
}

func mustPubKey(t *testing.T) []byte {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return privKey.PubKey().SerializeCompressed()
}
