// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/tradewallet/bitcoin"
)

func TestRawInput(t *testing.T) {
	parent := wire.NewMsgTx(2)
	parent.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x01}, 3), nil, nil))
	parent.AddTxOut(wire.NewTxOut(10000, []byte{0x00, 0x14, 0x01}))
	parent.AddTxOut(wire.NewTxOut(250000, []byte{0x00, 0x14, 0x02}))

	t.Run("NewRawInput", func(t *testing.T) {
		input, err := bitcoin.NewRawInput(parent, 1)
		require.NoError(t, err)
		require.EqualValues(t, 1, input.Index)
		require.Equal(t, btcutil.Amount(250000), input.Value)

		outPoint, err := input.OutPoint()
		require.NoError(t, err)
		require.Equal(t, parent.TxHash(), outPoint.Hash)
		require.EqualValues(t, 1, outPoint.Index)

		txIn, prevOut, err := input.TxIn()
		require.NoError(t, err)
		require.Equal(t, outPoint, txIn.PreviousOutPoint)
		require.Equal(t, parent.TxOut[1], prevOut)

		_, err = bitcoin.NewRawInput(parent, 2)
		require.ErrorIs(t, err, bitcoin.ErrInvalidRawInput)
	})

	t.Run("value mismatch", func(t *testing.T) {
		input, err := bitcoin.NewRawInput(parent, 0)
		require.NoError(t, err)

		input.Value++
		_, err = input.OutPoint()
		require.ErrorIs(t, err, bitcoin.ErrInvalidRawInput)
	})

	t.Run("Encode&Decode", func(t *testing.T) {
		first, err := bitcoin.NewRawInput(parent, 0)
		require.NoError(t, err)
		second, err := bitcoin.NewRawInput(parent, 1)
		require.NoError(t, err)

		data, err := bitcoin.EncodeRawInputs([]bitcoin.RawInput{first, second})
		require.NoError(t, err)

		inputs, err := bitcoin.DecodeRawInputs(data)
		require.NoError(t, err)
		require.Equal(t, []bitcoin.RawInput{first, second}, inputs)
		require.Equal(t, btcutil.Amount(260000), bitcoin.RawInputsValue(inputs))

		_, err = bitcoin.DecodeRawInputs(append(data, 0x00))
		require.ErrorIs(t, err, bitcoin.ErrInvalidRawInput)

		_, err = bitcoin.DecodeRawInputs(data[:len(data)-5])
		require.ErrorIs(t, err, bitcoin.ErrInvalidRawInput)
	})

	t.Run("missing record", func(t *testing.T) {
		// stream with the index record only.
		var input bitcoin.RawInput
		err := input.Decode(bytes.NewReader([]byte{0x00, 0x04, 0x00, 0x00, 0x00, 0x01}))
		require.True(t, errors.Is(err, bitcoin.ErrInvalidRawInput))
	})
}

func TestVerificationError(t *testing.T) {
	err := bitcoin.NewCounterpartyError("contract hash mismatch")
	require.ErrorIs(t, err, bitcoin.ErrTxVerification)
	require.True(t, bitcoin.IsCounterpartyViolation(err))
	require.Equal(t, "transaction verification failed: contract hash mismatch (counterparty)", err.Error())

	local := bitcoin.NewVerificationError("sanity", errors.New("no outputs"))
	require.ErrorIs(t, local, bitcoin.ErrTxVerification)
	require.False(t, bitcoin.IsCounterpartyViolation(local))
	require.Equal(t, "transaction verification failed: sanity: no outputs", local.Error())
}
