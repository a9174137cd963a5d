// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// ClaimTxParams describes data needed to build the claim transaction.
type ClaimTxParams struct {
	WarningTx     *wire.MsgTx
	WarningScript []byte
	ClaimDelay    uint32
	PayoutAddress string
	MinerFee      btcutil.Amount
	// PrivKey is the warner multi-sig key.
	PrivKey *btcec.PrivateKey
}

// CreateSignedClaimTx builds and signs transaction spending the warning output through the
// relative time locked branch of the warning script.
func (b *TxBuilder) CreateSignedClaimTx(params ClaimTxParams) (*wire.MsgTx, error) {
	outPoint, output, err := warningOutput(params.WarningTx, params.WarningScript)
	if err != nil {
		return nil, err
	}

	if params.ClaimDelay == 0 || params.ClaimDelay&wire.SequenceLockTimeMask != params.ClaimDelay {
		return nil, fmt.Errorf("%w: invalid claim delay %d", ErrInvalidParams, params.ClaimDelay)
	}

	amount := btcutil.Amount(output.Value) - params.MinerFee
	if params.MinerFee < 0 || !restrictions.IsNonDust(amount) {
		return nil, fmt.Errorf("%w: claim amount %v is dust", ErrInvalidParams, amount)
	}

	claimTx := singleInputTx(outPoint, params.ClaimDelay)
	if err = b.addOutput(claimTx, amount, params.PayoutAddress); err != nil {
		return nil, err
	}

	sig, err := b.signer.SignMultiSig(claimTx, 0, params.WarningScript, output, params.PrivKey)
	if err != nil {
		return nil, err
	}

	claimTx.TxIn[0].Witness = utils.WarningClaimWitness(params.WarningScript, signer.WithHashType(sig))
	if err = signer.CheckScriptSig(claimTx, 0, output, nil); err != nil {
		return nil, bitcoin.NewVerificationError("claim tx does not spend warning output", err)
	}
	if err = signer.VerifyTransaction(claimTx); err != nil {
		return nil, err
	}

	printTx("claimTx", claimTx)

	return claimTx, nil
}

// IsClaimMature returns true if claim transaction can be included in the next block,
// i.e. the warning transaction confirmed at warningConfHeight got claimDelay confirmations.
func IsClaimMature(warningConfHeight, claimDelay uint32, bestHeight int32) bool {
	if warningConfHeight == 0 || bestHeight < 0 {
		return false
	}

	return int64(bestHeight)+1-int64(warningConfHeight) >= int64(claimDelay)
}
