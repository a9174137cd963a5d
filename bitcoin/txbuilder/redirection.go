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

// Receiver describes one output of the redirection transaction.
type Receiver struct {
	Address string
	Amount  btcutil.Amount
}

// RedirectionTxParams describes data needed to build the redirection transaction.
type RedirectionTxParams struct {
	WarningTx     *wire.MsgTx
	WarningScript []byte
	// Receivers are paid in the provided order, usually the burning men.
	Receivers      []Receiver
	FeeBumpAddress string
	FeeBumpAmount  btcutil.Amount
}

// CreateUnsignedRedirectionTx builds transaction spending the warning output through the
// multi-sig branch of the warning script. Receivers go first, fee bump output last.
// Whatever is left of the warning output pays the miner fee.
func (b *TxBuilder) CreateUnsignedRedirectionTx(params RedirectionTxParams) (*wire.MsgTx, error) {
	if len(params.Receivers) == 0 {
		return nil, fmt.Errorf("%w: redirection receivers must not be empty", ErrInvalidParams)
	}

	outPoint, output, err := warningOutput(params.WarningTx, params.WarningScript)
	if err != nil {
		return nil, err
	}

	redirectionTx := singleInputTx(outPoint, lockTimeSequence)

	total := params.FeeBumpAmount
	for _, receiver := range params.Receivers {
		if !restrictions.IsNonDust(receiver.Amount) {
			return nil, fmt.Errorf("%w: receiver amount %v is dust", ErrInvalidParams, receiver.Amount)
		}
		if err = b.addOutput(redirectionTx, receiver.Amount, receiver.Address); err != nil {
			return nil, err
		}
		total += receiver.Amount
	}

	if !restrictions.IsNonDust(params.FeeBumpAmount) {
		return nil, fmt.Errorf("%w: fee bump amount %v is dust", ErrInvalidParams, params.FeeBumpAmount)
	}
	if err = b.addOutput(redirectionTx, params.FeeBumpAmount, params.FeeBumpAddress); err != nil {
		return nil, err
	}

	if total > btcutil.Amount(output.Value) {
		return nil, fmt.Errorf("%w: redirection outputs %v exceed warning output %v", ErrInvalidParams, total, output.Value)
	}

	if err = signer.VerifyTransaction(redirectionTx); err != nil {
		return nil, err
	}

	printTx("Unsigned redirectionTx", redirectionTx)

	return redirectionTx, nil
}

// SignRedirectionTx returns signature of the redirection transaction with the trader multi-sig key.
func (b *TxBuilder) SignRedirectionTx(warningTx, redirectionTx *wire.MsgTx, warningScript []byte,
	privKey *btcec.PrivateKey) ([]byte, error) {
	_, output, err := warningOutput(warningTx, warningScript)
	if err != nil {
		return nil, err
	}

	return b.signer.SignMultiSig(redirectionTx, 0, warningScript, output, privKey)
}

// FinalizeRedirectionTx assembles the multi-sig branch spend of the warning output.
// Signatures go buyer first following the warning script keys order.
func (b *TxBuilder) FinalizeRedirectionTx(warningTx, redirectionTx *wire.MsgTx, warningScript []byte,
	buyerSig, sellerSig []byte) (*wire.MsgTx, error) {
	_, output, err := warningOutput(warningTx, warningScript)
	if err != nil {
		return nil, err
	}

	if err = parsePeerSignature(buyerSig, "buyer"); err != nil {
		return nil, err
	}
	if err = parsePeerSignature(sellerSig, "seller"); err != nil {
		return nil, err
	}

	redirectionTx.TxIn[0].Witness = utils.WarningMultiSigWitness(warningScript,
		signer.WithHashType(buyerSig), signer.WithHashType(sellerSig))

	if err = signer.CheckScriptSig(redirectionTx, 0, output, nil); err != nil {
		return nil, bitcoin.NewVerificationError("redirection tx does not spend warning output", err)
	}
	if err = signer.VerifyTransaction(redirectionTx); err != nil {
		return nil, err
	}

	printTx("finalizeRedirectionTx", redirectionTx)

	return redirectionTx, nil
}
