// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package signer

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/keychain"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// signHashType define signature hash type for input signing.
const signHashType = txscript.SigHashAll

var (
	// ErrSigning defines errors class for input signing.
	ErrSigning = errors.New("sign input")
	// ErrMissingKey defines that wallet has no private key to redeem the input.
	ErrMissingKey = errors.New("missing private key, cannot redeem")
	// ErrKeyEncrypted defines that private key is encrypted and passphrase was not provided.
	ErrKeyEncrypted = keychain.ErrKeyEncrypted
	// ErrUnknownScriptTemplate defines that signer does not know how to sign provided script.
	ErrUnknownScriptTemplate = errors.New("don't know how to sign script")
)

// Signer provides transaction signing related logic.
type Signer struct {
	networkParams *chaincfg.Params
	keyRing       keychain.KeyRing
	lowR          bool
}

// NewSigner is a constructor for Signer.
// With lowR set signatures are ground to have R value below 2^255 (71 bytes DER at most).
func NewSigner(networkParams *chaincfg.Params, keyRing keychain.KeyRing, lowR bool) *Signer {
	return &Signer{
		networkParams: networkParams,
		keyRing:       keyRing,
		lowR:          lowR,
	}
}

// SignInput signs input spending prevOut with the wallet key, mutating its signature script or witness.
// Inputs which already satisfy the connected script (e.g. pre-signed by the trade peer) are skipped.
// Supported templates: P2PK, P2PKH, P2WPKH.
func (signer *Signer) SignInput(tx *wire.MsgTx, idx int, prevOut *wire.TxOut, fetcher txscript.PrevOutputFetcher, passphrase []byte) (err error) {
	defer func(err *error) {
		if err != nil && *err != nil {
			*err = errors.Join(ErrSigning, fmt.Errorf("input %d: %w", idx, *err))
		}
	}(&err)

	if idx < 0 || idx >= len(tx.TxIn) {
		return errors.New("invalid input index")
	}

	if fetcher == nil {
		fetcher = txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	}

	if CheckScriptSig(tx, idx, prevOut, fetcher) == nil {
		log.Debugf("Input %d of tx %v already satisfies its script, skipping", idx, tx.TxHash())
		return nil
	}

	var (
		pkScript   = prevOut.PkScript
		scriptType = utils.ClassifyScript(pkScript)
		key        *keychain.Key
	)
	switch scriptType {
	case utils.P2PK:
		pushes, err := txscript.PushedData(pkScript)
		if err != nil || len(pushes) != 1 {
			return ErrUnknownScriptTemplate
		}

		key, err = signer.keyRing.KeyByPubKey(pushes[0])
		if err != nil {
			return signer.keyError(err)
		}
	case utils.P2PKH:
		// OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
		key, err = signer.keyRing.KeyByPubKeyHash(pkScript[3:23])
		if err != nil {
			return signer.keyError(err)
		}
	case utils.P2WPKH:
		// OP_0 <20 bytes>.
		key, err = signer.keyRing.KeyByPubKeyHash(pkScript[2:22])
		if err != nil {
			return signer.keyError(err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownScriptTemplate, scriptType)
	}

	privKey, err := key.PrivKey(passphrase)
	if err != nil {
		return err
	}

	switch scriptType {
	case utils.P2PK, utils.P2PKH:
		hash, err := txscript.CalcSignatureHash(pkScript, signHashType, tx, idx)
		if err != nil {
			return err
		}

		builder := txscript.NewScriptBuilder().AddData(signer.sign(hash, privKey))
		if scriptType == utils.P2PKH {
			builder.AddData(privKey.PubKey().SerializeCompressed())
		}

		tx.TxIn[idx].SignatureScript, err = builder.Script()
		if err != nil {
			return err
		}
	case utils.P2WPKH:
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)
		hash, err := txscript.CalcWitnessSigHash(pkScript, sigHashes, signHashType, tx, idx, prevOut.Value)
		if err != nil {
			return err
		}

		tx.TxIn[idx].SignatureScript = nil
		tx.TxIn[idx].Witness = wire.TxWitness{signer.sign(hash, privKey), privKey.PubKey().SerializeCompressed()}
	}

	return CheckScriptSig(tx, idx, prevOut, fetcher)
}

// SignInputs signs all inputs in [from, to) range, prevOuts are taken from the fetcher.
func (signer *Signer) SignInputs(tx *wire.MsgTx, from, to int, fetcher txscript.PrevOutputFetcher, passphrase []byte) error {
	for idx := from; idx < to; idx++ {
		prevOut := fetcher.FetchPrevOutput(tx.TxIn[idx].PreviousOutPoint)
		if prevOut == nil {
			return errors.Join(ErrSigning, fmt.Errorf("input %d: unknown connected output", idx))
		}

		if err := signer.SignInput(tx, idx, prevOut, fetcher, passphrase); err != nil {
			return err
		}
	}

	return nil
}

// PrivKey returns wallet private key of provided public key.
func (signer *Signer) PrivKey(pubKey []byte, passphrase []byte) (*btcec.PrivateKey, error) {
	key, err := signer.keyRing.KeyByPubKey(pubKey)
	if err != nil {
		return nil, errors.Join(ErrSigning, signer.keyError(err))
	}

	privKey, err := key.PrivKey(passphrase)
	if err != nil {
		return nil, errors.Join(ErrSigning, err)
	}

	return privKey, nil
}

// SignMultiSig signs input spending multi-sig output (P2WSH or P2SH) with redeem script,
// returns DER encoded signature without hash type byte.
func (signer *Signer) SignMultiSig(tx *wire.MsgTx, idx int, redeemScript []byte, prevOut *wire.TxOut, privKey *btcec.PrivateKey) ([]byte, error) {
	hash, err := MultiSigSigHash(tx, idx, redeemScript, prevOut)
	if err != nil {
		return nil, errors.Join(ErrSigning, err)
	}

	return signer.signDER(hash, privKey), nil
}

// MultiSigSigHash computes signature hash of the input spending multi-sig output.
// Witness signature hash is used for P2WSH outputs and the legacy one for P2SH outputs.
func MultiSigSigHash(tx *wire.MsgTx, idx int, redeemScript []byte, prevOut *wire.TxOut) ([]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, errors.New("invalid input index")
	}

	switch utils.ClassifyScript(prevOut.PkScript) {
	case utils.P2WSH:
		expected, err := utils.WitnessScriptHash(redeemScript)
		if err != nil {
			return nil, err
		}
		if string(expected) != string(prevOut.PkScript) {
			return nil, errors.New("redeem script does not match connected output")
		}

		fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)

		return txscript.CalcWitnessSigHash(redeemScript, sigHashes, signHashType, tx, idx, prevOut.Value)
	case utils.P2SH:
		expected, err := utils.ScriptHash(redeemScript)
		if err != nil {
			return nil, err
		}
		if string(expected) != string(prevOut.PkScript) {
			return nil, errors.New("redeem script does not match connected output")
		}

		return txscript.CalcSignatureHash(redeemScript, signHashType, tx, idx)
	default:
		return nil, ErrUnknownScriptTemplate
	}
}

// WithHashType returns copy of DER signature with the hash type byte appended.
func WithHashType(sig []byte) []byte {
	result := make([]byte, 0, len(sig)+1)
	result = append(result, sig...)

	return append(result, byte(signHashType))
}

// sign returns DER signature with hash type byte appended.
func (signer *Signer) sign(hash []byte, privKey *btcec.PrivateKey) []byte {
	return WithHashType(signer.signDER(hash, privKey))
}

// signDER returns canonical DER signature.
func (signer *Signer) signDER(hash []byte, privKey *btcec.PrivateKey) []byte {
	return SignHash(privKey, hash, signer.lowR).Serialize()
}

// keyError maps key ring lookup errors.
func (signer *Signer) keyError(err error) error {
	if errors.Is(err, keychain.ErrKeyNotFound) {
		return ErrMissingKey
	}

	return err
}

// VerifyTransaction checks transaction against consensus sanity rules.
func VerifyTransaction(tx *wire.MsgTx) error {
	if err := checkSanity(tx); err != nil {
		return bitcoin.NewVerificationError("sanity check of tx "+tx.TxHash().String(), err)
	}

	return nil
}
