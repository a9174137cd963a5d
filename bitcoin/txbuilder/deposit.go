// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/coinselector"
	"github.com/BoostyLabs/tradewallet/bitcoin/funding"
	"github.com/BoostyLabs/tradewallet/bitcoin/restrictions"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/utils"
)

// reservedOutputIndex defines index of the reserved for trade output in the trading fee transaction.
const reservedOutputIndex = 1

// dummyScript is paid by throwaway transactions which are never published.
var dummyScript = append([]byte{txscript.OP_0, txscript.OP_DATA_20}, make([]byte, 20)...)

// InputsAndChangeOutput describes contribution of the trader to the deposit transaction.
type InputsAndChangeOutput struct {
	RawInputs           []bitcoin.RawInput
	ChangeOutputValue   btcutil.Amount
	ChangeOutputAddress fn.Option[string]
}

// MakerDepositParams describes data needed by the offer maker to assemble the deposit transaction.
type MakerDepositParams struct {
	MakerIsBuyer bool
	// ContractHash is committed to with the OP_RETURN output.
	ContractHash     []byte
	MakerInputAmount btcutil.Amount
	MsOutputAmount   btcutil.Amount
	Taker            InputsAndChangeOutput
	// MakerAddress is the offer funding address, the maker inputs are spent from it.
	MakerAddress string
	// Policy selects maker wallet outputs, overrides the MakerAddress one.
	Policy             coinselector.Policy
	MakerChangeAddress string
	BuyerPubKey        []byte
	SellerPubKey       []byte
	Passphrase         []byte
}

// TakerDepositParams describes data needed by the offer taker to co-sign the deposit transaction.
type TakerDepositParams struct {
	TakerIsSeller   bool
	ContractHash    []byte
	MakersDepositTx *wire.MsgTx
	BuyerInputs     []bitcoin.RawInput
	SellerInputs    []bitcoin.RawInput
	BuyerPubKey     []byte
	SellerPubKey    []byte
	Passphrase      []byte
}

// PreparedDepositTx describes the deposit transaction signed by one of the traders.
type PreparedDepositTx struct {
	Tx           *wire.MsgTx
	MakerIsBuyer bool
	BuyerInputs  []bitcoin.RawInput
	SellerInputs []bitcoin.RawInput
	// PrevOuts holds connected outputs of all inputs.
	PrevOuts map[wire.OutPoint]*wire.TxOut
}

// MakerRawInputs returns inputs of the offer maker.
func (d *PreparedDepositTx) MakerRawInputs() []bitcoin.RawInput {
	if d.MakerIsBuyer {
		return d.BuyerInputs
	}

	return d.SellerInputs
}

// makerRange returns [from, to) range of the maker inputs.
func (d *PreparedDepositTx) makerRange() (int, int) {
	return roleRange(d.MakerIsBuyer, len(d.BuyerInputs), len(d.SellerInputs))
}

// takerRange returns [from, to) range of the taker inputs.
func (d *PreparedDepositTx) takerRange() (int, int) {
	return roleRange(!d.MakerIsBuyer, len(d.BuyerInputs), len(d.SellerInputs))
}

// roleRange returns inputs range of the trader, buyer inputs go first.
func roleRange(isBuyer bool, buyerInputs, sellerInputs int) (int, int) {
	if isBuyer {
		return 0, buyerInputs
	}

	return buyerInputs, buyerInputs + sellerInputs
}

// byRole orders maker and taker values as buyer and seller ones.
func byRole[T any](makerIsBuyer bool, maker, taker T) (buyer, seller T) {
	if makerIsBuyer {
		return maker, taker
	}

	return taker, maker
}

// TakerCreatesDepositTxInputs returns the reserved for trade output of the take offer fee transaction
// as the taker's deposit input. Funds were reserved with the exact amount, so there is no change.
//
// The output is spent by a throwaway transaction paying inputAmount - txFee to check its consistency.
func (b *TxBuilder) TakerCreatesDepositTxInputs(takeOfferFeeTx *wire.MsgTx, inputAmount, txFee btcutil.Amount) (*InputsAndChangeOutput, error) {
	if takeOfferFeeTx == nil || len(takeOfferFeeTx.TxOut) <= reservedOutputIndex {
		return nil, fmt.Errorf("%w: take offer fee tx has no reserved for trade output", ErrInvalidParams)
	}

	rawInput, err := bitcoin.NewRawInput(takeOfferFeeTx, reservedOutputIndex)
	if err != nil {
		return nil, err
	}

	amount := inputAmount - txFee
	if amount <= 0 || amount > rawInput.Value {
		return nil, fmt.Errorf("%w: deposit input amount %v doesn't fit reserved output of %v",
			ErrInvalidParams, amount, rawInput.Value)
	}

	txIn, _, err := rawInput.TxIn()
	if err != nil {
		return nil, err
	}

	dummyTx := wire.NewMsgTx(txVersion)
	dummyTx.AddTxIn(txIn)
	dummyTx.AddTxOut(wire.NewTxOut(int64(amount), dummyScript))
	if err = signer.VerifyTransaction(dummyTx); err != nil {
		return nil, err
	}

	return &InputsAndChangeOutput{
		RawInputs:           []bitcoin.RawInput{rawInput},
		ChangeOutputValue:   0,
		ChangeOutputAddress: fn.None[string](),
	}, nil
}

// BuyerAsMakerCreatesDepositTx assembles the deposit transaction by the maker being the btc buyer.
func (b *TxBuilder) BuyerAsMakerCreatesDepositTx(params MakerDepositParams) (*PreparedDepositTx, error) {
	params.MakerIsBuyer = true
	return b.MakerCreatesDepositTx(params)
}

// SellerAsMakerCreatesDepositTx assembles the deposit transaction by the maker being the btc seller.
func (b *TxBuilder) SellerAsMakerCreatesDepositTx(params MakerDepositParams) (*PreparedDepositTx, error) {
	params.MakerIsBuyer = false
	return b.MakerCreatesDepositTx(params)
}

// MakerCreatesDepositTx assembles the deposit transaction and signs the maker inputs.
// INFO: Inputs go buyer first. Outputs are:
//
//	[0] multi-sig output of msOutputAmount
//	[1] OP_RETURN with the contract hash
//	[2..] optional change outputs, buyer first
func (b *TxBuilder) MakerCreatesDepositTx(params MakerDepositParams) (*PreparedDepositTx, error) {
	if len(params.Taker.RawInputs) == 0 {
		return nil, fmt.Errorf("%w: taker inputs must not be empty", ErrInvalidParams)
	}
	if !restrictions.IsNonDust(params.MsOutputAmount) {
		return nil, fmt.Errorf("%w: multi-sig output amount %v is dust", ErrInvalidParams, params.MsOutputAmount)
	}

	msScript, contractScript, err := depositScripts(params.BuyerPubKey, params.SellerPubKey, params.ContractHash)
	if err != nil {
		return nil, err
	}

	changeScript, err := b.payToAddress(params.MakerChangeAddress)
	if err != nil {
		return nil, err
	}

	// fund maker input amount with the throwaway transaction, fee is paid on the deposit level.
	dummyTx := wire.NewMsgTx(txVersion)
	dummyTx.AddTxOut(wire.NewTxOut(int64(params.MakerInputAmount), dummyScript))
	funded, err := b.funder.CompleteTx(funding.CompletionRequest{
		Tx:           dummyTx,
		Fee:          0,
		Policy:       params.Policy,
		ChangeScript: changeScript,
	})
	if err != nil {
		return nil, err
	}
	if len(funded.Tx.TxOut) > 2 {
		return nil, fmt.Errorf("%w: maker funding tx has %d outputs", bitcoin.ErrWalletInconsistent, len(funded.Tx.TxOut))
	}

	makerInputs, err := b.rawInputs(funded.Tx, 0)
	if err != nil {
		return nil, err
	}

	var makerChange *wire.TxOut
	if funded.ChangeIndex != funding.NoChange {
		makerChange = funded.Tx.TxOut[funded.ChangeIndex]
	}

	var takerChange *wire.TxOut
	if params.Taker.ChangeOutputValue > 0 && params.Taker.ChangeOutputAddress.IsSome() {
		takerChangeScript, err := b.payToAddress(params.Taker.ChangeOutputAddress.UnwrapOr(""))
		if err != nil {
			return nil, err
		}
		takerChange = wire.NewTxOut(int64(params.Taker.ChangeOutputValue), takerChangeScript)
	}

	deposit := &PreparedDepositTx{
		Tx:           wire.NewMsgTx(txVersion),
		MakerIsBuyer: params.MakerIsBuyer,
		PrevOuts:     make(map[wire.OutPoint]*wire.TxOut),
	}
	deposit.BuyerInputs, deposit.SellerInputs = byRole(params.MakerIsBuyer, makerInputs, params.Taker.RawInputs)

	for _, rawInput := range append(append([]bitcoin.RawInput{}, deposit.BuyerInputs...), deposit.SellerInputs...) {
		txIn, prevOut, err := rawInput.TxIn()
		if err != nil {
			return nil, err
		}

		deposit.Tx.AddTxIn(txIn)
		deposit.PrevOuts[txIn.PreviousOutPoint] = prevOut
	}

	deposit.Tx.AddTxOut(wire.NewTxOut(int64(params.MsOutputAmount), msScript))
	deposit.Tx.AddTxOut(wire.NewTxOut(0, contractScript))

	buyerChange, sellerChange := byRole(params.MakerIsBuyer, makerChange, takerChange)
	for _, change := range []*wire.TxOut{buyerChange, sellerChange} {
		if change != nil {
			deposit.Tx.AddTxOut(change)
		}
	}

	from, to := deposit.makerRange()
	fetcher := prevOutsFetcher(deposit.PrevOuts)
	if err = b.signer.SignInputs(deposit.Tx, from, to, fetcher, params.Passphrase); err != nil {
		return nil, err
	}
	if err = signer.VerifyInputs(deposit.Tx, from, to, fetcher); err != nil {
		return nil, err
	}
	if err = signer.VerifyTransaction(deposit.Tx); err != nil {
		return nil, err
	}

	printTx("makerCreatesDepositTx", deposit.Tx)

	return deposit, nil
}

// TakerSignsDepositTx checks the deposit transaction assembled by the maker against own computation,
// copies the maker signatures and signs the taker inputs.
func (b *TxBuilder) TakerSignsDepositTx(params TakerDepositParams) (*PreparedDepositTx, error) {
	if len(params.BuyerInputs) == 0 || len(params.SellerInputs) == 0 {
		return nil, fmt.Errorf("%w: buyer and seller inputs must not be empty", ErrInvalidParams)
	}

	makersTx := params.MakersDepositTx
	if makersTx == nil {
		return nil, fmt.Errorf("%w: maker's deposit tx is missing", ErrInvalidParams)
	}

	msScript, contractScript, err := depositScripts(params.BuyerPubKey, params.SellerPubKey, params.ContractHash)
	if err != nil {
		return nil, err
	}

	switch {
	case len(makersTx.TxIn) != len(params.BuyerInputs)+len(params.SellerInputs):
		return nil, bitcoin.NewCounterpartyError(fmt.Sprintf("maker's deposit tx has %d inputs, expected %d",
			len(makersTx.TxIn), len(params.BuyerInputs)+len(params.SellerInputs)))
	case len(makersTx.TxOut) <= contractHashOutputIndex:
		return nil, bitcoin.NewCounterpartyError("maker's deposit tx has no contract hash output")
	case !bytes.Equal(makersTx.TxOut[msOutputIndex].PkScript, msScript):
		return nil, bitcoin.NewCounterpartyError("maker's multi-sig output script does not match")
	case !bytes.Equal(makersTx.TxOut[contractHashOutputIndex].PkScript, contractScript):
		return nil, bitcoin.NewCounterpartyError("maker's contract hash output does not match")
	case makersTx.TxOut[contractHashOutputIndex].Value != 0:
		return nil, bitcoin.NewCounterpartyError("maker's contract hash output has non zero value")
	case makersTx.Version != txVersion || makersTx.LockTime != 0:
		return nil, bitcoin.NewCounterpartyError("maker's deposit tx has unexpected version or lock time")
	}

	deposit := &PreparedDepositTx{
		Tx:           wire.NewMsgTx(txVersion),
		MakerIsBuyer: params.TakerIsSeller,
		BuyerInputs:  params.BuyerInputs,
		SellerInputs: params.SellerInputs,
		PrevOuts:     make(map[wire.OutPoint]*wire.TxOut),
	}
	makerFrom, makerTo := deposit.makerRange()

	rawInputs := append(append([]bitcoin.RawInput{}, params.BuyerInputs...), params.SellerInputs...)
	for idx, rawInput := range rawInputs {
		txIn, prevOut, err := rawInput.TxIn()
		if err != nil {
			return nil, err
		}

		makersIn := makersTx.TxIn[idx]
		if makersIn.PreviousOutPoint != txIn.PreviousOutPoint {
			return nil, bitcoin.NewCounterpartyError(fmt.Sprintf("maker's deposit tx input %d does not match", idx))
		}

		if idx >= makerFrom && idx < makerTo {
			if deposit.MakerIsBuyer && len(makersIn.SignatureScript) == 0 && len(makersIn.Witness) == 0 {
				return nil, bitcoin.NewCounterpartyError("inputs from maker not signed")
			}

			txIn.SignatureScript = makersIn.SignatureScript
			txIn.Witness = makersIn.Witness
		}

		deposit.Tx.AddTxIn(txIn)
		deposit.PrevOuts[txIn.PreviousOutPoint] = prevOut
	}

	for _, out := range makersTx.TxOut {
		deposit.Tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}

	fetcher := prevOutsFetcher(deposit.PrevOuts)
	if deposit.MakerIsBuyer {
		if err = signer.VerifyInputs(deposit.Tx, makerFrom, makerTo, fetcher); err != nil {
			return nil, blameCounterparty(err)
		}
	}

	takerFrom, takerTo := deposit.takerRange()
	if err = b.signer.SignInputs(deposit.Tx, takerFrom, takerTo, fetcher, params.Passphrase); err != nil {
		return nil, err
	}
	if err = signer.VerifyInputs(deposit.Tx, takerFrom, takerTo, fetcher); err != nil {
		return nil, err
	}
	if err = signer.VerifyTransaction(deposit.Tx); err != nil {
		return nil, err
	}

	printTx("takerSignsDepositTx", deposit.Tx)

	return deposit, nil
}

// SellerAsMakerFinalizesDepositTx completes own deposit transaction with the taker (buyer) signatures
// and checks that every input spends its connected output.
func (b *TxBuilder) SellerAsMakerFinalizesDepositTx(myTx, takersTx *wire.MsgTx, numTakersInputs int,
	prevOuts map[wire.OutPoint]*wire.TxOut) error {
	if len(myTx.TxIn) != len(takersTx.TxIn) || numTakersInputs <= 0 || numTakersInputs > len(myTx.TxIn) {
		return bitcoin.NewCounterpartyError("taker's deposit tx inputs do not match")
	}
	if err := psbt.VerifyInputPrevOutpointsEqual(myTx.TxIn, takersTx.TxIn); err != nil {
		return blameCounterparty(bitcoin.NewVerificationError("taker's deposit tx inputs do not match", err))
	}
	if err := psbt.VerifyOutputsEqual(myTx.TxOut, takersTx.TxOut); err != nil {
		return blameCounterparty(bitcoin.NewVerificationError("taker's deposit tx outputs do not match", err))
	}

	for idx := 0; idx < numTakersInputs; idx++ {
		myTx.TxIn[idx].SignatureScript = takersTx.TxIn[idx].SignatureScript
		myTx.TxIn[idx].Witness = takersTx.TxIn[idx].Witness
	}

	fetcher := prevOutsFetcher(prevOuts)
	if err := signer.VerifyInputs(myTx, 0, numTakersInputs, fetcher); err != nil {
		return blameCounterparty(err)
	}
	if err := signer.VerifyInputs(myTx, numTakersInputs, len(myTx.TxIn), fetcher); err != nil {
		return err
	}

	printTx("sellerAsMakerFinalizesDepositTx", myTx)

	return signer.VerifyTransaction(myTx)
}

// depositScripts returns multi-sig and contract hash output scripts of the deposit transaction.
func depositScripts(buyerPubKey, sellerPubKey, contractHash []byte) (msScript, contractScript []byte, err error) {
	if len(contractHash) == 0 {
		return nil, nil, fmt.Errorf("%w: contract hash is empty", ErrInvalidParams)
	}

	redeemScript, err := utils.NewTradeRedeemScript(buyerPubKey, sellerPubKey)
	if err != nil {
		return nil, nil, err
	}

	if msScript, err = utils.WitnessScriptHash(redeemScript); err != nil {
		return nil, nil, err
	}
	if contractScript, err = utils.NewUnspendableScript(contractHash...); err != nil {
		return nil, nil, err
	}

	return msScript, contractScript, nil
}

// blameCounterparty marks verification error as caused by the trade peer.
func blameCounterparty(err error) error {
	var verr *bitcoin.VerificationError
	if errors.As(err, &verr) {
		verr.Blame = bitcoin.BlameCounterparty
	}

	return err
}
