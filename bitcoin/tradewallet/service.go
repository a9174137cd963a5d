// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package tradewallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/lru"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/BoostyLabs/tradewallet/bitcoin"
	"github.com/BoostyLabs/tradewallet/bitcoin/broadcaster"
	"github.com/BoostyLabs/tradewallet/bitcoin/coinselector"
	"github.com/BoostyLabs/tradewallet/bitcoin/funding"
	"github.com/BoostyLabs/tradewallet/bitcoin/keychain"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/txbuilder"
)

// Wallet is the bitcoin wallet collaborator, owns outputs and transactions.
type Wallet interface {
	funding.UTXOSource
	txbuilder.TxLookup
	// IsConsistent returns false if wallet state is broken, e.g. spent outputs are unknown.
	IsConsistent() (bool, error)
	CommitTx(tx *wire.MsgTx) error
	FreshChangeAddress() (string, error)
}

// Service builds, signs and publishes trade transactions with the wallet funds and keys.
type Service struct {
	config      Config
	wallet      Wallet
	ledger      coinselector.ColoredLedger
	oracle      bitcoin.ChainOracle
	builder     *txbuilder.TxBuilder
	broadcaster *broadcaster.Broadcaster

	mu         sync.Mutex
	passphrase []byte
	committed  lru.Cache
}

// New is a constructor for Service.
func New(config Config, wallet Wallet, ledger coinselector.ColoredLedger, keyRing keychain.KeyRing,
	publisher broadcaster.Publisher, oracle bitcoin.ChainOracle, clk clock.Clock) *Service {
	var relay *broadcaster.Relay
	if len(config.Relay.Endpoints) > 0 {
		relay = broadcaster.NewRelay(config.Relay)
	}

	s := signer.NewSigner(config.NetworkParams, keyRing, config.LowR)

	return &Service{
		config:      config,
		wallet:      wallet,
		ledger:      ledger,
		oracle:      oracle,
		builder:     txbuilder.NewTxBuilder(config.NetworkParams, s, funding.NewWalletFunder(wallet), wallet),
		broadcaster: broadcaster.New(publisher, relay, clk, config.BroadcastTimeout),
		committed:   lru.NewCache(config.CommittedCacheSize),
	}
}

// SetPassphrase sets passphrase of the encrypted wallet keys, nil resets it.
func (s *Service) SetPassphrase(passphrase []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passphrase = append([]byte(nil), passphrase...)
}

func (s *Service) currentPassphrase() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.passphrase
}

// Builder returns underlying transaction builder.
func (s *Service) Builder() *txbuilder.TxBuilder {
	return s.builder
}

// BtcPolicy returns policy selecting confirmed bitcoin outputs which are not colored ones.
func (s *Service) BtcPolicy() coinselector.Policy {
	return coinselector.NewNonColoredPolicy(s.ledger, s.config.IgnoreDustThreshold)
}

// AddressPolicy returns policy selecting outputs of the addresses, e.g. the offer funding one.
func (s *Service) AddressPolicy(addresses ...string) coinselector.Policy {
	return coinselector.NewAddressPolicy(addresses, s.config.IgnoreDustThreshold, s.config.PermitForeignPending)
}

// CheckWalletConsistency returns ErrWalletInconsistent if wallet state is broken.
func (s *Service) CheckWalletConsistency() error {
	ok, err := s.wallet.IsConsistent()
	if err != nil {
		return fmt.Errorf("%w: %v", bitcoin.ErrWalletInconsistent, err)
	}
	if !ok {
		return bitcoin.ErrWalletInconsistent
	}

	return nil
}

// changeAddress returns the provided address or a fresh one.
func (s *Service) changeAddress(address string) (string, error) {
	if address != "" {
		return address, nil
	}

	return s.wallet.FreshChangeAddress()
}

// multiSigKey returns private key of the trader multi-sig public key.
func (s *Service) multiSigKey(pubKey []byte) (*btcec.PrivateKey, error) {
	return s.builder.Signer().PrivKey(pubKey, s.currentPassphrase())
}

// CreateBtcTradingFeeTx builds and signs trading fee transaction paid in bitcoin.
func (s *Service) CreateBtcTradingFeeTx(params txbuilder.TradingFeeParams) (*wire.MsgTx, error) {
	var err error
	if params.ChangeAddress, err = s.changeAddress(params.ChangeAddress); err != nil {
		return nil, err
	}
	if params.Policy == nil {
		params.Policy = s.BtcPolicy()
	}
	params.Passphrase = s.currentPassphrase()

	funded, err := s.builder.CreateBtcTradingFeeTx(params)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return funded.Tx, nil
}

// CompleteBsqTradingFeeTx completes trading fee transaction paid in colored coins with bitcoin funding.
func (s *Service) CompleteBsqTradingFeeTx(preparedBsqTx *wire.MsgTx, bsqPrevOuts map[wire.OutPoint]*wire.TxOut,
	params txbuilder.TradingFeeParams) (*wire.MsgTx, error) {
	var err error
	if params.ChangeAddress, err = s.changeAddress(params.ChangeAddress); err != nil {
		return nil, err
	}
	if params.Policy == nil {
		params.Policy = s.BtcPolicy()
	}
	params.Passphrase = s.currentPassphrase()

	funded, err := s.builder.CompleteBsqTradingFeeTx(preparedBsqTx, bsqPrevOuts, params)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return funded.Tx, nil
}

// CompletePreparedColoredTx funds prepared colored coin transaction paying feeRate per virtual byte.
func (s *Service) CompletePreparedColoredTx(params txbuilder.ColoredTxParams) (*funding.Result, error) {
	var err error
	if params.ChangeAddress, err = s.changeAddress(params.ChangeAddress); err != nil {
		return nil, err
	}
	if params.Policy == nil {
		params.Policy = s.BtcPolicy()
	}
	params.Passphrase = s.currentPassphrase()

	result, err := s.builder.CompletePreparedColoredTx(params)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return result, nil
}

// TakerCreatesDepositTxInputs returns deposit contribution of the offer taker.
func (s *Service) TakerCreatesDepositTxInputs(takeOfferFeeTx *wire.MsgTx, inputAmount,
	txFee btcutil.Amount) (*txbuilder.InputsAndChangeOutput, error) {
	return s.builder.TakerCreatesDepositTxInputs(takeOfferFeeTx, inputAmount, txFee)
}

// MakerCreatesDepositTx assembles the deposit transaction and signs the maker inputs.
// Without explicit policy the maker inputs are spent from MakerAddress, any confirmed
// non-colored output is used only when the address is empty.
func (s *Service) MakerCreatesDepositTx(params txbuilder.MakerDepositParams) (*txbuilder.PreparedDepositTx, error) {
	var err error
	if params.MakerChangeAddress, err = s.changeAddress(params.MakerChangeAddress); err != nil {
		return nil, err
	}
	switch {
	case params.Policy != nil:
	case params.MakerAddress != "":
		params.Policy = s.AddressPolicy(params.MakerAddress)
	default:
		params.Policy = s.BtcPolicy()
	}
	params.Passphrase = s.currentPassphrase()

	prepared, err := s.builder.MakerCreatesDepositTx(params)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return prepared, nil
}

// TakerSignsDepositTx verifies the maker deposit transaction and signs the taker inputs.
func (s *Service) TakerSignsDepositTx(params txbuilder.TakerDepositParams) (*txbuilder.PreparedDepositTx, error) {
	params.Passphrase = s.currentPassphrase()

	prepared, err := s.builder.TakerSignsDepositTx(params)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return prepared, nil
}

// SellerAsMakerFinalizesDepositTx adds signatures of the taker to the deposit transaction of the maker.
func (s *Service) SellerAsMakerFinalizesDepositTx(myTx, takersTx *wire.MsgTx, numTakersInputs int,
	prevOuts map[wire.OutPoint]*wire.TxOut) (*wire.MsgTx, error) {
	return s.builder.SellerAsMakerFinalizesDepositTx(myTx, takersTx, numTakersInputs, prevOuts)
}

// CreateDelayedUnsignedPayoutTx builds time locked payout of the deposit to the donation address.
func (s *Service) CreateDelayedUnsignedPayoutTx(depositTx *wire.MsgTx, donationAddress string,
	minerFee btcutil.Amount, lockTime uint32) (*wire.MsgTx, error) {
	return s.builder.CreateDelayedUnsignedPayoutTx(depositTx, donationAddress, minerFee, lockTime)
}

// SignDelayedPayoutTx signs the delayed payout transaction with the wallet key of myPubKey.
func (s *Service) SignDelayedPayoutTx(depositTx, delayedTx *wire.MsgTx, myPubKey, buyerPubKey,
	sellerPubKey []byte) ([]byte, error) {
	privKey, err := s.multiSigKey(myPubKey)
	if err != nil {
		return nil, err
	}

	return s.builder.SignDelayedPayoutTx(depositTx, delayedTx, privKey, buyerPubKey, sellerPubKey)
}

// FinalizeDelayedPayoutTx assembles the delayed payout transaction with signatures of both traders.
func (s *Service) FinalizeDelayedPayoutTx(depositTx, delayedTx *wire.MsgTx, buyerPubKey, sellerPubKey,
	buyerSig, sellerSig []byte) (*wire.MsgTx, error) {
	return s.builder.FinalizeDelayedPayoutTx(depositTx, delayedTx, buyerPubKey, sellerPubKey, buyerSig, sellerSig)
}

// VerifyDelayedPayoutTx checks the delayed payout transaction received from the trade peer.
func (s *Service) VerifyDelayedPayoutTx(depositTx, delayedTx *wire.MsgTx) error {
	return txbuilder.VerifyDelayedPayoutTx(depositTx, delayedTx)
}

// IsLockTimeMature returns true if the time locked transaction can be published now.
func (s *Service) IsLockTimeMature(tx *wire.MsgTx) (bool, error) {
	bestHeight, err := s.oracle.BestHeight()
	if err != nil {
		return false, err
	}
	bestTime, err := s.oracle.BestTime()
	if err != nil {
		return false, err
	}

	return txbuilder.IsLockTimeMature(tx.LockTime, bestHeight, bestTime), nil
}

// CreateUnsignedWarningTx builds the warning transaction.
func (s *Service) CreateUnsignedWarningTx(params txbuilder.WarningTxParams) (*wire.MsgTx, error) {
	return s.builder.CreateUnsignedWarningTx(params)
}

// SignWarningTx signs the warning transaction with the wallet key of myPubKey.
func (s *Service) SignWarningTx(depositTx, warningTx *wire.MsgTx, myPubKey, buyerPubKey,
	sellerPubKey []byte) ([]byte, error) {
	privKey, err := s.multiSigKey(myPubKey)
	if err != nil {
		return nil, err
	}

	return s.builder.SignWarningTx(depositTx, warningTx, privKey, buyerPubKey, sellerPubKey)
}

// FinalizeWarningTx assembles the warning transaction with signatures of both traders.
func (s *Service) FinalizeWarningTx(depositTx, warningTx *wire.MsgTx, buyerPubKey, sellerPubKey,
	buyerSig, sellerSig []byte) (*wire.MsgTx, error) {
	return s.builder.FinalizeWarningTx(depositTx, warningTx, buyerPubKey, sellerPubKey, buyerSig, sellerSig)
}

// CreateUnsignedRedirectionTx builds the redirection transaction.
func (s *Service) CreateUnsignedRedirectionTx(params txbuilder.RedirectionTxParams) (*wire.MsgTx, error) {
	return s.builder.CreateUnsignedRedirectionTx(params)
}

// SignRedirectionTx signs the redirection transaction with the wallet key of myPubKey.
func (s *Service) SignRedirectionTx(warningTx, redirectionTx *wire.MsgTx, warningScript, myPubKey []byte) ([]byte, error) {
	privKey, err := s.multiSigKey(myPubKey)
	if err != nil {
		return nil, err
	}

	return s.builder.SignRedirectionTx(warningTx, redirectionTx, warningScript, privKey)
}

// FinalizeRedirectionTx assembles the redirection transaction with signatures of both traders.
func (s *Service) FinalizeRedirectionTx(warningTx, redirectionTx *wire.MsgTx, warningScript,
	buyerSig, sellerSig []byte) (*wire.MsgTx, error) {
	return s.builder.FinalizeRedirectionTx(warningTx, redirectionTx, warningScript, buyerSig, sellerSig)
}

// CreateSignedClaimTx builds and signs the claim transaction with the wallet key of myPubKey.
func (s *Service) CreateSignedClaimTx(params txbuilder.ClaimTxParams, myPubKey []byte) (*wire.MsgTx, error) {
	privKey, err := s.multiSigKey(myPubKey)
	if err != nil {
		return nil, err
	}
	params.PrivKey = privKey

	return s.builder.CreateSignedClaimTx(params)
}

// IsClaimMature returns true if the warning output confirmed at warningConfHeight can be claimed now.
func (s *Service) IsClaimMature(warningConfHeight, claimDelay uint32) (bool, error) {
	bestHeight, err := s.oracle.BestHeight()
	if err != nil {
		return false, err
	}

	return txbuilder.IsClaimMature(warningConfHeight, claimDelay, bestHeight), nil
}

// BuyerSignsPayoutTx returns the buyer signature of the standard payout transaction.
func (s *Service) BuyerSignsPayoutTx(params txbuilder.PayoutParams) ([]byte, error) {
	privKey, err := s.multiSigKey(params.BuyerPubKey)
	if err != nil {
		return nil, err
	}

	return s.builder.BuyerSignsPayoutTx(params, privKey)
}

// SellerSignsAndFinalizesPayoutTx signs the standard payout transaction and assembles it with the buyer signature.
func (s *Service) SellerSignsAndFinalizesPayoutTx(params txbuilder.PayoutParams, buyerSig []byte) (*wire.MsgTx, error) {
	privKey, err := s.multiSigKey(params.SellerPubKey)
	if err != nil {
		return nil, err
	}

	payoutTx, err := s.builder.SellerSignsAndFinalizesPayoutTx(params, buyerSig, privKey)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return payoutTx, nil
}

// SignMediatedPayoutTx returns signature of the mediated payout transaction with the wallet key of myPubKey.
func (s *Service) SignMediatedPayoutTx(params txbuilder.PayoutParams, myPubKey []byte) ([]byte, error) {
	privKey, err := s.multiSigKey(myPubKey)
	if err != nil {
		return nil, err
	}

	return s.builder.SignMediatedPayoutTx(params, privKey)
}

// FinalizeMediatedPayoutTx signs the mediated payout transaction with the wallet key of myPubKey
// and assembles it with the peer signature.
func (s *Service) FinalizeMediatedPayoutTx(params txbuilder.PayoutParams, myPubKey, peerSig []byte) (*wire.MsgTx, error) {
	mySig, err := s.SignMediatedPayoutTx(params, myPubKey)
	if err != nil {
		return nil, err
	}

	buyerSig, sellerSig := peerSig, mySig
	if string(myPubKey) == string(params.BuyerPubKey) {
		buyerSig, sellerSig = mySig, peerSig
	}

	payoutTx, err := s.builder.FinalizeMediatedPayoutTx(params, buyerSig, sellerSig)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return payoutTx, nil
}

// TraderSignAndFinalizeDisputedPayoutTx signs the arbitrated payout transaction with the wallet key of myPubKey.
func (s *Service) TraderSignAndFinalizeDisputedPayoutTx(params txbuilder.DisputedPayoutParams, arbitratorSig,
	myPubKey []byte) (*wire.MsgTx, error) {
	privKey, err := s.multiSigKey(myPubKey)
	if err != nil {
		return nil, err
	}

	payoutTx, err := s.builder.TraderSignAndFinalizeDisputedPayoutTx(params, arbitratorSig, privKey)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return payoutTx, nil
}

// EmergencySignAndPublishPayoutTx builds the payout transaction with both trader keys and publishes it
// with the emergency timeout.
func (s *Service) EmergencySignAndPublishPayoutTx(ctx context.Context, params txbuilder.EmergencyPayoutParams) (<-chan broadcaster.Result, error) {
	payoutTx, err := s.builder.EmergencySignAndPublishPayoutTx(params)
	if err != nil {
		return nil, err
	}

	if err = s.CheckWalletConsistency(); err != nil {
		return nil, err
	}

	return s.broadcaster.BroadcastWithTimeout(ctx, payoutTx, s.config.EmergencyBroadcastTimeout), nil
}

// CommitTx adds transaction to the wallet, already committed transactions are skipped.
func (s *Service) CommitTx(tx *wire.MsgTx) error {
	txID := tx.TxHash()
	if s.committed.Contains(txID) {
		log.Debugf("Tx %v is already committed", txID)
		return nil
	}

	if err := s.wallet.CommitTx(tx); err != nil {
		return fmt.Errorf("commit tx %v: %w", txID, err)
	}
	s.committed.Add(txID)

	return nil
}

// BroadcastTx publishes transaction with the default timeout.
func (s *Service) BroadcastTx(ctx context.Context, tx *wire.MsgTx) <-chan broadcaster.Result {
	return s.broadcaster.Broadcast(ctx, tx)
}

// CommitAndBroadcastTx adds transaction to the wallet and publishes it.
func (s *Service) CommitAndBroadcastTx(ctx context.Context, tx *wire.MsgTx) (<-chan broadcaster.Result, error) {
	if err := s.CommitTx(tx); err != nil {
		return nil, err
	}

	return s.BroadcastTx(ctx, tx), nil
}

// WalletTx returns wallet transaction by its id.
func (s *Service) WalletTx(txID string) (*wire.MsgTx, error) {
	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return nil, err
	}

	return s.wallet.Transaction(*hash)
}
