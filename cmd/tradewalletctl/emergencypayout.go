// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/BoostyLabs/tradewallet/bitcoin/broadcaster"
	"github.com/BoostyLabs/tradewallet/bitcoin/keychain"
	"github.com/BoostyLabs/tradewallet/bitcoin/signer"
	"github.com/BoostyLabs/tradewallet/bitcoin/txbuilder"
)

// emergencyPayoutCommand pays out a deposit with both trader keys.
type emergencyPayoutCommand struct {
	opts *options

	DepositTxID   string        `long:"deposittxid" description:"Id of the deposit transaction" required:"true"`
	BuyerPayout   int64         `long:"buyerpayout" description:"Buyer payout in satoshi"`
	SellerPayout  int64         `long:"sellerpayout" description:"Seller payout in satoshi"`
	MinerFee      int64         `long:"minerfee" description:"Miner fee in satoshi" required:"true"`
	BuyerAddress  string        `long:"buyeraddress" description:"Buyer payout address"`
	SellerAddress string        `long:"selleraddress" description:"Seller payout address"`
	BuyerPrivKey  string        `long:"buyerprivkey" description:"Hex encoded buyer multi-sig private key" required:"true"`
	SellerPrivKey string        `long:"sellerprivkey" description:"Hex encoded seller multi-sig private key" required:"true"`
	P2SH          bool          `long:"p2sh" description:"Deposit pays to legacy script hash"`
	Relays        []string      `long:"relay" description:"Endpoint accepting raw transaction hex, may be repeated"`
	RelayRate     int           `long:"relayrate" description:"Requests per second to each endpoint" default:"5"`
	Timeout       time.Duration `long:"timeout" description:"Time to wait for publishing" default:"20s"`
}

// Execute implements flags.Commander.
func (cmd *emergencyPayoutCommand) Execute(_ []string) error {
	params, err := cmd.opts.setup()
	if err != nil {
		return err
	}

	builder := txbuilder.NewTxBuilder(params, signer.NewSigner(params, keychain.NewMemKeyRing(), true), nil, nil)
	payoutTx, err := builder.EmergencySignAndPublishPayoutTx(txbuilder.EmergencyPayoutParams{
		DepositTxID: cmd.DepositTxID,
		Allocation: txbuilder.PayoutAllocation{
			Buyer:    btcutil.Amount(cmd.BuyerPayout),
			Seller:   btcutil.Amount(cmd.SellerPayout),
			MinerFee: btcutil.Amount(cmd.MinerFee),
		},
		BuyerAddress:     cmd.BuyerAddress,
		SellerAddress:    cmd.SellerAddress,
		BuyerPrivKeyHex:  cmd.BuyerPrivKey,
		SellerPrivKeyHex: cmd.SellerPrivKey,
		P2SH:             cmd.P2SH,
	})
	if err != nil {
		return err
	}

	var raw bytes.Buffer
	if err = payoutTx.Serialize(&raw); err != nil {
		return err
	}

	fmt.Printf("txid: %s\n", payoutTx.TxHash())
	fmt.Printf("hex: %s\n", hex.EncodeToString(raw.Bytes()))

	if len(cmd.Relays) == 0 {
		return nil
	}

	relay := broadcaster.NewRelay(broadcaster.RelayConfig{
		Endpoints:     cmd.Relays,
		RatePerSecond: cmd.RelayRate,
		Timeout:       cmd.Timeout,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Infof("Publishing payout tx %s through %d endpoints", payoutTx.TxHash(), len(cmd.Relays))

	b := broadcaster.New(relayPublisher{relay: relay}, nil, clock.NewDefaultClock(), cmd.Timeout)
	result := <-b.Broadcast(ctx, payoutTx)
	switch {
	case result.Err != nil:
		return result.Err
	case result.TimedOut:
		return errors.New("publishing timed out, the transaction may still propagate")
	}

	fmt.Println("published")

	return nil
}

// relayPublisher publishes transactions through http relays only.
type relayPublisher struct {
	relay *broadcaster.Relay
}

// PublishTransaction implements broadcaster.Publisher.
func (p relayPublisher) PublishTransaction(ctx context.Context, tx *wire.MsgTx) error {
	return p.relay.Relay(ctx, tx)
}
