// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package broadcaster

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// DefaultTimeout defines how long publishing is awaited before it is treated as successful.
	DefaultTimeout = 8 * time.Second
	// EmergencyTimeout is used for payouts published by the support.
	EmergencyTimeout = 20 * time.Second
)

// Publisher publishes transactions to the bitcoin p2p network.
type Publisher interface {
	PublishTransaction(ctx context.Context, tx *wire.MsgTx) error
}

// Result describes broadcast outcome.
// TimedOut result has no error, transaction is considered to be published.
type Result struct {
	TxID     chainhash.Hash
	TimedOut bool
	Err      error
}

// Broadcaster publishes transactions with timeout and rebroadcasts them through relay if any.
type Broadcaster struct {
	publisher Publisher
	relay     *Relay
	clock     clock.Clock
	timeout   time.Duration
}

// New is a constructor for Broadcaster, relay is optional.
func New(publisher Publisher, relay *Relay, clk clock.Clock, timeout time.Duration) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Broadcaster{
		publisher: publisher,
		relay:     relay,
		clock:     clk,
		timeout:   timeout,
	}
}

// Broadcast publishes transaction with the default timeout.
func (b *Broadcaster) Broadcast(ctx context.Context, tx *wire.MsgTx) <-chan Result {
	return b.BroadcastWithTimeout(ctx, tx, b.timeout)
}

// BroadcastWithTimeout publishes transaction, result is sent once to the returned channel.
func (b *Broadcaster) BroadcastWithTimeout(ctx context.Context, tx *wire.MsgTx, timeout time.Duration) <-chan Result {
	txID := tx.TxHash()
	results := make(chan Result, 1)

	published := make(chan error, 1)
	go func() {
		published <- b.publisher.PublishTransaction(ctx, tx)
	}()

	if b.relay != nil {
		go func() {
			if err := b.relay.Relay(ctx, tx); err != nil {
				log.Warnf("Relaying tx %v failed: %v", txID, err)
			}
		}()
	}

	timeoutTicker := b.clock.TickAfter(timeout)
	go func() {
		result := Result{TxID: txID}

		select {
		case err := <-published:
			result.Err = err
			if err != nil {
				broadcastResults.WithLabelValues(outcomeRejected).Inc()
				log.Errorf("Broadcasting tx %v failed: %v", txID, err)
			} else {
				broadcastResults.WithLabelValues(outcomePublished).Inc()
				log.Infof("Broadcasted tx %v", txID)
			}

		case <-timeoutTicker:
			result.TimedOut = true
			broadcastResults.WithLabelValues(outcomeTimedOut).Inc()
			log.Warnf("Broadcasting tx %v timed out after %v, considering it published", txID, timeout)

		case <-ctx.Done():
			result.Err = ctx.Err()
			broadcastResults.WithLabelValues(outcomeCanceled).Inc()
		}

		results <- result
	}()

	return results
}
