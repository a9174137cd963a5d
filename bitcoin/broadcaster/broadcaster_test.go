// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package broadcaster_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/tradewallet/bitcoin/broadcaster"
)

var testTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type testPublisher struct {
	release chan struct{}
	err     error
}

func (p *testPublisher) PublishTransaction(ctx context.Context, _ *wire.MsgTx) error {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return p.err
}

func testTx() *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x01}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(10000, []byte{0x51}))

	return tx
}

func receive(t *testing.T, results <-chan broadcaster.Result) broadcaster.Result {
	t.Helper()

	select {
	case result := <-results:
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("no broadcast result")
	}

	return broadcaster.Result{}
}

func TestBroadcast(t *testing.T) {
	tx := testTx()

	t.Run("published", func(t *testing.T) {
		b := broadcaster.New(&testPublisher{}, nil, clock.NewTestClock(testTime), 0)

		result := receive(t, b.Broadcast(context.Background(), tx))
		require.NoError(t, result.Err)
		require.False(t, result.TimedOut)
		require.Equal(t, tx.TxHash(), result.TxID)
	})

	t.Run("rejected", func(t *testing.T) {
		errRejected := errors.New("txn-mempool-conflict")
		b := broadcaster.New(&testPublisher{err: errRejected}, nil, clock.NewTestClock(testTime), 0)

		result := receive(t, b.Broadcast(context.Background(), tx))
		require.ErrorIs(t, result.Err, errRejected)
		require.False(t, result.TimedOut)
	})

	t.Run("timed out", func(t *testing.T) {
		testClock := clock.NewTestClock(testTime)
		publisher := &testPublisher{release: make(chan struct{})}
		defer close(publisher.release)

		b := broadcaster.New(publisher, nil, testClock, 0)
		results := b.Broadcast(context.Background(), tx)

		testClock.SetTime(testTime.Add(broadcaster.DefaultTimeout))

		result := receive(t, results)
		require.NoError(t, result.Err)
		require.True(t, result.TimedOut)
	})

	t.Run("emergency timeout", func(t *testing.T) {
		testClock := clock.NewTestClock(testTime)
		publisher := &testPublisher{release: make(chan struct{})}
		defer close(publisher.release)

		b := broadcaster.New(publisher, nil, testClock, 0)
		results := b.BroadcastWithTimeout(context.Background(), tx, broadcaster.EmergencyTimeout)

		testClock.SetTime(testTime.Add(broadcaster.DefaultTimeout))
		require.Never(t, func() bool { return len(results) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

		testClock.SetTime(testTime.Add(broadcaster.EmergencyTimeout))
		require.True(t, receive(t, results).TimedOut)
	})

	t.Run("canceled", func(t *testing.T) {
		publisher := &testPublisher{release: make(chan struct{})}
		defer close(publisher.release)

		ctx, cancel := context.WithCancel(context.Background())
		b := broadcaster.New(publisher, nil, clock.NewTestClock(testTime), 0)
		results := b.Broadcast(ctx, tx)
		cancel()

		result := receive(t, results)
		require.ErrorIs(t, result.Err, context.Canceled)
		require.False(t, result.TimedOut)
	})

	t.Run("relay failure does not affect result", func(t *testing.T) {
		relayed := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusBadRequest)
			close(relayed)
		}))
		defer server.Close()

		relay := broadcaster.NewRelay(broadcaster.RelayConfig{Endpoints: []string{server.URL}, Timeout: time.Second})
		b := broadcaster.New(&testPublisher{}, relay, clock.NewTestClock(testTime), 0)

		result := receive(t, b.Broadcast(context.Background(), tx))
		require.NoError(t, result.Err)

		select {
		case <-relayed:
		case <-time.After(5 * time.Second):
			t.Fatal("transaction was not relayed")
		}
	})
}
