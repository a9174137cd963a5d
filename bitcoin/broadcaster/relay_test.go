// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package broadcaster

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRelay(t *testing.T) {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x02}, 1), nil, nil))
	tx.AddTxOut(wire.NewTxOut(20000, []byte{0x51}))

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	rawTx := hex.EncodeToString(buf.Bytes())

	accepting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil || r.Method != http.MethodPost || string(body) != rawTx {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(tx.TxHash().String()))
	}))
	defer accepting.Close()

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("sendrawtransaction RPC error: bad-txns-inputs-missingorspent"))
	}))
	defer rejecting.Close()

	t.Run("accepted", func(t *testing.T) {
		before := testutil.ToFloat64(relayResults.WithLabelValues(accepting.URL, relayAccepted))
		relay := NewRelay(RelayConfig{Endpoints: []string{accepting.URL}, RatePerSecond: 100, Timeout: time.Second})

		require.NoError(t, relay.Relay(context.Background(), tx))
		require.Equal(t, before+1, testutil.ToFloat64(relayResults.WithLabelValues(accepting.URL, relayAccepted)))
	})

	t.Run("rejected by one endpoint", func(t *testing.T) {
		accepted := testutil.ToFloat64(relayResults.WithLabelValues(accepting.URL, relayAccepted))
		failed := testutil.ToFloat64(relayResults.WithLabelValues(rejecting.URL, relayFailed))
		relay := NewRelay(RelayConfig{Endpoints: []string{accepting.URL, rejecting.URL}, RatePerSecond: 100, Timeout: time.Second})

		err := relay.Relay(context.Background(), tx)
		require.ErrorIs(t, err, ErrRelayRejected)
		require.Contains(t, err.Error(), "missingorspent")
		require.Equal(t, accepted+1, testutil.ToFloat64(relayResults.WithLabelValues(accepting.URL, relayAccepted)))
		require.Equal(t, failed+1, testutil.ToFloat64(relayResults.WithLabelValues(rejecting.URL, relayFailed)))
	})

	t.Run("breaker opens", func(t *testing.T) {
		relay := NewRelay(RelayConfig{Endpoints: []string{rejecting.URL}, RatePerSecond: 1000, Timeout: time.Second})

		for i := 0; i <= maxFailedRequests; i++ {
			require.ErrorIs(t, relay.Relay(context.Background(), tx), ErrRelayRejected)
		}

		before := testutil.ToFloat64(relayResults.WithLabelValues(rejecting.URL, relayBreakerOpen))
		require.Error(t, relay.Relay(context.Background(), tx))
		require.Equal(t, before+1, testutil.ToFloat64(relayResults.WithLabelValues(rejecting.URL, relayBreakerOpen)))
	})
}

type publisherFunc func(ctx context.Context, tx *wire.MsgTx) error

func (f publisherFunc) PublishTransaction(ctx context.Context, tx *wire.MsgTx) error {
	return f(ctx, tx)
}

func TestBroadcastMetrics(t *testing.T) {
	tx := wire.NewMsgTx(2)
	published := testutil.ToFloat64(broadcastResults.WithLabelValues(outcomePublished))
	rejected := testutil.ToFloat64(broadcastResults.WithLabelValues(outcomeRejected))

	b := New(publisherFunc(func(context.Context, *wire.MsgTx) error { return nil }), nil, clock.NewTestClock(time.Now()), 0)
	require.NoError(t, (<-b.Broadcast(context.Background(), tx)).Err)

	b = New(publisherFunc(func(context.Context, *wire.MsgTx) error { return io.ErrUnexpectedEOF }), nil, clock.NewTestClock(time.Now()), 0)
	require.Error(t, (<-b.Broadcast(context.Background(), tx)).Err)

	require.Equal(t, published+1, testutil.ToFloat64(broadcastResults.WithLabelValues(outcomePublished)))
	require.Equal(t, rejected+1, testutil.ToFloat64(broadcastResults.WithLabelValues(outcomeRejected)))
}
