// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package broadcaster

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"
)

const (
	// maxFailedRequests defines number of requests after which the breaker may open.
	maxFailedRequests = 20
	// failureRatio defines share of failed requests which opens the breaker.
	failureRatio = 0.7
	// maxResponseSize limits error response body read from the relay.
	maxResponseSize = 1024
)

// ErrRelayRejected defines that the relay endpoint did not accept the transaction.
var ErrRelayRejected = errors.New("relay rejected transaction")

// RelayConfig describes http relay endpoints, e.g. esplora compatible "POST /tx" urls.
type RelayConfig struct {
	Endpoints []string
	// RatePerSecond limits requests sent to every endpoint.
	RatePerSecond int
	Timeout       time.Duration
}

// Relay rebroadcasts raw transactions through redundant http endpoints.
type Relay struct {
	client    *http.Client
	endpoints []*endpoint
}

type endpoint struct {
	url     string
	breaker *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

// NewRelay is a constructor for Relay.
func NewRelay(config RelayConfig) *Relay {
	rate := config.RatePerSecond
	if rate <= 0 {
		rate = 1
	}

	relay := &Relay{client: &http.Client{Timeout: config.Timeout}}
	for _, url := range config.Endpoints {
		relay.endpoints = append(relay.endpoints, &endpoint{
			url:     url,
			breaker: newCircuitBreaker(url),
			limiter: ratelimit.New(rate),
		})
	}

	return relay
}

// Relay posts hex encoded transaction to every endpoint, returns the first failure if any.
func (r *Relay) Relay(ctx context.Context, tx *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	rawTx := hex.EncodeToString(buf.Bytes())

	var group errgroup.Group
	for _, e := range r.endpoints {
		group.Go(func() error {
			err := r.post(ctx, e, rawTx)
			switch {
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				relayResults.WithLabelValues(e.url, relayBreakerOpen).Inc()
			case err != nil:
				relayResults.WithLabelValues(e.url, relayFailed).Inc()
			default:
				relayResults.WithLabelValues(e.url, relayAccepted).Inc()
			}

			if err != nil {
				return fmt.Errorf("relay %s: %w", e.url, err)
			}

			return nil
		})
	}

	return group.Wait()
}

func (r *Relay) post(ctx context.Context, e *endpoint, rawTx string) error {
	_, err := e.breaker.Execute(func() (interface{}, error) {
		e.limiter.Take()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, strings.NewReader(rawTx))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/plain")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
			return nil, fmt.Errorf("%w: %s: %s", ErrRelayRejected, resp.Status, strings.TrimSpace(string(body)))
		}

		return nil, nil
	})

	return err
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests > maxFailedRequests && ratio >= failureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch {
			case to == gobreaker.StateOpen:
				log.Warnf("Relay %s seems down, stop sending transactions", name)
			case from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen:
				log.Infof("Checking relay %s status", name)
			case from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed:
				log.Infof("Relay %s seems ok, restart sending transactions", name)
			}
		},
	})
}
