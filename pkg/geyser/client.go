// Package geyser consumes the upstream feed of banking-stage error
// notifications and finalized block contents over a websocket connection.
package geyser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rpcpool/banking-stage-sidecar/pkg/common"
)

// Handler receives each decoded update in arrival order.
type Handler func(*Update)

// Client maintains the feed subscription, reconnecting with exponential
// backoff when the connection drops.
type Client struct {
	log    logrus.FieldLogger
	config *Config
}

// NewClient creates a new feed client.
func NewClient(log logrus.FieldLogger, config *Config) *Client {
	return &Client{
		log:    log.WithField("component", "geyser"),
		config: config,
	}
}

// Run connects, subscribes, and dispatches updates to handle until ctx is
// cancelled. Connection loss is not fatal; the client reconnects forever.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, err := c.connect(ctx)
		if err != nil {
			wait := b.NextBackOff()
			c.log.WithError(err).WithField("retry_in", wait).Warn("Failed to connect to geyser feed")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}

			continue
		}

		b.Reset()
		c.log.WithField("address", c.config.Address).Info("Connected to geyser feed")

		err = c.consume(ctx, conn, handle)

		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}

		common.SourceReconnects.Inc()
		c.log.WithError(err).Warn("Geyser feed disconnected, reconnecting")
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.config.XToken != "" {
		header.Set("x-token", c.config.XToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.Address, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.config.Address, err)
	}

	sub := subscribeRequest{
		Blocks: blockFilter{
			IncludeTransactions: true,
			IncludeAccounts:     false,
			IncludeEntries:      false,
		},
		BankingTransactionErrors: true,
		Commitment:               c.config.Commitment,
	}

	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("subscribe: %w", err)
	}

	return conn, nil
}

// consume reads updates until the connection breaks or ctx is cancelled.
// Malformed messages are skipped, not fatal.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn, handle Handler) error {
	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		update := &Update{}
		if err := json.Unmarshal(payload, update); err != nil {
			common.MalformedEvents.WithLabelValues("undecodable").Inc()
			c.log.WithError(err).Debug("Skipping undecodable message")

			continue
		}

		if update.BankingTransactionError == nil && update.Block == nil {
			common.MalformedEvents.WithLabelValues("empty").Inc()

			continue
		}

		handle(update)
	}
}
