// Package client provides a simulated player for matchmaking load tests. It
// talks to the matchmaker over NATS request/reply, listens on its per-player
// event subjects and tracks request latency.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	"github.com/playforge/matchmaker/internal/messaging"
	"github.com/playforge/matchmaker/internal/protocol"
)

// Metrics tracks per-player performance data.
type Metrics struct {
	JoinLatency  time.Duration
	RequestsSent int
	EventsRecv   int
	Errors       int
}

// Client is one simulated player.
type Client struct {
	PlayerID string

	nc      *nats.Conn
	mu      sync.Mutex
	subs    []*nats.Subscription
	metrics Metrics
}

// New creates a player client on nc.
func New(nc *nats.Conn, playerID string) *Client {
	return &Client{PlayerID: playerID, nc: nc}
}

// On subscribes handler to the player's event subject, for example
// messaging.SubjectMatchFound. Handlers run on the NATS delivery goroutine.
func (c *Client) On(subject string, handler func(json.RawMessage)) error {
	sub, err := c.nc.Subscribe(subject+"."+c.PlayerID, func(msg *nats.Msg) {
		c.mu.Lock()
		c.metrics.EventsRecv++
		c.mu.Unlock()
		handler(msg.Data)
	})
	if err != nil {
		return eris.Wrapf(err, "failed to subscribe to %s for %s", subject, c.PlayerID)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Request sends one matchmaking request and decodes the reply into a generic
// map. A reply of type "error" or "rate_limited" is returned as an error.
func (c *Client) Request(ctx context.Context, msgType string, payload any) (map[string]any, error) {
	data, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.metrics.RequestsSent++
	c.mu.Unlock()

	msg, err := c.nc.RequestWithContext(ctx, messaging.SubjectRequest, data)
	if err != nil {
		c.addError()
		return nil, eris.Wrapf(err, "%s request failed", msgType)
	}

	var reply map[string]any
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		c.addError()
		return nil, eris.Wrap(err, "failed to decode reply")
	}
	switch reply["type"] {
	case protocol.TypeError:
		c.addError()
		return reply, eris.Errorf("%s rejected: %v", msgType, reply["code"])
	case protocol.TypeRateLimited:
		c.addError()
		return reply, eris.Errorf("%s rate limited", msgType)
	}
	return reply, nil
}

// Join queues the player for modeID and records the round-trip latency.
func (c *Client) Join(ctx context.Context, modeID string) error {
	start := time.Now()
	_, err := c.Request(ctx, protocol.TypeJoin, protocol.JoinRequest{PlayerID: c.PlayerID, ModeID: modeID})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.metrics.JoinLatency = time.Since(start)
	c.mu.Unlock()
	return nil
}

// Confirm accepts matchID.
func (c *Client) Confirm(ctx context.Context, matchID string) (bool, error) {
	reply, err := c.Request(ctx, protocol.TypeConfirm, protocol.ConfirmRequest{PlayerID: c.PlayerID, MatchID: matchID})
	if err != nil {
		return false, err
	}
	accepted, _ := reply["accepted"].(bool)
	return accepted, nil
}

// Leave removes the player from its queue.
func (c *Client) Leave(ctx context.Context) error {
	_, err := c.Request(ctx, protocol.TypeLeave, protocol.LeaveRequest{PlayerID: c.PlayerID})
	return err
}

// GetMetrics returns a snapshot of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Client) addError() {
	c.mu.Lock()
	c.metrics.Errors++
	c.mu.Unlock()
}

// Close drops the event subscriptions.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
}
