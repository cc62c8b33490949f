// Package messaging provides a NATS client wrapper for the matchmaking
// service. It handles connection lifecycle, request/reply subscriptions and
// the subjects engine events are published on.
package messaging

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NATS subjects used by the matchmaking service.
const (
	SubjectRequest      = "matchmaking.request"       // request/reply
	SubjectSessionEnded = "matchmaking.session.ended" // from game hosts

	SubjectJoined     = "matchmaking.joined"      // + .<player_id>
	SubjectLeft       = "matchmaking.left"        // + .<player_id>
	SubjectMatchFound = "matchmaking.match.found" // + .<player_id>
	SubjectPenalty    = "matchmaking.penalty"     // + .<player_id>

	SubjectMatchCreated   = "match.created"
	SubjectMatchReady     = "match.ready" // consumed by game hosts
	SubjectMatchStarted   = "match.started"
	SubjectMatchCancelled = "match.cancelled"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	logger *zap.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "matcher",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger *zap.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to connect to nats at %s", config.URL)
	}

	logger.Info("nats connected", zap.String("url", nc.ConnectedUrl()))

	return &NATSClient{
		conn:   nc,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return eris.Wrapf(err, "failed to subscribe to %s", subject)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeRequests handles matchmaking requests. handler's return value is
// sent back as the reply.
func (c *NATSClient) SubscribeRequests(handler func(data []byte) []byte) error {
	return c.Subscribe(SubjectRequest, func(msg *nats.Msg) {
		reply := handler(msg.Data)
		if msg.Reply == "" || reply == nil {
			return
		}
		if err := msg.Respond(reply); err != nil {
			c.logger.Warn("nats reply failed", zap.String("subject", msg.Subject), zap.Error(err))
		}
	})
}

// SubscribeSessionEnded subscribes to session end notifications.
func (c *NATSClient) SubscribeSessionEnded(handler func(data []byte)) error {
	return c.Subscribe(SubjectSessionEnded, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("nats drain failed", zap.String("subject", subject), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats connection drain failed", zap.Error(err))
	}

	c.logger.Info("nats client closed")
}
