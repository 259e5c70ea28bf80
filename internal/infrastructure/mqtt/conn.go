package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the handshake
	// when Options.ConnectTimeout is zero.
	defaultConnectTimeout = 15 * time.Second

	// defaultOpTimeout is the maximum time to wait for publish, subscribe,
	// and unsubscribe acknowledgments.
	defaultOpTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on close.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// defaultQoS is used for all publishes and subscriptions. At-least-once
	// matches the shadow protocol's request/response expectations.
	defaultQoS byte = 1

	// maxPayloadSize caps outbound payloads (1MB).
	maxPayloadSize = 1 << 20

	// tlsMinVersion is the minimum TLS version for wss connections.
	tlsMinVersion = tls.VersionTLS12
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures one Dial.
type Options struct {
	// BrokerURL is the MQTT-over-WebSocket endpoint (ws:// or wss://).
	// Presigned URLs carry their authentication in the query string.
	BrokerURL string

	// ClientID identifies this connection to the broker.
	ClientID string

	// ConnectTimeout bounds the WebSocket and MQTT handshake.
	ConnectTimeout time.Duration

	// OnMessage receives every inbound message on a subscribed topic.
	// Invoked from the paho network goroutine; must not block for long.
	OnMessage func(topic string, payload []byte)

	// OnConnectionLost is invoked once if the established connection drops.
	// Not invoked for caller-initiated Close.
	OnConnectionLost func(err error)

	// Logger is optional; handler panics and errors are dropped without it.
	Logger Logger
}

// Conn is one live broker connection.
//
// It is deliberately single-shot: auto-reconnect is disabled because the
// presigned URL it was dialed with is consumed by the handshake, so any
// reconnect must start from fresh credentials. The owner handles retry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Conn struct {
	client pahomqtt.Client
	log    Logger

	mu     sync.Mutex
	closed bool
}

// Dial connects to the broker and returns the live connection.
//
// Parameters:
//   - ctx: Aborts the attempt early when canceled
//   - opts: Connection options; BrokerURL is required
//
// Returns:
//   - *Conn: Connected, clean-session connection at QoS 1
//   - error: ErrInvalidBrokerURL or wrapped ErrConnectionFailed
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if err := validateBrokerURL(opts.BrokerURL); err != nil {
		return nil, err
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	c := &Conn{log: opts.Logger}

	pahoOpts := pahomqtt.NewClientOptions()
	pahoOpts.AddBroker(opts.BrokerURL)
	pahoOpts.SetClientID(opts.ClientID)

	// Clean session: the broker keeps no state across our reconnects;
	// subscriptions are re-established by the owner after each dial.
	pahoOpts.SetCleanSession(true)

	// The credential in the URL is single-use, so the library must never
	// retry on its own.
	pahoOpts.SetAutoReconnect(false)
	pahoOpts.SetConnectRetry(false)

	pahoOpts.SetConnectTimeout(timeout)
	pahoOpts.SetKeepAlive(defaultKeepAlive)

	if strings.HasPrefix(opts.BrokerURL, "wss://") {
		pahoOpts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	if opts.OnMessage != nil {
		pahoOpts.SetDefaultPublishHandler(c.wrapHandler(opts.OnMessage))
	}
	if opts.OnConnectionLost != nil {
		lost := opts.OnConnectionLost
		pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			lost(err)
		})
	}

	c.client = pahomqtt.NewClient(pahoOpts)

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	case <-time.After(timeout):
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

// validateBrokerURL checks the endpoint is a WebSocket URL the paho
// WebSocket transport can dial.
func validateBrokerURL(url string) error {
	if url == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBrokerURL)
	}
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return fmt.Errorf("%w: %q is not a ws:// or wss:// endpoint", ErrInvalidBrokerURL, url)
	}
	return nil
}

// Publish sends a message to the specified topic at QoS 1, not retained.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Conn) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.alive() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, defaultQoS, false, payload)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe establishes exact-topic subscriptions at QoS 1. Messages arrive
// through the OnMessage callback passed to Dial.
//
// Parameters:
//   - topics: One or more exact topic filters (no wildcards needed for
//     shadow traffic)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Conn) Subscribe(topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	filters := make(map[string]byte, len(topics))
	for _, topic := range topics {
		if topic == "" {
			return ErrInvalidTopic
		}
		filters[topic] = defaultQoS
	}
	if !c.alive() {
		return ErrNotConnected
	}

	token := c.client.SubscribeMultiple(filters, nil)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe removes subscriptions and stops delivery for the topics.
func (c *Conn) Unsubscribe(topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	for _, topic := range topics {
		if topic == "" {
			return ErrInvalidTopic
		}
	}
	if !c.alive() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// Close disconnects from the broker, allowing a short quiesce for pending
// operations. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// alive reports whether the connection is usable.
func (c *Conn) alive() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return !closed && c.client.IsConnected()
}

// wrapHandler adapts the message callback to paho with panic recovery.
func (c *Conn) wrapHandler(handler func(topic string, payload []byte)) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if c.log != nil {
					c.log.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		handler(msg.Topic(), msg.Payload())
	}
}
