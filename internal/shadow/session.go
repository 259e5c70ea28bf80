package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rowanhart/aircloud/internal/protocol"
)

// SessionState describes the session's connection lifecycle position.
type SessionState int

// Session states.
const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
)

// String returns a log-friendly name for the session state.
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// nopLogger discards all log output. Used when Config.Logger is nil.
type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// Conn is one live broker connection. Implementations wrap the MQTT
// transport; the session never touches the MQTT library directly.
type Conn interface {
	Publish(topic string, payload []byte) error
	Subscribe(topics ...string) error
	Unsubscribe(topics ...string) error
	Close() error
}

// DialOptions carries the per-connection callbacks and limits the session
// hands to the dialer.
type DialOptions struct {
	// ConnectTimeout bounds the transport handshake.
	ConnectTimeout time.Duration

	// OnMessage is invoked for every inbound message on a subscribed topic.
	OnMessage func(topic string, payload []byte)

	// OnLost is invoked once when the connection drops unexpectedly.
	// Not invoked for caller-initiated Close.
	OnLost func(err error)
}

// Dialer establishes broker connections from freshly fetched credentials.
// Each Dial is single-shot: the returned Conn never reconnects on its own,
// because the credentials it was dialed with are already spent.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials, opts DialOptions) (Conn, error)
}

// Default session tuning. Matched to the vendor cloud's observed behavior.
const (
	DefaultConnectTimeout        = 15 * time.Second
	DefaultRequestTimeout        = 10 * time.Second
	DefaultReconnectInitialDelay = 1 * time.Second
	DefaultReconnectMaxDelay     = 300 * time.Second
	DefaultBreakerThreshold      = 10
	DefaultBreakerCoolDown       = 5 * time.Minute
	DefaultCredentialRotation    = 50 * time.Minute
	DefaultEventBuffer           = 64
)

// Config configures a Session. Supplier and Dialer are required; every
// other field falls back to the defaults above when zero.
type Config struct {
	Supplier CredentialSupplier
	Dialer   Dialer
	Logger   Logger

	ConnectTimeout        time.Duration
	RequestTimeout        time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	BreakerThreshold      int
	BreakerCoolDown       time.Duration
	CredentialRotation    time.Duration

	// SuppressGetStateEvents stops polled get responses from also being
	// surfaced as StateChanged events. Off by default: a fresh reported
	// document is a state observation regardless of who asked for it.
	SuppressGetStateEvents bool

	EventBuffer int
}

// Session is the resilient shadow client: it owns the connection lifecycle,
// request correlation, and inbound dispatch for one broker session at a time.
//
// All methods are safe for concurrent use. Mutation is serialized by a
// single mutex; callers awaiting requests block on per-request channels,
// never on the session lock, so a slow broker cannot stall dispatch.
type Session struct {
	cfg    Config
	log    Logger
	topics Topics

	correlator *correlator
	events     chan Event

	mu      sync.Mutex
	state   SessionState
	breaker *breaker
	conn    Conn
	creds   Credentials

	// gen increments on every teardown. Timer and transport callbacks
	// capture the generation they were armed under and no-op when stale.
	gen int

	// attempt counts consecutive failed connect attempts since the last
	// success; it drives the backoff schedule and resets on success.
	attempt int

	requested  map[string]struct{}
	subscribed map[string]struct{}
	statuses   map[string]protocol.DeviceStatus

	reconnectTimer *time.Timer
	rotationTimer  *time.Timer
	coolDownTimer  *time.Timer

	droppedEvents int
}

// NewSession creates a session. It does not connect; call Connect.
func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ReconnectInitialDelay <= 0 {
		cfg.ReconnectInitialDelay = DefaultReconnectInitialDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = DefaultBreakerThreshold
	}
	if cfg.BreakerCoolDown <= 0 {
		cfg.BreakerCoolDown = DefaultBreakerCoolDown
	}
	if cfg.CredentialRotation <= 0 {
		cfg.CredentialRotation = DefaultCredentialRotation
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}

	return &Session{
		cfg:        cfg,
		log:        cfg.Logger,
		correlator: newCorrelator(),
		events:     make(chan Event, cfg.EventBuffer),
		breaker:    newBreaker(cfg.BreakerThreshold, cfg.BreakerCoolDown),
		requested:  make(map[string]struct{}),
		subscribed: make(map[string]struct{}),
		statuses:   make(map[string]protocol.DeviceStatus),
	}
}

// Events returns the session's outbound event channel. Drain it; when the
// buffer fills, new events are dropped with a logged warning rather than
// blocking dispatch.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubscribeDevice registers interest in a device's shadow. If the session
// is connected and the active credentials authorize the device, the wire
// subscriptions are established immediately; otherwise they are deferred
// until a connection with matching credentials exists.
func (s *Session) SubscribeDevice(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requested[deviceID] = struct{}{}
	if s.state != StateConnected {
		return nil
	}
	return s.subscribeWireLocked(deviceID)
}

// UnsubscribeDevice withdraws interest in a device, tearing down its wire
// subscriptions and dropping its cached status. With no remaining demand
// the session stays connected but will not reconnect after a loss.
func (s *Session) UnsubscribeDevice(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.requested, deviceID)
	delete(s.statuses, deviceID)

	if _, onWire := s.subscribed[deviceID]; !onWire {
		return nil
	}
	delete(s.subscribed, deviceID)
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Unsubscribe(s.topics.Subscriptions(deviceID)...); err != nil {
		return fmt.Errorf("unsubscribing device %s: %w", deviceID, err)
	}
	return nil
}

// Devices returns the requested device IDs.
func (s *Session) Devices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.requested))
	for id := range s.requested {
		ids = append(ids, id)
	}
	return ids
}

// CachedStatus returns the latest merged status for a device, if any state
// has been observed since the device was subscribed.
func (s *Session) CachedStatus(deviceID string) (protocol.DeviceStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[deviceID]
	return status, ok
}

// Connect establishes the broker session: fetch credentials, dial, and
// subscribe for any requested device the credentials authorize.
//
// Returns a CircuitOpenError without attempting anything while the breaker
// is open. A supplier failure counts as a connect failure. Already
// connected or connecting is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	return s.connect(ctx)
}

// Disconnect tears the session down deliberately: every timer is canceled,
// every pending request fails with ErrDisconnected before this returns, the
// requested set and cached statuses are cleared, and no reconnect follows.
// Circuit breaker state survives; it tracks broker health, not demand.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.gen++
	s.stopTimersLocked()
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.attempt = 0
	s.requested = make(map[string]struct{})
	s.subscribed = make(map[string]struct{})
	s.statuses = make(map[string]protocol.DeviceStatus)
	s.mu.Unlock()

	s.correlator.failAll(ErrDisconnected)
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.log.Warn("error closing broker connection", "error", err)
		}
		s.publish(Event{Type: EventDisconnected, Time: time.Now().UTC()})
	}
	s.log.Info("session disconnected by caller")
}

// GetState requests the device's current shadow document and returns its
// reported section normalized to the canonical status.
//
// Fails fast with ErrNotConnected while disconnected. A newer GetState for
// the same device supersedes this one; no response within the request
// timeout yields ErrRequestTimeout.
func (s *Session) GetState(ctx context.Context, deviceID string) (protocol.DeviceStatus, error) {
	doc, err := s.request(ctx, deviceID, OpGet, []byte("{}"))
	if err != nil {
		return protocol.DeviceStatus{}, err
	}
	return protocol.NormalizeReported(doc.State.Reported), nil
}

// UpdateState pushes a desired-state patch built from the command and waits
// for the broker's acceptance. Same fast-fail, supersession, and timeout
// semantics as GetState.
func (s *Session) UpdateState(ctx context.Context, deviceID string, cmd protocol.Command) error {
	desired := protocol.BuildDesired(cmd)
	if len(desired) == 0 {
		return fmt.Errorf("shadow: empty command for device %s", deviceID)
	}

	payload, err := json.Marshal(map[string]any{
		"state": map[string]any{"desired": desired},
	})
	if err != nil {
		return fmt.Errorf("encoding desired state: %w", err)
	}

	_, err = s.request(ctx, deviceID, OpUpdate, payload)
	return err
}

// request runs one correlated request: register, publish, await settlement.
func (s *Session) request(ctx context.Context, deviceID string, op Operation, payload []byte) (*Document, error) {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()

	ch := s.correlator.add(deviceID, op, s.cfg.RequestTimeout)

	topic := s.topics.Get(deviceID)
	if op == OpUpdate {
		topic = s.topics.Update(deviceID)
	}
	if err := conn.Publish(topic, payload); err != nil {
		s.correlator.reject(deviceID, op, fmt.Errorf("publishing %s request: %w", op, err))
	}

	select {
	case res := <-ch:
		return res.doc, res.err
	case <-ctx.Done():
		s.correlator.take(deviceID, op)
		return nil, ctx.Err()
	}
}

// connect performs one connect attempt and installs the result.
func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if !s.breaker.allow() {
		retryAt := s.breaker.retryAt(time.Now())
		s.mu.Unlock()
		return &CircuitOpenError{RetryAt: retryAt}
	}
	s.state = StateConnecting
	gen := s.gen
	s.mu.Unlock()

	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	creds, err := s.cfg.Supplier.Fetch(attemptCtx)
	if err != nil {
		return s.connectFailed(gen, fmt.Errorf("%w: %w", ErrCredentialFetch, err))
	}

	conn, err := s.cfg.Dialer.Dial(attemptCtx, creds, DialOptions{
		ConnectTimeout: s.cfg.ConnectTimeout,
		OnMessage: func(topic string, payload []byte) {
			s.handleMessage(gen, topic, payload)
		},
		OnLost: func(lostErr error) {
			s.handleConnectionLost(gen, lostErr)
		},
	})
	if err != nil {
		return s.connectFailed(gen, fmt.Errorf("%w: %w", ErrConnectFailed, err))
	}

	s.mu.Lock()
	if s.gen != gen {
		// Disconnect raced the handshake; the session moved on.
		s.mu.Unlock()
		_ = conn.Close()
		return ErrDisconnected
	}

	s.conn = conn
	s.creds = creds
	s.state = StateConnected
	s.attempt = 0
	s.breaker.recordSuccess(time.Now())
	s.subscribed = make(map[string]struct{})

	var subErr error
	if _, wanted := s.requested[creds.DeviceID]; wanted {
		subErr = s.subscribeWireLocked(creds.DeviceID)
	}
	if subErr != nil {
		// A connection that cannot subscribe is useless; count the whole
		// attempt as failed.
		s.conn = nil
		s.state = StateDisconnected
		s.mu.Unlock()
		_ = conn.Close()
		return s.connectFailed(gen, fmt.Errorf("%w: %w", ErrConnectFailed, subErr))
	}

	rotation := s.cfg.CredentialRotation
	s.rotationTimer = time.AfterFunc(rotation, func() {
		s.rotateCredentials(gen)
	})
	s.mu.Unlock()

	s.log.Info("session connected",
		"device_id", creds.DeviceID,
		"client_id", creds.ClientID,
		"rotation_in", rotation)
	s.publish(Event{Type: EventConnected, DeviceID: creds.DeviceID, Time: time.Now().UTC()})
	return nil
}

// connectFailed records a failed attempt, advances the breaker, and
// schedules the next automatic attempt when demand warrants one.
func (s *Session) connectFailed(gen int, err error) error {
	now := time.Now()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrDisconnected
	}
	s.state = StateDisconnected
	s.attempt++
	opened := s.breaker.recordFailure(now)

	var breakerErr *CircuitOpenError
	if opened {
		retryAt := s.breaker.retryAt(now)
		breakerErr = &CircuitOpenError{RetryAt: retryAt}
		if s.coolDownTimer != nil {
			s.coolDownTimer.Stop()
		}
		s.coolDownTimer = time.AfterFunc(s.cfg.BreakerCoolDown, func() {
			s.coolDownElapsed(gen)
		})
	} else if len(s.requested) > 0 {
		s.scheduleReconnectLocked(gen)
	}
	attempt := s.attempt
	s.mu.Unlock()

	if opened {
		s.log.Error("circuit breaker opened after repeated connect failures",
			"failures", attempt, "retry_at", breakerErr.RetryAt, "error", err)
		s.publish(Event{Type: EventError, Err: breakerErr, Time: now.UTC()})
	} else {
		s.log.Warn("connect attempt failed", "attempt", attempt, "error", err)
		s.publish(Event{Type: EventError, Err: err, Time: now.UTC()})
	}
	return err
}

// scheduleReconnectLocked arms the single reconnect timer with the current
// backoff delay. No-op if an attempt is already scheduled.
func (s *Session) scheduleReconnectLocked(gen int) {
	if s.reconnectTimer != nil {
		return
	}
	delay := s.backoffDelay()
	s.log.Info("reconnect scheduled", "delay", delay, "attempt", s.attempt)
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.reconnectElapsed(gen)
	})
}

// backoffDelay returns the exponential backoff delay for the current
// attempt count: initial * 2^(attempt-1), capped at the maximum.
func (s *Session) backoffDelay() time.Duration {
	delay := s.cfg.ReconnectInitialDelay
	for i := 1; i < s.attempt; i++ {
		delay *= 2
		if delay >= s.cfg.ReconnectMaxDelay {
			return s.cfg.ReconnectMaxDelay
		}
	}
	if delay > s.cfg.ReconnectMaxDelay {
		delay = s.cfg.ReconnectMaxDelay
	}
	return delay
}

// reconnectElapsed runs when the reconnect timer fires.
func (s *Session) reconnectElapsed(gen int) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	if s.state != StateDisconnected || len(s.requested) == 0 {
		s.mu.Unlock()
		return
	}
	if !s.breaker.allow() {
		// The cool-down timer owns the next attempt now.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.connect(context.Background()); err != nil {
		s.log.Debug("scheduled reconnect attempt failed", "error", err)
	}
}

// coolDownElapsed runs when the breaker cool-down expires: move to
// half-open and, if demand exists, launch the single probe attempt.
func (s *Session) coolDownElapsed(gen int) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.coolDownTimer = nil
	s.breaker.halfOpen()
	probe := s.state == StateDisconnected && len(s.requested) > 0
	s.mu.Unlock()

	s.log.Info("circuit breaker half-open", "probing", probe)
	if !probe {
		return
	}
	if err := s.connect(context.Background()); err != nil {
		s.log.Debug("half-open probe failed", "error", err)
	}
}

// rotateCredentials runs when the rotation timer fires: tear down the
// current connection before its presigned URL expires and reconnect with
// fresh credentials.
func (s *Session) rotateCredentials(gen int) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.log.Info("rotating credentials", "issued_at", s.creds.IssuedAt)

	s.gen++
	s.rotationTimer = nil
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.subscribed = make(map[string]struct{})
	s.mu.Unlock()

	s.correlator.failAll(ErrDisconnected)
	if conn != nil {
		_ = conn.Close()
	}
	s.publish(Event{Type: EventDisconnected, Time: time.Now().UTC()})

	if err := s.connect(context.Background()); err != nil {
		s.log.Warn("reconnect after credential rotation failed", "error", err)
	}
}

// handleConnectionLost reacts to an unexpected transport loss: fail the
// pendings, surface the event, and schedule a reconnect if demand exists.
func (s *Session) handleConnectionLost(gen int, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	newGen := s.gen
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.subscribed = make(map[string]struct{})
	if s.rotationTimer != nil {
		s.rotationTimer.Stop()
		s.rotationTimer = nil
	}
	demand := len(s.requested) > 0
	if demand && s.breaker.allow() {
		s.scheduleReconnectLocked(newGen)
	}
	s.mu.Unlock()

	s.correlator.failAll(ErrDisconnected)
	if conn != nil {
		_ = conn.Close()
	}

	s.log.Warn("broker connection lost", "error", err, "reconnecting", demand)
	s.publish(Event{Type: EventDisconnected, Err: err, Time: time.Now().UTC()})
}

// handleMessage dispatches one inbound message from the transport.
func (s *Session) handleMessage(gen int, topic string, payload []byte) {
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return
	}

	msg := Classify(topic, payload)
	switch msg.Kind {
	case KindGetAccepted:
		s.correlator.resolve(msg.DeviceID, OpGet, msg.Document)
		if !s.cfg.SuppressGetStateEvents {
			s.applyReported(msg.DeviceID, msg.Document.State.Reported)
		}
	case KindGetRejected:
		s.correlator.reject(msg.DeviceID, OpGet, msg.Rejection)
	case KindUpdateAccepted:
		s.correlator.resolve(msg.DeviceID, OpUpdate, msg.Document)
	case KindUpdateRejected:
		s.correlator.reject(msg.DeviceID, OpUpdate, msg.Rejection)
	case KindUpdateDelta:
		s.applyReported(msg.DeviceID, msg.Delta)
	default:
		s.log.Debug("dropping unrecognized message", "topic", topic)
	}
}

// applyReported normalizes a raw reported field set, merges it into the
// device's cached status, and surfaces the result as a StateChanged event.
// Ignored for devices that are no longer requested.
func (s *Session) applyReported(deviceID string, raw map[string]any) {
	if len(raw) == 0 {
		return
	}

	update := protocol.NormalizeReported(raw)

	s.mu.Lock()
	if _, wanted := s.requested[deviceID]; !wanted {
		s.mu.Unlock()
		s.log.Debug("dropping state for unrequested device", "device_id", deviceID)
		return
	}
	merged := protocol.Merge(s.statuses[deviceID], update)
	s.statuses[deviceID] = merged
	s.mu.Unlock()

	s.publish(Event{
		Type:     EventStateChanged,
		DeviceID: deviceID,
		Status:   &merged,
		Time:     time.Now().UTC(),
	})
}

// subscribeWireLocked establishes the five shadow subscriptions for a
// device on the live connection. Only the credential-authorized device is
// ever subscribed; anything else stays deferred in the requested set.
//
// Caller must hold s.mu.
func (s *Session) subscribeWireLocked(deviceID string) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if deviceID != s.creds.DeviceID {
		s.log.Warn("device not authorized by current credentials, subscription deferred",
			"device_id", deviceID, "authorized", s.creds.DeviceID)
		return nil
	}
	if _, onWire := s.subscribed[deviceID]; onWire {
		return nil
	}
	if err := s.conn.Subscribe(s.topics.Subscriptions(deviceID)...); err != nil {
		return fmt.Errorf("subscribing device %s: %w", deviceID, err)
	}
	s.subscribed[deviceID] = struct{}{}
	s.log.Debug("device subscribed", "device_id", deviceID)
	return nil
}

// stopTimersLocked cancels every armed timer. Caller must hold s.mu.
func (s *Session) stopTimersLocked() {
	for _, t := range []**time.Timer{&s.reconnectTimer, &s.rotationTimer, &s.coolDownTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

// publish delivers an event without blocking; the buffer absorbs bursts
// and overflow is dropped with a warning.
func (s *Session) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.mu.Lock()
		s.droppedEvents++
		dropped := s.droppedEvents
		s.mu.Unlock()
		s.log.Warn("event buffer full, dropping event",
			"type", ev.Type, "dropped_total", dropped)
	}
}
