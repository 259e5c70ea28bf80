// Package shadow implements the resilient client for the vendor's
// device-shadow protocol over MQTT-on-WebSocket.
//
// This package manages:
//   - The session lifecycle: credential acquisition, connect, reconnect
//     with exponential backoff, and periodic credential rotation
//   - A circuit breaker that suppresses reconnect storms during outages
//   - Correlation of publish/subscribe traffic into awaitable get/update
//     request-response pairs with timeout and supersession semantics
//   - Classification of inbound shadow topics and dispatch of unsolicited
//     device-initiated state changes
//
// # Architecture
//
// The cloud broker only accepts device-scoped, short-lived connection
// credentials (a presigned WebSocket URL valid for about an hour), so the
// session owns its own retry policy instead of leaning on the MQTT
// library's auto-reconnect: every attempt must fetch fresh credentials
// first. A rotation timer reconnects proactively at 50 minutes, well
// before the URL expires.
//
//	caller ──> Session ──> CredentialSupplier (token exchange, external)
//	              │
//	              └──> Dialer ──> MQTT-over-WebSocket broker
//
// Inbound messages flow through Classify and either settle a pending
// request in the correlator or surface on the session's event channel as
// unsolicited state changes.
//
// # Failure Semantics
//
// Transport-level failures are never raised to a specific caller; they
// drive the reconnect state machine and surface as advisory Error events.
// Request-level failures (rejection, timeout, supersession, disconnect)
// are always raised to the caller awaiting that request. The session never
// requires a manual restart for any transient condition.
//
// # Usage
//
//	session := shadow.NewSession(shadow.Config{
//	    Supplier: supplier,
//	    Dialer:   dialer,
//	    Logger:   log,
//	})
//	session.SubscribeDevice(deviceID)
//	if err := session.Connect(ctx); err != nil { ... }
//	doc, err := session.GetState(ctx, deviceID)
package shadow
