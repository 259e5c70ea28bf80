// Package mqtt wraps eclipse/paho.mqtt.golang for MQTT-over-WebSocket
// connections to the vendor cloud broker.
//
// This package manages:
//   - Dialing presigned ws:// / wss:// broker URLs
//   - QoS 1 publish and exact-topic subscription
//   - Inbound message delivery through a single callback
//   - Connection-lost notification
//
// # Single-Shot Connections
//
// The broker authenticates each connection with a presigned URL that is
// consumed by the handshake, so the paho auto-reconnect machinery is
// disabled: a dropped connection cannot be re-dialed with the same URL.
// Each Dial yields exactly one connection; when it is lost, the owner
// fetches fresh credentials and dials again. This inverts the usual
// paho usage where the library owns retry.
//
// # Usage
//
//	conn, err := mqtt.Dial(ctx, mqtt.Options{
//	    BrokerURL: creds.BrokerURL,
//	    ClientID:  creds.ClientID,
//	    OnMessage: dispatch,
//	    OnConnectionLost: onLost,
//	})
//	if err != nil { ... }
//	defer conn.Close()
//	conn.Subscribe("things/dev-1/shadow/get/accepted")
//	conn.Publish("things/dev-1/shadow/get", []byte("{}"))
package mqtt
